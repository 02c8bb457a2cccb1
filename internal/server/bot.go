package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"vixogram/internal/observability"
	"vixogram/internal/service"
)

// BotResponder produces the companion bot's reply to a message. The actual
// LLM integration is an external collaborator wired in at bootstrap.
type BotResponder interface {
	Reply(ctx context.Context, room, author, body string) (string, error)
}

var botResponder BotResponder

// SetBotResponder installs the companion-bot backend. Call before Start.
func SetBotResponder(r BotResponder) { botResponder = r }

// registerBotHandler registers the background bot-reply task. The message
// service schedules it for public-room messages under a per-message
// cooldown; here the reply is generated and sent as the bot user.
func (s *Server) registerBotHandler() {
	s.worker.Register(service.TaskBotReply, func(ctx context.Context, raw json.RawMessage) error {
		if botResponder == nil || !s.config.CompanionBotEnabled {
			return nil
		}
		var payload service.BotReplyPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}

		msg, err := s.messageRepo.GetByID(ctx, payload.MessageID)
		if err != nil {
			// The trigger message can be trimmed or deleted before the
			// task runs; nothing to reply to then.
			return nil
		}
		// Ramp gate: the "companion_bot" flag limits which authors get
		// replies while the bot is being rolled out. Absent flag means on,
		// since COMPANION_BOT_ENABLED is the master switch.
		if _, configured := s.flags.Snapshot(0)["companion_bot"]; configured &&
			!s.flags.Enabled("companion_bot", msg.AuthorID) {
			return nil
		}
		bot, err := s.userRepo.GetByUsername(ctx, s.config.CompanionBotUsername)
		if err != nil {
			observability.Logger.Warn("companion bot user missing",
				slog.String("username", s.config.CompanionBotUsername))
			return nil
		}

		authorName := ""
		if msg.Author != nil {
			authorName = msg.Author.Username
		}
		reply, err := botResponder.Reply(ctx, payload.Room, authorName, msg.Body)
		if err != nil || reply == "" {
			return err
		}

		room, err := s.messageService.GetRoom(ctx, payload.Room)
		if err != nil {
			return nil
		}
		replyTo := payload.MessageID
		_, err = s.messageService.Send(ctx, room, service.SendInput{
			Author:    bot,
			Body:      reply,
			ReplyToID: &replyTo,
		})
		return err
	})
}
