package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vixogram/internal/abuse"
	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/observability"
	"vixogram/internal/policy"
	"vixogram/internal/repository"
	"vixogram/internal/worker"
)

// Background task names.
const (
	TaskPushNotify = "push_notify"
	TaskBotReply   = "bot_reply"
)

// BotReplyPayload is the queued bot-hook task.
type BotReplyPayload struct {
	MessageID uint   `json:"message_id"`
	Room      string `json:"room"`
}

const botCooldownTTL = 30 * time.Second

// SendInput is one send attempt entering the message pipeline.
type SendInput struct {
	Author    *models.User
	Body      string
	ReplyToID *uint
	// TypedMs is the client-reported typing duration; 0 means not reported.
	TypedMs   int
	UserAgent string

	// File upload fields; when FileRef is set the send is a media message.
	FileRef     string
	ContentType string
	FileSize    int64
	Caption     string
}

// MessageService runs the send pipeline and message mutations.
type MessageService struct {
	cfg       *config.Config
	users     repository.UserRepository
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	abuse     *abuse.Engine
	fabric    *notifications.Fabric
	notify    *NotifyService
	retention *RetentionService
	moderator Moderator
	previews  *policy.PreviewFetcher
	worker    worker.Worker
}

// NewMessageService wires the pipeline. moderator and previews may be nil.
func NewMessageService(
	cfg *config.Config,
	users repository.UserRepository,
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	engine *abuse.Engine,
	fabric *notifications.Fabric,
	notify *NotifyService,
	retention *RetentionService,
	moderator Moderator,
	previews *policy.PreviewFetcher,
	w worker.Worker,
) *MessageService {
	return &MessageService{
		cfg:       cfg,
		users:     users,
		rooms:     rooms,
		messages:  messages,
		abuse:     engine,
		fabric:    fabric,
		notify:    notify,
		retention: retention,
		moderator: moderator,
		previews:  previews,
		worker:    w,
	}
}

// GetRoom loads a room by group name with members preloaded.
func (s *MessageService) GetRoom(ctx context.Context, groupName string) (*models.Room, error) {
	room, err := s.rooms.GetByGroupName(ctx, groupName)
	if err != nil {
		return nil, models.NewNotFoundError("room", groupName)
	}
	return room, nil
}

// ListRecent returns the newest messages for the room, oldest first.
func (s *MessageService) ListRecent(ctx context.Context, roomID uint, limit int) ([]*models.Message, error) {
	return s.messages.ListRecent(ctx, roomID, limit)
}

// PollResult is the fallback-polling payload.
type PollResult struct {
	Messages    []*models.Message `json:"messages"`
	LastID      uint              `json:"last_id"`
	OnlineCount int               `json:"online_count"`
}

// Poll returns messages after the given id plus the current online count.
func (s *MessageService) Poll(ctx context.Context, room *models.Room, afterID uint, limit int) (*PollResult, error) {
	msgs, err := s.messages.ListAfter(ctx, room.ID, afterID, limit)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	lastID := afterID
	if len(msgs) > 0 {
		lastID = msgs[len(msgs)-1].ID
	}
	return &PollResult{
		Messages:    msgs,
		LastID:      lastID,
		OnlineCount: s.fabric.Rooms().OnlineCount(room.GroupName),
	}, nil
}

// Send runs the full pipeline and returns the persisted message. The caller
// renders it into the HTTP response; WS fan-out skips the author.
func (s *MessageService) Send(ctx context.Context, room *models.Room, in SendInput) (*models.Message, error) {
	author := in.Author

	if err := s.checkPermission(ctx, room, author); err != nil {
		return nil, err
	}
	if err := s.checkMuteAndVerification(ctx, room, author); err != nil {
		return nil, err
	}
	if err := s.checkRoomFlood(ctx, room, author); err != nil {
		return nil, err
	}

	body := strings.TrimSpace(in.Body)
	isUpload := in.FileRef != ""
	if body == "" && !isUpload {
		return nil, models.NewValidationError("message body is empty")
	}
	if len([]rune(body)) > s.cfg.MaxMessageLen {
		return nil, models.NewValidationError(fmt.Sprintf("message exceeds %d characters", s.cfg.MaxMessageLen))
	}

	if isUpload {
		if err := s.checkUpload(ctx, room, author, in); err != nil {
			return nil, err
		}
	} else if policy.ContainsLink(body) && !policy.RoomAllowsLinks(room) {
		s.recordBlocked(ctx, models.BlockedScopePolicy, author.ID, room.ID, "link not allowed")
		return nil, models.NewForbiddenError("links are not allowed in this room")
	}

	if in.ReplyToID != nil {
		parent, err := s.messages.GetByID(ctx, *in.ReplyToID)
		if err != nil {
			return nil, models.NewNotFoundError("message", *in.ReplyToID)
		}
		// Replies stay inside the room they answer.
		if parent.RoomID != room.ID {
			return nil, models.NewValidationError("reply target is in another room")
		}
	}

	if body != "" {
		if err := s.checkAntiSpam(ctx, room, author, body, in); err != nil {
			return nil, err
		}
	}

	if err := s.checkUserRate(ctx, room, author); err != nil {
		return nil, err
	}

	if body != "" {
		if err := s.moderate(ctx, room, author, body, in); err != nil {
			return nil, err
		}
	}

	msg := &models.Message{
		RoomID:    room.ID,
		AuthorID:  author.ID,
		Kind:      models.MessageKindText,
		Body:      body,
		ReplyToID: in.ReplyToID,
	}
	if isUpload {
		msg.Kind = models.MessageKindFile
		msg.FileRef = in.FileRef
		msg.Caption = strings.TrimSpace(in.Caption)
		msg.Body = ""
	}
	s.attachPreview(ctx, room, msg)

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}
	msg.Author = author
	observability.MessageThroughput.WithLabelValues(string(room.Class()), string(msg.Kind)).Inc()

	s.fabric.PublishRoom(ctx, room.GroupName, notifications.RoomEvent{
		Type:       notifications.EventMessageCreated,
		SkipUserID: author.ID,
		Payload:    msg,
	})

	if s.retention != nil {
		s.retention.TrimRoom(ctx, room)
	}

	s.notifyMentions(ctx, room, author, msg)
	s.notifyReply(ctx, room, author, msg)
	s.maybeScheduleBot(ctx, room, author, msg)

	return msg, nil
}

// Step 1: permission gate.
func (s *MessageService) checkPermission(ctx context.Context, room *models.Room, author *models.User) error {
	if author == nil || !author.IsActive {
		return models.NewForbiddenError("account is not active")
	}
	if author.ChatBlocked {
		return models.NewForbiddenError("you are blocked from chat")
	}

	switch room.Class() {
	case models.RoomClassPrivate1to1, models.RoomClassCodeRoom:
		member, err := s.rooms.IsMember(ctx, room.ID, author.ID)
		if err != nil {
			return models.NewInternalError(err)
		}
		if !member {
			return models.NewForbiddenError("you are not a member of this room")
		}
	case models.RoomClassTopical:
		member, err := s.rooms.IsMember(ctx, room.ID, author.ID)
		if err != nil {
			return models.NewInternalError(err)
		}
		if !member {
			if s.cfg.VerifyMandatory && !author.EmailVerified {
				return models.NewForbiddenError("verify your email to join this room")
			}
			if err := s.rooms.AddMember(ctx, room.ID, author.ID); err != nil {
				return models.NewInternalError(err)
			}
		}
	}
	return nil
}

// Step 2: mute and verification gate.
func (s *MessageService) checkMuteAndVerification(ctx context.Context, room *models.Room, author *models.User) error {
	if muted := s.abuse.MutedFor(ctx, author.ID); muted > 0 {
		s.recordBlocked(ctx, models.BlockedScopeMute, author.ID, room.ID, "")
		observability.MessagesRejected.WithLabelValues(string(models.BlockedScopeMute)).Inc()
		return models.NewRateLimitedError("you are temporarily muted", int(muted.Seconds())+1)
	}
	if !author.EmailVerified && !author.IsBot {
		count, err := s.users.CountMessagesByAuthor(ctx, author.ID)
		if err != nil {
			return models.NewInternalError(err)
		}
		if count >= int64(s.cfg.UnverifiedMsgLimit) {
			return models.NewForbiddenError("verify your email to keep chatting")
		}
	}
	return nil
}

// Step 3: room-wide flood check.
func (s *MessageService) checkRoomFlood(ctx context.Context, room *models.Room, author *models.User) error {
	res := s.abuse.CheckRateLimit(ctx, cache.RoomMsgKey(room.GroupName),
		s.cfg.RoomMsgRateLimit, time.Duration(s.cfg.RoomMsgRatePeriod)*time.Second)
	if res.Allowed {
		return nil
	}
	s.recordBlocked(ctx, models.BlockedScopeRate, author.ID, room.ID, "room flood")
	observability.MessagesRejected.WithLabelValues(string(models.BlockedScopeRate)).Inc()
	return models.NewRateLimitedError("the room is too busy right now", int(res.RetryAfter.Seconds())+1)
}

// Step 6: anti-spam quartet. Each hit records a weighted strike.
func (s *MessageService) checkAntiSpam(ctx context.Context, room *models.Room, author *models.User, body string, in SendInput) error {
	weight := 1
	if in.UserAgent == "" {
		weight = 2
	}

	if dup, retry := s.abuse.IsDuplicateMessage(ctx, room.GroupName, author.ID, body); dup {
		s.strikeAndRecord(ctx, models.BlockedScopeDuplicate, author, room, weight)
		return models.NewRateLimitedError("you already sent that message", int(retry.Seconds())+1)
	}
	if s.abuse.IsSameEmojiSpam(ctx, room.GroupName, author.ID, body) {
		s.strikeAndRecord(ctx, models.BlockedScopeEmoji, author, room, weight)
		return models.NewRateLimitedError("slow down with the emoji", s.cfg.EmojiSpamTTL)
	}
	if s.abuse.IsSuspiciousTypingSpeed(body, in.TypedMs) {
		s.strikeAndRecord(ctx, models.BlockedScopeSpeed, author, room, weight)
		return models.NewRateLimitedError("that message was typed suspiciously fast", s.cfg.FastLongMinInterval)
	}
	if s.abuse.IsFastLongMessage(ctx, room.GroupName, author.ID, len([]rune(body))) {
		s.strikeAndRecord(ctx, models.BlockedScopeSpeed, author, room, weight)
		return models.NewRateLimitedError("long messages need a short pause between them", s.cfg.FastLongMinInterval)
	}
	return nil
}

// Step 7: per-user send rate.
func (s *MessageService) checkUserRate(ctx context.Context, room *models.Room, author *models.User) error {
	res := s.abuse.CheckRateLimit(ctx, cache.ChatMsgKey(room.GroupName, author.ID),
		s.cfg.ChatMsgRateLimit, time.Duration(s.cfg.ChatMsgRatePeriod)*time.Second)
	if res.Allowed {
		return nil
	}
	s.recordBlocked(ctx, models.BlockedScopeRate, author.ID, room.ID, "user rate")
	observability.MessagesRejected.WithLabelValues(string(models.BlockedScopeRate)).Inc()
	return models.NewRateLimitedError("you are sending messages too fast", int(res.RetryAfter.Seconds())+1)
}

// Step 8: optional LLM moderation. Failures allow; blocks record an event,
// a double-weight strike, and may extend the current mute.
func (s *MessageService) moderate(ctx context.Context, room *models.Room, author *models.User, body string, in SendInput) error {
	if s.moderator == nil {
		return nil
	}

	req := ModerationRequest{
		UserID:          author.ID,
		Room:            room.GroupName,
		Body:            body,
		SuspiciousSpeed: s.abuse.IsSuspiciousTypingSpeed(body, in.TypedMs),
	}
	if recent, err := s.messages.ListRecentByAuthor(ctx, room.ID, author.ID, 3); err == nil {
		for _, m := range recent {
			req.RecentUserMsgs = append(req.RecentUserMsgs, m.Body)
		}
	}
	if recent, err := s.messages.ListRecent(ctx, room.ID, 3); err == nil {
		for _, m := range recent {
			req.RecentRoomMsgs = append(req.RecentRoomMsgs, m.Body)
		}
	}

	verdict, err := s.moderator.Review(ctx, req)
	if err != nil {
		observability.Logger.Warn("moderation call failed",
			slog.String("room", room.GroupName),
			slog.String("error", err.Error()),
		)
		return nil
	}

	action := verdict.Action
	switch {
	case s.cfg.AIBlockMinSeverity > 0 && verdict.Severity >= s.cfg.AIBlockMinSeverity:
		action = models.ModerationBlock
	case s.cfg.AIFlagMinSeverity > 0 && verdict.Severity >= s.cfg.AIFlagMinSeverity && action != models.ModerationBlock:
		action = models.ModerationFlag
	}
	observability.ModerationActions.WithLabelValues(string(action)).Inc()

	if action == models.ModerationAllow {
		return nil
	}

	event := &models.ModerationEvent{
		UserID:     author.ID,
		RoomID:     room.ID,
		Text:       body,
		Action:     action,
		Categories: verdict.Categories,
		Severity:   verdict.Severity,
		Confidence: verdict.Confidence,
		Reason:     verdict.Reason,
	}
	if err := s.messages.RecordModeration(ctx, event); err != nil {
		observability.Logger.Warn("failed to record moderation event", slog.String("error", err.Error()))
	}

	if action != models.ModerationBlock {
		return nil
	}

	s.recordBlocked(ctx, models.BlockedScopeModeration, author.ID, room.ID, verdict.Categories)
	observability.MessagesRejected.WithLabelValues(string(models.BlockedScopeModeration)).Inc()
	s.abuse.RecordViolation(ctx, string(models.BlockedScopeModeration), author.ID, room.GroupName, 2)
	if verdict.MuteSeconds > 0 {
		_ = s.abuse.SetMuted(ctx, author.ID, time.Duration(verdict.MuteSeconds)*time.Second)
	}
	return models.NewBlockedError("message blocked by moderation")
}

// Upload policy: room class, daily cap, size, and content-type prefix.
func (s *MessageService) checkUpload(ctx context.Context, room *models.Room, author *models.User, in SendInput) error {
	if !policy.RoomAllowsUploads(room) {
		s.recordBlocked(ctx, models.BlockedScopePolicy, author.ID, room.ID, "uploads not allowed")
		return models.NewForbiddenError("uploads are not allowed in this room")
	}
	if in.FileSize > s.cfg.UploadMaxBytes {
		return models.NewValidationError("file is too large")
	}
	if !s.allowedContentType(in.ContentType) {
		return models.NewValidationError("unsupported file type")
	}

	day := time.Now().UTC().Format("2006-01-02")
	count, _, err := cache.IncrWindow(ctx, cache.UploadCapKey(room.GroupName, author.ID, day), 24*time.Hour)
	if err == nil && count > int64(s.cfg.UploadDailyCap) {
		s.recordBlocked(ctx, models.BlockedScopePolicy, author.ID, room.ID, "upload cap")
		return models.NewRateLimitedError("daily upload limit reached", 3600)
	}
	return nil
}

func (s *MessageService) allowedContentType(ct string) bool {
	for _, prefix := range strings.Split(s.cfg.UploadAllowedPrefix, ",") {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// attachPreview captures an OpenGraph snapshot for the first link, best-effort.
func (s *MessageService) attachPreview(ctx context.Context, room *models.Room, msg *models.Message) {
	if s.previews == nil || msg.Body == "" || !policy.RoomAllowsLinks(room) {
		return
	}
	link := policy.FirstLink(msg.Body)
	if link == "" {
		return
	}
	preview, err := s.previews.Fetch(ctx, link)
	if err != nil {
		return
	}
	msg.PreviewURL = preview.URL
	msg.PreviewTitle = preview.Title
	msg.PreviewDescription = preview.Description
	msg.PreviewImage = preview.Image
	msg.PreviewSiteName = preview.SiteName
}

// Step 12: mention notifications.
func (s *MessageService) notifyMentions(ctx context.Context, room *models.Room, author *models.User, msg *models.Message) {
	handles := policy.ParseMentions(msg.Body)
	if len(handles) == 0 {
		return
	}
	mentioned, err := s.users.ResolveActiveUsernames(ctx, handles)
	if err != nil {
		observability.Logger.Warn("failed to resolve mentions", slog.String("error", err.Error()))
		return
	}
	restricted := room.Class() != models.RoomClassPublic
	for _, user := range mentioned {
		if user.ID == author.ID {
			continue
		}
		if restricted {
			member, err := s.rooms.IsMember(ctx, room.ID, user.ID)
			if err != nil || !member {
				continue
			}
		}
		s.notify.NotifyMention(ctx, user, author, room, msg)
	}
}

// Step 13: reply notification.
func (s *MessageService) notifyReply(ctx context.Context, room *models.Room, author *models.User, msg *models.Message) {
	if msg.ReplyToID == nil {
		return
	}
	parent, err := s.messages.GetByID(ctx, *msg.ReplyToID)
	if err != nil || parent.AuthorID == author.ID || parent.RoomID != room.ID {
		return
	}
	recipient, err := s.users.GetByID(ctx, parent.AuthorID)
	if err != nil {
		return
	}
	s.notify.NotifyReply(ctx, recipient, author, room, msg)
}

// Step 14: bot hook, public room only.
func (s *MessageService) maybeScheduleBot(ctx context.Context, room *models.Room, author *models.User, msg *models.Message) {
	if !s.cfg.CompanionBotEnabled || s.worker == nil {
		return
	}
	if room.Class() != models.RoomClassPublic || author.IsBot {
		return
	}
	ok, err := cache.AddIfAbsent(ctx, cache.BotCooldownKey(msg.ID), "1", botCooldownTTL)
	if err != nil || !ok {
		return
	}
	if err := s.worker.Submit(ctx, TaskBotReply, BotReplyPayload{MessageID: msg.ID, Room: room.GroupName}); err != nil {
		observability.Logger.Warn("failed to schedule bot reply",
			slog.Uint64("message_id", uint64(msg.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// Edit changes a message body. Author only; the body is revalidated.
func (s *MessageService) Edit(ctx context.Context, actor *models.User, messageID uint, body string) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, models.NewNotFoundError("message", messageID)
	}
	if msg.AuthorID != actor.ID {
		return nil, models.NewForbiddenError("only the author can edit a message")
	}

	body = strings.TrimSpace(body)
	if body == "" && msg.FileRef == "" {
		return nil, models.NewValidationError("message body is empty")
	}
	if len([]rune(body)) > s.cfg.MaxMessageLen {
		return nil, models.NewValidationError(fmt.Sprintf("message exceeds %d characters", s.cfg.MaxMessageLen))
	}

	room, err := s.rooms.GetByID(ctx, msg.RoomID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if policy.ContainsLink(body) && !policy.RoomAllowsLinks(room) {
		return nil, models.NewForbiddenError("links are not allowed in this room")
	}

	if err := s.messages.UpdateBody(ctx, messageID, body); err != nil {
		return nil, models.NewInternalError(err)
	}
	msg, err = s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	s.fabric.PublishRoom(ctx, room.GroupName, notifications.RoomEvent{
		Type:       notifications.EventMessageUpdated,
		SkipUserID: actor.ID,
		Payload:    msg,
	})
	return msg, nil
}

// Delete removes a message. Allowed for the author or staff.
func (s *MessageService) Delete(ctx context.Context, actor *models.User, messageID uint) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return models.NewNotFoundError("message", messageID)
	}
	if msg.AuthorID != actor.ID && !actor.IsStaff {
		return models.NewForbiddenError("you cannot delete this message")
	}
	room, err := s.rooms.GetByID(ctx, msg.RoomID)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return models.NewInternalError(err)
	}
	s.fabric.PublishRoom(ctx, room.GroupName, notifications.RoomEvent{
		Type:    notifications.EventMessageDeleted,
		Payload: notifications.MessageRefPayload{MessageID: messageID},
	})
	return nil
}

// ReactionsPayload accompanies reactions_changed events.
type ReactionsPayload struct {
	MessageID uint             `json:"message_id"`
	Counts    map[string]int64 `json:"counts"`
}

// React toggles a reaction and broadcasts the updated counts.
func (s *MessageService) React(ctx context.Context, actor *models.User, messageID uint, emoji string) (bool, error) {
	if !models.AllowedEmojis[emoji] {
		return false, models.NewValidationError("unsupported reaction emoji")
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return false, models.NewNotFoundError("message", messageID)
	}
	room, err := s.rooms.GetByID(ctx, msg.RoomID)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	if room.IsPrivate {
		member, err := s.rooms.IsMember(ctx, room.ID, actor.ID)
		if err != nil {
			return false, models.NewInternalError(err)
		}
		if !member {
			return false, models.NewForbiddenError("you are not a member of this room")
		}
	}

	added, err := s.messages.ToggleReaction(ctx, messageID, actor.ID, emoji)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	counts, err := s.messages.ReactionCounts(ctx, messageID)
	if err != nil {
		counts = nil
	}
	s.fabric.PublishRoom(ctx, room.GroupName, notifications.RoomEvent{
		Type:    notifications.EventReactionsChanged,
		Payload: ReactionsPayload{MessageID: messageID, Counts: counts},
	})
	return added, nil
}

// MarkRead advances the caller's read pointer for the room.
func (s *MessageService) MarkRead(ctx context.Context, actor *models.User, room *models.Room, messageID uint) error {
	if err := s.messages.AdvanceReadState(ctx, actor.ID, room.ID, messageID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *MessageService) strikeAndRecord(ctx context.Context, scope models.BlockedScope, author *models.User, room *models.Room, weight int) {
	s.abuse.RecordViolation(ctx, string(scope), author.ID, room.GroupName, weight)
	s.recordBlocked(ctx, scope, author.ID, room.ID, "")
	observability.MessagesRejected.WithLabelValues(string(scope)).Inc()
}

func (s *MessageService) recordBlocked(ctx context.Context, scope models.BlockedScope, userID, roomID uint, meta string) {
	event := &models.BlockedMessageEvent{
		Scope:  scope,
		UserID: userID,
		RoomID: roomID,
		Meta:   meta,
	}
	if err := s.messages.RecordBlocked(ctx, event); err != nil {
		observability.Logger.Warn("failed to record blocked message event",
			slog.String("scope", string(scope)),
			slog.String("error", err.Error()),
		)
	}
}
