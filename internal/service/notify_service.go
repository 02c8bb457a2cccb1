package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"vixogram/internal/config"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/observability"
	"vixogram/internal/repository"
	"vixogram/internal/worker"
)

// PushSender delivers one push notification to one device token.
type PushSender interface {
	Send(ctx context.Context, token, title, body, url string) error
}

// PushPayload is the queued push hand-off task.
type PushPayload struct {
	UserID  uint   `json:"user_id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
	URL     string `json:"url"`
}

// NotifyService decides whether a notification is persisted, delivers it
// live over the notify channel, and hands pushes to the background worker.
type NotifyService struct {
	cfg           *config.Config
	notifications repository.NotificationRepository
	users         repository.UserRepository
	fabric        *notifications.Fabric
	worker        worker.Worker
}

// NewNotifyService wires the notification path. w may be nil when no
// background worker is configured; pushes are then skipped.
func NewNotifyService(
	cfg *config.Config,
	repo repository.NotificationRepository,
	users repository.UserRepository,
	fabric *notifications.Fabric,
	w worker.Worker,
) *NotifyService {
	return &NotifyService{
		cfg:           cfg,
		notifications: repo,
		users:         users,
		fabric:        fabric,
		worker:        w,
	}
}

// ShouldPersist applies the persistence policy. DND users get nothing at
// all. Private-room notifications always persist, regardless of the
// online flag; otherwise persistence depends on the online heuristic.
func (s *NotifyService) ShouldPersist(user *models.User, room *models.Room) bool {
	if user.IsDND {
		return false
	}
	if room != nil && room.IsPrivate {
		return true
	}
	if s.cfg.NotifyPersistWhenOnline {
		return true
	}
	if room != nil {
		return !s.fabric.IsUserInRoom(room.GroupName, user.ID)
	}
	return !s.fabric.IsUserOnline(user.ID)
}

// NotifyMention delivers an at-mention notification.
func (s *NotifyService) NotifyMention(ctx context.Context, recipient, from *models.User, room *models.Room, msg *models.Message) {
	s.deliver(ctx, recipient, from, room, models.NotificationMention, notifications.EventMention,
		fmt.Sprintf("@%s mentioned you: %s", from.Username, msg.Body),
		roomURL(room))
}

// NotifyReply delivers a reply notification.
func (s *NotifyService) NotifyReply(ctx context.Context, recipient, from *models.User, room *models.Room, msg *models.Message) {
	s.deliver(ctx, recipient, from, room, models.NotificationReply, notifications.EventReply,
		fmt.Sprintf("@%s replied: %s", from.Username, msg.Body),
		roomURL(room))
}

// NotifySystem delivers a server-generated notice with no originating user.
func (s *NotifyService) NotifySystem(ctx context.Context, recipient *models.User, preview, url string) {
	s.deliver(ctx, recipient, nil, nil, models.NotificationSystem, notifications.EventSystem, preview, url)
}

func roomURL(room *models.Room) string {
	return "/chat/room/" + room.GroupName
}

func (s *NotifyService) deliver(
	ctx context.Context,
	recipient, from *models.User,
	room *models.Room,
	kind models.NotificationType,
	eventType, preview, url string,
) {
	if recipient.IsDND {
		return
	}

	if s.ShouldPersist(recipient, room) {
		n := &models.Notification{
			RecipientID: recipient.ID,
			Type:        kind,
			Preview:     preview,
			URL:         url,
		}
		if from != nil {
			n.FromUserID = &from.ID
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			observability.Logger.Warn("failed to persist notification",
				slog.Uint64("recipient_id", uint64(recipient.ID)),
				slog.String("error", err.Error()),
			)
		} else {
			observability.NotificationsDelivered.WithLabelValues("persisted").Inc()
		}
	}

	event := notifications.UserEvent{Type: eventType, Payload: map[string]string{
		"preview": models.TruncatePreview(preview),
		"url":     url,
	}}
	if from != nil {
		event.FromID = from.ID
		event.From = from.Username
	}
	s.fabric.PublishUser(ctx, recipient.ID, event)
	observability.NotificationsDelivered.WithLabelValues("live").Inc()

	s.enqueuePush(ctx, recipient, preview, url)
}

func (s *NotifyService) enqueuePush(ctx context.Context, recipient *models.User, preview, url string) {
	if s.worker == nil {
		return
	}
	payload := PushPayload{
		UserID:  recipient.ID,
		Title:   "Vixogram",
		Preview: models.TruncatePreview(preview),
		URL:     url,
	}
	if err := s.worker.Submit(ctx, TaskPushNotify, payload); err != nil {
		observability.Logger.Warn("failed to enqueue push",
			slog.Uint64("recipient_id", uint64(recipient.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// ListForUser returns the recipient's persisted notifications, newest first.
func (s *NotifyService) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Notification, error) {
	return s.notifications.ListForUser(ctx, userID, limit, offset)
}

// UnreadCount returns the recipient's unread notification count.
func (s *NotifyService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.notifications.UnreadCount(ctx, userID)
}

// MarkRead marks one notification read, scoped to the recipient.
func (s *NotifyService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	return s.notifications.MarkRead(ctx, userID, notificationID)
}

// MarkAllRead marks every notification read for the recipient.
func (s *NotifyService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.notifications.MarkAllRead(ctx, userID)
}

// RegisterPushHandler registers the background push task. Each registered
// device token is attempted with exponential backoff; permanent failures
// are logged, never surfaced to the request.
func RegisterPushHandler(w worker.Worker, users repository.UserRepository, sender PushSender) {
	w.Register(TaskPushNotify, func(ctx context.Context, raw json.RawMessage) error {
		if sender == nil {
			return nil
		}
		var payload PushPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
		tokens, err := users.GetPushTokens(ctx, payload.UserID)
		if err != nil {
			return err
		}
		for _, token := range tokens {
			backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
			err := retry.Do(ctx, backoff, func(ctx context.Context) error {
				if err := sender.Send(ctx, token.Token, payload.Title, payload.Preview, payload.URL); err != nil {
					return retry.RetryableError(err)
				}
				return nil
			})
			if err != nil {
				observability.Logger.Warn("push delivery failed",
					slog.Uint64("user_id", uint64(payload.UserID)),
					slog.String("error", err.Error()),
				)
				continue
			}
			observability.NotificationsDelivered.WithLabelValues("push").Inc()
		}
		return nil
	})
}
