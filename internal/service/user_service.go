package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"vixogram/internal/config"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/repository"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// reservedUsernameStems are blocked along with their simple variants
// (digit and separator suffixes), so "admin1" and "admin_1" fail too.
var reservedUsernameStems = []string{"admin", "administrator", "moderator", "root", "support", "system", "staff"}

var reservedVariantRe = regexp.MustCompile(`^[_.-]*\d*$`)

// IsReservedUsername reports whether the name is a reserved word or a
// trivial variant of one.
func IsReservedUsername(username string) bool {
	lower := strings.ToLower(username)
	for _, stem := range reservedUsernameStems {
		if strings.HasPrefix(lower, stem) && reservedVariantRe.MatchString(lower[len(stem):]) {
			return true
		}
	}
	return false
}

// UserService covers the chat-side user operations: username policy, DND,
// chat blocks, and push-token registration.
type UserService struct {
	cfg    *config.Config
	users  repository.UserRepository
	fabric *notifications.Fabric
}

// NewUserService wires user operations.
func NewUserService(cfg *config.Config, users repository.UserRepository, fabric *notifications.Fabric) *UserService {
	return &UserService{cfg: cfg, users: users, fabric: fabric}
}

// ChangeUsername applies the username policy: shape, reserved words,
// case-insensitive uniqueness, and at most one change per cooldown window.
func (s *UserService) ChangeUsername(ctx context.Context, actor *models.User, username string) error {
	username = strings.TrimSpace(username)
	if !usernameRe.MatchString(username) {
		return models.NewValidationError("username must be 3-32 characters of letters, digits, '_', '.', or '-'")
	}
	if IsReservedUsername(username) {
		return models.NewValidationError("that username is reserved")
	}
	if username == actor.Username {
		return models.NewValidationError("that is already your username")
	}

	if actor.UsernameChangedAt != nil && s.cfg.UsernameCooldownDays > 0 {
		cooldown := time.Duration(s.cfg.UsernameCooldownDays) * 24 * time.Hour
		if since := time.Since(*actor.UsernameChangedAt); since < cooldown {
			remaining := int((cooldown - since).Hours()/24) + 1
			return models.NewRateLimitedError("username was changed recently", remaining*24*3600)
		}
	}

	if existing, err := s.users.GetByUsernameFold(ctx, username); err == nil && existing.ID != actor.ID {
		return models.NewConflictError("that username is taken")
	}

	if err := s.users.ChangeUsername(ctx, actor.ID, username); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// SetDND flips the caller's do-not-disturb flag.
func (s *UserService) SetDND(ctx context.Context, actor *models.User, dnd bool) error {
	if err := s.users.SetDND(ctx, actor.ID, dnd); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// SetChatBlocked is the staff action to block or unblock a user from chat.
// The target learns about it immediately over their notify channel.
func (s *UserService) SetChatBlocked(ctx context.Context, actor *models.User, userID uint, blocked bool) error {
	if !actor.IsStaff {
		return models.NewForbiddenError("staff only")
	}
	if err := s.users.SetChatBlocked(ctx, userID, blocked); err != nil {
		return models.NewInternalError(err)
	}
	s.fabric.PublishUser(ctx, userID, notifications.UserEvent{
		Type:    notifications.EventChatBlockStatus,
		Payload: map[string]bool{"blocked": blocked},
	})
	return nil
}

// RegisterPushToken upserts a device push registration for the caller.
func (s *UserService) RegisterPushToken(ctx context.Context, actor *models.User, token, userAgent string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.NewValidationError("push token is required")
	}
	record := &models.PushToken{
		Token:     token,
		UserID:    actor.ID,
		UserAgent: userAgent,
		LastSeen:  time.Now(),
	}
	if err := s.users.UpsertPushToken(ctx, record); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
