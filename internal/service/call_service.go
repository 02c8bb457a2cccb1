package service

import (
	"context"
	"fmt"
	"time"

	"vixogram/internal/abuse"
	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/observability"
	"vixogram/internal/repository"
	"vixogram/internal/rtc"
)

// Dedup marker lifetimes. A call session marker outlives any realistic call
// so a crashed client cannot leave a room permanently "active"; the invite
// marker is short because an unanswered invite should simply lapse.
const (
	callStateTTL  = 6 * time.Hour
	callInviteTTL = 2 * time.Minute
)

// Call actions accepted by Event.
const (
	CallActionStart   = "start"
	CallActionEnd     = "end"
	CallActionDecline = "decline"
)

// CallEventResult reports whether the event was applied or absorbed by dedup.
type CallEventResult struct {
	OK      bool `json:"ok"`
	Deduped bool `json:"deduped,omitempty"`
}

// CallService implements call signalling for private two-member rooms.
type CallService struct {
	cfg      *config.Config
	users    repository.UserRepository
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	abuse    *abuse.Engine
	fabric   *notifications.Fabric
}

// NewCallService wires call signalling.
func NewCallService(
	cfg *config.Config,
	users repository.UserRepository,
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	engine *abuse.Engine,
	fabric *notifications.Fabric,
) *CallService {
	return &CallService{cfg: cfg, users: users, rooms: rooms, messages: messages, abuse: engine, fabric: fabric}
}

// checkCallRoom enforces the calling surface: private rooms with exactly two
// members, and the actor must be one of them.
func (s *CallService) checkCallRoom(ctx context.Context, room *models.Room, actor *models.User) ([]uint, error) {
	if !room.IsPrivate {
		return nil, models.NewForbiddenError("calls are only available in private rooms")
	}
	memberIDs, err := s.rooms.MemberIDs(ctx, room.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(memberIDs) != 2 {
		return nil, models.NewForbiddenError("calls require exactly two members")
	}
	isMember := false
	for _, id := range memberIDs {
		if id == actor.ID {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil, models.NewForbiddenError("you are not a member of this room")
	}
	return memberIDs, nil
}

func validCallType(callType string) bool {
	return callType == "audio" || callType == "video"
}

// Invite marks a pending invite and broadcasts it to the room and to each
// other member's notify channel. DND members are not disturbed.
func (s *CallService) Invite(ctx context.Context, actor *models.User, room *models.Room, callType string) error {
	if !validCallType(callType) {
		return models.NewValidationError("unknown call type")
	}
	memberIDs, err := s.checkCallRoom(ctx, room, actor)
	if err != nil {
		return err
	}

	res := s.abuse.CheckRateLimit(ctx, cache.CallInviteRateKey(actor.ID),
		s.cfg.CallInviteRateLimit, time.Duration(s.cfg.CallInviteRatePeriod)*time.Second)
	if !res.Allowed {
		return models.NewRateLimitedError("too many call invites", int(res.RetryAfter.Seconds())+1)
	}

	if err := cache.SetWithTTL(ctx, cache.CallInviteKey(room.GroupName, callType), "pending", callInviteTTL); err != nil && err != cache.ErrUnavailable {
		return models.NewInternalError(err)
	}
	observability.CallEvents.WithLabelValues(callType, "invite").Inc()

	payload := notifications.CallInvitePayload{
		CallType:     callType,
		FromUsername: actor.Username,
		CallURL:      fmt.Sprintf("/chat/room/%s?call=%s", room.GroupName, callType),
		CallEventURL: fmt.Sprintf("/chat/call/event/%s", room.GroupName),
	}
	s.fabric.PublishRoom(ctx, room.GroupName, notifications.RoomEvent{
		Type:       notifications.EventCallInvite,
		SkipUserID: actor.ID,
		Payload:    payload,
	})
	for _, memberID := range memberIDs {
		if memberID == actor.ID {
			continue
		}
		member, err := s.users.GetByID(ctx, memberID)
		if err != nil || member.IsDND {
			continue
		}
		s.fabric.PublishUser(ctx, memberID, notifications.UserEvent{
			Type:    notifications.EventCallInvite,
			FromID:  actor.ID,
			From:    actor.Username,
			Payload: payload,
		})
	}
	return nil
}

// Event applies a start, end, or decline. Starts while active and ends while
// idle are idempotent successes flagged as deduped; non-dedup events persist
// a system marker message and broadcast call_control everywhere.
func (s *CallService) Event(ctx context.Context, actor *models.User, room *models.Room, action, callType string) (*CallEventResult, error) {
	if !validCallType(callType) {
		return nil, models.NewValidationError("unknown call type")
	}
	memberIDs, err := s.checkCallRoom(ctx, room, actor)
	if err != nil {
		return nil, err
	}

	stateKey := cache.CallStateKey(room.GroupName, callType)
	inviteKey := cache.CallInviteKey(room.GroupName, callType)

	switch action {
	case CallActionStart:
		created, err := cache.AddIfAbsent(ctx, stateKey, "active", callStateTTL)
		if err != nil && err != cache.ErrUnavailable {
			return nil, models.NewInternalError(err)
		}
		if err == nil && !created {
			return &CallEventResult{OK: true, Deduped: true}, nil
		}
		_ = cache.Delete(ctx, inviteKey)

	case CallActionEnd:
		active, err := cache.Exists(ctx, stateKey)
		if err != nil && err != cache.ErrUnavailable {
			return nil, models.NewInternalError(err)
		}
		if err == nil && !active {
			return &CallEventResult{OK: true, Deduped: true}, nil
		}
		_ = cache.Delete(ctx, stateKey)

	case CallActionDecline:
		pending, err := cache.Exists(ctx, inviteKey)
		if err != nil && err != cache.ErrUnavailable {
			return nil, models.NewInternalError(err)
		}
		if err == nil && !pending {
			return nil, models.NewConflictError("no pending call invite")
		}
		_ = cache.Delete(ctx, inviteKey)

	default:
		return nil, models.NewValidationError("unknown call action")
	}

	observability.CallEvents.WithLabelValues(callType, action).Inc()

	marker := &models.Message{
		RoomID:   room.ID,
		AuthorID: actor.ID,
		Kind:     models.MessageKindSystem,
		Body:     fmt.Sprintf("[CALL] %s call %sed", callType, action),
	}
	if err := s.messages.Create(ctx, marker); err != nil {
		return nil, models.NewInternalError(err)
	}
	marker.Author = actor

	s.fabric.PublishRoom(ctx, room.GroupName, notifications.RoomEvent{
		Type:       notifications.EventMessageCreated,
		SkipUserID: actor.ID,
		Payload:    marker,
	})
	control := notifications.CallControlPayload{
		Action:       action,
		CallType:     callType,
		FromUsername: actor.Username,
	}
	s.fabric.PublishRoom(ctx, room.GroupName, notifications.RoomEvent{
		Type:    notifications.EventCallControl,
		Payload: control,
	})
	for _, memberID := range memberIDs {
		s.fabric.PublishUser(ctx, memberID, notifications.UserEvent{
			Type:    notifications.EventCallControl,
			FromID:  actor.ID,
			From:    actor.Username,
			Payload: control,
		})
	}

	return &CallEventResult{OK: true}, nil
}

// Token mints a short-lived RTC token for the room channel.
func (s *CallService) Token(ctx context.Context, actor *models.User, room *models.Room) (*rtc.Token, error) {
	if _, err := s.checkCallRoom(ctx, room, actor); err != nil {
		return nil, err
	}
	creds := rtc.Credentials{AppID: s.cfg.RTCAppID, AppCertificate: s.cfg.RTCAppCertificate}
	token, err := rtc.Mint(creds, room.GroupName, actor.ID, time.Duration(s.cfg.RTCTokenTTL)*time.Second)
	if err != nil {
		if err == rtc.ErrNotConfigured {
			return nil, models.NewValidationError("calling is not configured on this server")
		}
		return nil, models.NewInternalError(err)
	}
	return token, nil
}
