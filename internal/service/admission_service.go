package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vixogram/internal/config"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/observability"
	"vixogram/internal/repository"
)

// Room codes avoid look-alike characters (0/O, 1/I) so they survive being
// read aloud. The alphabet size of 32 divides 256, so byte sampling is
// unbiased.
const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLen      = 8
	roomCodeRetries  = 20
)

// Join outcomes returned to the edge.
type JoinOutcome string

const (
	// JoinOutcomeMember means the caller is already (or now) a member.
	JoinOutcomeMember JoinOutcome = "member"
	// JoinOutcomePending means the caller is on the waiting list.
	JoinOutcomePending JoinOutcome = "pending"
	// JoinOutcomeAdmitted means a pending request was granted.
	JoinOutcomeAdmitted JoinOutcome = "admitted"
)

// JoinResult reports where a join-by-code attempt landed.
type JoinResult struct {
	Outcome JoinOutcome  `json:"outcome"`
	Room    *models.Room `json:"room"`
}

// AdmissionService implements private-room lifecycle: direct 1:1 rooms,
// code-room creation, and the waiting-list admission state machine.
type AdmissionService struct {
	cfg    *config.Config
	rooms  repository.RoomRepository
	users  repository.UserRepository
	fabric *notifications.Fabric
}

// NewAdmissionService wires private-room admission.
func NewAdmissionService(cfg *config.Config, rooms repository.RoomRepository, users repository.UserRepository, fabric *notifications.Fabric) *AdmissionService {
	return &AdmissionService{cfg: cfg, rooms: rooms, users: users, fabric: fabric}
}

func generateRoomCode() (string, error) {
	buf := make([]byte, roomCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range buf {
		b.WriteByte(roomCodeAlphabet[int(c)%len(roomCodeAlphabet)])
	}
	return b.String(), nil
}

// CreateCodeRoom creates a private code room owned by the creator, who is
// its first member. Code uniqueness is enforced by retrying generation.
func (s *AdmissionService) CreateCodeRoom(ctx context.Context, creator *models.User, displayName string) (*models.Room, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = fmt.Sprintf("%s's room", creator.Username)
	}

	var code string
	for attempt := 0; attempt < roomCodeRetries; attempt++ {
		candidate, err := generateRoomCode()
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		if _, err := s.rooms.GetByCode(ctx, candidate); err != nil {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, models.NewInternalError(errors.New("could not generate a unique room code"))
	}

	room := &models.Room{
		GroupName:   "code-" + strings.ToLower(code),
		DisplayName: displayName,
		AdminUserID: &creator.ID,
		IsPrivate:   true,
		IsCodeRoom:  true,
		RoomCode:    &code,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.rooms.AddMember(ctx, room.ID, creator.ID); err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.Logger.Info("code room created",
		slog.String("room", room.GroupName),
		slog.Uint64("admin_id", uint64(creator.ID)),
	)
	return room, nil
}

// OpenDirectRoom returns the private room between the caller and another
// user, creating it on first contact. The pair are the room's only members,
// ever: nothing else adds members to a private room, so the set is fixed at
// creation. Both sides resolve to the same room regardless of who opens it.
func (s *AdmissionService) OpenDirectRoom(ctx context.Context, actor *models.User, otherID uint) (*models.Room, bool, error) {
	if otherID == actor.ID {
		return nil, false, models.NewValidationError("cannot open a direct chat with yourself")
	}
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, false, models.NewNotFoundError("user", otherID)
	}
	if !other.IsActive {
		return nil, false, models.NewForbiddenError("user is not available")
	}

	displayName := fmt.Sprintf("%s & %s", actor.Username, other.Username)
	room, created, err := s.rooms.GetOrCreateDirectRoom(ctx, actor.ID, other.ID, displayName)
	if err != nil {
		return nil, false, models.NewInternalError(err)
	}
	if created {
		s.fabric.PublishUser(ctx, other.ID, notifications.UserEvent{
			Type:   notifications.EventSystem,
			FromID: actor.ID,
			From:   actor.Username,
			Payload: map[string]string{
				"kind": "direct_room",
				"room": room.GroupName,
			},
		})
		observability.Logger.Info("direct room created",
			slog.String("room", room.GroupName),
			slog.Uint64("opened_by", uint64(actor.ID)),
		)
	}
	return room, created, nil
}

// JoinByCode resolves a code and either redirects an existing member or
// places the caller on the waiting list. The member-count check runs under
// a row lock so the cap holds exactly under concurrent joins.
func (s *AdmissionService) JoinByCode(ctx context.Context, actor *models.User, code string) (*JoinResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != roomCodeLen {
		return nil, models.NewValidationError("invalid room code")
	}
	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, models.NewNotFoundError("room", code)
	}
	if !room.JoinableByCode() {
		return nil, models.NewForbiddenError("this room does not accept join codes")
	}

	member, err := s.rooms.IsMember(ctx, room.ID, actor.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if member {
		return &JoinResult{Outcome: JoinOutcomeMember, Room: room}, nil
	}

	if _, err := s.rooms.CreateJoinRequestLocked(ctx, room.ID, actor.ID, s.cfg.PrivateRoomMemberLimit); err != nil {
		if errors.Is(err, repository.ErrRoomFull) {
			return nil, models.NewConflictError("User limit reached")
		}
		return nil, models.NewInternalError(err)
	}

	// Wake the admin's client so the waiting list refreshes.
	if room.AdminUserID != nil {
		s.fabric.PublishUser(ctx, *room.AdminUserID, notifications.UserEvent{
			Type:   notifications.EventSystem,
			FromID: actor.ID,
			From:   actor.Username,
			Payload: map[string]string{
				"kind": "join_request",
				"room": room.GroupName,
			},
		})
	}
	return &JoinResult{Outcome: JoinOutcomePending, Room: room}, nil
}

// Status is the requester's poll while waiting. Each call refreshes the
// liveness heartbeat; a request that stops polling goes stale and drops off
// the admin's list.
func (s *AdmissionService) Status(ctx context.Context, actor *models.User, room *models.Room) (JoinOutcome, error) {
	member, err := s.rooms.IsMember(ctx, room.ID, actor.ID)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if member {
		return JoinOutcomeAdmitted, nil
	}

	req, err := s.rooms.GetJoinRequest(ctx, room.ID, actor.ID)
	if err != nil {
		return "", models.NewNotFoundError("join request", actor.ID)
	}
	if req.AdmittedAt != nil {
		return JoinOutcomeAdmitted, nil
	}
	if err := s.rooms.TouchJoinRequest(ctx, room.ID, actor.ID); err != nil {
		observability.Logger.Warn("failed to refresh join heartbeat",
			slog.Uint64("room_id", uint64(room.ID)),
			slog.Uint64("user_id", uint64(actor.ID)),
			slog.String("error", err.Error()),
		)
	}
	return JoinOutcomePending, nil
}

// WaitingList returns live pending requests for the room admin. Requests
// whose heartbeat lapsed are filtered out.
func (s *AdmissionService) WaitingList(ctx context.Context, actor *models.User, room *models.Room) ([]*models.CodeRoomJoinRequest, error) {
	if err := s.requireAdmin(room, actor); err != nil {
		return nil, err
	}
	staleWindow := time.Duration(s.cfg.JoinRequestStaleSecs) * time.Second
	return s.rooms.PendingJoinRequests(ctx, room.ID, staleWindow)
}

// Admit grants a pending request. The member cap is re-checked under the
// row lock; an admitted user is notified on their notify channel.
func (s *AdmissionService) Admit(ctx context.Context, actor *models.User, room *models.Room, userID uint) error {
	if err := s.requireAdmin(room, actor); err != nil {
		return err
	}
	if err := s.rooms.AdmitLocked(ctx, room.ID, userID, actor.ID, s.cfg.PrivateRoomMemberLimit); err != nil {
		if errors.Is(err, repository.ErrRoomFull) {
			return models.NewConflictError("User limit reached")
		}
		return models.NewInternalError(err)
	}
	s.fabric.PublishUser(ctx, userID, notifications.UserEvent{
		Type: notifications.EventSystem,
		Payload: map[string]string{
			"kind": "join_admitted",
			"room": room.GroupName,
		},
	})
	return nil
}

// Reject denies a pending request and informs the requester.
func (s *AdmissionService) Reject(ctx context.Context, actor *models.User, room *models.Room, userID uint) error {
	if err := s.requireAdmin(room, actor); err != nil {
		return err
	}
	if err := s.rooms.RejectJoinRequest(ctx, room.ID, userID); err != nil {
		return models.NewInternalError(err)
	}
	s.fabric.PublishUser(ctx, userID, notifications.UserEvent{
		Type: notifications.EventSystem,
		Payload: map[string]string{
			"kind": "join_rejected",
			"room": room.GroupName,
		},
	})
	return nil
}

// Leave removes the caller from the room. A later join starts a fresh
// waiting-list request.
func (s *AdmissionService) Leave(ctx context.Context, actor *models.User, room *models.Room) error {
	if err := s.rooms.RemoveMember(ctx, room.ID, actor.ID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *AdmissionService) requireAdmin(room *models.Room, actor *models.User) error {
	if actor.IsStaff {
		return nil
	}
	if room.AdminUserID == nil || *room.AdminUserID != actor.ID {
		return models.NewForbiddenError("only the room admin can manage the waiting list")
	}
	return nil
}
