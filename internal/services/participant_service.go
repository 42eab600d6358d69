package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/permissions"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
	"github.com/Gopher0727/InterviewRoom/internal/utils"
)

// ParticipantService owns room membership. Other components go through it;
// the only other writer is CreateRoom, which stores the owner row together
// with the room.
type ParticipantService struct {
	*base
	perms *PermissionService
}

type JoinRoomRequest struct {
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type UpdateRoleRequest struct {
	Role permissions.Role `json:"role"`
}

// AddParticipant upserts (roomID, userID) with role, reactivating a row
// that left earlier. The capability set is snapshotted from role now.
func (s *ParticipantService) AddParticipant(ctx context.Context, roomID, userID, displayName string, role permissions.Role) (*models.Participant, error) {
	if userID == "" {
		return nil, validationf("user id is required")
	}
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.addLocked(ctx, room, userID, displayName, role)
}

// addLocked expects the room lock to be held.
func (s *ParticipantService) addLocked(ctx context.Context, room *models.Room, userID, displayName string, role permissions.Role) (*models.Participant, error) {
	now := s.clock()
	p, err := s.participants.Get(ctx, room.ID, userID)
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		p = newMembership(room.ID, userID, displayName, role, now)
	case err != nil:
		return nil, err
	default:
		if !p.IsActive {
			p.JoinedAt = now
			p.LeftAt = nil
			p.IsActive = true
		}
		p.DisplayName = memberName(userID, displayName)
		p.AssignRole(defaultRole(role))
		p.LastSeen = now
		p.UpdatedAt = now
	}

	if err := s.participants.Save(ctx, p); err != nil {
		return nil, err
	}
	if err := s.touchRoom(ctx, room); err != nil {
		return nil, err
	}

	s.log(ctx).Info("participant added",
		zap.String("room_id", room.ID),
		zap.String("user_id", userID),
		zap.String("role", string(p.Role)))
	return p, nil
}

// newMembership builds a fresh active row for userID.
func newMembership(roomID, userID, displayName string, role permissions.Role, now time.Time) *models.Participant {
	p := &models.Participant{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: memberName(userID, displayName),
		JoinedAt:    now,
		LastSeen:    now,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.AssignRole(defaultRole(role))
	return p
}

func defaultRole(role permissions.Role) permissions.Role {
	if role == "" {
		return permissions.RoleParticipant
	}
	return role
}

// memberName falls back to the user id when the display name is unusable.
func memberName(userID, displayName string) string {
	if name, ok := utils.NormalizeDisplayName(displayName); ok {
		return name
	}
	return userID
}

// touchRoom refreshes the occupancy stats of room. Caller holds the lock.
func (s *ParticipantService) touchRoom(ctx context.Context, room *models.Room) error {
	active, err := s.participants.CountActive(ctx, room.ID)
	if err != nil {
		return err
	}
	now := s.clock()
	room.ObserveOccupancy(active, now)
	room.UpdatedAt = now
	return s.rooms.Save(ctx, room)
}

// RemoveParticipant marks the row inactive. Removing someone who already
// left, or was never there, succeeds without change.
func (s *ParticipantService) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	_, err := s.removeLocked(ctx, roomID, userID)
	return err
}

func (s *ParticipantService) removeLocked(ctx context.Context, roomID, userID string) (bool, error) {
	p, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !p.IsActive {
		return false, nil
	}

	p.Leave(s.clock())
	if err := s.participants.Save(ctx, p); err != nil {
		return false, err
	}

	// stats only move forward; a deleted room keeps its numbers
	if room, err := s.activeRoom(ctx, roomID); err == nil {
		if err := s.touchRoom(ctx, room); err != nil {
			return true, err
		}
	} else if !errors.Is(err, ErrRoomNotFound) {
		return true, err
	}

	s.log(ctx).Info("participant removed", zap.String("room_id", roomID), zap.String("user_id", userID))
	return true, nil
}

// ListParticipants returns active members by role priority, then by join
// time. Members with equal keys keep insertion order.
func (s *ParticipantService) ListParticipants(ctx context.Context, roomID string) ([]*models.Participant, error) {
	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.listActive(ctx, roomID)
}

func (s *ParticipantService) listActive(ctx context.Context, roomID string) ([]*models.Participant, error) {
	active, err := s.participants.ListActive(ctx, roomID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(active, func(i, j int) bool {
		pi, pj := active[i].Role.Priority(), active[j].Role.Priority()
		if pi != pj {
			return pi < pj
		}
		return active[i].JoinedAt.Before(active[j].JoinedAt)
	})
	return active, nil
}

// UpdateParticipantRole re-assigns a role and overwrites the capability
// snapshot. The actor needs manage_participants, cannot grant a role ranked
// above their own, and cannot change a member ranked above them.
func (s *ParticipantService) UpdateParticipantRole(ctx context.Context, roomID, userID string, role permissions.Role, actorID string) (*models.Participant, error) {
	if role == "" {
		return nil, ErrRoleRequired
	}
	if !role.Valid() {
		return nil, validationf("unknown role %q", role)
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapManageParticipants); err != nil {
		return nil, err
	}
	p, err := s.requireActive(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	actor, err := s.participants.Get(ctx, roomID, actorID)
	if err != nil {
		return nil, err
	}
	if outranks(role, actor.Role) || outranks(p.Role, actor.Role) {
		return nil, ErrPermissionDenied
	}

	previous := p.Role
	p.AssignRole(role)
	p.UpdatedAt = s.clock()
	if err := s.participants.Save(ctx, p); err != nil {
		return nil, err
	}

	s.log(ctx).Info("participant role updated",
		zap.String("room_id", roomID),
		zap.String("user_id", userID),
		zap.String("from", string(previous)),
		zap.String("to", string(role)),
		zap.String("actor_id", actorID))
	return p, nil
}

// RefreshCapabilities re-snapshots the capabilities of the participant's
// current role, picking up changes to the role table.
func (s *ParticipantService) RefreshCapabilities(ctx context.Context, roomID, userID, actorID string) (*models.Participant, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapManageParticipants); err != nil {
		return nil, err
	}
	p, err := s.requireActive(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	p.AssignRole(p.Role)
	p.UpdatedAt = s.clock()
	if err := s.participants.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// JoinRoom lets an authenticated user enter a room as a participant. A
// user returning after leaving keeps the role they had.
func (s *ParticipantService) JoinRoom(ctx context.Context, roomID, userID string, req *JoinRoomRequest) (*models.Participant, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if req == nil {
		req = &JoinRoomRequest{}
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	existing, err := s.participants.Get(ctx, roomID, userID)
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		existing = nil
	case err != nil:
		return nil, err
	case existing.IsActive:
		return existing, nil
	}

	doc, settings, err := s.loadSettings(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if doc != nil && doc.PasswordHash != nil && !utils.CheckPassword(*doc.PasswordHash, req.Password) {
		return nil, ErrWrongPassword
	}
	if err := s.ensureCapacity(ctx, roomID, settings); err != nil {
		return nil, err
	}

	role := permissions.RoleParticipant
	name := req.DisplayName
	if existing != nil {
		role = existing.Role
		if name == "" {
			name = existing.DisplayName
		}
	}
	return s.addLocked(ctx, room, userID, name, role)
}

// LeaveRoom is the caller leaving on their own. Always succeeds for a
// caller that is not in the room.
func (s *ParticipantService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	return s.RemoveParticipant(ctx, roomID, userID)
}

// KickParticipant removes someone else. The actor needs kick_users and
// cannot remove a member ranked above them.
func (s *ParticipantService) KickParticipant(ctx context.Context, roomID, userID, actorID string) error {
	if userID == actorID {
		return validationf("use leave to exit a room")
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapKickUsers); err != nil {
		return err
	}
	target, err := s.requireActive(ctx, roomID, userID)
	if err != nil {
		return err
	}
	actor, err := s.participants.Get(ctx, roomID, actorID)
	if err != nil {
		return err
	}
	if outranks(target.Role, actor.Role) {
		return ErrPermissionDenied
	}

	_, err = s.removeLocked(ctx, roomID, userID)
	return err
}

// Heartbeat refreshes last_seen for presence polling.
func (s *ParticipantService) Heartbeat(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	p, err := s.requireActive(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	p.LastSeen = s.clock()
	if err := s.participants.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ParticipantService) requireActive(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	p, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// ensureCapacity fails with ErrRoomFull when the room is at its limit.
// Caller holds the room lock so the count cannot move underneath.
func (s *ParticipantService) ensureCapacity(ctx context.Context, roomID string, settings *models.RoomSettings) error {
	active, err := s.participants.CountActive(ctx, roomID)
	if err != nil {
		return err
	}
	if active >= settings.MaxParticipants {
		return ErrRoomFull
	}
	return nil
}

// outranks reports whether a ranks strictly above b. Equal ranks may act on
// each other.
func outranks(a, b permissions.Role) bool {
	return a.Priority() < b.Priority()
}
