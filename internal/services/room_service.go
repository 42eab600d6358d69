package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/permissions"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

const maxRoomIDLen = 128

// RoomService owns the room lifecycle. Deletion is soft.
type RoomService struct {
	*base
	perms     *PermissionService
	directory *ParticipantService
}

type CreateRoomRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        models.RoomType `json:"type"`
	ContentID   *string         `json:"content_id"`
}

// UpdateRoomRequest lists the only fields a room update may change.
// Anything else in the request body is dropped by decoding.
type UpdateRoomRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Type        *models.RoomType `json:"type"`
}

// CreateRoom validates req, stores the room with default settings and
// zeroed stats, and makes the creator its admin.
func (s *RoomService) CreateRoom(ctx context.Context, req *CreateRoomRequest, creatorID, creatorName string) (*models.Room, error) {
	if creatorID == "" {
		return nil, ErrUnauthenticated
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrEmptyRoomName
	}
	roomType := req.Type
	if roomType == "" {
		roomType = models.RoomTypePublic
	}
	if !roomType.Valid() {
		return nil, validationf("unknown room type %q", req.Type)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	} else if err := validateRoomID(id); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.clock()
	room := &models.Room{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Type:        roomType,
		ContentID:   req.ContentID,
		CreatedBy:   creatorID,
		Status:      models.RoomStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	settings := &models.SettingsDocument{
		RoomID:    id,
		Overrides: map[string]json.RawMessage{},
		CreatedAt: now,
		UpdatedAt: now,
		UpdatedBy: creatorID,
	}
	owner := newMembership(id, creatorID, creatorName, permissions.RoleAdmin, now)
	room.ObserveOccupancy(1, now)

	if err := s.rooms.CreateWithOwner(ctx, room, settings, owner); err != nil {
		if errors.Is(err, storage.ErrRecordExists) {
			return nil, ErrRoomExists
		}
		return nil, err
	}

	s.log(ctx).Info("room created",
		zap.String("room_id", id),
		zap.String("creator_id", creatorID),
		zap.String("type", string(roomType)))
	return room, nil
}

func validateRoomID(id string) error {
	if len(id) > maxRoomIDLen {
		return validationf("room id must be at most %d bytes", maxRoomIDLen)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' {
			return validationf("room id contains invalid characters")
		}
	}
	return nil
}

// GetRoom returns the room with its active roster and effective settings.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.RoomDetail, error) {
	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participants, err := s.directory.listActive(ctx, roomID)
	if err != nil {
		return nil, err
	}
	_, settings, err := s.loadSettings(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &models.RoomDetail{Room: room, Participants: participants, Settings: settings}, nil
}

// UpdateRoom changes name, description or type. Requires manage_room.
func (s *RoomService) UpdateRoom(ctx context.Context, roomID string, req *UpdateRoomRequest, actorID string) (*models.Room, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapManageRoom); err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrEmptyRoomName
		}
		room.Name = name
	}
	if req.Description != nil {
		room.Description = strings.TrimSpace(*req.Description)
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, validationf("unknown room type %q", *req.Type)
		}
		room.Type = *req.Type
	}
	room.UpdatedAt = s.clock()

	if err := s.rooms.Save(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// DeleteRoom soft-deletes the room. The creator may always delete; others
// need delete_room. Deleting twice reports ErrRoomNotFound.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, actorID string) error {
	if actorID == "" {
		return ErrUnauthenticated
	}
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != actorID {
		if err := s.perms.Require(ctx, roomID, actorID, permissions.CapDeleteRoom); err != nil {
			return err
		}
	}

	room.MarkDeleted(actorID, s.clock())
	if err := s.rooms.Save(ctx, room); err != nil {
		return err
	}
	s.log(ctx).Info("room deleted", zap.String("room_id", roomID), zap.String("actor_id", actorID))
	return nil
}

// ListRooms returns active rooms matching filter, newest first. Rooms
// created at the same instant keep insertion order.
func (s *RoomService) ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, validationf("unknown room type %q", filter.Type)
	}
	rooms, err := s.rooms.List(ctx, filter, false)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// ResetStats zeroes the aggregate counters. Requires manage_room.
func (s *RoomService) ResetStats(ctx context.Context, roomID, actorID string) (*models.Room, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapManageRoom); err != nil {
		return nil, err
	}
	room.Stats = models.RoomStats{}
	room.UpdatedAt = s.clock()
	if err := s.rooms.Save(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}
