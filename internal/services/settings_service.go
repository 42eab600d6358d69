package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/permissions"
	"github.com/Gopher0727/InterviewRoom/internal/utils"
)

// SettingsService owns per-room configuration stored as a sparse override
// over models.DefaultRoomSettings.
type SettingsService struct {
	*base
	perms *PermissionService
}

// GetSettings returns the effective settings of an active room.
func (s *SettingsService) GetSettings(ctx context.Context, roomID string) (*models.RoomSettings, error) {
	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	_, settings, err := s.loadSettings(ctx, roomID)
	return settings, err
}

// UpdateSettings merges patch key by key into the stored overrides. Keys
// absent from patch keep their value; unknown keys are ignored. A string
// room_password is stored hashed, null or "" clears it.
func (s *SettingsService) UpdateSettings(ctx context.Context, roomID string, patch map[string]json.RawMessage, actorID string) (*models.RoomSettings, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapManageRoom); err != nil {
		return nil, err
	}

	doc, _, err := s.loadSettings(ctx, roomID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	next := &models.SettingsDocument{
		RoomID:    roomID,
		Overrides: make(map[string]json.RawMessage),
		CreatedAt: now,
	}
	if doc != nil {
		for k, v := range doc.Overrides {
			next.Overrides[k] = v
		}
		next.PasswordHash = doc.PasswordHash
		next.CreatedAt = doc.CreatedAt
	}

	var changed []string
	for key, value := range patch {
		if _, known := models.SettingKeys[key]; !known {
			continue
		}
		if key == models.SettingRoomPassword {
			hash, err := passwordHash(value)
			if err != nil {
				return nil, err
			}
			next.PasswordHash = hash
		} else {
			next.Overrides[key] = value
		}
		changed = append(changed, key)
	}
	next.UpdatedAt = now
	next.UpdatedBy = actorID

	effective, err := next.Effective()
	if err != nil {
		return nil, validationf("invalid settings: %v", err)
	}
	if err := effective.Validate(); err != nil {
		return nil, validationf("%v", err)
	}
	if err := s.settings.Save(ctx, next); err != nil {
		return nil, err
	}

	s.log(ctx).Info("room settings updated",
		zap.String("room_id", roomID),
		zap.String("actor_id", actorID),
		zap.Strings("keys", changed))
	return effective, nil
}

func passwordHash(value json.RawMessage) (*string, error) {
	var password *string
	if err := json.Unmarshal(value, &password); err != nil {
		return nil, validationf("room_password must be a string or null")
	}
	if password == nil || *password == "" {
		return nil, nil
	}
	if len(*password) > 72 {
		return nil, validationf("room_password must be at most 72 bytes")
	}
	hash, err := utils.HashPassword(*password)
	if err != nil {
		return nil, fmt.Errorf("hash room password: %w", err)
	}
	return &hash, nil
}

// loadSettings returns the stored document (nil if none) and the effective
// settings for roomID.
func (b *base) loadSettings(ctx context.Context, roomID string) (*models.SettingsDocument, *models.RoomSettings, error) {
	doc, err := b.settings.Get(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	settings, err := doc.Effective()
	if err != nil {
		return nil, nil, fmt.Errorf("room %s settings: %w", roomID, err)
	}
	return doc, settings, nil
}
