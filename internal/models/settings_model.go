package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RoomSettings is the effective configuration of a room: the stored
// override document merged over DefaultRoomSettings.
type RoomSettings struct {
	MaxParticipants        int     `json:"max_participants"`
	AllowGuestMessages     bool    `json:"allow_guest_messages"`
	RequireApproval        bool    `json:"require_approval"`
	EnableTypingIndicators bool    `json:"enable_typing_indicators"`
	EnableFileSharing      bool    `json:"enable_file_sharing"`
	MessageRetentionDays   int     `json:"message_retention_days"`
	ProfanityFilter        bool    `json:"profanity_filter"`
	RateLimitMessages      int     `json:"rate_limit_messages"`
	AutoModeration         bool    `json:"auto_moderation"`
	WelcomeMessage         string  `json:"welcome_message"`
	RoomPassword           *string `json:"room_password"`
	IsPublic               bool    `json:"is_public"`

	// read-only; the password is kept as a hash and never echoed
	PasswordProtected bool       `json:"password_protected"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	UpdatedBy         string     `json:"updated_by,omitempty"`
}

const SettingRoomPassword = "room_password"

// DefaultRoomSettings returns a fresh copy of the default template.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		MaxParticipants:        10,
		AllowGuestMessages:     true,
		RequireApproval:        false,
		EnableTypingIndicators: true,
		EnableFileSharing:      true,
		MessageRetentionDays:   30,
		ProfanityFilter:        false,
		RateLimitMessages:      30,
		AutoModeration:         false,
		WelcomeMessage:         "",
		RoomPassword:           nil,
		IsPublic:               false,
	}
}

// SettingKeys are the keys a patch may carry. Everything else is ignored.
var SettingKeys = map[string]struct{}{
	"max_participants":         {},
	"allow_guest_messages":     {},
	"require_approval":         {},
	"enable_typing_indicators": {},
	"enable_file_sharing":      {},
	"message_retention_days":   {},
	"profanity_filter":         {},
	"rate_limit_messages":      {},
	"auto_moderation":          {},
	"welcome_message":          {},
	SettingRoomPassword:        {},
	"is_public":                {},
}

// Validate checks value ranges after a merge.
func (s *RoomSettings) Validate() error {
	switch {
	case s.MaxParticipants < 1:
		return errors.New("max_participants must be at least 1")
	case s.MessageRetentionDays < 0:
		return errors.New("message_retention_days must not be negative")
	case s.RateLimitMessages < 0:
		return errors.New("rate_limit_messages must not be negative")
	}
	return nil
}

// SettingsDocument is the persisted sparse override document.
type SettingsDocument struct {
	RoomID       string                     `json:"room_id"`
	Overrides    map[string]json.RawMessage `json:"overrides"`
	PasswordHash *string                    `json:"password_hash,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
	UpdatedBy    string                     `json:"updated_by,omitempty"`
}

// Effective merges the overrides key by key over the default template.
func (d *SettingsDocument) Effective() (*RoomSettings, error) {
	settings := DefaultRoomSettings()
	if d == nil {
		return &settings, nil
	}

	if len(d.Overrides) > 0 {
		base, err := json.Marshal(settings)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]json.RawMessage)
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, err
		}
		for k, v := range d.Overrides {
			if _, ok := SettingKeys[k]; ok && k != SettingRoomPassword {
				merged[k] = v
			}
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}

	settings.RoomPassword = nil
	settings.PasswordProtected = d.PasswordHash != nil
	if !d.UpdatedAt.IsZero() {
		at := d.UpdatedAt
		settings.UpdatedAt = &at
	}
	settings.UpdatedBy = d.UpdatedBy
	return &settings, nil
}
