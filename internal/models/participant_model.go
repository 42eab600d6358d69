package models

import (
	"strconv"
	"time"

	"github.com/Gopher0727/InterviewRoom/internal/permissions"
)

// Participant is a room membership row, unique on (RoomID, UserID).
type Participant struct {
	RoomID       string                    `json:"room_id"`
	UserID       string                    `json:"user_id"`
	DisplayName  string                    `json:"display_name"`
	Role         permissions.Role          `json:"role"`
	Capabilities permissions.CapabilitySet `json:"capabilities"`
	JoinedAt     time.Time                 `json:"joined_at"`
	LeftAt       *time.Time                `json:"left_at,omitempty"`
	LastSeen     time.Time                 `json:"last_seen"`
	IsActive     bool                      `json:"is_active"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// ParticipantKey builds the storage key for a membership row. The room id
// is length-prefixed so no two (room, user) pairs share a key.
func ParticipantKey(roomID, userID string) string {
	return ParticipantKeyPrefix(roomID) + userID
}

// ParticipantKeyPrefix is the key prefix shared by all rows of one room.
func ParticipantKeyPrefix(roomID string) string {
	return strconv.Itoa(len(roomID)) + ":" + roomID + "_"
}

// AssignRole sets the role and snapshots its capabilities.
func (p *Participant) AssignRole(role permissions.Role) {
	p.Role = role
	p.Capabilities = permissions.CapabilitiesFor(role)
}

// Leave marks the row inactive and keeps it for history.
func (p *Participant) Leave(at time.Time) {
	p.IsActive = false
	p.LeftAt = &at
	p.UpdatedAt = at
}
