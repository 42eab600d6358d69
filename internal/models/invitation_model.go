package models

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// Terminal reports whether the status can no longer change.
func (s InvitationStatus) Terminal() bool {
	return s != InvitationPending
}

// GuestInvitation is keyed by its unguessable token. An invitation without
// a contact is open and admits any number of guests until it expires.
type GuestInvitation struct {
	Token       string           `json:"token"`
	RoomID      string           `json:"room_id"`
	Contact     *string          `json:"contact,omitempty"`
	Status      InvitationStatus `json:"status"`
	CreatedBy   string           `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

func (i *GuestInvitation) Targeted() bool {
	return i.Contact != nil && *i.Contact != ""
}

// EffectiveStatus classifies an overdue pending invitation as expired
// without writing it back.
func (i *GuestInvitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && now.After(i.ExpiresAt) {
		return InvitationExpired
	}
	return i.Status
}

// Resolve moves a pending invitation into a terminal state.
func (i *GuestInvitation) Resolve(status InvitationStatus, at time.Time) {
	i.Status = status
	i.UpdatedAt = at
	if status != InvitationExpired {
		i.RespondedAt = &at
	}
}

// InvitationSummary is what a guest sees after verifying a code.
type InvitationSummary struct {
	Token           string           `json:"token"`
	RoomID          string           `json:"room_id"`
	RoomName        string           `json:"room_name"`
	RoomType        RoomType         `json:"room_type"`
	Status          InvitationStatus `json:"status"`
	ExpiresAt       time.Time        `json:"expires_at"`
	RequireApproval bool             `json:"require_approval"`
	PasswordNeeded  bool             `json:"password_protected"`
}
