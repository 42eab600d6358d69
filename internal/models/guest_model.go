package models

import "time"

type GuestStatus string

const (
	GuestWaiting  GuestStatus = "waiting"
	GuestAdmitted GuestStatus = "admitted"
	GuestRejected GuestStatus = "rejected"
	GuestLeft     GuestStatus = "left"
)

// DeviceSettings holds the guest's pre-join device check results.
type DeviceSettings struct {
	Camera           bool   `json:"camera"`
	Microphone       bool   `json:"microphone"`
	Speaker          bool   `json:"speaker"`
	CameraDevice     string `json:"camera_device,omitempty"`
	MicrophoneDevice string `json:"microphone_device,omitempty"`
}

// Guest tracks one guest that came in through an invitation. Its ID doubles
// as the participant user id once admitted. Guests that skip the waiting
// room are stored directly as admitted.
type Guest struct {
	ID              string         `json:"id"`
	RoomID          string         `json:"room_id"`
	InvitationToken string         `json:"invitation_token"`
	DisplayName     string         `json:"display_name"`
	Device          DeviceSettings `json:"device"`
	Status          GuestStatus    `json:"status"`
	DecidedBy       string         `json:"decided_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// GuestJoinResult is returned to a guest after join or accept. Participant
// is set when admitted directly, otherwise the guest polls by GuestID.
type GuestJoinResult struct {
	GuestID     string       `json:"participant_id"`
	Status      GuestStatus  `json:"status"`
	RoomID      string       `json:"room_id"`
	Participant *Participant `json:"participant,omitempty"`
}

// WaitingRoomStatus is the polling view of a guest record.
type WaitingRoomStatus struct {
	GuestID     string      `json:"participant_id"`
	RoomID      string      `json:"room_id"`
	DisplayName string      `json:"display_name"`
	Status      GuestStatus `json:"status"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
