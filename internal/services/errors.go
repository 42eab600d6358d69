package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package for a business rule
// wraps exactly one of these; the HTTP layer maps kinds to status codes.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication required")
	ErrPermission     = errors.New("permission denied")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidCode    = errors.New("invalid join code")
	ErrExpired        = errors.New("join code expired")
)

// Error is a business error carrying its kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func validationf(format string, args ...any) error {
	return newError(ErrValidation, fmt.Sprintf(format, args...))
}

var (
	ErrUnauthenticated       = newError(ErrAuthentication, "caller identity required")
	ErrPermissionDenied      = newError(ErrPermission, "permission denied")
	ErrWrongPassword         = newError(ErrPermission, "invalid room password")
	ErrRoomNotFound          = newError(ErrNotFound, "room not found")
	ErrParticipantNotFound   = newError(ErrNotFound, "participant not found")
	ErrInvitationNotFound    = newError(ErrNotFound, "invitation not found")
	ErrGuestNotFound         = newError(ErrNotFound, "waiting participant not found")
	ErrRoomExists            = newError(ErrConflict, "room already exists")
	ErrRoomFull              = newError(ErrConflict, "RoomFull")
	ErrGuestNotWaiting       = newError(ErrConflict, "guest is not waiting for admission")
	ErrInvalidJoinCode       = newError(ErrInvalidCode, "InvalidCode")
	ErrJoinCodeExpired       = newError(ErrExpired, "Expired")
	ErrInvitationNotTargeted = newError(ErrValidation, "invitation has no target contact")
	ErrEmptyRoomName         = newError(ErrValidation, "room name is required")
	ErrRoleRequired          = newError(ErrValidation, "role is required")
)

// Kind returns the kind wrapped by err, or nil for infrastructure errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrAuthentication, ErrPermission, ErrNotFound, ErrConflict, ErrInvalidCode, ErrExpired} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
