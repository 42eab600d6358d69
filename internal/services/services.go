package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/events"
	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/repositories"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
	logger "github.com/Gopher0727/InterviewRoom/middleware/log"
)

const (
	DefaultInvitationTTL  = 24 * time.Hour
	DefaultGuestRetention = 7 * 24 * time.Hour
)

type Options struct {
	Store     storage.Store
	Logger    *zap.Logger
	Publisher events.Publisher
	// LockStripes sizes the per-room mutex table.
	LockStripes    int
	InvitationTTL  time.Duration
	GuestRetention time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Services bundles the room components. They share repositories, the room
// lock table and the clock.
type Services struct {
	Permissions  *PermissionService
	Participants *ParticipantService
	Settings     *SettingsService
	Rooms        *RoomService
	Invitations  *InvitationService
}

// base holds what every component needs.
type base struct {
	rooms        *repositories.RoomRepository
	participants *repositories.ParticipantRepository
	settings     *repositories.SettingsRepository
	invitations  *repositories.InvitationRepository
	guests       *repositories.GuestRepository

	locks  *RoomLocks
	logger *zap.Logger
	now    func() time.Time
}

func New(opts Options) *Services {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = DefaultInvitationTTL
	}
	if opts.GuestRetention <= 0 {
		opts.GuestRetention = DefaultGuestRetention
	}

	b := &base{
		rooms:        repositories.NewRoomRepository(opts.Store),
		participants: repositories.NewParticipantRepository(opts.Store),
		settings:     repositories.NewSettingsRepository(opts.Store),
		invitations:  repositories.NewInvitationRepository(opts.Store),
		guests:       repositories.NewGuestRepository(opts.Store),
		locks:        NewRoomLocks(opts.LockStripes),
		logger:       opts.Logger,
		now:          opts.Clock,
	}

	perms := &PermissionService{base: b}
	participants := &ParticipantService{base: b, perms: perms}
	settings := &SettingsService{base: b, perms: perms}
	rooms := &RoomService{base: b, perms: perms, directory: participants}
	invitations := &InvitationService{
		base:      b,
		perms:     perms,
		directory: participants,
		publisher: opts.Publisher,
		ttl:       opts.InvitationTTL,
		retention: opts.GuestRetention,
	}

	return &Services{
		Permissions:  perms,
		Participants: participants,
		Settings:     settings,
		Rooms:        rooms,
		Invitations:  invitations,
	}
}

// log returns the component logger tagged with the request trace id.
func (b *base) log(ctx context.Context) *zap.Logger {
	return logger.Ctx(ctx, b.logger)
}

// clock returns the current time in UTC so stored timestamps compare
// cleanly after a JSON round trip.
func (b *base) clock() time.Time {
	return b.now().UTC()
}

// activeRoom loads a room, treating soft-deleted rooms as missing.
func (b *base) activeRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if roomID == "" {
		return nil, ErrRoomNotFound
	}
	room, err := b.rooms.Get(ctx, roomID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if !room.IsActive() {
		return nil, ErrRoomNotFound
	}
	return room, nil
}
