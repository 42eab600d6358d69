package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/events"
	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/permissions"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
	"github.com/Gopher0727/InterviewRoom/internal/utils"
)

const (
	maxInvitationTTL   = 7 * 24 * time.Hour
	tokenCreateRetries = 3
)

// InvitationService runs the guest flow: invite, verify, join or wait,
// admit or reject, leave. Invitation states move one way:
// pending -> accepted | declined | expired.
type InvitationService struct {
	*base
	perms     *PermissionService
	directory *ParticipantService
	publisher events.Publisher
	ttl       time.Duration
	retention time.Duration
}

type CreateInvitationRequest struct {
	Contact    *string `json:"contact"`
	TTLMinutes int     `json:"ttl_minutes"`
}

type GuestJoinRequest struct {
	Code        string                `json:"code"`
	DisplayName string                `json:"display_name"`
	Device      models.DeviceSettings `json:"device_settings"`
}

type AcceptInvitationRequest struct {
	DisplayName string                `json:"display_name"`
	Device      models.DeviceSettings `json:"device_settings"`
}

// SweepResult reports what one SweepExpired pass changed.
type SweepResult struct {
	Expired int `json:"expired"`
	Purged  int `json:"purged"`
}

// CreateInvitation issues a join code for roomID. The inviter needs
// manage_participants. A contact makes the invitation single-use.
func (s *InvitationService) CreateInvitation(ctx context.Context, roomID, inviterID string, req *CreateInvitationRequest) (*models.GuestInvitation, error) {
	if req == nil {
		req = &CreateInvitationRequest{}
	}
	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, roomID, inviterID, permissions.CapManageParticipants, permissions.CapAll); err != nil {
		return nil, err
	}

	var contact *string
	if req.Contact != nil {
		c := strings.TrimSpace(*req.Contact)
		if c != "" {
			if !utils.ValidateContact(c) {
				return nil, validationf("contact must be an email address or E.164 phone number")
			}
			contact = &c
		}
	}
	ttl := s.ttl
	if req.TTLMinutes != 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
		if ttl <= 0 || ttl > maxInvitationTTL {
			return nil, validationf("ttl_minutes must be between 1 and %d", int(maxInvitationTTL/time.Minute))
		}
	}

	now := s.clock()
	inv := &models.GuestInvitation{
		RoomID:    roomID,
		Contact:   contact,
		Status:    models.InvitationPending,
		CreatedBy: inviterID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	var err error
	for i := 0; i < tokenCreateRetries; i++ {
		inv.Token = utils.GenerateInvitationToken()
		if err = s.invitations.Create(ctx, inv); !errors.Is(err, storage.ErrRecordExists) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("invitation created",
		zap.String("room_id", roomID),
		zap.String("inviter_id", inviterID),
		zap.Bool("targeted", inv.Targeted()),
		zap.Time("expires_at", inv.ExpiresAt))
	s.publish(ctx, events.Event{
		Type:      events.InvitationCreated,
		RoomID:    roomID,
		Token:     inv.Token,
		Contact:   inv.Contact,
		ActorID:   inviterID,
		ExpiresAt: inv.ExpiresAt,
	})
	return inv, nil
}

// GetInvitation returns the invitation with lazy expiry applied to its
// status. Nothing is written.
func (s *InvitationService) GetInvitation(ctx context.Context, token string) (*models.GuestInvitation, error) {
	inv, err := s.findInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	inv.Status = inv.EffectiveStatus(s.clock())
	return inv, nil
}

// VerifyJoinCode checks a code without using it up.
func (s *InvitationService) VerifyJoinCode(ctx context.Context, code string) (*models.InvitationSummary, error) {
	inv, room, settings, err := s.resolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &models.InvitationSummary{
		Token:           inv.Token,
		RoomID:          room.ID,
		RoomName:        room.Name,
		RoomType:        room.Type,
		Status:          inv.Status,
		ExpiresAt:       inv.ExpiresAt,
		RequireApproval: settings.RequireApproval,
		PasswordNeeded:  settings.PasswordProtected,
	}, nil
}

// resolveCode maps a code to a usable pending invitation and its room.
func (s *InvitationService) resolveCode(ctx context.Context, code string) (*models.GuestInvitation, *models.Room, *models.RoomSettings, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil, nil, ErrInvalidJoinCode
	}
	inv, err := s.invitations.Get(ctx, code)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, nil, nil, ErrInvalidJoinCode
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if inv.EffectiveStatus(s.clock()) != models.InvitationPending {
		return nil, nil, nil, ErrJoinCodeExpired
	}
	room, err := s.activeRoom(ctx, inv.RoomID)
	if err != nil {
		return nil, nil, nil, err
	}
	_, settings, err := s.loadSettings(ctx, room.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return inv, room, settings, nil
}

// JoinRoom admits a guest holding code, or parks them in the waiting room
// when the room requires approval. Capacity is checked before anything
// is written.
func (s *InvitationService) JoinRoom(ctx context.Context, req *GuestJoinRequest) (*models.GuestJoinResult, error) {
	name, ok := utils.NormalizeDisplayName(req.DisplayName)
	if !ok {
		return nil, validationf("display_name is required")
	}

	inv, _, _, err := s.resolveCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(inv.RoomID)
	result, evs, err := s.admitLocked(ctx, inv.Token, name, req.Device, false)
	unlock()
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		s.publish(ctx, ev)
	}
	return result, nil
}

// AcceptInvitation is the targeted guest answering yes. Open invitations
// cannot be accepted or declined.
func (s *InvitationService) AcceptInvitation(ctx context.Context, token string, req *AcceptInvitationRequest) (*models.GuestJoinResult, error) {
	if req == nil {
		req = &AcceptInvitationRequest{}
	}
	inv, err := s.targetedPending(ctx, token)
	if err != nil {
		return nil, err
	}
	name, ok := utils.NormalizeDisplayName(req.DisplayName)
	if !ok {
		name = *inv.Contact
	}

	unlock := s.locks.Lock(inv.RoomID)
	result, evs, err := s.admitLocked(ctx, inv.Token, name, req.Device, true)
	unlock()
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		s.publish(ctx, ev)
	}
	return result, nil
}

// DeclineInvitation is the targeted guest answering no.
func (s *InvitationService) DeclineInvitation(ctx context.Context, token string) (*models.GuestInvitation, error) {
	inv, err := s.targetedPending(ctx, token)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(inv.RoomID)
	inv, err = s.targetedPending(ctx, token)
	if err == nil {
		inv.Resolve(models.InvitationDeclined, s.clock())
		err = s.invitations.Save(ctx, inv)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("invitation declined", zap.String("room_id", inv.RoomID))
	s.publish(ctx, events.Event{
		Type:    events.InvitationDeclined,
		RoomID:  inv.RoomID,
		Token:   inv.Token,
		Contact: inv.Contact,
	})
	return inv, nil
}

func (s *InvitationService) targetedPending(ctx context.Context, token string) (*models.GuestInvitation, error) {
	inv, err := s.findInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if !inv.Targeted() {
		return nil, ErrInvitationNotTargeted
	}
	if inv.EffectiveStatus(s.clock()) != models.InvitationPending {
		return nil, ErrJoinCodeExpired
	}
	return inv, nil
}

func (s *InvitationService) findInvitation(ctx context.Context, token string) (*models.GuestInvitation, error) {
	if token == "" {
		return nil, ErrInvitationNotFound
	}
	inv, err := s.invitations.Get(ctx, token)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	return inv, err
}

// admitLocked re-validates the invitation under the room lock, checks
// capacity, then creates the guest record and, without approval, the
// participant row. Targeted invitations are consumed.
func (s *InvitationService) admitLocked(ctx context.Context, token, name string, device models.DeviceSettings, accepting bool) (*models.GuestJoinResult, []events.Event, error) {
	inv, room, settings, err := s.resolveCode(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if accepting && !inv.Targeted() {
		return nil, nil, ErrInvitationNotTargeted
	}
	if err := s.directory.ensureCapacity(ctx, room.ID, settings); err != nil {
		return nil, nil, err
	}

	now := s.clock()
	guest := &models.Guest{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		InvitationToken: inv.Token,
		DisplayName:     name,
		Device:          device,
		Status:          models.GuestWaiting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	result := &models.GuestJoinResult{GuestID: guest.ID, RoomID: room.ID}
	var evs []events.Event

	if settings.RequireApproval {
		evs = append(evs, events.Event{
			Type:    events.GuestWaiting,
			RoomID:  room.ID,
			Token:   inv.Token,
			GuestID: guest.ID,
		})
	} else {
		p, err := s.directory.addLocked(ctx, room, guest.ID, name, permissions.RoleGuest)
		if err != nil {
			return nil, nil, err
		}
		guest.Status = models.GuestAdmitted
		result.Participant = p
	}
	if err := s.guests.Create(ctx, guest); err != nil {
		return nil, nil, err
	}
	result.Status = guest.Status

	if inv.Targeted() {
		inv.Resolve(models.InvitationAccepted, now)
		if err := s.invitations.Save(ctx, inv); err != nil {
			return nil, nil, err
		}
		evs = append(evs, events.Event{
			Type:    events.InvitationAccepted,
			RoomID:  room.ID,
			Token:   inv.Token,
			Contact: inv.Contact,
			GuestID: guest.ID,
		})
	}

	s.log(ctx).Info("guest joined",
		zap.String("room_id", room.ID),
		zap.String("guest_id", guest.ID),
		zap.String("status", string(guest.Status)))
	return result, evs, nil
}

// GetWaitingRoomStatus is polled by guests.
func (s *InvitationService) GetWaitingRoomStatus(ctx context.Context, guestID string) (*models.WaitingRoomStatus, error) {
	g, err := s.findGuest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	return &models.WaitingRoomStatus{
		GuestID:     g.ID,
		RoomID:      g.RoomID,
		DisplayName: g.DisplayName,
		Status:      g.Status,
		UpdatedAt:   g.UpdatedAt,
	}, nil
}

// LeaveRoom takes a guest out of the room, or out of the waiting room.
func (s *InvitationService) LeaveRoom(ctx context.Context, guestID string) error {
	g, err := s.findGuest(ctx, guestID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(g.RoomID)
	defer unlock()

	if g, err = s.findGuest(ctx, guestID); err != nil {
		return err
	}
	if _, err := s.directory.removeLocked(ctx, g.RoomID, g.ID); err != nil {
		return err
	}
	if g.Status == models.GuestWaiting || g.Status == models.GuestAdmitted {
		g.Status = models.GuestLeft
		g.UpdatedAt = s.clock()
		if err := s.guests.Save(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (s *InvitationService) findGuest(ctx context.Context, guestID string) (*models.Guest, error) {
	if guestID == "" {
		return nil, ErrGuestNotFound
	}
	g, err := s.guests.Get(ctx, guestID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, ErrGuestNotFound
	}
	return g, err
}

// ListWaiting returns guests waiting for admission, oldest first.
func (s *InvitationService) ListWaiting(ctx context.Context, roomID, actorID string) ([]*models.Guest, error) {
	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapManageParticipants); err != nil {
		return nil, err
	}
	return s.guests.ListByRoom(ctx, roomID, models.GuestWaiting)
}

// AdmitGuest moves a waiting guest into the room as a guest participant.
// Capacity is checked again at this point.
func (s *InvitationService) AdmitGuest(ctx context.Context, roomID, guestID, actorID string) (*models.Participant, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, g, err := s.decisionTarget(ctx, roomID, guestID, actorID)
	if err != nil {
		return nil, err
	}
	_, settings, err := s.loadSettings(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.directory.ensureCapacity(ctx, roomID, settings); err != nil {
		return nil, err
	}

	p, err := s.directory.addLocked(ctx, room, g.ID, g.DisplayName, permissions.RoleGuest)
	if err != nil {
		return nil, err
	}
	g.Status = models.GuestAdmitted
	g.DecidedBy = actorID
	g.UpdatedAt = s.clock()
	if err := s.guests.Save(ctx, g); err != nil {
		return nil, err
	}

	s.log(ctx).Info("guest admitted", zap.String("room_id", roomID), zap.String("guest_id", guestID), zap.String("actor_id", actorID))
	return p, nil
}

// RejectGuest turns a waiting guest away.
func (s *InvitationService) RejectGuest(ctx context.Context, roomID, guestID, actorID string) (*models.Guest, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	_, g, err := s.decisionTarget(ctx, roomID, guestID, actorID)
	if err != nil {
		return nil, err
	}
	g.Status = models.GuestRejected
	g.DecidedBy = actorID
	g.UpdatedAt = s.clock()
	if err := s.guests.Save(ctx, g); err != nil {
		return nil, err
	}

	s.log(ctx).Info("guest rejected", zap.String("room_id", roomID), zap.String("guest_id", guestID), zap.String("actor_id", actorID))
	return g, nil
}

func (s *InvitationService) decisionTarget(ctx context.Context, roomID, guestID, actorID string) (*models.Room, *models.Guest, error) {
	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.perms.Require(ctx, roomID, actorID, permissions.CapManageParticipants); err != nil {
		return nil, nil, err
	}
	g, err := s.findGuest(ctx, guestID)
	if err != nil {
		return nil, nil, err
	}
	if g.RoomID != roomID {
		return nil, nil, ErrGuestNotFound
	}
	if g.Status != models.GuestWaiting {
		return nil, nil, ErrGuestNotWaiting
	}
	return room, g, nil
}

// SweepExpired writes the expired status onto overdue pending invitations
// and drops guest records that finished longer ago than the retention
// window. Reads never depend on it having run.
func (s *InvitationService) SweepExpired(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.clock()

	pending, err := s.invitations.ListByStatus(ctx, models.InvitationPending)
	if err != nil {
		return res, err
	}
	for _, inv := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !now.After(inv.ExpiresAt) {
			continue
		}
		expired, err := s.expireOne(ctx, inv.RoomID, inv.Token, now)
		if err != nil {
			return res, err
		}
		if expired {
			res.Expired++
		}
	}

	guests, err := s.guests.ListAll(ctx)
	if err != nil {
		return res, err
	}
	cutoff := now.Add(-s.retention)
	for _, g := range guests {
		if g.Status != models.GuestRejected && g.Status != models.GuestLeft {
			continue
		}
		if g.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.guests.Delete(ctx, g.ID); err != nil {
			return res, err
		}
		res.Purged++
	}

	if res.Expired > 0 || res.Purged > 0 {
		s.log(ctx).Info("invitation sweep", zap.Int("expired", res.Expired), zap.Int("purged", res.Purged))
	}
	return res, nil
}

func (s *InvitationService) expireOne(ctx context.Context, roomID, token string, now time.Time) (bool, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	inv, err := s.invitations.Get(ctx, token)
	if err != nil {
		return false, err
	}
	if inv.EffectiveStatus(now) != models.InvitationExpired || inv.Status != models.InvitationPending {
		return false, nil
	}
	inv.Resolve(models.InvitationExpired, now)
	return true, s.invitations.Save(ctx, inv)
}

func (s *InvitationService) publish(ctx context.Context, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.clock()
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log(ctx).Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("room_id", ev.RoomID),
			zap.Error(err))
	}
}
