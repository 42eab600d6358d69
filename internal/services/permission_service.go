package services

import (
	"context"
	"errors"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/permissions"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

// PermissionService answers capability questions against the snapshot
// stored on each participant row.
type PermissionService struct {
	*base
}

// HasCapability is false when the user has no active row in the room.
func (s *PermissionService) HasCapability(ctx context.Context, roomID, userID string, c permissions.Capability) (bool, error) {
	p, err := s.activeParticipant(ctx, roomID, userID)
	if err != nil || p == nil {
		return false, err
	}
	return p.Capabilities.Has(c), nil
}

// Require succeeds when userID holds any of caps.
func (s *PermissionService) Require(ctx context.Context, roomID, userID string, caps ...permissions.Capability) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	p, err := s.activeParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if p != nil {
		for _, c := range caps {
			if p.Capabilities.Has(c) {
				return nil
			}
		}
	}
	return ErrPermissionDenied
}

func (s *PermissionService) activeParticipant(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	p, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, nil
	}
	return p, nil
}
