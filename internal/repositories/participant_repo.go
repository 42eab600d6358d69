package repositories

import (
	"context"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

type ParticipantRepository struct {
	docs document[models.Participant]
}

func NewParticipantRepository(store storage.Store) *ParticipantRepository {
	return &ParticipantRepository{docs: document[models.Participant]{store: store, collection: storage.CollectionParticipants}}
}

// Get returns storage.ErrRecordNotFound unless the stored row belongs to
// exactly this room and user.
func (r *ParticipantRepository) Get(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	p, err := r.docs.get(ctx, models.ParticipantKey(roomID, userID))
	if err != nil {
		return nil, err
	}
	if p.RoomID != roomID || p.UserID != userID {
		return nil, storage.ErrRecordNotFound
	}
	return p, nil
}

// Save upserts on (room, user).
func (r *ParticipantRepository) Save(ctx context.Context, p *models.Participant) error {
	return r.docs.put(ctx, models.ParticipantKey(p.RoomID, p.UserID), p)
}

// ListByRoom returns every membership row of a room, active or not, in
// insertion order.
func (r *ParticipantRepository) ListByRoom(ctx context.Context, roomID string) ([]*models.Participant, error) {
	return r.docs.list(ctx, models.ParticipantKeyPrefix(roomID), func(p *models.Participant) bool {
		return p.RoomID == roomID
	})
}

func (r *ParticipantRepository) ListActive(ctx context.Context, roomID string) ([]*models.Participant, error) {
	all, err := r.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, p := range all {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active, nil
}

// CountActive is the number of seats taken, used by capacity checks.
func (r *ParticipantRepository) CountActive(ctx context.Context, roomID string) (int, error) {
	active, err := r.ListActive(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}
