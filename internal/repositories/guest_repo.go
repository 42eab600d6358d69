package repositories

import (
	"context"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

type GuestRepository struct {
	docs document[models.Guest]
}

func NewGuestRepository(store storage.Store) *GuestRepository {
	return &GuestRepository{docs: document[models.Guest]{store: store, collection: storage.CollectionGuests}}
}

func (r *GuestRepository) Create(ctx context.Context, g *models.Guest) error {
	return r.docs.create(ctx, g.ID, g)
}

func (r *GuestRepository) Get(ctx context.Context, id string) (*models.Guest, error) {
	return r.docs.get(ctx, id)
}

func (r *GuestRepository) Save(ctx context.Context, g *models.Guest) error {
	return r.docs.put(ctx, g.ID, g)
}

// ListByRoom returns guest records of a room with the given status, or all
// of them when status is empty.
func (r *GuestRepository) ListByRoom(ctx context.Context, roomID string, status models.GuestStatus) ([]*models.Guest, error) {
	return r.docs.list(ctx, "", func(g *models.Guest) bool {
		return g.RoomID == roomID && (status == "" || g.Status == status)
	})
}

func (r *GuestRepository) ListAll(ctx context.Context) ([]*models.Guest, error) {
	return r.docs.list(ctx, "", nil)
}

func (r *GuestRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}
