package repositories

import (
	"context"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

type InvitationRepository struct {
	docs document[models.GuestInvitation]
}

func NewInvitationRepository(store storage.Store) *InvitationRepository {
	return &InvitationRepository{docs: document[models.GuestInvitation]{store: store, collection: storage.CollectionInvitations}}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *models.GuestInvitation) error {
	return r.docs.create(ctx, inv.Token, inv)
}

func (r *InvitationRepository) Get(ctx context.Context, token string) (*models.GuestInvitation, error) {
	return r.docs.get(ctx, token)
}

func (r *InvitationRepository) Save(ctx context.Context, inv *models.GuestInvitation) error {
	return r.docs.put(ctx, inv.Token, inv)
}

// ListByStatus returns invitations with the stored status; empty status
// returns all.
func (r *InvitationRepository) ListByStatus(ctx context.Context, status models.InvitationStatus) ([]*models.GuestInvitation, error) {
	return r.docs.list(ctx, "", func(inv *models.GuestInvitation) bool {
		return status == "" || inv.Status == status
	})
}

func (r *InvitationRepository) ListByRoom(ctx context.Context, roomID string) ([]*models.GuestInvitation, error) {
	return r.docs.list(ctx, "", func(inv *models.GuestInvitation) bool {
		return inv.RoomID == roomID
	})
}
