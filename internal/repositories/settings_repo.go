package repositories

import (
	"context"
	"errors"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

type SettingsRepository struct {
	docs document[models.SettingsDocument]
}

func NewSettingsRepository(store storage.Store) *SettingsRepository {
	return &SettingsRepository{docs: document[models.SettingsDocument]{store: store, collection: storage.CollectionSettings}}
}

// Get returns the override document of a room, or nil when none was written.
func (r *SettingsRepository) Get(ctx context.Context, roomID string) (*models.SettingsDocument, error) {
	doc, err := r.docs.get(ctx, roomID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, nil
	}
	return doc, err
}

func (r *SettingsRepository) Save(ctx context.Context, doc *models.SettingsDocument) error {
	return r.docs.put(ctx, doc.RoomID, doc)
}
