package repositories

import (
	"context"
	"encoding/json"

	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

type RoomRepository struct {
	docs document[models.Room]
}

func NewRoomRepository(store storage.Store) *RoomRepository {
	return &RoomRepository{docs: document[models.Room]{store: store, collection: storage.CollectionRooms}}
}

// CreateWithOwner writes a new room, its settings document and the owner's
// membership in one batch. Nothing is written when the id is taken.
func (r *RoomRepository) CreateWithOwner(ctx context.Context, room *models.Room, settings *models.SettingsDocument, owner *models.Participant) error {
	roomData, err := json.Marshal(room)
	if err != nil {
		return err
	}
	settingsData, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	ownerData, err := json.Marshal(owner)
	if err != nil {
		return err
	}
	return r.docs.store.Batch(ctx, []storage.Write{
		{Collection: storage.CollectionRooms, Key: room.ID, Data: roomData, CreateOnly: true},
		{Collection: storage.CollectionSettings, Key: settings.RoomID, Data: settingsData},
		{Collection: storage.CollectionParticipants, Key: models.ParticipantKey(owner.RoomID, owner.UserID), Data: ownerData},
	})
}

// Get returns the room regardless of status.
func (r *RoomRepository) Get(ctx context.Context, id string) (*models.Room, error) {
	return r.docs.get(ctx, id)
}

func (r *RoomRepository) Save(ctx context.Context, room *models.Room) error {
	return r.docs.put(ctx, room.ID, room)
}

// List returns rooms matching filter in insertion order. Soft-deleted rooms
// are included only when includeDeleted is set.
func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter, includeDeleted bool) ([]*models.Room, error) {
	return r.docs.list(ctx, "", func(room *models.Room) bool {
		if !includeDeleted && !room.IsActive() {
			return false
		}
		if filter.Type != "" && room.Type != filter.Type {
			return false
		}
		if filter.CreatedBy != "" && room.CreatedBy != filter.CreatedBy {
			return false
		}
		return true
	})
}
