// Package storage is the persistence adapter: keyed JSON documents grouped
// into named collections. Backends are an in-process map, a relational
// table through gorm, and Redis hashes.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)

// Collection names used by the repositories.
const (
	CollectionRooms        = "rooms"
	CollectionParticipants = "rooms/participants"
	CollectionSettings     = "rooms/settings"
	CollectionInvitations  = "invitations"
	CollectionGuests       = "rooms/guests"
)

// Record is one stored document. Seq grows with every new key in a
// collection and never changes on update, so it reflects insertion order.
type Record struct {
	Collection string
	Key        string
	Data       []byte
	Seq        int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Write is one entry of a Batch. CreateOnly gives it Create semantics,
// otherwise it behaves like Put.
type Write struct {
	Collection string
	Key        string
	Data       []byte
	CreateOnly bool
}

// Store is implemented by every backend. Data must be a JSON document.
type Store interface {
	// Get returns ErrRecordNotFound when the key is absent.
	Get(ctx context.Context, collection, key string) (*Record, error)
	// Put inserts or replaces the document, keeping CreatedAt and Seq.
	Put(ctx context.Context, collection, key string, data []byte) error
	// Create inserts only; ErrRecordExists when the key is taken.
	Create(ctx context.Context, collection, key string, data []byte) error
	// List returns every record of a collection in insertion order.
	List(ctx context.Context, collection string) ([]*Record, error)
	// ListPrefix is List restricted to keys starting with prefix.
	ListPrefix(ctx context.Context, collection, prefix string) ([]*Record, error)
	// Batch applies writes all or nothing. A CreateOnly write on a taken key
	// fails the whole batch with ErrRecordExists.
	Batch(ctx context.Context, writes []Write) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error
	Close() error
}
