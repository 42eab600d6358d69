// Package events defines what the invitation flow emits. Delivery to
// guests (mail, push) belongs to whoever consumes these.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	InvitationCreated  Type = "invitation.created"
	InvitationAccepted Type = "invitation.accepted"
	InvitationDeclined Type = "invitation.declined"
	GuestWaiting       Type = "guest.waiting"
)

type Event struct {
	// ID is stamped by the transport; empty for in-process delivery.
	ID         string    `json:"id,omitempty"`
	Type       Type      `json:"type"`
	RoomID     string    `json:"room_id"`
	Token      string    `json:"token,omitempty"`
	Contact    *string   `json:"contact,omitempty"`
	GuestID    string    `json:"guest_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher hands events to a transport. A failed publish never fails the
// operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewRecorder returns a Recorder that fails every publish with err when err
// is non-nil.
func NewRecorder(err error) *Recorder {
	return &Recorder{err: err}
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
