package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/internal/events"
	"github.com/Gopher0727/InterviewRoom/internal/models"
	"github.com/Gopher0727/InterviewRoom/internal/permissions"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc      *Services
	clock    *fakeClock
	recorder *events.Recorder
	store    storage.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, storage.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store storage.Store) *testEnv {
	t.Helper()
	clock := newFakeClock()
	rec := events.NewRecorder(nil)
	svc := New(Options{
		Store:       store,
		Logger:      zap.NewNop(),
		Publisher:   rec,
		LockStripes: 16,
		Clock:       clock.Now,
	})
	return &testEnv{svc: svc, clock: clock, recorder: rec, store: store}
}

var ctx = context.Background()

// createRoom creates a room owned by owner and returns its id.
func (e *testEnv) createRoom(t *testing.T, owner string) string {
	t.Helper()
	room, err := e.svc.Rooms.CreateRoom(ctx, &CreateRoomRequest{Name: "Demo"}, owner, owner)
	require.NoError(t, err)
	return room.ID
}

// addMember adds userID with role, bypassing capacity.
func (e *testEnv) addMember(t *testing.T, roomID, userID string, role permissions.Role) {
	t.Helper()
	_, err := e.svc.Participants.AddParticipant(ctx, roomID, userID, userID, role)
	require.NoError(t, err)
}

func (e *testEnv) setSettings(t *testing.T, roomID, actor string, kv map[string]any) {
	t.Helper()
	patch := make(map[string]json.RawMessage, len(kv))
	for k, v := range kv {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		patch[k] = raw
	}
	_, err := e.svc.Settings.UpdateSettings(ctx, roomID, patch, actor)
	require.NoError(t, err)
}

func (e *testEnv) invite(t *testing.T, roomID, inviter string, contact *string) *models.GuestInvitation {
	t.Helper()
	inv, err := e.svc.Invitations.CreateInvitation(ctx, roomID, inviter, &CreateInvitationRequest{Contact: contact})
	require.NoError(t, err)
	return inv
}

func strPtr(s string) *string { return &s }

func userIDs(ps []*models.Participant) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.UserID)
	}
	return ids
}
