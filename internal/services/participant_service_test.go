package services

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Gopher0727/InterviewRoom/internal/permissions"
	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

func TestListParticipants_Order(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")

	env.clock.Advance(time.Second)
	env.addMember(t, id, "p1", permissions.RoleParticipant)
	env.addMember(t, id, "g1", permissions.RoleGuest)
	env.clock.Advance(time.Second)
	env.addMember(t, id, "m1", permissions.RoleModerator)
	env.addMember(t, id, "p2", permissions.RoleParticipant)
	env.addMember(t, id, "p0", permissions.RoleParticipant) // same instant as p2

	list, err := env.svc.Participants.ListParticipants(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "m1", "p1", "p2", "p0", "g1"}, userIDs(list))
}

func TestAddParticipant_ReactivatesSameRow(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")

	env.addMember(t, id, "U2", permissions.RoleParticipant)
	require.NoError(t, env.svc.Participants.RemoveParticipant(ctx, id, "U2"))
	env.clock.Advance(time.Minute)

	p, err := env.svc.Participants.AddParticipant(ctx, id, "U2", "Back Again", permissions.RoleModerator)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Nil(t, p.LeftAt)
	assert.Equal(t, env.clock.Now(), p.JoinedAt)
	assert.Equal(t, "Back Again", p.DisplayName)
	assert.True(t, p.Capabilities.Has(permissions.CapKickUsers))

	all, err := env.svc.Participants.participants.ListByRoom(ctx, id)
	require.NoError(t, err)
	assert.Len(t, all, 2, "one row per (room, user)")
}

func TestAddParticipant_MissingRoom(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Participants.AddParticipant(ctx, "nope", "U1", "", permissions.RoleGuest)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	id := env.createRoom(t, "owner")
	_, err = env.svc.Participants.AddParticipant(ctx, id, "", "", permissions.RoleGuest)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRemoveParticipant_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "U2", permissions.RoleParticipant)

	require.NoError(t, env.svc.Participants.RemoveParticipant(ctx, id, "U2"))
	first, err := env.svc.Participants.participants.Get(ctx, id, "U2")
	require.NoError(t, err)
	require.NotNil(t, first.LeftAt)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.svc.Participants.RemoveParticipant(ctx, id, "U2"))
	require.NoError(t, env.svc.Participants.RemoveParticipant(ctx, id, "never-joined"))

	second, err := env.svc.Participants.participants.Get(ctx, id, "U2")
	require.NoError(t, err)
	assert.Equal(t, *first.LeftAt, *second.LeftAt)
	assert.False(t, second.IsActive)

	ok, err := env.svc.Permissions.HasCapability(ctx, id, "U2", permissions.CapViewMessages)
	require.NoError(t, err)
	assert.False(t, ok, "inactive members hold nothing")
}

func TestUpdateParticipantRole_DemotionDropsCapabilities(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "mod", permissions.RoleModerator)

	ok, err := env.svc.Permissions.HasCapability(ctx, id, "mod", permissions.CapKickUsers)
	require.NoError(t, err)
	require.True(t, ok)

	p, err := env.svc.Participants.UpdateParticipantRole(ctx, id, "mod", permissions.RoleGuest, "owner")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleGuest, p.Role)

	ok, err = env.svc.Permissions.HasCapability(ctx, id, "mod", permissions.CapKickUsers)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = env.svc.Permissions.HasCapability(ctx, id, "mod", permissions.CapViewMessages)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateParticipantRole_RankRules(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "mod", permissions.RoleModerator)
	env.addMember(t, id, "mod2", permissions.RoleModerator)
	env.addMember(t, id, "member", permissions.RoleParticipant)

	_, err := env.svc.Participants.UpdateParticipantRole(ctx, id, "mod", permissions.RoleAdmin, "mod")
	assert.ErrorIs(t, err, ErrPermission, "cannot grant a role above your own")
	_, err = env.svc.Participants.UpdateParticipantRole(ctx, id, "member", permissions.RoleAdmin, "mod")
	assert.ErrorIs(t, err, ErrPermission)
	_, err = env.svc.Participants.UpdateParticipantRole(ctx, id, "owner", permissions.RoleGuest, "mod")
	assert.ErrorIs(t, err, ErrPermission, "cannot change a member ranked above you")

	owner, err := env.svc.Participants.participants.Get(ctx, id, "owner")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleAdmin, owner.Role)
	ok, err := env.svc.Permissions.HasCapability(ctx, id, "mod", permissions.CapDeleteRoom)
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := env.svc.Participants.UpdateParticipantRole(ctx, id, "mod2", permissions.RoleParticipant, "mod")
	require.NoError(t, err, "equal rank may be changed")
	assert.Equal(t, permissions.RoleParticipant, p.Role)

	p, err = env.svc.Participants.UpdateParticipantRole(ctx, id, "mod", permissions.RoleAdmin, "owner")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleAdmin, p.Role)
}

func TestUpdateParticipantRole_Errors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "member", permissions.RoleParticipant)
	env.addMember(t, id, "mod", permissions.RoleModerator)

	_, err := env.svc.Participants.UpdateParticipantRole(ctx, id, "member", "", "owner")
	assert.ErrorIs(t, err, ErrRoleRequired)

	_, err = env.svc.Participants.UpdateParticipantRole(ctx, id, "member", "superuser", "owner")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Participants.UpdateParticipantRole(ctx, id, "mod", permissions.RoleAdmin, "member")
	assert.ErrorIs(t, err, ErrPermission)

	_, err = env.svc.Participants.UpdateParticipantRole(ctx, id, "ghost", permissions.RoleGuest, "owner")
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	p, err := env.svc.Participants.UpdateParticipantRole(ctx, id, "member", permissions.RoleModerator, "mod")
	require.NoError(t, err, "manage_participants is enough")
	assert.Equal(t, permissions.RoleModerator, p.Role)
}

func TestCapabilitySnapshot_RefreshedOnDemand(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "U2", permissions.RoleParticipant)

	// a row written under an older role table
	stale, err := env.svc.Participants.participants.Get(ctx, id, "U2")
	require.NoError(t, err)
	stale.Capabilities = permissions.NewCapabilitySet(permissions.CapViewMessages)
	require.NoError(t, env.svc.Participants.participants.Save(ctx, stale))

	ok, err := env.svc.Permissions.HasCapability(ctx, id, "U2", permissions.CapSendMessages)
	require.NoError(t, err)
	assert.False(t, ok, "checks read the stored snapshot")

	p, err := env.svc.Participants.RefreshCapabilities(ctx, id, "U2", "owner")
	require.NoError(t, err)
	assert.True(t, p.Capabilities.Equal(permissions.CapabilitiesFor(permissions.RoleParticipant)))

	ok, err = env.svc.Permissions.HasCapability(ctx, id, "U2", permissions.CapSendMessages)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJoinRoom_SelfJoin(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")

	p, err := env.svc.Participants.JoinRoom(ctx, id, "U2", &JoinRoomRequest{DisplayName: " Alice "})
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleParticipant, p.Role)
	assert.Equal(t, "Alice", p.DisplayName)

	again, err := env.svc.Participants.JoinRoom(ctx, id, "U2", nil)
	require.NoError(t, err)
	assert.Equal(t, p.JoinedAt, again.JoinedAt, "already active is a no-op")

	_, err = env.svc.Participants.JoinRoom(ctx, id, "", nil)
	assert.ErrorIs(t, err, ErrAuthentication)
	_, err = env.svc.Participants.JoinRoom(ctx, "missing", "U3", nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinRoom_RejoinKeepsRole(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "mod", permissions.RoleModerator)
	require.NoError(t, env.svc.Participants.LeaveRoom(ctx, id, "mod"))

	p, err := env.svc.Participants.JoinRoom(ctx, id, "mod", nil)
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleModerator, p.Role)
	assert.Equal(t, "mod", p.DisplayName)
}

func TestJoinRoom_PasswordAndCapacity(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.setSettings(t, id, "owner", map[string]any{"room_password": "s3cret", "max_participants": 2})

	_, err := env.svc.Participants.JoinRoom(ctx, id, "U2", &JoinRoomRequest{Password: "wrong"})
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.ErrorIs(t, err, ErrPermission)

	_, err = env.svc.Participants.JoinRoom(ctx, id, "U2", &JoinRoomRequest{Password: "s3cret"})
	require.NoError(t, err)

	_, err = env.svc.Participants.JoinRoom(ctx, id, "U3", &JoinRoomRequest{Password: "s3cret"})
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestKickParticipant(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "mod", permissions.RoleModerator)
	env.addMember(t, id, "mod2", permissions.RoleModerator)
	env.addMember(t, id, "member", permissions.RoleParticipant)
	env.addMember(t, id, "other", permissions.RoleParticipant)

	assert.ErrorIs(t, env.svc.Participants.KickParticipant(ctx, id, "other", "member"), ErrPermission)
	assert.ErrorIs(t, env.svc.Participants.KickParticipant(ctx, id, "owner", "mod"), ErrPermission)
	assert.ErrorIs(t, env.svc.Participants.KickParticipant(ctx, id, "mod", "mod"), ErrValidation)
	assert.ErrorIs(t, env.svc.Participants.KickParticipant(ctx, id, "ghost", "mod"), ErrParticipantNotFound)

	require.NoError(t, env.svc.Participants.KickParticipant(ctx, id, "member", "mod"))
	require.NoError(t, env.svc.Participants.KickParticipant(ctx, id, "mod2", "mod"), "equal rank may be removed")
	require.NoError(t, env.svc.Participants.KickParticipant(ctx, id, "mod", "owner"))

	list, err := env.svc.Participants.ListParticipants(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "other"}, userIDs(list))
}

func TestHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.clock.Advance(90 * time.Second)

	p, err := env.svc.Participants.Heartbeat(ctx, id, "owner")
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now(), p.LastSeen)

	_, err = env.svc.Participants.Heartbeat(ctx, id, "stranger")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletedRoom_RejectsMembershipChanges(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.addMember(t, id, "U2", permissions.RoleParticipant)
	require.NoError(t, env.svc.Rooms.DeleteRoom(ctx, id, "owner"))

	_, err := env.svc.Participants.AddParticipant(ctx, id, "U3", "", permissions.RoleGuest)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = env.svc.Participants.ListParticipants(ctx, id)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	require.NoError(t, env.svc.Participants.RemoveParticipant(ctx, id, "U2"))
}

func TestJoinRoom_ConcurrentCapacity(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t, "owner")
	env.setSettings(t, id, "owner", map[string]any{"max_participants": 5})

	const callers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		full    int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Participants.JoinRoom(ctx, id, "user-"+string(rune('a'+i)), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case assert.ErrorIs(t, err, ErrRoomFull):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, success)
	assert.Equal(t, callers-4, full)
	n, err := env.svc.Participants.participants.CountActive(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

// Any interleaving of joins and leaves keeps the roster within capacity and
// never holds two active rows for one user.
func TestMembership_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env := newTestEnvWithStore(t, storage.NewMemoryStore())
		room, err := env.svc.Rooms.CreateRoom(ctx, &CreateRoomRequest{Name: "prop"}, "owner", "")
		if err != nil {
			rt.Fatalf("create room: %v", err)
		}
		capacity := rapid.IntRange(1, 6).Draw(rt, "capacity")
		patchCapacity(rt, env, room.ID, capacity)

		users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			user := rapid.SampledFrom(users).Draw(rt, "user")
			if rapid.Bool().Draw(rt, "join") {
				_, err := env.svc.Participants.JoinRoom(ctx, room.ID, user, nil)
				if err != nil && !errors.Is(err, ErrRoomFull) {
					rt.Fatalf("join %s: %v", user, err)
				}
			} else if err := env.svc.Participants.LeaveRoom(ctx, room.ID, user); err != nil {
				rt.Fatalf("leave %s: %v", user, err)
			}

			list, err := env.svc.Participants.ListParticipants(ctx, room.ID)
			if err != nil {
				rt.Fatalf("list: %v", err)
			}
			if len(list) > capacity {
				rt.Fatalf("%d active members exceed capacity %d", len(list), capacity)
			}
			seen := make(map[string]bool, len(list))
			for _, p := range list {
				if seen[p.UserID] {
					rt.Fatalf("duplicate active row for %s", p.UserID)
				}
				seen[p.UserID] = true
			}
			if !seen["owner"] {
				rt.Fatalf("owner dropped out of the roster")
			}
		}
	})
}

func patchCapacity(rt *rapid.T, env *testEnv, roomID string, capacity int) {
	patch := map[string]json.RawMessage{"max_participants": json.RawMessage(strconv.Itoa(capacity))}
	if _, err := env.svc.Settings.UpdateSettings(ctx, roomID, patch, "owner"); err != nil {
		rt.Fatalf("set capacity: %v", err)
	}
}
