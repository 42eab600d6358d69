package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/InterviewRoom/config"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// each sqlite :memory: connection is its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"gorm": func(t *testing.T) Store {
			s, err := NewGormStore(setupTestDB(t))
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			return NewRedisStore(setupTestRedis(t), "test")
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("get missing", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Get(context.Background(), CollectionRooms, "nope")
				assert.ErrorIs(t, err, ErrRecordNotFound)
			})

			t.Run("put then get", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, CollectionRooms, "r1", []byte(`{"name":"Demo"}`)))

				rec, err := s.Get(ctx, CollectionRooms, "r1")
				require.NoError(t, err)
				assert.JSONEq(t, `{"name":"Demo"}`, string(rec.Data))
				assert.Equal(t, "r1", rec.Key)
				assert.False(t, rec.CreatedAt.IsZero())
			})

			t.Run("put replaces and keeps order", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, CollectionRooms, "a", []byte(`{"v":1}`)))
				require.NoError(t, s.Put(ctx, CollectionRooms, "b", []byte(`{"v":2}`)))
				first, err := s.Get(ctx, CollectionRooms, "a")
				require.NoError(t, err)

				require.NoError(t, s.Put(ctx, CollectionRooms, "a", []byte(`{"v":3}`)))
				again, err := s.Get(ctx, CollectionRooms, "a")
				require.NoError(t, err)
				assert.JSONEq(t, `{"v":3}`, string(again.Data))
				assert.Equal(t, first.Seq, again.Seq)

				all, err := s.List(ctx, CollectionRooms)
				require.NoError(t, err)
				require.Len(t, all, 2)
				assert.Equal(t, "a", all[0].Key)
				assert.Equal(t, "b", all[1].Key)
			})

			t.Run("create rejects duplicates", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, CollectionRooms, "r1", []byte(`{"v":1}`)))
				err := s.Create(ctx, CollectionRooms, "r1", []byte(`{"v":2}`))
				assert.ErrorIs(t, err, ErrRecordExists)

				rec, err := s.Get(ctx, CollectionRooms, "r1")
				require.NoError(t, err)
				assert.JSONEq(t, `{"v":1}`, string(rec.Data))
			})

			t.Run("batch writes across collections", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, CollectionSettings, "r1", []byte(`{"v":0}`)))
				before, err := s.Get(ctx, CollectionSettings, "r1")
				require.NoError(t, err)

				require.NoError(t, s.Batch(ctx, []Write{
					{Collection: CollectionRooms, Key: "r1", Data: []byte(`{"name":"Demo"}`), CreateOnly: true},
					{Collection: CollectionSettings, Key: "r1", Data: []byte(`{"v":1}`)},
					{Collection: CollectionParticipants, Key: "2:r1_alice", Data: []byte(`{"role":"admin"}`)},
				}))

				room, err := s.Get(ctx, CollectionRooms, "r1")
				require.NoError(t, err)
				assert.JSONEq(t, `{"name":"Demo"}`, string(room.Data))
				settings, err := s.Get(ctx, CollectionSettings, "r1")
				require.NoError(t, err)
				assert.JSONEq(t, `{"v":1}`, string(settings.Data))
				assert.Equal(t, before.Seq, settings.Seq)
				list, err := s.List(ctx, CollectionParticipants)
				require.NoError(t, err)
				assert.Len(t, list, 1)
			})

			t.Run("batch is all or nothing", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Create(ctx, CollectionRooms, "taken", []byte(`{"v":1}`)))

				err := s.Batch(ctx, []Write{
					{Collection: CollectionSettings, Key: "taken", Data: []byte(`{"v":2}`)},
					{Collection: CollectionRooms, Key: "taken", Data: []byte(`{"v":2}`), CreateOnly: true},
					{Collection: CollectionParticipants, Key: "5:taken_bob", Data: []byte(`{}`)},
				})
				assert.ErrorIs(t, err, ErrRecordExists)

				rec, err := s.Get(ctx, CollectionRooms, "taken")
				require.NoError(t, err)
				assert.JSONEq(t, `{"v":1}`, string(rec.Data))
				_, err = s.Get(ctx, CollectionSettings, "taken")
				assert.ErrorIs(t, err, ErrRecordNotFound)
				list, err := s.List(ctx, CollectionParticipants)
				require.NoError(t, err)
				assert.Empty(t, list)
			})

			t.Run("collections are isolated", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, CollectionRooms, "k", []byte(`{}`)))
				_, err := s.Get(ctx, CollectionSettings, "k")
				assert.ErrorIs(t, err, ErrRecordNotFound)

				list, err := s.List(ctx, CollectionInvitations)
				require.NoError(t, err)
				assert.Empty(t, list)
			})

			t.Run("list prefix treats wildcards literally", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				for _, k := range []string{"room_1_alice", "room_1_bob", "roomX1_carol", "room_10_dave", "other_1"} {
					require.NoError(t, s.Put(ctx, CollectionParticipants, k, []byte(`{}`)))
				}

				got, err := s.ListPrefix(ctx, CollectionParticipants, "room_1_")
				require.NoError(t, err)
				keys := make([]string, 0, len(got))
				for _, r := range got {
					keys = append(keys, r.Key)
				}
				assert.Equal(t, []string{"room_1_alice", "room_1_bob"}, keys)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.Put(ctx, CollectionGuests, "g1", []byte(`{}`)))
				require.NoError(t, s.Delete(ctx, CollectionGuests, "g1"))
				require.NoError(t, s.Delete(ctx, CollectionGuests, "g1"))

				_, err := s.Get(ctx, CollectionGuests, "g1")
				assert.ErrorIs(t, err, ErrRecordNotFound)
				list, err := s.List(ctx, CollectionGuests)
				require.NoError(t, err)
				assert.Empty(t, list)
			})
		})
	}
}

func TestMemoryStore_ConcurrentCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Create(ctx, CollectionInvitations, "same", []byte(fmt.Sprintf(`{"i":%d}`, i))); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	data := []byte(`{"v":1}`)
	require.NoError(t, s.Put(ctx, CollectionRooms, "r", data))
	data[2] = 'x'

	rec, err := s.Get(ctx, CollectionRooms, "r")
	require.NoError(t, err)
	rec.Data[2] = 'y'

	again, err := s.Get(ctx, CollectionRooms, "r")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(again.Data))
}

func TestMemoryStore_Timestamps(t *testing.T) {
	s := NewMemoryStore()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, CollectionRooms, "r", []byte(`{}`)))

	s.now = func() time.Time { return t0.Add(time.Minute) }
	require.NoError(t, s.Put(ctx, CollectionRooms, "r", []byte(`{"x":1}`)))

	rec, err := s.Get(ctx, CollectionRooms, "r")
	require.NoError(t, err)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Equal(t, t0.Add(time.Minute), rec.UpdatedAt)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\d`, escapeLike(`a_b%c\d`))
}

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN("db", "5432", "u", "p", "rooms")
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=rooms sslmode=disable", dsn)
}

func TestInitRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, port := mr.Host(), mr.Port()
	client, err := InitRedis(host, port, "", 0, 5, 1)
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = InitRedis(host, port, "", 0, 5, 1)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(&config.Config{Store: config.StoreConfig{Driver: "memory"}})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	mr := miniredis.RunT(t)
	s, err = Open(&config.Config{
		Store: config.StoreConfig{Driver: "redis"},
		Redis: config.RedisConfig{Host: mr.Host(), Port: mr.Port(), PoolSize: 2},
	})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(&config.Config{Store: config.StoreConfig{Driver: "cassandra"}})
	assert.Error(t, err)
}
