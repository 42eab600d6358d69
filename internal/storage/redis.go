package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// InitRedis connects and pings a Redis client.
func InitRedis(host, port, password string, db, poolSize, minIdleConns int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

// redisEnvelope is the hash value stored per key.
type redisEnvelope struct {
	Seq       int64           `json:"seq"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// RedisStore keeps each collection in three keys:
//
//	<ns>:<collection>:data   hash  key -> envelope
//	<ns>:<collection>:order  zset  key scored by seq
//	<ns>:<collection>:seq    counter
//
// Writers of the same document are serialized by the room locks above this
// layer, so Put does not need a script.
type RedisStore struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "rooms"
	}
	return &RedisStore{client: client, namespace: namespace, now: time.Now}
}

func (s *RedisStore) dataKey(c string) string  { return s.namespace + ":" + c + ":data" }
func (s *RedisStore) orderKey(c string) string { return s.namespace + ":" + c + ":order" }
func (s *RedisStore) seqKey(c string) string   { return s.namespace + ":" + c + ":seq" }

func (s *RedisStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	raw, err := s.client.HGet(ctx, s.dataKey(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(collection, key, raw)
}

func (s *RedisStore) Put(ctx context.Context, collection, key string, data []byte) error {
	now := s.now()
	existing, err := s.Get(ctx, collection, key)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		if err := s.Create(ctx, collection, key, data); !errors.Is(err, ErrRecordExists) {
			return err
		}
		// created concurrently, fall through to an update
		if existing, err = s.Get(ctx, collection, key); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	env := redisEnvelope{
		Seq:       existing.Seq,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: now,
		Data:      json.RawMessage(data),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.dataKey(collection), key, raw).Err()
}

func (s *RedisStore) Create(ctx context.Context, collection, key string, data []byte) error {
	seq, err := s.client.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return err
	}
	now := s.now()
	raw, err := json.Marshal(redisEnvelope{Seq: seq, CreatedAt: now, UpdatedAt: now, Data: json.RawMessage(data)})
	if err != nil {
		return err
	}

	ok, err := s.client.HSetNX(ctx, s.dataKey(collection), key, raw).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecordExists
	}
	return s.client.ZAdd(ctx, s.orderKey(collection), redis.Z{Score: float64(seq), Member: key}).Err()
}

const batchRetries = 3

// Batch watches the data hashes it touches and commits every write in one
// MULTI. A concurrent change to a watched hash restarts the batch.
func (s *RedisStore) Batch(ctx context.Context, writes []Write) error {
	seen := make(map[string]struct{}, len(writes))
	watch := make([]string, 0, len(writes))
	for _, w := range writes {
		k := s.dataKey(w.Collection)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			watch = append(watch, k)
		}
	}

	apply := func(tx *redis.Tx) error {
		now := s.now()
		envs := make([][]byte, len(writes))
		fresh := make([]int64, len(writes))
		for i, w := range writes {
			env := redisEnvelope{CreatedAt: now, UpdatedAt: now, Data: json.RawMessage(w.Data)}
			raw, err := tx.HGet(ctx, s.dataKey(w.Collection), w.Key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				seq, err := s.client.Incr(ctx, s.seqKey(w.Collection)).Result()
				if err != nil {
					return err
				}
				env.Seq = seq
				fresh[i] = seq
			case err != nil:
				return err
			case w.CreateOnly:
				return ErrRecordExists
			default:
				existing, err := decodeEnvelope(w.Collection, w.Key, raw)
				if err != nil {
					return err
				}
				env.Seq = existing.Seq
				env.CreatedAt = existing.CreatedAt
			}
			if envs[i], err = json.Marshal(env); err != nil {
				return err
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				pipe.HSet(ctx, s.dataKey(w.Collection), w.Key, envs[i])
				if fresh[i] != 0 {
					pipe.ZAdd(ctx, s.orderKey(w.Collection), redis.Z{Score: float64(fresh[i]), Member: w.Key})
				}
			}
			return nil
		})
		return err
	}

	var err error
	for range batchRetries {
		err = s.client.Watch(ctx, apply, watch...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]*Record, error) {
	return s.ListPrefix(ctx, collection, "")
}

func (s *RedisStore) ListPrefix(ctx context.Context, collection, prefix string) ([]*Record, error) {
	keys, err := s.client.ZRange(ctx, s.orderKey(collection), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		filtered := keys[:0]
		for _, k := range keys {
			if strings.HasPrefix(k, prefix) {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}
	if len(keys) == 0 {
		return []*Record{}, nil
	}

	values, err := s.client.HMGet(ctx, s.dataKey(collection), keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(keys))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// deleted between ZRANGE and HMGET
			continue
		}
		rec, err := decodeEnvelope(collection, keys[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.dataKey(collection), key)
		pipe.ZRem(ctx, s.orderKey(collection), key)
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeEnvelope(collection, key string, raw []byte) (*Record, error) {
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return &Record{
		Collection: collection,
		Key:        key,
		Data:       []byte(env.Data),
		Seq:        env.Seq,
		CreatedAt:  env.CreatedAt,
		UpdatedAt:  env.UpdatedAt,
	}, nil
}
