package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memCollection struct {
	records map[string]*Record
	seq     int64
}

// MemoryStore keeps everything in process. Used for local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		now:         time.Now,
	}
}

func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{records: make(map[string]*Record)}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrRecordNotFound
	}
	r, ok := c.records[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyRecord(r), nil
}

func (s *MemoryStore) Put(ctx context.Context, collection, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if r, ok := c.records[key]; ok {
		r.Data = cloneBytes(data)
		r.UpdatedAt = s.now()
		return nil
	}
	c.insert(collection, key, data, s.now())
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, collection, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, ok := c.records[key]; ok {
		return ErrRecordExists
	}
	c.insert(collection, key, data, s.now())
	return nil
}

func (s *MemoryStore) Batch(ctx context.Context, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		if !w.CreateOnly {
			continue
		}
		if c, ok := s.collections[w.Collection]; ok {
			if _, taken := c.records[w.Key]; taken {
				return ErrRecordExists
			}
		}
	}
	now := s.now()
	for _, w := range writes {
		c := s.collection(w.Collection)
		if r, ok := c.records[w.Key]; ok {
			r.Data = cloneBytes(w.Data)
			r.UpdatedAt = now
			continue
		}
		c.insert(w.Collection, w.Key, w.Data, now)
	}
	return nil
}

func (c *memCollection) insert(collection, key string, data []byte, now time.Time) {
	c.seq++
	c.records[key] = &Record{
		Collection: collection,
		Key:        key,
		Data:       cloneBytes(data),
		Seq:        c.seq,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]*Record, error) {
	return s.ListPrefix(ctx, collection, "")
}

func (s *MemoryStore) ListPrefix(ctx context.Context, collection, prefix string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return []*Record{}, nil
	}
	out := make([]*Record, 0, len(c.records))
	for key, r := range c.records {
		if strings.HasPrefix(key, prefix) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		delete(c.records, key)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func copyRecord(r *Record) *Record {
	cp := *r
	cp.Data = cloneBytes(r.Data)
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
