package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gopher0727/InterviewRoom/internal/storage"
)

// document maps one collection to a JSON-encoded model type.
type document[T any] struct {
	store      storage.Store
	collection string
}

func (d document[T]) decode(rec *storage.Record) (*T, error) {
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", d.collection, rec.Key, err)
	}
	return &v, nil
}

func (d document[T]) get(ctx context.Context, key string) (*T, error) {
	rec, err := d.store.Get(ctx, d.collection, key)
	if err != nil {
		return nil, err
	}
	return d.decode(rec)
}

func (d document[T]) put(ctx context.Context, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.store.Put(ctx, d.collection, key, data)
}

func (d document[T]) create(ctx context.Context, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.store.Create(ctx, d.collection, key, data)
}

// list decodes records under prefix in insertion order, keeping those
// accepted by keep (nil keeps all).
func (d document[T]) list(ctx context.Context, prefix string, keep func(*T) bool) ([]*T, error) {
	recs, err := d.store.ListPrefix(ctx, d.collection, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		v, err := d.decode(rec)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (d document[T]) delete(ctx context.Context, key string) error {
	return d.store.Delete(ctx, d.collection, key)
}
