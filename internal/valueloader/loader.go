// Package valueloader batches custom field value lookups by entry id.
package valueloader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/trialnotes/internal/domain"
)

// DefaultBatchSize keeps the generated IN clause under the sqlite
// variable limit.
const DefaultBatchSize = 500

// ValueSource fetches the values of many entries in one round trip.
type ValueSource interface {
	ListValuesByEntryIDs(ctx context.Context, entryIDs []int64) ([]domain.CustomFieldValue, error)
}

// Loader resolves the custom field values of entries, grouping concurrent
// and bulk requests into batched calls on the source.
type Loader struct {
	loader *dataloader.Loader
}

// New creates a loader over src. batchSize <= 0 uses DefaultBatchSize.
func New(src ValueSource, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]int64, len(keys))
		for i, k := range keys {
			id, err := strconv.ParseInt(k.String(), 10, 64)
			if err != nil {
				return failAll(keys, fmt.Errorf("invalid entry id %q: %w", k.String(), err))
			}
			ids[i] = id
		}

		values, err := src.ListValuesByEntryIDs(ctx, ids)
		if err != nil {
			return failAll(keys, err)
		}

		byEntry := make(map[int64][]domain.CustomFieldValue, len(ids))
		for _, v := range values {
			byEntry[v.EntryID] = append(byEntry[v.EntryID], v)
		}

		// results follow key order
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: byEntry[id]}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn,
		dataloader.WithWait(5*time.Millisecond),
		dataloader.WithBatchCapacity(batchSize),
	)
	return &Loader{loader: loader}
}

func failAll(keys dataloader.Keys, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, len(keys))
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

func key(id int64) dataloader.Key {
	return dataloader.StringKey(strconv.FormatInt(id, 10))
}

// Load returns the values attached to one entry.
func (l *Loader) Load(ctx context.Context, entryID int64) ([]domain.CustomFieldValue, error) {
	data, err := l.loader.Load(ctx, key(entryID))()
	if err != nil {
		return nil, err
	}
	values, _ := data.([]domain.CustomFieldValue)
	return values, nil
}

// LoadMany returns the values of every requested entry keyed by entry id.
// Entries without values map to nil.
func (l *Loader) LoadMany(ctx context.Context, entryIDs []int64) (map[int64][]domain.CustomFieldValue, error) {
	out := make(map[int64][]domain.CustomFieldValue, len(entryIDs))
	if len(entryIDs) == 0 {
		return out, nil
	}

	keys := make(dataloader.Keys, len(entryIDs))
	for i, id := range entryIDs {
		keys[i] = key(id)
	}

	data, errs := l.loader.LoadMany(ctx, keys)()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("load values of entry %d: %w", entryIDs[i], err)
		}
	}
	for i, d := range data {
		values, _ := d.([]domain.CustomFieldValue)
		out[entryIDs[i]] = values
	}
	return out, nil
}

type ctxKey struct{}

// WithLoader returns a copy of ctx carrying l.
func WithLoader(ctx context.Context, l *Loader) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the loader attached to ctx, or nil.
func FromContext(ctx context.Context) *Loader {
	if l, ok := ctx.Value(ctxKey{}).(*Loader); ok {
		return l
	}
	return nil
}
