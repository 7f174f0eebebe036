package valueloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/trialnotes/internal/domain"
)

type fakeSource struct {
	mu     sync.Mutex
	calls  [][]int64
	values []domain.CustomFieldValue
	err    error
}

func (f *fakeSource) ListValuesByEntryIDs(_ context.Context, ids []int64) ([]domain.CustomFieldValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]int64(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.CustomFieldValue
	for _, v := range f.values {
		for _, id := range ids {
			if v.EntryID == id {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func value(entryID, fieldID int64, s string) domain.CustomFieldValue {
	return domain.CustomFieldValue{EntryID: entryID, CustomFieldID: fieldID, Value: &s}
}

func TestLoadMany_GroupsByEntry(t *testing.T) {
	src := &fakeSource{values: []domain.CustomFieldValue{
		value(1, 10, "a"),
		value(1, 11, "b"),
		value(3, 10, "c"),
	}}

	got, err := New(src, 0).LoadMany(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Len(t, got[1], 2)
	assert.Nil(t, got[2])
	assert.Equal(t, "c", *got[3][0].Value)
	requested := 0
	for _, c := range src.calls {
		requested += len(c)
	}
	assert.Equal(t, 3, requested)
}

func TestLoadMany_RespectsBatchSize(t *testing.T) {
	src := &fakeSource{}

	_, err := New(src, 2).LoadMany(context.Background(), []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	total := 0
	for _, c := range src.calls {
		assert.LessOrEqual(t, len(c), 2)
		total += len(c)
	}
	assert.Equal(t, 5, total)
}

func TestLoad_Single(t *testing.T) {
	src := &fakeSource{values: []domain.CustomFieldValue{value(7, 1, "x")}}

	got, err := New(src, 0).Load(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].CustomFieldID)
}

func TestLoadMany_SourceError(t *testing.T) {
	boom := errors.New("disk I/O error")
	src := &fakeSource{err: boom}

	_, err := New(src, 0).LoadMany(context.Background(), []int64{1})
	assert.ErrorIs(t, err, boom)
}

func TestLoadMany_Empty(t *testing.T) {
	src := &fakeSource{}

	got, err := New(src, 0).LoadMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, src.calls)
}
