package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": db}
}

func TestStoreRecordAndGet(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			in := CaseResult{
				Case: "case_01", Dice: 0.8, VolumeA: 12.5, VolumeB: 10,
				Overlap: 40, OnlyA: 12, OnlyB: 8, Aligned: true,
				Window:      "out[[0 0 0]:[4 4 4]] = in[[1 1 1]:[5 5 5]]",
				Corrections: []string{"slice increment"},
				RecordedAt:  at,
			}
			require.NoError(t, s.Record(ctx, in))

			got, err := s.Get(ctx, "case_01")
			require.NoError(t, err)
			assert.True(t, in.RecordedAt.Equal(got.RecordedAt))
			got.RecordedAt = in.RecordedAt
			assert.Equal(t, in, got)
			assert.False(t, got.Failed())

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreReplacesAndLists(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Record(ctx, CaseResult{Case: "b", Dice: 0.1}))
			require.NoError(t, s.Record(ctx, CaseResult{Case: "a", Error: "unpaired"}))
			require.NoError(t, s.Record(ctx, CaseResult{Case: "b", Dice: 0.9}))

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a", all[0].Case)
			assert.True(t, all[0].Failed())
			assert.Equal(t, 0.9, all[1].Dice)
			assert.False(t, all[1].RecordedAt.IsZero())
		})
	}
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.Record(ctx, CaseResult{Case: "x", Dice: 0.5}))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Dice)
	assert.Equal(t, path, db.Path())
}
