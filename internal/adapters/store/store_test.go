package store_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/okian/physalign/internal/adapters/store"
	"github.com/okian/physalign/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(values ...float64) model.AlignedTable {
	return model.AlignedTable{
		Modality: model.HeartRate,
		Offsets:  []int{-1, 0, 1},
		Columns: []model.AlignedColumn{
			{Label: "Exp2_山口", Subject: "山口", Values: values},
		},
	}
}

func openMemory(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteTables(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	n, err := s.WriteTables(ctx, "run-1", table(80, math.NaN(), 82))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := s.Rows(ctx, "Heart Rate", "Exp2_山口")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, -1, rows[0].Offset)
	assert.Equal(t, "run-1", rows[0].RunID)
	assert.Equal(t, "山口", rows[0].Subject)
	assert.True(t, rows[0].Value.Valid)
	assert.Equal(t, 80.0, rows[0].Value.Float64)
	assert.False(t, rows[1].Value.Valid, "missing grid points are stored as NULL")
	assert.Equal(t, 82.0, rows[2].Value.Float64)
}

func TestWriteTablesReplaces(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	_, err := s.WriteTables(ctx, "run-1", table(80, 81, 82))
	require.NoError(t, err)
	_, err = s.WriteTables(ctx, "run-2", table(90, 91, 92))
	require.NoError(t, err)

	rows, err := s.Rows(ctx, "Heart Rate", "Exp2_山口")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "run-2", rows[0].RunID)
	assert.Equal(t, 91.0, rows[1].Value.Float64)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-1", "run-2"}, runs)
}

func TestWriteTablesErrors(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	_, err := s.WriteTables(ctx, "", table(1, 2, 3))
	assert.ErrorIs(t, err, store.ErrEmptyRunID)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.WriteTables(cctx, "run-x", table(1, 2, 3))
	assert.Error(t, err)

	rows, err := s.Rows(ctx, "Heart Rate", "Exp2_山口")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aligned.sqlite")

	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	_, err = s.WriteTables(ctx, "run-1", table(1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	rows, err := s.Rows(ctx, "Heart Rate", "Exp2_山口")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
