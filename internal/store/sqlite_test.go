package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/fitset/internal/evaluate"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun() (evaluate.Result, []evaluate.Record) {
	thresholds := []float64{0.8, 0.57, 0.7}
	records := []evaluate.Record{
		{ImageFile: "ab_001.jpg", TrueLabel: evaluate.Unfit, TotalBoxes: 3, NormalBoxes: 1,
			Predicted: map[float64]evaluate.Label{0.8: evaluate.Unfit, 0.57: evaluate.Unfit, 0.7: evaluate.Unfit}},
		{ImageFile: "no_001.jpg", TrueLabel: evaluate.Fit, TotalBoxes: 4, NormalBoxes: 3,
			Predicted: map[float64]evaluate.Label{0.8: evaluate.Unfit, 0.57: evaluate.Fit, 0.7: evaluate.Fit}},
		{ImageFile: "ab_002.jpg", TrueLabel: evaluate.Unfit, Error: "cannot decode"},
	}
	return evaluate.Aggregate(records, thresholds), records
}

func TestOpen_Migrates(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion(), version)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	res, recs := sampleRun()
	run, err := s.SaveRun(ctx, "/data/test", "labels:/preds", res, recs)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)

	_, err = Open(ctx, "", nil)
	assert.Error(t, err)
}

func TestSaveRun_LoadResult(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, recs := sampleRun()
	run, err := s.SaveRun(ctx, "/data/test", "labels:/preds", res, recs)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 3, run.Images)

	got, err := s.LoadResult(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Thresholds, got.Thresholds, "supplied threshold order survives")
	assert.Equal(t, res.Rows(), got.Rows())

	records, err := s.LoadRecords(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "ab_001.jpg", records[0].ImageFile)
	assert.Equal(t, "cannot decode", records[1].Error)
	assert.Equal(t, evaluate.Fit, records[2].TrueLabel)
	assert.Equal(t, 3, records[2].NormalBoxes)
	assert.Nil(t, records[2].Predicted)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	res, recs := sampleRun()
	first, err := s.SaveRun(ctx, "/a", "d1", res, recs)
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, "/b", "d2", res, nil)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
	assert.Equal(t, "/a", runs[1].ImageDir)
	assert.True(t, runs[1].CreatedAt.Equal(base.Add(time.Minute)))
	assert.Equal(t, []float64{0.8, 0.57, 0.7}, runs[0].Thresholds)
}

func TestRunNotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.LoadResult(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.DeleteRun(ctx, "missing"), ErrRunNotFound)
}

func TestDeleteRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, recs := sampleRun()
	run, err := s.SaveRun(ctx, "/a", "d", res, recs)
	require.NoError(t, err)
	require.NoError(t, s.DeleteRun(ctx, run.ID))

	records, err := s.LoadRecords(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
