package tracking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "tracking", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older := Run{
		ID:         NewRunID(),
		Trigger:    "cli",
		Status:     StatusSucceeded,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Params:     map[string]float64{"alpha": 0.2, "l1_ratio": 0.1},
		Metrics:    map[string]float64{"rmse": 0.5, "mae": 0.4, "r2": 0.3},
	}
	newer := Run{
		ID:          NewRunID(),
		Trigger:     "schedule",
		Status:      StatusFailed,
		FailedStage: "data_validation",
		Error:       "schema invalid",
		StartedAt:   started.Add(time.Hour),
		FinishedAt:  started.Add(time.Hour + time.Second),
	}
	require.NoError(t, store.RecordRun(ctx, older))
	require.NoError(t, store.RecordRun(ctx, newer))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "data_validation", runs[0].FailedStage)
	assert.Equal(t, "schema invalid", runs[0].Error)

	assert.Equal(t, older.ID, runs[1].ID)
	assert.Equal(t, "cli", runs[1].Trigger)
	assert.InDelta(t, 0.2, runs[1].Params["alpha"], 1e-12)
	assert.InDelta(t, 0.3, runs[1].Metrics["r2"], 1e-12)
	assert.Equal(t, 2*time.Second, runs[1].Duration())
}

func TestRecordRunUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	run := Run{ID: NewRunID(), Trigger: "http", Status: StatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.RecordRun(ctx, run))

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Zero(t, runs[0].Duration())

	run.Status = StatusSucceeded
	run.FinishedAt = run.StartedAt.Add(time.Minute)
	run.Metrics = map[string]float64{"rmse": 1}
	require.NoError(t, store.RecordRun(ctx, run))

	runs, err = store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusSucceeded, runs[0].Status)
	assert.InDelta(t, 1.0, runs[0].Metrics["rmse"], 1e-12)
}

func TestRecordRunRequiresID(t *testing.T) {
	store := openTestStore(t)
	err := store.RecordRun(context.Background(), Run{Status: StatusRunning})
	assert.Error(t, err)
}

func TestListRunsLimit(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordRun(ctx, Run{
			ID:        NewRunID(),
			Trigger:   "cli",
			Status:    StatusSucceeded,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	runs, err := store.ListRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
