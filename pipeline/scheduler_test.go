package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlproject/tracking"
)

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	_, err := NewScheduler(f.driver, "not a schedule", f.logger)
	assert.Error(t, err)
}

func TestSchedulerTickRunsPipeline(t *testing.T) {
	f := newFixture(t, "a,b,quality", true)
	s, err := NewScheduler(f.driver, "@every 1h", f.logger)
	require.NoError(t, err)

	s.tick()
	assert.True(t, f.logger.ContainsMessage("scheduled run finished"))
	assert.True(t, f.exists(testModelPath))

	runs, err := f.tracker.ListRuns(s.ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, TriggerSchedule, runs[0].Trigger)
	assert.Equal(t, tracking.StatusSucceeded, runs[0].Status)
}

func TestSchedulerSkipsOverlappingTick(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	s, err := NewScheduler(f.driver, "@every 1h", f.logger)
	require.NoError(t, err)

	f.driver.mu.Lock()
	s.tick()
	f.driver.mu.Unlock()
	assert.True(t, f.logger.ContainsMessage("skipping scheduled run"))
	assert.Equal(t, int32(0), f.fetcher.calls.Load())
}

func TestSchedulerStartStop(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	s, err := NewScheduler(f.driver, "@daily", f.logger)
	require.NoError(t, err)

	s.Start()
	s.Stop()
	assert.True(t, f.logger.ContainsMessage("scheduler started"))
	assert.True(t, f.logger.ContainsMessage("scheduler stopped"))
	assert.Error(t, s.ctx.Err())
}
