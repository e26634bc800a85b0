package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/tracking"
)

func TestDriverRunsAllStages(t *testing.T) {
	f := newFixture(t, "a,b,quality", true)

	res, err := f.driver.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, StageNames, res.Completed)
	assert.True(t, res.Evaluated)
	assert.Greater(t, res.Scores.R2, 0.99)
	assert.NotEmpty(t, res.RunID)

	raw, err := util.ReadFile(f.fs, "artifacts/model_evaluation/metrics.json")
	require.NoError(t, err)
	var doc map[string]float64
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc, 3)
	assert.Contains(t, doc, "rmse")
	assert.Contains(t, doc, "mae")
	assert.Contains(t, doc, "r2")

	for _, name := range StageNames {
		assert.True(t, f.logger.ContainsMessage(">>>>>> stage "+DisplayName(name)+" started <<<<<<"), name)
		assert.True(t, f.logger.ContainsMessage(">>>>>> stage "+DisplayName(name)+" completed <<<<<<"), name)
	}

	runs, err := f.tracker.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, tracking.StatusSucceeded, runs[0].Status)
	assert.Equal(t, TriggerCLI, runs[0].Trigger)
	assert.InDelta(t, 0.001, runs[0].Params["alpha"], 1e-12)
	assert.InDelta(t, res.Scores.R2, runs[0].Metrics["r2"], 1e-12)
}

func TestDriverDownloadsOnce(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)

	_, err := f.driver.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	_, err = f.driver.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.fetcher.calls.Load())
}

func TestDriverStopsOnInvalidSchema(t *testing.T) {
	f := newFixture(t, "a,b,unexpected", true)

	res, err := f.driver.Run(context.Background(), TriggerCLI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSchemaInvalid))

	var stageErr *errors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageTransformation, stageErr.Stage)
	assert.Equal(t, []string{StageIngestion, StageValidation}, res.Completed)
	assert.False(t, res.Evaluated)

	status, err := util.ReadFile(f.fs, "artifacts/data_validation/status.txt")
	require.NoError(t, err)
	assert.Equal(t, "Validation status: False", string(status))
	assert.False(t, f.exists("artifacts/data_transformation/train.csv"))
	assert.False(t, f.exists(testModelPath))

	runs, err := f.tracker.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, tracking.StatusFailed, runs[0].Status)
	assert.Equal(t, StageTransformation, runs[0].FailedStage)
	assert.Empty(t, runs[0].Metrics)
}

// Only the last data column decides the status; "x" is not in the schema but
// the run still completes.
func TestDriverLastColumnWins(t *testing.T) {
	f := newFixture(t, "x,b,quality", false)
	_, err := f.driver.RunStage(context.Background(), "ingestion", TriggerCLI)
	require.NoError(t, err)
	_, err = f.driver.RunStage(context.Background(), "validation", TriggerCLI)
	require.NoError(t, err)

	status, err := util.ReadFile(f.fs, "artifacts/data_validation/status.txt")
	require.NoError(t, err)
	assert.Equal(t, "Validation status: True", string(status))

	_, err = f.driver.RunStage(context.Background(), "transformation", TriggerCLI)
	require.NoError(t, err)
	assert.True(t, f.exists("artifacts/data_transformation/train.csv"))
}

func TestDriverEmptyDataClosesGate(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	ctx := context.Background()
	_, err := f.driver.Run(ctx, TriggerCLI)
	require.NoError(t, err)

	require.NoError(t, util.WriteFile(f.fs, "artifacts/data_ingestion/data.csv", nil, 0o644))
	_, err = f.driver.RunStage(ctx, "validation", TriggerCLI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
	var stageErr *errors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageValidation, stageErr.Stage)

	status, err := util.ReadFile(f.fs, "artifacts/data_validation/status.txt")
	require.NoError(t, err)
	assert.Equal(t, "Validation status: False", string(status))

	_, err = f.driver.RunStage(ctx, "transformation", TriggerCLI)
	assert.True(t, errors.Is(err, errors.ErrSchemaInvalid))
}

func TestRunStageIndividually(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	ctx := context.Background()

	// The gate reads a status file that does not exist yet.
	_, err := f.driver.RunStage(ctx, StageTransformation, TriggerCLI)
	require.Error(t, err)

	for _, name := range []string{"ingestion", "validation", "transformation", "training", "evaluation"} {
		res, err := f.driver.RunStage(ctx, name, TriggerCLI)
		require.NoError(t, err, name)
		require.Len(t, res.Completed, 1)
	}
	assert.True(t, f.exists(testModelPath))
	assert.True(t, f.exists("artifacts/model_evaluation/metrics.json"))

	_, err = f.driver.RunStage(ctx, "deploy", TriggerCLI)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestDriverConfigurationError(t *testing.T) {
	f := newFixture(t, "a,b,quality", true)
	require.NoError(t, util.WriteFile(f.fs, "params.yaml", []byte("ElasticNet:\n  alpha: 0.1\n"), 0o644))

	res, err := f.driver.Run(context.Background(), TriggerCLI)
	require.Error(t, err)
	// params are only checked once training resolves its settings
	var keyErr *errors.ConfigKeyError
	require.True(t, errors.As(err, &keyErr))
	var stageErr *errors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageTraining, stageErr.Stage)
	assert.Equal(t, []string{StageIngestion, StageValidation, StageTransformation}, res.Completed)

	require.NoError(t, util.WriteFile(f.fs, "config/config.yaml", []byte("data_ingestion: {}\n"), 0o644))
	_, err = f.driver.Run(context.Background(), TriggerCLI)
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, configurationStage, stageErr.Stage)

	runs, err := f.tracker.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, configurationStage, runs[0].FailedStage)
}

func TestDriverCancelledBetweenStages(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.driver.Run(ctx, TriggerCLI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, res.Completed)
	assert.Equal(t, int32(0), f.fetcher.calls.Load())
}

func TestDriverRecoversStagePanic(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	f.fetcher.panic = true

	_, err := f.driver.Run(context.Background(), TriggerCLI)
	require.Error(t, err)
	var panicErr *errors.PanicError
	assert.True(t, errors.As(err, &panicErr))
	assert.True(t, f.logger.ContainsMessage("stage failed"))
}

func TestTryRunWhileRunning(t *testing.T) {
	f := newFixture(t, "a,b,quality", false)
	f.driver.mu.Lock()
	_, err := f.driver.TryRun(context.Background(), TriggerSchedule)
	f.driver.mu.Unlock()
	assert.True(t, errors.Is(err, ErrRunInProgress))
}

func TestResolveStage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"data_ingestion", StageIngestion},
		{"ingestion", StageIngestion},
		{" Validation ", StageValidation},
		{"transformation", StageTransformation},
		{"trainer", StageTraining},
		{"training", StageTraining},
		{"model_evaluation", StageEvaluation},
	}
	for _, tt := range tests {
		got, err := ResolveStage(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := ResolveStage("")
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Data Ingestion stage", DisplayName(StageIngestion))
	assert.Equal(t, "Model Trainer stage", DisplayName(StageTraining))
}
