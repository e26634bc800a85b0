package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/YuminosukeSato/mlproject/components"
	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/metrics"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/tracking"
)

// Triggers recorded with each run.
const (
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerHTTP     = "http"
)

// configurationStage names the failure when the YAML documents cannot be loaded.
const configurationStage = "configuration"

// ErrRunInProgress is returned by TryRun while another run holds the artifacts directory.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Result summarizes one run.
type Result struct {
	RunID      string
	Trigger    string
	Completed  []string
	Scores     metrics.Scores
	Evaluated  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Driver runs stages against one artifacts directory. Runs are serialized.
type Driver struct {
	fs      billy.Filesystem
	paths   configuration.Paths
	fetcher components.Fetcher
	tracker *tracking.Store
	logger  log.Logger

	mu sync.Mutex
}

// Option configures a Driver.
type Option func(*Driver)

// WithFetcher replaces the default http/https/s3 fetcher used by ingestion.
func WithFetcher(f components.Fetcher) Option {
	return func(d *Driver) { d.fetcher = f }
}

// WithTracker records every run in store.
func WithTracker(store *tracking.Store) Option {
	return func(d *Driver) { d.tracker = store }
}

// NewDriver creates a driver reading the configuration documents at paths from fs.
func NewDriver(fs billy.Filesystem, paths configuration.Paths, logger log.Logger, opts ...Option) *Driver {
	d := &Driver{
		fs:      fs,
		paths:   paths,
		fetcher: components.DefaultFetcher(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes all five stages in order. It blocks while another run is active.
func (d *Driver) Run(ctx context.Context, trigger string) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.execute(ctx, trigger, StageNames)
}

// TryRun is Run, but returns ErrRunInProgress instead of waiting.
func (d *Driver) TryRun(ctx context.Context, trigger string) (Result, error) {
	if !d.mu.TryLock() {
		return Result{}, ErrRunInProgress
	}
	defer d.mu.Unlock()
	return d.execute(ctx, trigger, StageNames)
}

// RunStage executes a single stage by name or alias.
func (d *Driver) RunStage(ctx context.Context, name, trigger string) (Result, error) {
	stage, err := ResolveStage(name)
	if err != nil {
		return Result{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.execute(ctx, trigger, []string{stage})
}

func (d *Driver) execute(ctx context.Context, trigger string, stages []string) (Result, error) {
	res := Result{
		RunID:     tracking.NewRunID(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	logger := d.logger.With(log.RunIDKey, res.RunID)

	manager, err := configuration.Load(d.fs, d.paths, logger)
	if err != nil {
		err = errors.NewStageError(configurationStage, err)
		logger.Error("pipeline failed", err, log.StageKey, configurationStage)
		res.FinishedAt = time.Now()
		d.record(ctx, logger, res, nil, configurationStage, err)
		return res, err
	}

	// Tracking is best effort; bad hyperparameters fail in the training stage.
	params, _ := manager.Hyperparameters()
	d.record(ctx, logger, res, params, "", nil)

	rc := &runContext{
		fs:      d.fs,
		manager: manager,
		fetcher: d.fetcher,
		logger:  logger,
		scores:  &res.Scores,
	}

	var failed string
	for _, name := range stages {
		if ctxErr := ctx.Err(); ctxErr != nil {
			failed = name
			err = errors.NewStageError(name, errors.Wrap(ctxErr, "run cancelled"))
			logger.Error("pipeline cancelled", err, log.StageKey, name)
			break
		}
		if err = d.runStage(ctx, rc, name); err != nil {
			failed = name
			break
		}
		res.Completed = append(res.Completed, name)
		if name == StageEvaluation {
			res.Evaluated = true
		}
	}

	res.FinishedAt = time.Now()
	d.record(ctx, logger, res, params, failed, err)
	return res, err
}

// runStage logs the stage banners and converts panics and errors into a
// *errors.StageError, logged here once.
func (d *Driver) runStage(ctx context.Context, rc *runContext, name string) error {
	logger := rc.logger
	logger.Info(fmt.Sprintf(">>>>>> stage %s started <<<<<<", DisplayName(name)))
	start := time.Now()

	err := errors.SafeExecute(name, func() error {
		return stageFuncs[name](ctx, rc)
	})
	if err != nil {
		err = errors.NewStageError(name, err)
		logger.Error("stage failed", err,
			log.StageKey, name,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.Info(fmt.Sprintf(">>>>>> stage %s completed <<<<<<\n\nx==========x", DisplayName(name)),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// record stores the run when a tracker is configured. Failures are logged, not returned.
func (d *Driver) record(ctx context.Context, logger log.Logger, res Result, params map[string]float64, failed string, runErr error) {
	if d.tracker == nil {
		return
	}
	run := tracking.Run{
		ID:          res.RunID,
		Trigger:     res.Trigger,
		Status:      tracking.StatusRunning,
		FailedStage: failed,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Params:      params,
	}
	switch {
	case runErr != nil:
		run.Status = tracking.StatusFailed
		run.Error = runErr.Error()
	case !res.FinishedAt.IsZero():
		run.Status = tracking.StatusSucceeded
	}
	if res.Evaluated {
		run.Metrics = map[string]float64{
			"rmse": res.Scores.RMSE,
			"mae":  res.Scores.MAE,
			"r2":   res.Scores.R2,
		}
	}
	// The run's own context may already be cancelled.
	if err := d.tracker.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record run", log.ErrAttrKey, err)
	}
}
