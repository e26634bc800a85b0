package pipeline

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
)

// Scheduler retrains on a cron schedule. Ticks that arrive while a run is
// still active are skipped.
type Scheduler struct {
	driver *Driver
	cron   *cron.Cron
	logger log.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers one full pipeline run per spec tick. spec accepts the
// standard five-field syntax and descriptors such as "@daily" or "@every 1h".
func NewScheduler(driver *Driver, spec string, logger log.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		driver: driver,
		logger: logger.With(log.ComponentKey, "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger})))

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, errors.NewValidationError("cron", err.Error(), spec)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	res, err := s.driver.TryRun(s.ctx, TriggerSchedule)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("skipping scheduled run, previous run still active")
	case err != nil:
		// already logged by the driver
	default:
		s.logger.Info("scheduled run finished",
			log.RunIDKey, res.RunID,
			log.RMSEKey, res.Scores.RMSE,
			log.MAEKey, res.Scores.MAE,
			log.R2ScoreKey, res.Scores.R2,
		)
	}
}

// Start begins firing ticks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("scheduler started", "next_run", e.Next)
	}
}

// Stop cancels an in-flight run between stages and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts log.Logger to cron.Logger.
type cronLogger struct {
	logger log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{err}, keysAndValues...)...)
}
