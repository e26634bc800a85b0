// Command mlpipeline runs the wine-quality ElasticNet training pipeline.
//
// Usage:
//
//	mlpipeline [global flags] run
//	mlpipeline [global flags] stage <name>
//	mlpipeline [global flags] predict -input features.csv
//	mlpipeline [global flags] serve -addr :8080 [-cron "@daily"]
//	mlpipeline [global flags] schedule -cron "@daily"
//	mlpipeline [global flags] runs [-limit 20]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/dataset"
	"github.com/YuminosukeSato/mlproject/pipeline"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/prediction"
	"github.com/YuminosukeSato/mlproject/tracking"
)

type app struct {
	fs      billy.Filesystem
	workdir string
	paths   configuration.Paths
	logger  log.Logger
	stdout  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("mlpipeline", flag.ContinueOnError)
	global.SetOutput(stderr)
	paths := configuration.DefaultPaths()
	global.StringVar(&paths.Config, "config", paths.Config, "general configuration YAML")
	global.StringVar(&paths.Params, "params", paths.Params, "hyperparameter YAML")
	global.StringVar(&paths.Schema, "schema", paths.Schema, "schema YAML")
	workdir := global.String("workdir", ".", "directory that config paths and artifacts are relative to")
	logOpts := log.DefaultOptions()
	global.StringVar(&logOpts.Level, "log-level", logOpts.Level, "debug, info, warn or error")
	global.StringVar(&logOpts.Format, "log-format", logOpts.Format, "json or console")
	global.StringVar(&logOpts.Dir, "log-dir", logOpts.Dir, "log file directory under workdir, empty disables the file")
	global.Usage = func() {
		fmt.Fprintln(stderr, "usage: mlpipeline [flags] run|stage|predict|serve|schedule|runs")
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	if logOpts.Dir != "" && !filepath.IsAbs(logOpts.Dir) {
		logOpts.Dir = filepath.Join(*workdir, logOpts.Dir)
	}
	logOpts.Stdout = stdout
	logger, closer, err := log.Setup(logOpts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer closer.Close()

	a := &app{
		fs:      osfs.New(*workdir),
		workdir: *workdir,
		paths:   paths,
		logger:  logger,
		stdout:  stdout,
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "run":
		err = a.runPipeline(ctx)
	case "stage":
		err = a.runStage(ctx, rest)
	case "predict":
		err = a.predict(rest)
	case "serve":
		err = a.serve(ctx, rest)
	case "schedule":
		err = a.schedule(ctx, rest)
	case "runs":
		err = a.listRuns(ctx, rest)
	default:
		global.Usage()
		return 2
	}
	if err != nil {
		// stage failures were logged by the driver
		var stageErr *errors.StageError
		if !errors.As(err, &stageErr) {
			logger.Error(cmd+" failed", err)
		}
		return 1
	}
	return 0
}

// openTracker opens the run registry named by tracking.db_path, or returns nil
// when the key is absent.
func (a *app) openTracker(ctx context.Context) (*tracking.Store, error) {
	store, err := configuration.LoadStore(a.fs, a.paths)
	if err != nil {
		return nil, err
	}
	if store.Config.Tracking == nil || store.Config.Tracking.DBPath == "" {
		return nil, nil
	}
	path := store.Config.Tracking.DBPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.workdir, path)
	}
	return tracking.Open(ctx, path)
}

func (a *app) driver(ctx context.Context) (*pipeline.Driver, func(), error) {
	tracker, err := a.openTracker(ctx)
	if err != nil {
		return nil, nil, err
	}
	var opts []pipeline.Option
	release := func() {}
	if tracker != nil {
		opts = append(opts, pipeline.WithTracker(tracker))
		release = func() { _ = tracker.Close() }
	}
	return pipeline.NewDriver(a.fs, a.paths, a.logger, opts...), release, nil
}

func (a *app) runPipeline(ctx context.Context) error {
	d, release, err := a.driver(ctx)
	if err != nil {
		return err
	}
	defer release()

	res, err := d.Run(ctx, pipeline.TriggerCLI)
	if err != nil {
		return err
	}
	a.logger.Info("pipeline finished",
		log.RunIDKey, res.RunID,
		log.RMSEKey, res.Scores.RMSE,
		log.MAEKey, res.Scores.MAE,
		log.R2ScoreKey, res.Scores.R2,
	)
	return nil
}

func (a *app) runStage(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.NewValueError("stage", "expected exactly one stage name")
	}
	d, release, err := a.driver(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, err = d.RunStage(ctx, args[0], pipeline.TriggerCLI)
	return err
}

// modelPath resolves model_trainer.root_dir/model_name unless override is set.
func (a *app) modelPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	m, err := configuration.Load(a.fs, a.paths, a.logger)
	if err != nil {
		return "", err
	}
	settings, err := m.TrainingSettings()
	if err != nil {
		return "", err
	}
	return settings.ModelPath(), nil
}

func (a *app) predict(args []string) error {
	fl := flag.NewFlagSet("predict", flag.ContinueOnError)
	input := fl.String("input", "", "CSV file with one row per sample and the training feature columns")
	modelFlag := fl.String("model", "", "model file, defaults to the configured model_trainer output")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.NewValueError("predict", "-input is required")
	}

	path, err := a.modelPath(*modelFlag)
	if err != nil {
		return err
	}
	p, err := prediction.Load(a.fs, path)
	if err != nil {
		return err
	}
	frame, err := dataset.ReadCSV(a.fs, *input)
	if err != nil {
		return err
	}
	pred, err := p.PredictFrame(frame)
	if err != nil {
		return err
	}

	rows, _ := pred.Dims()
	out := pipeline.PredictResponse{Predictions: make([]float64, rows)}
	for i := range out.Predictions {
		out.Predictions[i] = pred.At(i, 0)
	}
	a.logger.Info("predicted", log.PredsKey, rows, log.ArtifactPathKey, path)
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(out)
}

func (a *app) serve(ctx context.Context, args []string) error {
	fl := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fl.String("addr", ":8080", "listen address")
	cronSpec := fl.String("cron", "", "also retrain on this schedule")
	modelFlag := fl.String("model", "", "model file, defaults to the configured model_trainer output")
	if err := fl.Parse(args); err != nil {
		return err
	}

	path, err := a.modelPath(*modelFlag)
	if err != nil {
		return err
	}
	d, release, err := a.driver(ctx)
	if err != nil {
		return err
	}
	defer release()

	if *cronSpec != "" {
		s, err := pipeline.NewScheduler(d, *cronSpec, a.logger)
		if err != nil {
			return err
		}
		s.Start()
		defer s.Stop()
	}
	return pipeline.NewServer(a.fs, d, path, a.logger).ListenAndServe(ctx, *addr)
}

func (a *app) schedule(ctx context.Context, args []string) error {
	fl := flag.NewFlagSet("schedule", flag.ContinueOnError)
	cronSpec := fl.String("cron", "@daily", "cron expression or descriptor")
	if err := fl.Parse(args); err != nil {
		return err
	}
	d, release, err := a.driver(ctx)
	if err != nil {
		return err
	}
	defer release()

	s, err := pipeline.NewScheduler(d, *cronSpec, a.logger)
	if err != nil {
		return err
	}
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

func (a *app) listRuns(ctx context.Context, args []string) error {
	fl := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fl.Int("limit", 20, "number of runs to show")
	if err := fl.Parse(args); err != nil {
		return err
	}
	tracker, err := a.openTracker(ctx)
	if err != nil {
		return err
	}
	if tracker == nil {
		return errors.NewConfigKeyError(configuration.ConfigDocument, "tracking.db_path")
	}
	defer tracker.Close()

	runs, err := tracker.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tTRIGGER\tSTATUS\tSTARTED\tDURATION\tRMSE\tMAE\tR2\tFAILED STAGE")
	for _, r := range runs {
		rmse, mae, r2 := "-", "-", "-"
		if r.Metrics != nil {
			rmse = fmt.Sprintf("%.4f", r.Metrics["rmse"])
			mae = fmt.Sprintf("%.4f", r.Metrics["mae"])
			r2 = fmt.Sprintf("%.4f", r.Metrics["r2"])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Trigger, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Millisecond), rmse, mae, r2, r.FailedStage)
	}
	return tw.Flush()
}
