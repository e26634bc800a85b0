package components

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/dataset"
	"github.com/YuminosukeSato/mlproject/metrics"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/prediction"
)

// ModelEvaluation scores the persisted model on the test split.
type ModelEvaluation struct {
	fs       billy.Filesystem
	settings configuration.EvaluationSettings
	logger   log.Logger
}

// NewModelEvaluation creates the evaluation stage.
func NewModelEvaluation(fs billy.Filesystem, settings configuration.EvaluationSettings, logger log.Logger) *ModelEvaluation {
	return &ModelEvaluation{
		fs:       fs,
		settings: settings,
		logger:   logger.With(log.StageKey, "model_evaluation", log.OperationKey, log.OperationEvaluate),
	}
}

// Evaluate predicts the test split, computes RMSE, MAE and R² and writes them
// as {"rmse", "mae", "r2"} JSON to MetricFileName. When PlotFileName is set a
// predicted-vs-actual scatter plot is written as well.
func (e *ModelEvaluation) Evaluate() (metrics.Scores, error) {
	test, err := dataset.ReadCSV(e.fs, e.settings.TestDataPath)
	if err != nil {
		return metrics.Scores{}, err
	}
	pipe, err := prediction.Load(e.fs, e.settings.ModelPath)
	if err != nil {
		return metrics.Scores{}, err
	}

	ti := test.ColumnIndex(e.settings.TargetColumn)
	if ti < 0 {
		return metrics.Scores{}, errors.Wrapf(errors.ErrColumnNotFound, "target column %q in %s",
			e.settings.TargetColumn, e.settings.TestDataPath)
	}
	_, actual, _, err := test.XY(e.settings.TargetColumn)
	if err != nil {
		return metrics.Scores{}, err
	}

	predicted, err := pipe.PredictFrame(test)
	if err != nil {
		return metrics.Scores{}, err
	}

	scores, err := metrics.Evaluate(actual, predicted)
	if err != nil {
		return metrics.Scores{}, err
	}

	if err := e.saveJSON(scores); err != nil {
		return metrics.Scores{}, err
	}
	if e.settings.PlotFileName != "" {
		if err := e.savePlot(actual, predicted); err != nil {
			return metrics.Scores{}, err
		}
	}

	e.logger.Info("Model evaluated",
		log.RMSEKey, scores.RMSE,
		log.MAEKey, scores.MAE,
		log.R2ScoreKey, scores.R2,
		log.SamplesKey, len(test.Rows),
		log.AlphaKey, e.settings.Params["alpha"],
		log.L1RatioKey, e.settings.Params["l1_ratio"],
	)
	return scores, nil
}

func (e *ModelEvaluation) saveJSON(scores metrics.Scores) error {
	data, err := json.MarshalIndent(scores, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed to encode metrics")
	}
	path := e.settings.MetricFileName
	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := util.WriteFile(e.fs, path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	e.logger.Info("JSON file saved at: "+path, log.ArtifactPathKey, path)
	return nil
}

func (e *ModelEvaluation) savePlot(actual, predicted mat.Matrix) error {
	n, _ := actual.Dims()
	pts := make(plotter.XYs, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		pts[i].X = actual.At(i, 0)
		pts[i].Y = predicted.At(i, 0)
		lo = math.Min(lo, math.Min(pts[i].X, pts[i].Y))
		hi = math.Max(hi, math.Max(pts[i].X, pts[i].Y))
	}

	p := plot.New()
	p.Title.Text = "Predicted vs actual " + e.settings.TargetColumn
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "failed to build scatter plot")
	}
	identity, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return errors.Wrap(err, "failed to build identity line")
	}
	p.Add(scatter, identity)

	format := strings.TrimPrefix(filepath.Ext(e.settings.PlotFileName), ".")
	if format == "" {
		format = "png"
	}
	wt, err := p.WriterTo(5*vg.Inch, 5*vg.Inch, format)
	if err != nil {
		return errors.Wrapf(err, "unsupported plot format %q", format)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return errors.Wrap(err, "failed to render plot")
	}

	path := e.settings.PlotFileName
	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := util.WriteFile(e.fs, path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	e.logger.Info("Plot saved at: "+path, log.ArtifactPathKey, path)
	return nil
}
