package components

import (
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/core/model"
	"github.com/YuminosukeSato/mlproject/dataset"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/sklearn/linear_model"
)

// TrainingRandomState is the fixed seed passed to ElasticNet.
const TrainingRandomState = 42

// ModelTrainer fits ElasticNet on the training split and persists it.
type ModelTrainer struct {
	fs       billy.Filesystem
	settings configuration.TrainingSettings
	logger   log.Logger
}

// NewModelTrainer creates the training stage.
func NewModelTrainer(fs billy.Filesystem, settings configuration.TrainingSettings, logger log.Logger) *ModelTrainer {
	return &ModelTrainer{
		fs:       fs,
		settings: settings,
		logger:   logger.With(log.StageKey, "model_trainer", log.OperationKey, log.OperationFit),
	}
}

// Train reads both splits, fits on the train split only and writes the model
// to RootDir/ModelName. The test split is read to check that the target
// column and the feature columns agree with the training data.
func (m *ModelTrainer) Train() error {
	target := m.settings.TargetColumn

	train, err := dataset.ReadCSV(m.fs, m.settings.TrainDataPath)
	if err != nil {
		return err
	}
	test, err := dataset.ReadCSV(m.fs, m.settings.TestDataPath)
	if err != nil {
		return err
	}
	if test.ColumnIndex(target) < 0 {
		return errors.Wrapf(errors.ErrColumnNotFound, "target column %q in %s", target, m.settings.TestDataPath)
	}
	if strings.Join(train.Columns, "\x00") != strings.Join(test.Columns, "\x00") {
		return errors.NewValueError("ModelTrainer.Train", "train and test splits have different columns")
	}

	X, y, features, err := train.XY(target)
	if err != nil {
		return errors.Wrapf(err, "in %s", m.settings.TrainDataPath)
	}

	enet := linear_model.NewElasticNet(
		linear_model.WithAlpha(m.settings.Alpha),
		linear_model.WithL1Ratio(m.settings.L1Ratio),
		linear_model.WithMaxIter(m.settings.MaxIter),
		linear_model.WithTol(m.settings.Tol),
		linear_model.WithRandomState(TrainingRandomState),
	)

	start := time.Now()
	if err := enet.Fit(X, y); err != nil {
		return err
	}
	samples, nFeatures := X.Dims()

	weights, err := enet.ExportWeights()
	if err != nil {
		return err
	}
	weights.Features = features
	weights.Metadata["target"] = target
	weights.Seal()

	path := m.settings.ModelPath()
	if err := model.SaveWeightsFile(m.fs, path, weights); err != nil {
		return err
	}

	m.logger.Info("Model trained and saved",
		log.ModelNameKey, m.settings.ModelName,
		log.AlphaKey, m.settings.Alpha,
		log.L1RatioKey, m.settings.L1Ratio,
		log.SamplesKey, samples,
		log.FeaturesKey, nFeatures,
		log.IterationKey, enet.NIter(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
		log.ArtifactPathKey, path,
	)
	return nil
}
