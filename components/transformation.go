package components

import (
	"github.com/go-git/go-billy/v5"

	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/dataset"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/preprocessing"
)

// Output file names written into the transformation root.
const (
	TrainFileName = "train.csv"
	TestFileName  = "test.csv"
)

// SplitSummary reports the shapes written by TrainTestSplit.
type SplitSummary struct {
	TrainRows int
	TestRows  int
	Columns   int
	TrainPath string
	TestPath  string
}

// DataTransformation splits the validated dataset into train and test files.
type DataTransformation struct {
	fs       billy.Filesystem
	settings configuration.TransformationSettings
	logger   log.Logger
}

// NewDataTransformation creates the transformation stage.
func NewDataTransformation(fs billy.Filesystem, settings configuration.TransformationSettings, logger log.Logger) *DataTransformation {
	return &DataTransformation{
		fs:       fs,
		settings: settings,
		logger:   logger.With(log.StageKey, "data_transformation", log.OperationKey, log.OperationSplit),
	}
}

// TrainTestSplit shuffles the rows of DataPath and writes train.csv and
// test.csv into RootDir. The test file gets ceil(TestSize * n) rows. Without
// RandomState the shuffle differs between runs.
func (t *DataTransformation) TrainTestSplit() (SplitSummary, error) {
	frame, err := dataset.ReadCSV(t.fs, t.settings.DataPath)
	if err != nil {
		return SplitSummary{}, err
	}
	rows, cols := frame.Shape()

	idx, err := preprocessing.TrainTestSplit(rows, t.settings.TestSize, preprocessing.NewRand(t.settings.RandomState))
	if err != nil {
		return SplitSummary{}, err
	}

	summary := SplitSummary{
		TrainRows: len(idx.Train),
		TestRows:  len(idx.Test),
		Columns:   cols,
		TrainPath: t.fs.Join(t.settings.RootDir, TrainFileName),
		TestPath:  t.fs.Join(t.settings.RootDir, TestFileName),
	}
	if err := dataset.WriteCSV(t.fs, summary.TrainPath, frame.Take(idx.Train)); err != nil {
		return SplitSummary{}, err
	}
	if err := dataset.WriteCSV(t.fs, summary.TestPath, frame.Take(idx.Test)); err != nil {
		return SplitSummary{}, err
	}

	fields := []any{log.SamplesKey, rows, log.FeaturesKey, cols}
	if t.settings.RandomState != nil {
		fields = append(fields, log.RandomSeedKey, *t.settings.RandomState)
	}
	t.logger.Info("Split data into training and test sets", fields...)
	t.logger.Info("train shape", "shape.rows", summary.TrainRows, "shape.columns", cols)
	t.logger.Info("test shape", "shape.rows", summary.TestRows, "shape.columns", cols)
	return summary, nil
}
