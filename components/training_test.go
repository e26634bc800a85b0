package components

import (
	"encoding/json"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/core/model"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
)

func trainingSettings() configuration.TrainingSettings {
	return configuration.TrainingSettings{
		RootDir:       "artifacts/model_trainer",
		TrainDataPath: "artifacts/data_transformation/train.csv",
		TestDataPath:  "artifacts/data_transformation/test.csv",
		ModelName:     "model.joblib",
		Alpha:         0.001,
		L1Ratio:       0.5,
		MaxIter:       configuration.DefaultMaxIter,
		Tol:           configuration.DefaultTol,
		TargetColumn:  "quality",
	}
}

func evaluationSettings(plot string) configuration.EvaluationSettings {
	return configuration.EvaluationSettings{
		RootDir:        "artifacts/model_evaluation",
		TestDataPath:   "artifacts/data_transformation/test.csv",
		ModelPath:      "artifacts/model_trainer/model.joblib",
		Params:         map[string]float64{"alpha": 0.001, "l1_ratio": 0.5},
		MetricFileName: "artifacts/model_evaluation/metrics.json",
		TargetColumn:   "quality",
		PlotFileName:   plot,
	}
}

func TestTrainThenEvaluate(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "artifacts/data_transformation/train.csv", linearCSV(60))
	writeFile(t, fs, "artifacts/data_transformation/test.csv", linearCSV(20))

	logger, _ := log.NewTestLogger(log.LevelDebug)
	require.NoError(t, NewModelTrainer(fs, trainingSettings(), logger).Train())

	weights, err := model.LoadWeightsFile(fs, "artifacts/model_trainer/model.joblib")
	require.NoError(t, err)
	assert.Equal(t, "ElasticNet", weights.ModelType)
	assert.Equal(t, []string{"a", "b"}, weights.Features)
	assert.Equal(t, "quality", weights.Metadata["target"])
	assert.Equal(t, float64(TrainingRandomState), weights.Hyperparameters["random_state"])

	scores, err := NewModelEvaluation(fs, evaluationSettings("artifacts/model_evaluation/plot.png"), logger).Evaluate()
	require.NoError(t, err)
	assert.Greater(t, scores.R2, 0.99)
	assert.Less(t, scores.RMSE, 0.1)

	var written map[string]float64
	require.NoError(t, json.Unmarshal([]byte(readFile(t, fs, "artifacts/model_evaluation/metrics.json")), &written))
	assert.Len(t, written, 3)
	for _, key := range []string{"rmse", "mae", "r2"} {
		assert.Contains(t, written, key)
	}
	assert.Contains(t, readFile(t, fs, "artifacts/model_evaluation/metrics.json"), "\n    \"rmse\"")

	png := readFile(t, fs, "artifacts/model_evaluation/plot.png")
	assert.Equal(t, "\x89PNG", png[:4])
}

func TestTrainMissingTarget(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "artifacts/data_transformation/train.csv", linearCSV(10))
	writeFile(t, fs, "artifacts/data_transformation/test.csv", "a,b\n1,2\n")

	logger, _ := log.NewTestLogger(log.LevelDebug)
	err := NewModelTrainer(fs, trainingSettings(), logger).Train()
	assert.True(t, errors.Is(err, errors.ErrColumnNotFound), "got %v", err)
}

func TestEvaluateWithoutModel(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "artifacts/data_transformation/test.csv", linearCSV(5))

	logger, _ := log.NewTestLogger(log.LevelDebug)
	_, err := NewModelEvaluation(fs, evaluationSettings(""), logger).Evaluate()
	assert.Error(t, err)
}
