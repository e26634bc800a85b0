package prediction

import (
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlproject/core/model"
	"github.com/YuminosukeSato/mlproject/dataset"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

// y = 2a - b + 0.5
func saveModel(t *testing.T, fs billy.Filesystem) {
	t.Helper()
	weights := &model.ModelWeights{
		ModelType:       "ElasticNet",
		Version:         model.WeightsVersion,
		Coefficients:    []float64{2, -1},
		Intercept:       0.5,
		Features:        []string{"a", "b"},
		IsFitted:        true,
		Hyperparameters: map[string]float64{"alpha": 0.1, "l1_ratio": 0.5},
		Metadata:        map[string]string{"target": "y"},
	}
	weights.Seal()
	require.NoError(t, model.SaveWeightsFile(fs, DefaultModelPath, weights))
}

func TestLoadAndPredict(t *testing.T) {
	fs := memfs.New()
	saveModel(t, fs)

	p, err := Load(fs, DefaultModelPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Features())
	assert.Equal(t, "y", p.Target())

	pred, err := p.Predict(mat.NewDense(2, 2, []float64{1, 1, 0, 3}))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, pred.At(0, 0), 1e-12)
	assert.InDelta(t, -2.5, pred.At(1, 0), 1e-12)
}

func TestPredictFrameReordersColumns(t *testing.T) {
	fs := memfs.New()
	saveModel(t, fs)
	p, err := Load(fs, DefaultModelPath)
	require.NoError(t, err)

	frame := &dataset.Frame{
		Columns: []string{"b", "y", "a"},
		Rows:    [][]string{{"1", "9", "1"}, {"3", "9", "0"}},
	}
	pred, err := p.PredictFrame(frame)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, pred.At(0, 0), 1e-12)
	assert.InDelta(t, -2.5, pred.At(1, 0), 1e-12)

	_, err = p.PredictFrame(&dataset.Frame{Columns: []string{"a"}, Rows: [][]string{{"1"}}})
	assert.True(t, errors.Is(err, errors.ErrColumnNotFound))
}

func TestPredictRecordsAndRows(t *testing.T) {
	fs := memfs.New()
	saveModel(t, fs)
	p, err := Load(fs, DefaultModelPath)
	require.NoError(t, err)

	got, err := p.PredictRecords([]map[string]float64{{"a": 1, "b": 1, "extra": 7}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.5}, got, 1e-12)

	_, err = p.PredictRecords([]map[string]float64{{"a": 1}})
	assert.True(t, errors.Is(err, errors.ErrColumnNotFound))

	_, err = p.PredictRecords(nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	got, err = p.PredictRows([][]float64{{0, 3}, {1, 1}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-2.5, 1.5}, got, 1e-12)

	_, err = p.PredictRows([][]float64{{1, 2, 3}})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestWeightsReturnsCopy(t *testing.T) {
	fs := memfs.New()
	saveModel(t, fs)
	p, err := Load(fs, DefaultModelPath)
	require.NoError(t, err)

	w := p.Weights()
	w.Coefficients[0] = 100
	assert.Equal(t, 2.0, p.Weights().Coefficients[0])
}

func TestLoadMissingModel(t *testing.T) {
	_, err := Load(memfs.New(), DefaultModelPath)
	assert.Error(t, err)
}
