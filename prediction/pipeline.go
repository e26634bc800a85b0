// Package prediction serves predictions from a model persisted by the training stage.
package prediction

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlproject/core/model"
	"github.com/YuminosukeSato/mlproject/dataset"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/sklearn/linear_model"
)

// DefaultModelPath is where the default configuration stores the trained model.
const DefaultModelPath = "artifacts/model_trainer/model.joblib"

// Pipeline wraps a loaded model.
type Pipeline struct {
	estimator model.Predictor
	weights   *model.ModelWeights
}

// Load reads the model at path.
func Load(fs billy.Filesystem, path string) (*Pipeline, error) {
	weights, err := model.LoadWeightsFile(fs, path)
	if err != nil {
		return nil, err
	}
	enet := linear_model.NewElasticNet()
	if err := enet.ImportWeights(weights); err != nil {
		return nil, err
	}
	return &Pipeline{estimator: enet, weights: weights}, nil
}

// Predict passes X straight to the model. X must have the training feature
// columns in training order.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	return p.estimator.Predict(X)
}

// PredictFrame reorders the frame's columns to the training feature order
// and predicts. Extra columns, including the target, are ignored.
func (p *Pipeline) PredictFrame(f *dataset.Frame) (mat.Matrix, error) {
	if features := p.weights.Features; len(features) > 0 {
		selected, err := f.Select(features)
		if err != nil {
			return nil, err
		}
		f = selected
	}
	X, err := f.Matrix()
	if err != nil {
		return nil, err
	}
	return p.Predict(X)
}

// PredictRecords predicts one value per record, looking each training feature
// up by name. Missing features are an error; unknown keys are ignored.
func (p *Pipeline) PredictRecords(records []map[string]float64) ([]float64, error) {
	features := p.weights.Features
	if len(features) == 0 {
		return nil, errors.NewValueError("PredictRecords", "model has no recorded feature names")
	}
	if len(records) == 0 {
		return nil, errors.ErrEmptyData
	}
	X := mat.NewDense(len(records), len(features), nil)
	for i, rec := range records {
		for j, name := range features {
			v, ok := rec[name]
			if !ok {
				return nil, errors.Wrapf(errors.ErrColumnNotFound, "record %d: feature %q", i, name)
			}
			X.Set(i, j, v)
		}
	}
	return p.predictValues(X)
}

// PredictRows predicts one value per row; each row lists the features in training order.
func (p *Pipeline) PredictRows(rows [][]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, errors.ErrEmptyData
	}
	want := len(p.weights.Coefficients)
	X := mat.NewDense(len(rows), want, nil)
	for i, row := range rows {
		if len(row) != want {
			return nil, errors.NewDimensionError(fmt.Sprintf("PredictRows[%d]", i), want, len(row), 1)
		}
		X.SetRow(i, row)
	}
	return p.predictValues(X)
}

func (p *Pipeline) predictValues(X mat.Matrix) ([]float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	r, _ := pred.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = pred.At(i, 0)
	}
	return out, nil
}

// Features returns the training feature names in order.
func (p *Pipeline) Features() []string {
	return append([]string(nil), p.weights.Features...)
}

// Target returns the target column the model was trained on, if recorded.
func (p *Pipeline) Target() string {
	return p.weights.Metadata["target"]
}

// Weights returns a copy of the loaded model weights.
func (p *Pipeline) Weights() *model.ModelWeights {
	return p.weights.Clone()
}
