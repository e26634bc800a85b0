package linear_model

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlproject/core/model"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

const elasticNetName = "ElasticNet"

var (
	_ model.LinearModel    = (*ElasticNet)(nil)
	_ model.WeightExporter = (*ElasticNet)(nil)
)

// ElasticNet is a linear regression model with combined L1 and L2 priors,
// fitted by coordinate descent. It minimizes
//
//	1/(2 * n_samples) * ||y - Xw - b||^2
//	+ alpha * l1_ratio * ||w||_1
//	+ 0.5 * alpha * (1 - l1_ratio) * ||w||^2
//
// which matches scikit-learn's ElasticNet objective.
type ElasticNet struct {
	state *model.StateManager

	// Hyperparameters
	alpha        float64 // 正則化の強さ
	l1Ratio      float64 // L1 と L2 の混合比（0 なら Ridge、1 なら Lasso）
	fitIntercept bool
	maxIter      int
	tol          float64
	selection    string // "cyclic" or "random"
	randomState  int64

	// Learned parameters
	coef_      []float64
	intercept_ float64
	nIter_     int
	dualGap_   float64
}

// ElasticNetOption は設定オプション
type ElasticNetOption func(*ElasticNet)

// WithAlpha は正則化の強さを設定
func WithAlpha(alpha float64) ElasticNetOption {
	return func(en *ElasticNet) {
		en.alpha = alpha
	}
}

// WithL1Ratio は L1 正則化の割合を設定
func WithL1Ratio(ratio float64) ElasticNetOption {
	return func(en *ElasticNet) {
		en.l1Ratio = ratio
	}
}

// WithFitIntercept は切片の学習有無を設定
func WithFitIntercept(fit bool) ElasticNetOption {
	return func(en *ElasticNet) {
		en.fitIntercept = fit
	}
}

// WithMaxIter は最大反復回数を設定
func WithMaxIter(n int) ElasticNetOption {
	return func(en *ElasticNet) {
		en.maxIter = n
	}
}

// WithTol は収束判定の許容誤差を設定
func WithTol(tol float64) ElasticNetOption {
	return func(en *ElasticNet) {
		en.tol = tol
	}
}

// WithRandomState は selection="random" で使う乱数シードを設定
func WithRandomState(seed int64) ElasticNetOption {
	return func(en *ElasticNet) {
		en.randomState = seed
	}
}

// WithSelection は座標の更新順序を設定（"cyclic" または "random"）
func WithSelection(selection string) ElasticNetOption {
	return func(en *ElasticNet) {
		en.selection = selection
	}
}

// NewElasticNet は新しいElasticNetモデルを作成
//
// デフォルト値は scikit-learn と同じ: alpha=1.0, l1_ratio=0.5, max_iter=1000, tol=1e-4
func NewElasticNet(options ...ElasticNetOption) *ElasticNet {
	en := &ElasticNet{
		state:        model.NewStateManager(),
		alpha:        1.0,
		l1Ratio:      0.5,
		fitIntercept: true,
		maxIter:      1000,
		tol:          1e-4,
		selection:    "cyclic",
	}

	for _, opt := range options {
		opt(en)
	}

	return en
}

func (en *ElasticNet) validateParams() error {
	if en.alpha < 0 || math.IsNaN(en.alpha) {
		return errors.NewValidationError("alpha", "must be non-negative", en.alpha)
	}
	if en.l1Ratio < 0 || en.l1Ratio > 1 || math.IsNaN(en.l1Ratio) {
		return errors.NewValidationError("l1_ratio", "must be in [0, 1]", en.l1Ratio)
	}
	if en.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", en.maxIter)
	}
	if en.tol < 0 {
		return errors.NewValidationError("tol", "must be non-negative", en.tol)
	}
	if en.selection != "cyclic" && en.selection != "random" {
		return errors.NewValidationError("selection", `must be "cyclic" or "random"`, en.selection)
	}
	return nil
}

// Fit はモデルを訓練データで学習
func (en *ElasticNet) Fit(X, y mat.Matrix) error {
	if err := en.validateParams(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()

	// 入力検証
	if rows == 0 || cols == 0 {
		return errors.Wrapf(errors.ErrEmptyData, "ElasticNet.Fit: X has shape (%d, %d)", rows, cols)
	}
	if rows != yRows {
		return errors.NewDimensionError("ElasticNet.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("ElasticNet.Fit", 1, yCols, 1)
	}

	// 列優先で保持すると座標更新が連続メモリになる
	columns := make([][]float64, cols)
	xMean := make([]float64, cols)
	for j := 0; j < cols; j++ {
		col := make([]float64, rows)
		mat.Col(col, j, X)
		if err := errors.CheckNumericalStability("ElasticNet.Fit", col, 0); err != nil {
			return err
		}
		if en.fitIntercept {
			xMean[j] = floats.Sum(col) / float64(rows)
			floats.AddConst(-xMean[j], col)
		}
		columns[j] = col
	}

	target := make([]float64, rows)
	mat.Col(target, 0, y)
	if err := errors.CheckNumericalStability("ElasticNet.Fit", target, 0); err != nil {
		return err
	}
	var yMean float64
	if en.fitIntercept {
		yMean = floats.Sum(target) / float64(rows)
		floats.AddConst(-yMean, target)
	}

	coef, nIter, gap, converged := en.coordinateDescent(columns, target)
	if !converged {
		errors.Warn(errors.NewConvergenceWarning(elasticNetName, nIter,
			fmt.Sprintf("duality gap %.3e exceeds tolerance; consider increasing max_iter or scaling the data", gap)))
	}

	en.coef_ = coef
	en.intercept_ = 0
	if en.fitIntercept {
		en.intercept_ = yMean - floats.Dot(xMean, coef)
	}
	en.nIter_ = nIter
	en.dualGap_ = gap
	en.state.SetFitted(cols, rows)
	return nil
}

// coordinateDescent solves the centered problem and reports the iteration
// count, final duality gap and whether the gap fell below tol * ||y||^2.
func (en *ElasticNet) coordinateDescent(columns [][]float64, y []float64) ([]float64, int, float64, bool) {
	nSamples := float64(len(y))
	nFeatures := len(columns)

	l1Reg := en.alpha * en.l1Ratio * nSamples
	l2Reg := en.alpha * (1 - en.l1Ratio) * nSamples

	w := make([]float64, nFeatures)
	normCols := make([]float64, nFeatures)
	for j, col := range columns {
		normCols[j] = floats.Dot(col, col)
	}

	// 残差 R = y - Xw（w=0 から開始）
	residual := make([]float64, len(y))
	copy(residual, y)

	tolScaled := en.tol * floats.Dot(y, y)

	var rng *rand.Rand
	if en.selection == "random" {
		rng = rand.New(rand.NewSource(en.randomState))
	}

	gap := tolScaled + 1
	for iter := 0; iter < en.maxIter; iter++ {
		var wMax, dwMax float64
		for f := 0; f < nFeatures; f++ {
			j := f
			if rng != nil {
				j = rng.Intn(nFeatures)
			}
			if normCols[j] == 0 {
				continue
			}

			wOld := w[j]
			if wOld != 0 {
				floats.AddScaled(residual, wOld, columns[j])
			}

			rho := floats.Dot(columns[j], residual)
			w[j] = softThreshold(rho, l1Reg) / (normCols[j] + l2Reg)

			if w[j] != 0 {
				floats.AddScaled(residual, -w[j], columns[j])
			}

			dwMax = math.Max(dwMax, math.Abs(w[j]-wOld))
			wMax = math.Max(wMax, math.Abs(w[j]))
		}

		if wMax == 0 || dwMax/wMax < en.tol || iter == en.maxIter-1 {
			gap = dualityGap(columns, y, residual, w, l1Reg, l2Reg)
			if gap < tolScaled {
				return w, iter + 1, gap, true
			}
		}
	}

	return w, en.maxIter, gap, false
}

func softThreshold(x, lambda float64) float64 {
	if x > lambda {
		return x - lambda
	}
	if x < -lambda {
		return x + lambda
	}
	return 0
}

// dualityGap は scikit-learn の enet_coordinate_descent と同じ式で計算する。
// l1Reg が 0（l1_ratio=0 の Ridge）のときは scale が 0 のまま残り、最適解でも
// gap は縮まらない。その場合は max_iter 回まで回って ConvergenceWarning を出す。
func dualityGap(columns [][]float64, y, residual, w []float64, l1Reg, l2Reg float64) float64 {
	var dualNorm float64
	for j, col := range columns {
		xta := floats.Dot(col, residual) - l2Reg*w[j]
		dualNorm = math.Max(dualNorm, math.Abs(xta))
	}

	rNorm2 := floats.Dot(residual, residual)
	wNorm2 := floats.Dot(w, w)

	scale := 1.0
	gap := rNorm2
	if dualNorm > l1Reg {
		scale = l1Reg / dualNorm
		gap = 0.5 * (rNorm2 + rNorm2*scale*scale)
	}

	l1Norm := floats.Norm(w, 1)
	gap += l1Reg*l1Norm - scale*floats.Dot(residual, y) + 0.5*l2Reg*(1+scale*scale)*wNorm2
	return gap
}

// Predict は入力データに対する予測を行う
func (en *ElasticNet) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := en.state.RequireFitted(elasticNetName, "Predict"); err != nil {
		return nil, err
	}

	rows, cols := X.Dims()
	if err := en.state.RequireFeatures("ElasticNet.Predict", cols); err != nil {
		return nil, err
	}

	// 呼び出し側のゴルーチンだけで計算する
	out := mat.NewVecDense(rows, nil)
	out.MulVec(X, mat.NewVecDense(cols, en.coef_))
	for i := 0; i < rows; i++ {
		out.SetVec(i, out.AtVec(i)+en.intercept_)
	}

	return mat.NewDense(rows, 1, out.RawVector().Data), nil
}

// Score はモデルの決定係数（R²）を計算
func (en *ElasticNet) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := en.Predict(X)
	if err != nil {
		return 0, err
	}

	rows, _ := y.Dims()
	if rows == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "ElasticNet.Score")
	}

	var yMean float64
	for i := 0; i < rows; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(rows)

	var ssTot, ssRes float64
	for i := 0; i < rows; i++ {
		yi := y.At(i, 0)
		predi := predictions.At(i, 0)

		ssTot += (yi - yMean) * (yi - yMean)
		ssRes += (yi - predi) * (yi - predi)
	}

	if ssTot == 0 {
		return 0, errors.NewValueError("ElasticNet.Score", "Cannot compute score with zero variance in y_true")
	}

	return 1.0 - (ssRes / ssTot), nil
}

// Coef は学習された重み係数を返す
func (en *ElasticNet) Coef() []float64 {
	if en.coef_ == nil {
		return nil
	}
	coef := make([]float64, len(en.coef_))
	copy(coef, en.coef_)
	return coef
}

// Weights は model.LinearModel 用の Coef の別名
func (en *ElasticNet) Weights() []float64 {
	return en.Coef()
}

// Intercept は学習された切片を返す
func (en *ElasticNet) Intercept() float64 {
	return en.intercept_
}

// NIter は直近の Fit で実行した反復回数を返す
func (en *ElasticNet) NIter() int {
	return en.nIter_
}

// DualGap は直近の Fit 終了時の双対ギャップを返す
func (en *ElasticNet) DualGap() float64 {
	return en.dualGap_
}

// IsFitted returns whether the model has been fitted
func (en *ElasticNet) IsFitted() bool {
	return en.state.IsFitted()
}

// GetParams returns the model's hyperparameters (scikit-learn compatible)
func (en *ElasticNet) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":         en.alpha,
		"l1_ratio":      en.l1Ratio,
		"fit_intercept": en.fitIntercept,
		"max_iter":      en.maxIter,
		"tol":           en.tol,
		"selection":     en.selection,
		"random_state":  en.randomState,
	}
}

// SetParams sets the model's hyperparameters (scikit-learn compatible).
// Unknown keys are rejected.
func (en *ElasticNet) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "alpha":
			en.alpha, ok = toFloat(value)
		case "l1_ratio":
			en.l1Ratio, ok = toFloat(value)
		case "tol":
			en.tol, ok = toFloat(value)
		case "max_iter":
			var f float64
			f, ok = toFloat(value)
			en.maxIter = int(f)
		case "random_state":
			var f float64
			f, ok = toFloat(value)
			en.randomState = int64(f)
		case "fit_intercept":
			en.fitIntercept, ok = value.(bool)
		case "selection":
			en.selection, ok = value.(string)
		default:
			return errors.NewValidationError(key, "unknown ElasticNet parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unsupported type %T", value), value)
		}
	}
	return en.validateParams()
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ExportWeights はモデルの重みをエクスポート（完全な再現性を保証）
func (en *ElasticNet) ExportWeights() (*model.ModelWeights, error) {
	if err := en.state.RequireFitted(elasticNetName, "ExportWeights"); err != nil {
		return nil, err
	}

	nFeatures, nSamples := en.state.GetDimensions()
	fitIntercept := 0.0
	if en.fitIntercept {
		fitIntercept = 1
	}

	weights := &model.ModelWeights{
		ModelType:    elasticNetName,
		Version:      model.WeightsVersion,
		Coefficients: en.Coef(),
		Intercept:    en.intercept_,
		IsFitted:     true,
		Hyperparameters: map[string]float64{
			"alpha":         en.alpha,
			"l1_ratio":      en.l1Ratio,
			"max_iter":      float64(en.maxIter),
			"tol":           en.tol,
			"random_state":  float64(en.randomState),
			"fit_intercept": fitIntercept,
		},
		Metadata: map[string]string{
			"n_features": strconv.Itoa(nFeatures),
			"n_samples":  strconv.Itoa(nSamples),
			"n_iter":     strconv.Itoa(en.nIter_),
			"selection":  en.selection,
		},
	}
	weights.Seal()

	return weights, nil
}

// ImportWeights はモデルの重みをインポート（完全な再現性を保証）
func (en *ElasticNet) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("ElasticNet.ImportWeights", "weights cannot be nil")
	}

	if weights.ModelType != elasticNetName {
		return errors.NewValueError("ElasticNet.ImportWeights",
			fmt.Sprintf("model type mismatch: expected %s, got %s", elasticNetName, weights.ModelType))
	}

	if err := weights.Validate(); err != nil {
		return err
	}

	params := make(map[string]interface{}, len(weights.Hyperparameters)+1)
	for k, v := range weights.Hyperparameters {
		if k == "fit_intercept" {
			params[k] = v != 0
			continue
		}
		params[k] = v
	}
	if s, ok := weights.Metadata["selection"]; ok {
		params["selection"] = s
	}
	if err := en.SetParams(params); err != nil {
		return err
	}

	en.coef_ = make([]float64, len(weights.Coefficients))
	copy(en.coef_, weights.Coefficients)
	en.intercept_ = weights.Intercept
	en.nIter_, _ = strconv.Atoi(weights.Metadata["n_iter"])

	nSamples, _ := strconv.Atoi(weights.Metadata["n_samples"])
	en.state.SetFitted(len(en.coef_), nSamples)
	return nil
}

// String returns the string representation of the model
func (en *ElasticNet) String() string {
	if !en.state.IsFitted() {
		return fmt.Sprintf("ElasticNet(alpha=%g, l1_ratio=%g, fit_intercept=%t, max_iter=%d, tol=%g, selection=%s)",
			en.alpha, en.l1Ratio, en.fitIntercept, en.maxIter, en.tol, en.selection)
	}
	return fmt.Sprintf("ElasticNet(alpha=%g, l1_ratio=%g, n_features=%d, fitted=true)",
		en.alpha, en.l1Ratio, len(en.coef_))
}
