package preprocessing

import (
	"math"
	"math/rand"
	"time"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

// DefaultTestSize はscikit-learnのtrain_test_splitと同じテストデータの割合
const DefaultTestSize = 0.25

// SplitIndices はtrain/testに振り分けた行インデックス
type SplitIndices struct {
	Train []int
	Test  []int
}

// NewRand は乱数生成器を作成する
//
// パラメータ:
//   - seed: nilの場合は現在時刻から生成（非決定的）、それ以外は固定シード
//
// 使用例:
//
//	seed := int64(42)
//	rng := preprocessing.NewRand(&seed)
func NewRand(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(*seed))
}

// TestCount はn行のうちテストに回す行数 ceil(testSize * n) を返す
func TestCount(n int, testSize float64) int {
	return int(math.Ceil(testSize * float64(n)))
}

// TrainTestSplit はn行をシャッフルしてtrain/testに分割する
//
// パラメータ:
//   - n: 行数
//   - testSize: テストデータの割合（0 < testSize < 1）
//   - rng: シャッフルに使う乱数生成器
//
// 戻り値:
//   - SplitIndices: テストはceil(testSize*n)行、残りが訓練データ
//   - error: どちらかが空になる場合のエラー
//
// 使用例:
//
//	idx, err := preprocessing.TrainTestSplit(frame.Len(), 0.25, preprocessing.NewRand(nil))
//	train := frame.Take(idx.Train)
func TrainTestSplit(n int, testSize float64, rng *rand.Rand) (SplitIndices, error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return SplitIndices{}, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	if n == 0 {
		return SplitIndices{}, errors.Wrap(errors.ErrEmptyData, "TrainTestSplit")
	}

	nTest := TestCount(n, testSize)
	nTrain := n - nTest
	if nTrain <= 0 {
		return SplitIndices{}, errors.NewValueError("TrainTestSplit",
			"with n_samples and test_size the resulting train set would be empty")
	}

	perm := rng.Perm(n)
	return SplitIndices{
		Train: perm[nTest:],
		Test:  perm[:nTest],
	}, nil
}
