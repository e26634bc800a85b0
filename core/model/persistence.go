package model

import (
	"encoding/gob"
	"io"
	"path/filepath"

	"github.com/go-git/go-billy/v5"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

// SaveWeights はModelWeightsをgob形式でio.Writerに保存する
//
// 使用例:
//
//	weights, _ := enet.ExportWeights()
//	err := model.SaveWeights(f, weights)
func SaveWeights(w io.Writer, weights *ModelWeights) error {
	if err := weights.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid model")
	}
	if err := gob.NewEncoder(w).Encode(weights); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadWeights はio.ReaderからModelWeightsを読み込み、検証する
func LoadWeights(r io.Reader) (*ModelWeights, error) {
	var weights ModelWeights
	if err := gob.NewDecoder(r).Decode(&weights); err != nil {
		return nil, errors.Wrap(err, "failed to decode model")
	}
	if err := weights.Validate(); err != nil {
		return nil, errors.Wrap(err, "loaded model is invalid")
	}
	return &weights, nil
}

// SaveWeightsFile はファイルシステム上のpathにモデルを書き出す。親ディレクトリは作成される。
func SaveWeightsFile(fs billy.Filesystem, path string, weights *ModelWeights) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := SaveWeights(f, weights); err != nil {
		_ = f.Close()
		_ = fs.Remove(path)
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

// LoadWeightsFile はファイルシステム上のpathからモデルを読み込む
func LoadWeightsFile(fs billy.Filesystem, path string) (*ModelWeights, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open model %s", path)
	}
	defer f.Close()
	return LoadWeights(f)
}
