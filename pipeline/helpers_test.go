package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlproject/components"
	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/tracking"
)

const testConfig = `artifacts_root: artifacts
data_ingestion:
  root_dir: artifacts/data_ingestion
  source_URL: http://example.invalid/data.zip
  local_data_file: artifacts/data_ingestion/data.zip
  unzip_dir: artifacts/data_ingestion
data_validation:
  root_dir: artifacts/data_validation
  unzip_data_dir: artifacts/data_ingestion/data.csv
  STATUS_FILE: artifacts/data_validation/status.txt
data_transformation:
  root_dir: artifacts/data_transformation
  data_path: artifacts/data_ingestion/data.csv
  random_state: 7
model_trainer:
  root_dir: artifacts/model_trainer
  train_data_path: artifacts/data_transformation/train.csv
  test_data_path: artifacts/data_transformation/test.csv
  model_name: model.joblib
model_evaluation:
  root_dir: artifacts/model_evaluation
  test_data_path: artifacts/data_transformation/test.csv
  model_path: artifacts/model_trainer/model.joblib
  metric_file_name: artifacts/model_evaluation/metrics.json
`

const testParams = `ElasticNet:
  alpha: 0.001
  l1_ratio: 0.5
`

const testSchema = `COLUMNS:
  a: float64
  b: float64
  quality: float64
TARGET_COLUMN:
  name: quality
`

const testModelPath = "artifacts/model_trainer/model.joblib"

// linearCSV returns n rows of quality = 1.5*a - 2*b + 4.
func linearCSV(header string, n int) string {
	var sb strings.Builder
	sb.WriteString(header + "\n")
	for i := 0; i < n; i++ {
		a := float64(i%17) / 4
		b := float64((i*7)%11) / 3
		fmt.Fprintf(&sb, "%g,%g,%g\n", a, b, 1.5*a-2*b+4)
	}
	return sb.String()
}

func zipArchive(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fakeFetcher serves one archive and counts calls.
type fakeFetcher struct {
	body  []byte
	calls atomic.Int32
	panic bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (io.ReadCloser, components.FetchInfo, error) {
	f.calls.Add(1)
	if f.panic {
		panic("fetcher exploded")
	}
	return io.NopCloser(bytes.NewReader(f.body)), components.FetchInfo{
		Status:        "200 OK",
		ContentType:   "application/zip",
		ContentLength: int64(len(f.body)),
	}, nil
}

type fixture struct {
	fs      billy.Filesystem
	fetcher *fakeFetcher
	logger  *log.TestLogger
	tracker *tracking.Store
	driver  *Driver
}

// newFixture writes the YAML documents to a memfs and serves a zip whose CSV
// has the given header.
func newFixture(t *testing.T, header string, tracked bool) *fixture {
	t.Helper()
	fs := memfs.New()
	paths := configuration.DefaultPaths()
	require.NoError(t, util.WriteFile(fs, paths.Config, []byte(testConfig), 0o644))
	require.NoError(t, util.WriteFile(fs, paths.Params, []byte(testParams), 0o644))
	require.NoError(t, util.WriteFile(fs, paths.Schema, []byte(testSchema), 0o644))

	f := &fixture{
		fs:      fs,
		fetcher: &fakeFetcher{body: zipArchive(t, "data.csv", linearCSV(header, 40))},
	}
	f.logger, _ = log.NewTestLogger(log.LevelDebug)

	opts := []Option{WithFetcher(f.fetcher)}
	if tracked {
		store, err := tracking.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		f.tracker = store
		opts = append(opts, WithTracker(store))
	}
	f.driver = NewDriver(fs, paths, f.logger, opts...)
	return f
}

func (f *fixture) exists(path string) bool {
	_, err := f.fs.Stat(path)
	return err == nil
}
