package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wineArchive(t *testing.T) []byte {
	t.Helper()
	var csv strings.Builder
	csv.WriteString("alcohol,pH,quality\n")
	for i := 0; i < 60; i++ {
		alcohol := 9 + float64(i%13)/4
		ph := 3 + float64((i*5)%7)/10
		fmt.Fprintf(&csv, "%g,%g,%g\n", alcohol, ph, 0.8*alcohol-1.5*ph+2)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("winequality-red.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(csv.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func setupWorkdir(t *testing.T, sourceURL string) string {
	t.Helper()
	dir := t.TempDir()
	config := `artifacts_root: artifacts
data_ingestion:
  root_dir: artifacts/data_ingestion
  source_URL: ` + sourceURL + `
  local_data_file: artifacts/data_ingestion/data.zip
  unzip_dir: artifacts/data_ingestion
data_validation:
  root_dir: artifacts/data_validation
  unzip_data_dir: artifacts/data_ingestion/winequality-red.csv
  STATUS_FILE: artifacts/data_validation/status.txt
data_transformation:
  root_dir: artifacts/data_transformation
  data_path: artifacts/data_ingestion/winequality-red.csv
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
tracking:
  db_path: artifacts/tracking/runs.db
`
	files := map[string]string{
		"config/config.yaml": config,
		"params.yaml":        "ElasticNet:\n  alpha: 0.001\n  l1_ratio: 0.5\n",
		"schema.yaml":        "COLUMNS:\n  alcohol: float64\n  pH: float64\n  quality: float64\nTARGET_COLUMN:\n  name: quality\n",
		"input.csv":          "pH,alcohol\n3.2,10\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestCLIRunPredictAndRuns(t *testing.T) {
	archive := wineArchive(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()
	dir := setupWorkdir(t, srv.URL+"/winequality-data.zip")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-workdir", dir, "run"}, &stdout, &stderr)
	require.Equal(t, 0, code, stdout.String()+stderr.String())
	assert.Contains(t, stdout.String(), ">>>>>> stage Model Evaluation stage completed <<<<<<")
	assert.FileExists(t, filepath.Join(dir, "artifacts/model_evaluation/metrics.json"))
	assert.FileExists(t, filepath.Join(dir, "logs/running_logs.log"))

	stdout.Reset()
	code = run(context.Background(), []string{"-workdir", dir, "-log-level", "error", "predict", "-input", "input.csv"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	var out struct {
		Predictions []float64 `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Len(t, out.Predictions, 1)
	assert.InDelta(t, 0.8*10-1.5*3.2+2, out.Predictions[0], 0.1)

	stdout.Reset()
	code = run(context.Background(), []string{"-workdir", dir, "-log-level", "error", "runs"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "succeeded")
	assert.Contains(t, stdout.String(), "cli")
}

func TestCLIErrors(t *testing.T) {
	dir := setupWorkdir(t, "http://127.0.0.1:1/unreachable.zip")
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Equal(t, 2, run(context.Background(), []string{"-workdir", dir, "bogus"}, &stdout, &stderr))
	assert.Equal(t, 1, run(context.Background(), []string{"-workdir", dir, "stage", "deploy"}, &stdout, &stderr))
	assert.Equal(t, 1, run(context.Background(), []string{"-workdir", dir, "stage", "ingestion"}, &stdout, &stderr))
	assert.Equal(t, 1, run(context.Background(), []string{"-workdir", dir, "predict"}, &stdout, &stderr))
	// validation status file is missing, so the gate rejects the split
	assert.Equal(t, 1, run(context.Background(), []string{"-workdir", dir, "stage", "transformation"}, &stdout, &stderr))
}
