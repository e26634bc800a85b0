package configuration

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStoreDecodesSections(t *testing.T) {
	fs := memfs.New()
	cfg := testConfig + "  plot_file_name: artifacts/model_evaluation/pred.png\ntracking:\n  db_path: artifacts/runs.db\n"
	s, err := LoadStore(fs, writeDocs(t, fs, cfg, testParams, testSchema))
	require.NoError(t, err)

	c := s.Config
	assert.Equal(t, "artifacts", c.ArtifactsRoot)
	require.NotNil(t, c.DataIngestion)
	assert.Equal(t, "http://example.invalid/data.zip", c.DataIngestion.SourceURL)
	require.NotNil(t, c.DataValidation)
	assert.Equal(t, "artifacts/data_validation/status.txt", c.DataValidation.StatusFile)
	assert.Empty(t, c.DataValidation.Policy)
	require.NotNil(t, c.DataTransformation)
	assert.Nil(t, c.DataTransformation.TestSize)
	assert.Nil(t, c.DataTransformation.RandomState)
	require.NotNil(t, c.ModelTrainer)
	assert.Equal(t, "model.joblib", c.ModelTrainer.ModelName)
	require.NotNil(t, c.ModelEvaluation)
	assert.Equal(t, "artifacts/model_evaluation/pred.png", c.ModelEvaluation.PlotFileName)
	require.NotNil(t, c.Tracking)
	assert.Equal(t, "artifacts/runs.db", c.Tracking.DBPath)

	require.NotNil(t, s.Params.ElasticNet)
	require.NotNil(t, s.Params.ElasticNet.Alpha)
	assert.Equal(t, 0.2, *s.Params.ElasticNet.Alpha)
	require.NotNil(t, s.Schema.TargetColumn)
	assert.Equal(t, "quality", s.Schema.TargetColumn.Name)
}

func TestLoadStoreOptionalSectionsAbsent(t *testing.T) {
	fs := memfs.New()
	s, err := LoadStore(fs, writeDocs(t, fs, testConfig, testParams, testSchema))
	require.NoError(t, err)
	assert.Nil(t, s.Config.Tracking)
	assert.Empty(t, s.Config.ModelEvaluation.PlotFileName)
}
