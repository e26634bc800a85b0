// Package configuration loads the three declarative YAML documents (general
// config, hyperparameters, schema) and resolves them into per-stage settings.
package configuration

import (
	"io"

	"github.com/go-git/go-billy/v5"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

// Default document locations, relative to the working directory.
const (
	DefaultConfigPath = "config/config.yaml"
	DefaultParamsPath = "params.yaml"
	DefaultSchemaPath = "schema.yaml"
)

// Document names used in configuration errors.
const (
	ConfigDocument = "config"
	ParamsDocument = "params"
	SchemaDocument = "schema"
)

// Paths locates the three documents.
type Paths struct {
	Config string
	Params string
	Schema string
}

// DefaultPaths returns the conventional document locations.
func DefaultPaths() Paths {
	return Paths{Config: DefaultConfigPath, Params: DefaultParamsPath, Schema: DefaultSchemaPath}
}

// GeneralConfig mirrors config/config.yaml.
type GeneralConfig struct {
	ArtifactsRoot      string                 `yaml:"artifacts_root"`
	DataIngestion      *DataIngestionDoc      `yaml:"data_ingestion"`
	DataValidation     *DataValidationDoc     `yaml:"data_validation"`
	DataTransformation *DataTransformationDoc `yaml:"data_transformation"`
	ModelTrainer       *ModelTrainerDoc       `yaml:"model_trainer"`
	ModelEvaluation    *ModelEvaluationDoc    `yaml:"model_evaluation"`
	Tracking           *TrackingDoc           `yaml:"tracking"`
}

// DataIngestionDoc is the data_ingestion section of config.yaml.
type DataIngestionDoc struct {
	RootDir       string `yaml:"root_dir"`
	SourceURL     string `yaml:"source_URL"`
	LocalDataFile string `yaml:"local_data_file"`
	UnzipDir      string `yaml:"unzip_dir"`
}

// DataValidationDoc is the data_validation section. Policy may be empty.
type DataValidationDoc struct {
	RootDir      string `yaml:"root_dir"`
	UnzipDataDir string `yaml:"unzip_data_dir"`
	StatusFile   string `yaml:"STATUS_FILE"`
	Policy       string `yaml:"policy"`
}

// DataTransformationDoc is the data_transformation section; nil pointers mean unset.
type DataTransformationDoc struct {
	RootDir     string   `yaml:"root_dir"`
	DataPath    string   `yaml:"data_path"`
	TestSize    *float64 `yaml:"test_size"`
	RandomState *int64   `yaml:"random_state"`
}

// ModelTrainerDoc is the model_trainer section.
type ModelTrainerDoc struct {
	RootDir       string `yaml:"root_dir"`
	TrainDataPath string `yaml:"train_data_path"`
	TestDataPath  string `yaml:"test_data_path"`
	ModelName     string `yaml:"model_name"`
}

// ModelEvaluationDoc is the model_evaluation section. PlotFileName is optional.
type ModelEvaluationDoc struct {
	RootDir        string `yaml:"root_dir"`
	TestDataPath   string `yaml:"test_data_path"`
	ModelPath      string `yaml:"model_path"`
	MetricFileName string `yaml:"metric_file_name"`
	PlotFileName   string `yaml:"plot_file_name"`
}

// TrackingDoc is the optional tracking section.
type TrackingDoc struct {
	DBPath string `yaml:"db_path"`
}

// Params mirrors params.yaml.
type Params struct {
	ElasticNet *ElasticNetParams `yaml:"ElasticNet"`
}

// ElasticNetParams holds the regularization hyperparameters.
type ElasticNetParams struct {
	Alpha   *float64 `yaml:"alpha"`
	L1Ratio *float64 `yaml:"l1_ratio"`
	MaxIter *int     `yaml:"max_iter"`
	Tol     *float64 `yaml:"tol"`
}

// Schema mirrors schema.yaml.
type Schema struct {
	Columns      map[string]string `yaml:"COLUMNS"`
	TargetColumn *struct {
		Name string `yaml:"name"`
	} `yaml:"TARGET_COLUMN"`
}

// Store holds the three decoded documents.
type Store struct {
	Config GeneralConfig
	Params Params
	Schema Schema
}

// LoadStore reads and strictly decodes all three documents from fs.
// Unknown keys are rejected.
func LoadStore(fs billy.Filesystem, paths Paths) (*Store, error) {
	var s Store
	if err := decodeStrict(fs, paths.Config, &s.Config); err != nil {
		return nil, err
	}
	if err := decodeStrict(fs, paths.Params, &s.Params); err != nil {
		return nil, err
	}
	if err := decodeStrict(fs, paths.Schema, &s.Schema); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeStrict(fs billy.Filesystem, path string, out interface{}) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed to parse YAML %s", path)
	}
	return nil
}
