package configuration

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/preprocessing"
)

// Defaults applied when the optional keys are absent.
const (
	DefaultMaxIter = 1000
	DefaultTol     = 1e-4
)

// Manager resolves the loaded documents into per-stage settings. Every
// accessor returns a fresh value and creates that stage's root directory.
type Manager struct {
	fs     billy.Filesystem
	store  *Store
	logger log.Logger
}

// NewManager validates artifacts_root and creates it.
func NewManager(fs billy.Filesystem, store *Store, logger log.Logger) (*Manager, error) {
	m := &Manager{fs: fs, store: store, logger: logger.With(log.ComponentKey, "configuration")}
	if store.Config.ArtifactsRoot == "" {
		return nil, errors.NewConfigKeyError(ConfigDocument, "artifacts_root")
	}
	if err := m.createDirectory(store.Config.ArtifactsRoot); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads the documents at paths and builds a Manager.
func Load(fs billy.Filesystem, paths Paths, logger log.Logger) (*Manager, error) {
	store, err := LoadStore(fs, paths)
	if err != nil {
		return nil, err
	}
	return NewManager(fs, store, logger)
}

// Store exposes the decoded documents.
func (m *Manager) Store() *Store {
	return m.store
}

// ArtifactsRoot returns the directory all stage outputs live under.
func (m *Manager) ArtifactsRoot() string {
	return m.store.Config.ArtifactsRoot
}

// TrackingDBPath returns tracking.db_path, or "" when run tracking is disabled.
func (m *Manager) TrackingDBPath() string {
	if m.store.Config.Tracking == nil {
		return ""
	}
	return m.store.Config.Tracking.DBPath
}

// IngestionSettings resolves data_ingestion.
func (m *Manager) IngestionSettings() (IngestionSettings, error) {
	doc := m.store.Config.DataIngestion
	if doc == nil {
		return IngestionSettings{}, errors.NewConfigKeyError(ConfigDocument, "data_ingestion")
	}

	r := m.resolver("data_ingestion")
	s := IngestionSettings{
		RootDir:       r.path("root_dir", doc.RootDir),
		SourceURL:     r.required("source_URL", doc.SourceURL),
		LocalDataFile: r.path("local_data_file", doc.LocalDataFile),
		UnzipDir:      r.path("unzip_dir", doc.UnzipDir),
	}
	if r.err != nil {
		return IngestionSettings{}, r.err
	}
	return s, m.createDirectory(s.RootDir)
}

// ValidationSettings resolves data_validation together with schema COLUMNS.
func (m *Manager) ValidationSettings() (ValidationSettings, error) {
	doc := m.store.Config.DataValidation
	if doc == nil {
		return ValidationSettings{}, errors.NewConfigKeyError(ConfigDocument, "data_validation")
	}
	if m.store.Schema.Columns == nil {
		return ValidationSettings{}, errors.NewConfigKeyError(SchemaDocument, "COLUMNS")
	}

	r := m.resolver("data_validation")
	s := ValidationSettings{
		RootDir:    r.path("root_dir", doc.RootDir),
		StatusFile: r.path("STATUS_FILE", doc.StatusFile),
		DataPath:   r.path("unzip_data_dir", doc.UnzipDataDir),
		Schema:     copyStrings(m.store.Schema.Columns),
		Policy:     PolicyLastColumn,
	}
	switch ValidationPolicy(doc.Policy) {
	case "", PolicyLastColumn:
	case PolicyAllColumns:
		s.Policy = PolicyAllColumns
	default:
		return ValidationSettings{}, errors.NewConfigValueError(ConfigDocument, "data_validation.policy", doc.Policy,
			`must be "last_column" or "all_columns"`)
	}
	if r.err != nil {
		return ValidationSettings{}, r.err
	}
	return s, m.createDirectory(s.RootDir)
}

// TransformationSettings resolves data_transformation.
func (m *Manager) TransformationSettings() (TransformationSettings, error) {
	doc := m.store.Config.DataTransformation
	if doc == nil {
		return TransformationSettings{}, errors.NewConfigKeyError(ConfigDocument, "data_transformation")
	}

	r := m.resolver("data_transformation")
	s := TransformationSettings{
		RootDir:  r.path("root_dir", doc.RootDir),
		DataPath: r.path("data_path", doc.DataPath),
		TestSize: preprocessing.DefaultTestSize,
	}
	if doc.TestSize != nil {
		if *doc.TestSize <= 0 || *doc.TestSize >= 1 {
			return TransformationSettings{}, errors.NewConfigValueError(ConfigDocument,
				"data_transformation.test_size", *doc.TestSize, "must be in (0, 1)")
		}
		s.TestSize = *doc.TestSize
	}
	if doc.RandomState != nil {
		seed := *doc.RandomState
		s.RandomState = &seed
	}
	if r.err != nil {
		return TransformationSettings{}, r.err
	}
	return s, m.createDirectory(s.RootDir)
}

// TrainingSettings resolves model_trainer, ElasticNet params and TARGET_COLUMN.
func (m *Manager) TrainingSettings() (TrainingSettings, error) {
	doc := m.store.Config.ModelTrainer
	if doc == nil {
		return TrainingSettings{}, errors.NewConfigKeyError(ConfigDocument, "model_trainer")
	}
	params, err := m.elasticNet()
	if err != nil {
		return TrainingSettings{}, err
	}
	target, err := m.targetColumn()
	if err != nil {
		return TrainingSettings{}, err
	}

	r := m.resolver("model_trainer")
	s := TrainingSettings{
		RootDir:       r.path("root_dir", doc.RootDir),
		TrainDataPath: r.path("train_data_path", doc.TrainDataPath),
		TestDataPath:  r.path("test_data_path", doc.TestDataPath),
		ModelName:     r.required("model_name", doc.ModelName),
		Alpha:         params.alpha,
		L1Ratio:       params.l1Ratio,
		MaxIter:       params.maxIter,
		Tol:           params.tol,
		TargetColumn:  target,
	}
	if r.err != nil {
		return TrainingSettings{}, r.err
	}
	return s, m.createDirectory(s.RootDir)
}

// EvaluationSettings resolves model_evaluation, ElasticNet params and TARGET_COLUMN.
func (m *Manager) EvaluationSettings() (EvaluationSettings, error) {
	doc := m.store.Config.ModelEvaluation
	if doc == nil {
		return EvaluationSettings{}, errors.NewConfigKeyError(ConfigDocument, "model_evaluation")
	}
	params, err := m.elasticNet()
	if err != nil {
		return EvaluationSettings{}, err
	}
	target, err := m.targetColumn()
	if err != nil {
		return EvaluationSettings{}, err
	}

	r := m.resolver("model_evaluation")
	s := EvaluationSettings{
		RootDir:        r.path("root_dir", doc.RootDir),
		TestDataPath:   r.path("test_data_path", doc.TestDataPath),
		ModelPath:      r.path("model_path", doc.ModelPath),
		MetricFileName: r.path("metric_file_name", doc.MetricFileName),
		Params:         params.asMap(),
		TargetColumn:   target,
	}
	if doc.PlotFileName != "" {
		s.PlotFileName = r.path("plot_file_name", doc.PlotFileName)
	}
	if r.err != nil {
		return EvaluationSettings{}, r.err
	}
	return s, m.createDirectory(s.RootDir)
}

// Hyperparameters returns the resolved ElasticNet parameters keyed by name
// (alpha, l1_ratio, max_iter, tol).
func (m *Manager) Hyperparameters() (map[string]float64, error) {
	p, err := m.elasticNet()
	if err != nil {
		return nil, err
	}
	return p.asMap(), nil
}

type elasticNetParams struct {
	alpha, l1Ratio, tol float64
	maxIter             int
}

func (p elasticNetParams) asMap() map[string]float64 {
	return map[string]float64{
		"alpha":    p.alpha,
		"l1_ratio": p.l1Ratio,
		"max_iter": float64(p.maxIter),
		"tol":      p.tol,
	}
}

func (m *Manager) elasticNet() (elasticNetParams, error) {
	doc := m.store.Params.ElasticNet
	if doc == nil {
		return elasticNetParams{}, errors.NewConfigKeyError(ParamsDocument, "ElasticNet")
	}
	if doc.Alpha == nil {
		return elasticNetParams{}, errors.NewConfigKeyError(ParamsDocument, "ElasticNet.alpha")
	}
	if doc.L1Ratio == nil {
		return elasticNetParams{}, errors.NewConfigKeyError(ParamsDocument, "ElasticNet.l1_ratio")
	}

	p := elasticNetParams{alpha: *doc.Alpha, l1Ratio: *doc.L1Ratio, maxIter: DefaultMaxIter, tol: DefaultTol}
	if p.alpha < 0 || math.IsNaN(p.alpha) {
		return elasticNetParams{}, errors.NewConfigValueError(ParamsDocument, "ElasticNet.alpha", p.alpha, "must be >= 0")
	}
	if p.l1Ratio < 0 || p.l1Ratio > 1 || math.IsNaN(p.l1Ratio) {
		return elasticNetParams{}, errors.NewConfigValueError(ParamsDocument, "ElasticNet.l1_ratio", p.l1Ratio, "must be in [0, 1]")
	}
	if doc.MaxIter != nil {
		if *doc.MaxIter <= 0 {
			return elasticNetParams{}, errors.NewConfigValueError(ParamsDocument, "ElasticNet.max_iter", *doc.MaxIter, "must be > 0")
		}
		p.maxIter = *doc.MaxIter
	}
	if doc.Tol != nil {
		if *doc.Tol < 0 {
			return elasticNetParams{}, errors.NewConfigValueError(ParamsDocument, "ElasticNet.tol", *doc.Tol, "must be >= 0")
		}
		p.tol = *doc.Tol
	}
	return p, nil
}

func (m *Manager) targetColumn() (string, error) {
	t := m.store.Schema.TargetColumn
	if t == nil || t.Name == "" {
		return "", errors.NewConfigKeyError(SchemaDocument, "TARGET_COLUMN.name")
	}
	return t.Name, nil
}

func (m *Manager) createDirectory(path string) error {
	if err := m.fs.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", path)
	}
	m.logger.Info("Created directory at: "+path, log.ArtifactPathKey, path)
	return nil
}

// resolver collects the first missing or misplaced key of one section.
type resolver struct {
	section string
	root    string
	err     error
}

func (m *Manager) resolver(section string) *resolver {
	return &resolver{section: section, root: m.store.Config.ArtifactsRoot}
}

func (r *resolver) required(key, value string) string {
	if value == "" && r.err == nil {
		r.err = errors.NewConfigKeyError(ConfigDocument, r.section+"."+key)
	}
	return value
}

func (r *resolver) path(key, value string) string {
	if r.required(key, value) == "" || r.err != nil {
		return value
	}
	if !underRoot(r.root, value) {
		r.err = errors.NewConfigValueError(ConfigDocument, r.section+"."+key, value,
			"must resolve under artifacts_root "+r.root)
	}
	return filepath.Clean(value)
}

func underRoot(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, name)
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
