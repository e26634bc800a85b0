package configuration

// ValidationPolicy selects how per-column schema checks combine into the status.
type ValidationPolicy string

const (
	// PolicyLastColumn reports the status of the last data column checked.
	// Earlier mismatches are overwritten.
	PolicyLastColumn ValidationPolicy = "last_column"
	// PolicyAllColumns reports True only if every data column is in the schema.
	PolicyAllColumns ValidationPolicy = "all_columns"
)

// IngestionSettings configures download and extraction of the dataset archive.
type IngestionSettings struct {
	RootDir       string
	SourceURL     string
	LocalDataFile string
	UnzipDir      string
}

// ValidationSettings configures the schema check of the extracted CSV.
type ValidationSettings struct {
	RootDir    string
	StatusFile string
	DataPath   string
	Schema     map[string]string
	Policy     ValidationPolicy
}

// TransformationSettings configures the train/test split.
type TransformationSettings struct {
	RootDir  string
	DataPath string
	TestSize float64
	// RandomState is nil when the shuffle should not be reproducible.
	RandomState *int64
}

// TrainingSettings configures the ElasticNet fit.
type TrainingSettings struct {
	RootDir       string
	TrainDataPath string
	TestDataPath  string
	ModelName     string
	Alpha         float64
	L1Ratio       float64
	MaxIter       int
	Tol           float64
	TargetColumn  string
}

// ModelPath is RootDir/ModelName.
func (s TrainingSettings) ModelPath() string {
	return joinPath(s.RootDir, s.ModelName)
}

// EvaluationSettings configures scoring of the persisted model on the test split.
type EvaluationSettings struct {
	RootDir        string
	TestDataPath   string
	ModelPath      string
	Params         map[string]float64
	MetricFileName string
	TargetColumn   string
	// PlotFileName is empty when no scatter plot should be written.
	PlotFileName string
}
