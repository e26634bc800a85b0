// Package log defines standard attribute keys for pipeline operations.
//
// Using these keys keeps stage logs consistent so that a run can be followed
// from ingestion to evaluation by filtering on a handful of fields. Keys follow
// a hierarchical naming convention (e.g., "pipeline.stage", "data.samples").

package log

// Pipeline context
const (
	// RunIDKey identifies one end-to-end pipeline run (UUID string).
	RunIDKey = "pipeline.run_id"

	// StageKey names the stage emitting the record.
	// Values: "data_ingestion", "data_validation", "data_transformation",
	// "model_trainer", "model_evaluation"
	StageKey = "pipeline.stage"

	// ComponentKey identifies which package is emitting the record.
	ComponentKey = "ml.component"

	// OperationKey specifies the operation being performed inside a stage.
	OperationKey = "ml.operation"
)

// Artifacts
const (
	// ArtifactPathKey is the path of a file read or written by a stage.
	ArtifactPathKey = "artifact.path"

	// ArtifactSizeKey is a human readable size such as "~ 24 KB".
	ArtifactSizeKey = "artifact.size"

	// ContentTypeKey is the sniffed MIME type of a downloaded artifact.
	ContentTypeKey = "artifact.content_type"

	// SourceURLKey is the remote location an artifact was fetched from.
	SourceURLKey = "source.url"
)

// Data shape
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of columns.
	FeaturesKey = "data.features"

	// ColumnKey names a single column, used by schema validation.
	ColumnKey = "data.column"

	// ValidationStatusKey records the validation status written to the status file.
	ValidationStatusKey = "data.validation_status"
)

// Model and metrics
const (
	// ModelNameKey identifies the estimator type.
	ModelNameKey = "model.name"

	// AlphaKey records the overall regularization strength.
	AlphaKey = "hyperparams.alpha"

	// L1RatioKey records the L1/L2 mixing ratio.
	L1RatioKey = "hyperparams.l1_ratio"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// IterationKey records the number of solver iterations.
	IterationKey = "training.iteration"

	// RMSEKey, MAEKey and R2ScoreKey record evaluation metrics.
	RMSEKey    = "metrics.rmse"
	MAEKey     = "metrics.mae"
	R2ScoreKey = "metrics.r2_score"

	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"
)

// Performance and errors
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// ErrorCodeKey provides a structured error code.
	ErrorCodeKey = "error.code"
)

// Standard attribute values.
const (
	OperationDownload = "download"
	OperationExtract  = "extract"
	OperationValidate = "validate"
	OperationSplit    = "train_test_split"
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationEvaluate = "evaluate"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorSchemaInvalid     = "SCHEMA_INVALID"
	ErrorMissingConfig     = "MISSING_CONFIG_KEY"
)
