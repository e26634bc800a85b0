// Package pipeline runs the training stages in order and exposes them to the
// CLI, the cron scheduler and the HTTP server.
package pipeline

import (
	"context"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/YuminosukeSato/mlproject/components"
	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/metrics"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
)

// Stage names, in execution order.
const (
	StageIngestion      = "data_ingestion"
	StageValidation     = "data_validation"
	StageTransformation = "data_transformation"
	StageTraining       = "model_trainer"
	StageEvaluation     = "model_evaluation"
)

// StageNames lists every stage in execution order.
var StageNames = []string{
	StageIngestion,
	StageValidation,
	StageTransformation,
	StageTraining,
	StageEvaluation,
}

var stageAliases = map[string]string{
	"ingestion":      StageIngestion,
	"validation":     StageValidation,
	"transformation": StageTransformation,
	"training":       StageTraining,
	"trainer":        StageTraining,
	"evaluation":     StageEvaluation,
}

// ResolveStage maps a stage name or its short alias ("training") to the stage name.
func ResolveStage(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range StageNames {
		if s == name {
			return s, nil
		}
	}
	if s, ok := stageAliases[name]; ok {
		return s, nil
	}
	return "", errors.NewValidationError("stage", "unknown stage, expected one of "+strings.Join(StageNames, ", "), name)
}

// DisplayName is the banner label of a stage, e.g. "Model Trainer stage".
func DisplayName(stage string) string {
	words := strings.Split(stage, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " stage"
}

// runContext is the explicit per-run state handed to every stage.
type runContext struct {
	fs      billy.Filesystem
	manager *configuration.Manager
	fetcher components.Fetcher
	logger  log.Logger
	scores  *metrics.Scores
}

type stageFunc func(ctx context.Context, rc *runContext) error

var stageFuncs = map[string]stageFunc{
	StageIngestion:      runIngestion,
	StageValidation:     runValidation,
	StageTransformation: runTransformation,
	StageTraining:       runTraining,
	StageEvaluation:     runEvaluation,
}

func runIngestion(ctx context.Context, rc *runContext) error {
	settings, err := rc.manager.IngestionSettings()
	if err != nil {
		return err
	}
	ingestion := components.NewDataIngestion(rc.fs, settings, rc.fetcher, rc.logger)
	if err := ingestion.Download(ctx); err != nil {
		return err
	}
	return ingestion.Extract()
}

func runValidation(_ context.Context, rc *runContext) error {
	settings, err := rc.manager.ValidationSettings()
	if err != nil {
		return err
	}
	_, err = components.NewDataValidation(rc.fs, settings, rc.logger).ValidateAllColumns()
	return err
}

// runTransformation only splits when the status file written by validation
// ends in exactly "True".
func runTransformation(_ context.Context, rc *runContext) error {
	validation, err := rc.manager.ValidationSettings()
	if err != nil {
		return err
	}
	ok, err := components.ReadStatus(rc.fs, validation.StatusFile)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errors.ErrSchemaInvalid, "status file %s", validation.StatusFile)
	}

	settings, err := rc.manager.TransformationSettings()
	if err != nil {
		return err
	}
	_, err = components.NewDataTransformation(rc.fs, settings, rc.logger).TrainTestSplit()
	return err
}

func runTraining(_ context.Context, rc *runContext) error {
	settings, err := rc.manager.TrainingSettings()
	if err != nil {
		return err
	}
	return components.NewModelTrainer(rc.fs, settings, rc.logger).Train()
}

func runEvaluation(_ context.Context, rc *runContext) error {
	settings, err := rc.manager.EvaluationSettings()
	if err != nil {
		return err
	}
	scores, err := components.NewModelEvaluation(rc.fs, settings, rc.logger).Evaluate()
	if err != nil {
		return err
	}
	*rc.scores = scores
	return nil
}
