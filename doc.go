// Package mlproject is a file-based training pipeline for an ElasticNet
// regression model on the wine-quality dataset.
//
// Five stages run in a fixed order, each reading and writing files under one
// artifacts root:
//
//	data_ingestion      download the archive (http, https or s3) and unzip it
//	data_validation     check the CSV header against schema.yaml
//	data_transformation split into train.csv and test.csv
//	model_trainer       fit ElasticNet and persist its weights
//	model_evaluation    write RMSE, MAE and R² to metrics.json
//
// Transformation only runs when the validation status file ends in "True".
//
// # Quick Start
//
//	go run ./cmd/mlpipeline run
//	go run ./cmd/mlpipeline stage training
//	go run ./cmd/mlpipeline predict -input samples.csv
//	go run ./cmd/mlpipeline serve -addr :8080 -cron @daily
//	go run ./cmd/mlpipeline runs
//
// The configuration lives in config/config.yaml, params.yaml and schema.yaml.
// Unknown keys are rejected.
//
// # Packages
//
//   - configuration: YAML documents and per-stage settings
//   - components: the five stage executors
//   - pipeline: driver, cron scheduler and HTTP server
//   - prediction: loads a trained model and predicts
//   - sklearn/linear_model: ElasticNet (coordinate descent)
//   - metrics: RMSE, MAE, R²
//   - dataset, preprocessing: CSV frames and the train/test split
//   - core/model: estimator interfaces and weight persistence
//   - tracking: SQLite run registry
//   - pkg/log, pkg/errors: zerolog logging and typed errors
//
// Using the model directly:
//
//	p, err := prediction.Load(osfs.New("."), prediction.DefaultModelPath)
//	if err != nil {
//	    return err
//	}
//	values, err := p.PredictRecords([]map[string]float64{
//	    {"fixed acidity": 7.4, "volatile acidity": 0.7, ...},
//	})
package mlproject
