package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/gorilla/mux"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
	"github.com/YuminosukeSato/mlproject/prediction"
)

// PredictRequest carries either named records or positional rows.
type PredictRequest struct {
	Records []map[string]float64 `json:"records,omitempty"`
	Rows    [][]float64          `json:"rows,omitempty"`
}

// PredictResponse lists one prediction per input.
type PredictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// TrainResponse reports a finished run.
type TrainResponse struct {
	RunID     string             `json:"run_id"`
	Completed []string           `json:"completed"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Duration  string             `json:"duration"`
}

// ModelResponse describes the served model.
type ModelResponse struct {
	ModelType       string             `json:"model_type"`
	Features        []string           `json:"features"`
	Target          string             `json:"target,omitempty"`
	Coefficients    []float64          `json:"coefficients"`
	Intercept       float64            `json:"intercept"`
	Hyperparameters map[string]float64 `json:"hyperparameters"`
}

// Server exposes prediction and retraining over HTTP.
type Server struct {
	router    *mux.Router
	driver    *Driver
	fs        billy.Filesystem
	modelPath string
	logger    log.Logger

	mu    sync.RWMutex
	model *prediction.Pipeline
}

// NewServer serves the model at modelPath and retrains through driver.
func NewServer(fs billy.Filesystem, driver *Driver, modelPath string, logger log.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		driver:    driver,
		fs:        fs,
		modelPath: modelPath,
		logger:    logger.With(log.ComponentKey, "server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	s.router.HandleFunc("/train", s.handleTrain).Methods(http.MethodPost, http.MethodGet)
	s.router.HandleFunc("/model", s.handleModel).Methods(http.MethodGet)
	s.router.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown")
		}
		s.logger.Info("server stopped")
		return nil
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// loadModel returns the cached model, loading it on first use.
func (s *Server) loadModel() (*prediction.Pipeline, error) {
	s.mu.RLock()
	p := s.model
	s.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		loaded, err := prediction.Load(s.fs, s.modelPath)
		if err != nil {
			return nil, err
		}
		s.model = loaded
	}
	return s.model, nil
}

func (s *Server) resetModel() {
	s.mu.Lock()
	s.model = nil
	s.mu.Unlock()
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if (len(req.Records) == 0) == (len(req.Rows) == 0) {
		writeErrorResponse(w, http.StatusBadRequest, "exactly one of records or rows is required")
		return
	}

	p, err := s.loadModel()
	if err != nil {
		s.logger.Error("failed to load model", err, log.ArtifactPathKey, s.modelPath)
		writeErrorResponse(w, http.StatusServiceUnavailable, "model not available, run training first")
		return
	}

	var preds []float64
	if len(req.Records) > 0 {
		preds, err = p.PredictRecords(req.Records)
	} else {
		preds, err = p.PredictRows(req.Rows)
	}
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("served predictions", log.PredsKey, len(preds))
	writeJSONResponse(w, http.StatusOK, PredictResponse{Predictions: preds})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	res, err := s.driver.TryRun(r.Context(), TriggerHTTP)
	switch {
	case errors.Is(err, ErrRunInProgress):
		writeErrorResponse(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		// the driver has logged it
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.resetModel()

	resp := TrainResponse{
		RunID:     res.RunID,
		Completed: res.Completed,
		Duration:  res.FinishedAt.Sub(res.StartedAt).String(),
	}
	if res.Evaluated {
		resp.Metrics = map[string]float64{"rmse": res.Scores.RMSE, "mae": res.Scores.MAE, "r2": res.Scores.R2}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	p, err := s.loadModel()
	if err != nil {
		writeErrorResponse(w, http.StatusNotFound, "model not available, run training first")
		return
	}
	weights := p.Weights()
	writeJSONResponse(w, http.StatusOK, ModelResponse{
		ModelType:       weights.ModelType,
		Features:        weights.Features,
		Target:          p.Target(),
		Coefficients:    weights.Coefficients,
		Intercept:       weights.Intercept,
		Hyperparameters: weights.Hyperparameters,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.driver.tracker == nil {
		writeErrorResponse(w, http.StatusNotFound, "run tracking is disabled")
		return
	}
	runs, err := s.driver.tracker.ListRuns(r.Context(), parseLimit(r, 20))
	if err != nil {
		s.logger.Error("failed to list runs", err)
		writeErrorResponse(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"runs": runs})
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]any{
		"error":  message,
		"status": "error",
	})
}

func parseLimit(r *http.Request, defaultLimit int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return limit
}
