package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/gdfit/internal/config"
	"github.com/copyleftdev/gdfit/internal/logging"
	"github.com/copyleftdev/gdfit/internal/metrics"
	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/descent"
	"github.com/copyleftdev/gdfit/internal/optimization/linear"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Fit job statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

var errFitNotFound = errors.New("fit not found")

// FitState represents the state of a fit job.
// Fields are guarded by Server.fitsMu.
type FitState struct {
	ID              string
	Status          string
	Method          descent.Method
	Hyperparameters optimization.Hyperparameters
	Samples         int
	StartTime       time.Time
	EndTime         *time.Time
	LastUpdated     time.Time
	Result          *optimization.Result
	Error           string
	CancelFunc      context.CancelFunc
}

// Server implements the HTTP and JSON-RPC API for fit jobs.
// Jobs run asynchronously; at most Optimization.WorkerCount fit at once.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Metrics

	workers chan struct{}
	seq     atomic.Uint64
	wg      sync.WaitGroup

	fits     map[string]*FitState
	finished []string     // IDs of terminal fits, oldest first
	fitsMu   sync.RWMutex // Protects fits, finished and the states
}

// NewServer creates a new server instance with the given config and logger.
// A nil m registers the collectors on a private registry.
func NewServer(cfg *config.Config, logger Logger, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		workers: make(chan struct{}, workers),
		fits:    make(map[string]*FitState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/fit", s.handleFit)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/fit/{id}", s.handleCancel)
		r.Post("/predict", s.handlePredict)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// fitRequest carries the data and optional hyperparameters of a fit job.
// Unset hyperparameters fall back to the configured defaults.
type fitRequest struct {
	X                    []float64 `json:"x"`
	Y                    []float64 `json:"y"`
	Method               string    `json:"method"`
	LearningRate         *float64  `json:"learning_rate,omitempty"`
	MaxIterations        *int      `json:"max_iterations,omitempty"`
	Tolerance            *float64  `json:"tolerance,omitempty"`
	BatchSize            *int      `json:"batch_size,omitempty"`
	RandomSeed           *int64    `json:"random_seed,omitempty"`
	PropagateConvergence *bool     `json:"propagate_convergence,omitempty"`
}

func (req fitRequest) hyperparameters(defaults optimization.Hyperparameters) optimization.Hyperparameters {
	hp := defaults
	if req.LearningRate != nil {
		hp.LearningRate = *req.LearningRate
	}
	if req.MaxIterations != nil {
		hp.MaxIterations = *req.MaxIterations
	}
	if req.Tolerance != nil {
		hp.Tolerance = *req.Tolerance
	}
	if req.BatchSize != nil {
		hp.BatchSize = *req.BatchSize
	}
	if req.RandomSeed != nil {
		hp.RandomSeed = *req.RandomSeed
	}
	if req.PropagateConvergence != nil {
		hp.PropagateConvergence = *req.PropagateConvergence
	}
	return hp
}

type predictRequest struct {
	Theta0 float64   `json:"theta0"`
	Theta1 float64   `json:"theta1"`
	X      []float64 `json:"x"`
}

type idRequest struct {
	FitID string `json:"fit_id"`
}

// invalidParamsError marks request errors the caller can fix
type invalidParamsError struct {
	err error
}

func (e *invalidParamsError) Error() string { return e.err.Error() }
func (e *invalidParamsError) Unwrap() error { return e.err }

func invalidParams(err error) error {
	return &invalidParamsError{err: err}
}

func isInvalidParams(err error) bool {
	var ip *invalidParamsError
	return errors.As(err, &ip)
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "fit.start":
		var req fitRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.startFit(req)
		}
	case "fit.status":
		var req idRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.fitStatus(req.FitID)
		}
	case "fit.cancel":
		var req idRequest
		if err = decodeParams(request.Params, &req); err == nil {
			err = s.cancelFit(req.FitID)
			result = map[string]interface{}{"fit_id": req.FitID, "status": StatusCancelled}
		}
	case "fit.predict":
		var req predictRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result = predict(req)
		}
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := codeServerError
		if isInvalidParams(err) {
			code = codeInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

func decodeParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return invalidParams(fmt.Errorf("missing required parameters"))
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return invalidParams(fmt.Errorf("invalid parameter format: %v", err))
	}
	return nil
}

// startFit validates the request and starts the fit in a goroutine.
// Invalid data or hyperparameters are rejected before the job exists.
// Returns: {"fit_id": "fit_123", "status": "pending"}
func (s *Server) startFit(req fitRequest) (map[string]interface{}, error) {
	methodName := req.Method
	if methodName == "" {
		methodName = string(descent.MethodBatch)
	}
	method, err := descent.ParseMethod(methodName)
	if err != nil {
		s.metrics.ObserveOutcome(metrics.MethodUnknown, metrics.OutcomeRejected)
		return nil, invalidParams(err)
	}

	if limit := s.cfg.Optimization.MaxSamples; limit > 0 && len(req.X) > limit {
		s.metrics.ObserveOutcome(string(method), metrics.OutcomeRejected)
		return nil, invalidParams(fmt.Errorf("too many samples: %d > %d", len(req.X), limit))
	}

	ds, err := dataset.New(req.X, req.Y)
	if err != nil {
		s.metrics.ObserveOutcome(string(method), metrics.OutcomeRejected)
		return nil, invalidParams(err)
	}

	hp := req.hyperparameters(s.cfg.Hyperparameters())
	if err := hp.Validate(ds.Len(), method == descent.MethodMiniBatch); err != nil {
		s.metrics.ObserveOutcome(string(method), metrics.OutcomeRejected)
		return nil, invalidParams(err)
	}

	id := fmt.Sprintf("fit_%d_%d", time.Now().UnixNano(), s.seq.Add(1))
	jobLogger := s.logger.WithFields(map[string]interface{}{
		"fit_id": id,
	})

	opt, err := descent.New(method, hp, descent.WithLogger(logging.NewZapLogger(jobLogger)))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	state := &FitState{
		ID:              id,
		Status:          StatusPending,
		Method:          method,
		Hyperparameters: hp,
		Samples:         ds.Len(),
		StartTime:       now,
		LastUpdated:     now,
		CancelFunc:      cancel,
	}

	s.fitsMu.Lock()
	s.fits[id] = state
	s.fitsMu.Unlock()

	s.logger.Info("Fit accepted", map[string]interface{}{
		"fit_id":  id,
		"method":  string(method),
		"samples": ds.Len(),
	})

	s.wg.Add(1)
	go s.runFit(ctx, state, opt, ds)

	return map[string]interface{}{
		"fit_id": id,
		"status": StatusPending,
	}, nil
}

// runFit waits for a worker slot and executes the fit
func (s *Server) runFit(ctx context.Context, state *FitState, opt descent.Optimizer, ds *dataset.Dataset) {
	defer s.wg.Done()
	defer state.CancelFunc()

	method := string(state.Method)

	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		s.finishFit(state, nil, ctx.Err())
		s.metrics.ObserveOutcome(method, metrics.OutcomeCancelled)
		return
	}
	s.metrics.JobStarted()
	defer func() {
		<-s.workers
		s.metrics.JobFinished()
	}()

	s.fitsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
		state.LastUpdated = time.Now()
	}
	s.fitsMu.Unlock()

	start := time.Now()
	result, err := opt.Fit(ctx, ds)
	elapsed := time.Since(start)

	s.finishFit(state, result, err)

	switch {
	case err == nil:
		s.metrics.ObserveResult(method, result, elapsed)
		s.logger.Info("Fit completed", map[string]interface{}{
			"fit_id":     state.ID,
			"method":     method,
			"theta0":     result.Theta0,
			"theta1":     result.Theta1,
			"steps":      result.Steps,
			"status":     string(result.Status),
			"latency_ms": float64(elapsed.Microseconds()) / 1000.0,
		})
	case errors.Is(err, context.Canceled):
		s.metrics.ObserveOutcome(method, metrics.OutcomeCancelled)
	default:
		s.metrics.ObserveOutcome(method, metrics.OutcomeFailed)
		s.logger.Error("Fit failed", map[string]interface{}{
			"fit_id": state.ID,
			"error":  err.Error(),
		})
	}
}

func (s *Server) finishFit(state *FitState, result *optimization.Result, err error) {
	s.fitsMu.Lock()
	defer s.fitsMu.Unlock()

	now := time.Now()
	switch {
	case state.Status == StatusCancelled:
		// cancelFit already recorded the terminal state
		return
	case err == nil:
		state.Status = StatusCompleted
		state.Result = result
	case errors.Is(err, context.Canceled):
		state.Status = StatusCancelled
	default:
		state.Status = StatusFailed
		state.Error = err.Error()
	}
	state.EndTime = &now
	state.LastUpdated = now
	s.retireLocked(state.ID)
}

// retireLocked records id as terminal and evicts the oldest terminal fits
// beyond Optimization.MaxRetainedFits. Callers hold fitsMu.
func (s *Server) retireLocked(id string) {
	s.finished = append(s.finished, id)

	limit := s.cfg.Optimization.MaxRetainedFits
	if limit < 1 {
		limit = 1
	}
	for len(s.finished) > limit {
		delete(s.fits, s.finished[0])
		s.finished = s.finished[1:]
	}
}

// fitStatus returns the current status and, once completed, the result
func (s *Server) fitStatus(id string) (map[string]interface{}, error) {
	if id == "" {
		return nil, invalidParams(fmt.Errorf("fit_id is required"))
	}

	s.fitsMu.RLock()
	defer s.fitsMu.RUnlock()

	state, exists := s.fits[id]
	if !exists {
		return nil, errFitNotFound
	}

	response := map[string]interface{}{
		"fit_id":          state.ID,
		"status":          state.Status,
		"method":          string(state.Method),
		"samples":         state.Samples,
		"hyperparameters": state.Hyperparameters,
		"start_time":      state.StartTime.Format(time.RFC3339),
		"last_update":     state.LastUpdated.Format(time.RFC3339),
	}

	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Error != "" {
		response["error"] = state.Error
	}

	if res := state.Result; res != nil {
		response["result"] = map[string]interface{}{
			"theta0":       number(res.Theta0),
			"theta1":       number(res.Theta1),
			"final_cost":   number(res.FinalCost),
			"iterations":   res.Iterations,
			"steps":        res.Steps,
			"termination":  string(res.Status),
			"converged":    res.Converged(),
			"cost_history": numbers(res.CostHistory),
		}
	}

	return response, nil
}

// cancelFit cancels a pending or running fit
func (s *Server) cancelFit(id string) error {
	if id == "" {
		return invalidParams(fmt.Errorf("fit_id is required"))
	}

	s.fitsMu.Lock()
	defer s.fitsMu.Unlock()

	state, exists := s.fits[id]
	if !exists {
		return errFitNotFound
	}

	switch state.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		// Already in a terminal state
		return invalidParams(fmt.Errorf("cannot cancel fit with status: %s", state.Status))
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
	s.retireLocked(id)

	s.logger.Info("Fit cancelled", map[string]interface{}{
		"fit_id": id,
	})

	return nil
}

func predict(req predictRequest) map[string]interface{} {
	y := linear.Predict(linear.Params{Theta0: req.Theta0, Theta1: req.Theta1}, req.X)
	return map[string]interface{}{
		"y": numbers(y),
	}
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

// Close cancels every fit and waits for the job goroutines to exit
func (s *Server) Close() error {
	s.fitsMu.Lock()
	for _, fit := range s.fits {
		if fit.CancelFunc != nil {
			fit.CancelFunc()
		}
	}
	s.fitsMu.Unlock()

	s.wg.Wait()
	return nil
}

// handleFit handles POST /api/v1/fit
func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": fmt.Sprintf("Invalid request body: %v", err),
		})
		return
	}

	result, err := s.startFit(req)
	if err != nil {
		status := http.StatusInternalServerError
		if isInvalidParams(err) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.fitStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, statusFor(err), map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/fit/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cancelFit(id); err != nil {
		writeJSON(w, statusFor(err), map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"fit_id": id,
		"status": "cancellation requested",
	})
}

// handlePredict handles POST /api/v1/predict
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": fmt.Sprintf("Invalid request body: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, predict(req))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errFitNotFound):
		return http.StatusNotFound
	case isInvalidParams(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
