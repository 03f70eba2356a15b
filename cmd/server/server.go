package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alertlab/internal/config"
	"alertlab/internal/observability"
	"alertlab/internal/orchestrator"
	"alertlab/internal/policy"
	"alertlab/internal/storage/stores"
	"alertlab/internal/telemetry"
)

// Options configure a Server.
type Options struct {
	Config   *config.Root
	Stores   *stores.Set
	Hub      *telemetry.Hub
	Interval time.Duration // 0 disables the scheduler
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// Server schedules batches and serves HTTP.
type Server struct {
	cfg      *config.Root
	stores   *stores.Set
	hub      *telemetry.Hub
	policies []policy.Policy
	interval time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics

	trigger chan struct{}

	// State
	mu         sync.Mutex
	started    time.Time
	lastRun    time.Time
	lastResult *RunStatus
	running    bool
	runs       int
}

// RunStatus is the outcome of the last batch.
type RunStatus struct {
	RunID              string    `json:"run_id"`
	FinishedAt         time.Time `json:"finished_at"`
	Duration           string    `json:"duration"`
	Evaluated          int       `json:"evaluated"`
	Skipped            int       `json:"skipped"`
	Failed             int       `json:"failed"`
	ConstraintViolated int       `json:"constraint_violated"`
	AlreadyStored      int       `json:"already_stored"`
	TruthFailed        int       `json:"truth_failed"`
	Error              string    `json:"error,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status    string     `json:"status"`
	Uptime    string     `json:"uptime"`
	RunID     string     `json:"run_id"`
	Policies  int        `json:"policies"`
	Running   bool       `json:"running"`
	Runs      int        `json:"runs"`
	LastRun   time.Time  `json:"last_run"`
	LastBatch *RunStatus `json:"last_batch,omitempty"`
	Clients   int        `json:"telemetry_clients"`
}

// NewServer validates the run file's policies and builds a Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Stores == nil || opts.Hub == nil {
		return nil, errors.New("config, stores and hub are required")
	}
	policies, err := opts.Config.BuildPolicies()
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, errors.New("run file has no policies")
	}
	opts.Hub.SetRunID(opts.Config.RunID)

	return &Server{
		cfg:      opts.Config,
		stores:   opts.Stores,
		hub:      opts.Hub,
		policies: policies,
		interval: opts.Interval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		trigger:  make(chan struct{}, 1),
		started:  time.Now(),
	}, nil
}

// Trigger requests a batch. Requests made while one is pending are merged.
func (s *Server) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run serves HTTP and runs batches until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", httpSrv.Addr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
		s.logger.Info().Dur("interval", s.interval).Msg("batch scheduler started")
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-tick:
			s.runBatch(ctx)
		case <-s.trigger:
			s.runBatch(ctx)
		}
	}
}

// runBatch runs one batch with the hub as recorder and progress sink.
func (s *Server) runBatch(ctx context.Context) *RunStatus {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("batch already running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	start := time.Now()
	opts := orchestrator.Options{
		CallStore:   s.stores.Calls,
		CandleStore: s.stores.Candles,
		TruthStore:  s.stores.Truth,
		ResultStore: s.stores.Results,
		RunID:       s.cfg.RunID,
		Policies:    s.policies,
		Costs:       s.cfg.Costs,
		Execution:   s.cfg.Execution,
		Interval:    s.cfg.Data.Interval,
		WindowMs:    s.cfg.Data.WindowMs,
		Workers:     s.cfg.Workers,
		Recorder:    s.hub,
		Progress:    s.hub.PublishProgress,
		Logger:      s.logger,
		Metrics:     s.metrics,
	}
	if s.cfg.Optimizer != nil {
		opts.Constraints = &s.cfg.Optimizer.Constraints
	}

	status := &RunStatus{RunID: s.cfg.RunID}
	sum, err := orchestrator.New(opts).Run(ctx)
	if err != nil {
		status.Error = err.Error()
		s.logger.Error().Err(err).Msg("batch failed")
	} else {
		status.Evaluated = sum.Evaluated
		status.Skipped = sum.Skipped
		status.Failed = sum.Failed
		status.ConstraintViolated = sum.ConstraintViolated
		status.AlreadyStored = sum.AlreadyStored
		status.TruthFailed = sum.TruthFailed
	}
	status.FinishedAt = time.Now()
	status.Duration = time.Since(start).String()

	s.mu.Lock()
	s.running = false
	s.lastRun = start
	s.lastResult = status
	s.runs++
	s.mu.Unlock()
	return status
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /runs", func(w http.ResponseWriter, r *http.Request) {
		s.Trigger()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.Handle("GET /ws", s.hub)

	return mux
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		RunID:     s.cfg.RunID,
		Policies:  len(s.policies),
		Running:   s.running,
		Runs:      s.runs,
		LastRun:   s.lastRun,
		LastBatch: s.lastResult,
	}
	s.mu.Unlock()
	resp.Clients = s.hub.Clients()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
