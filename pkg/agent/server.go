// Package agent runs benchmarks on behalf of a remote controller over HTTP.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-logr/logr"

	"github.com/runningwild/storagebench/pkg/engine"
	"github.com/runningwild/storagebench/pkg/metrics"
)

// errorBody is the JSON body of every non-200 response.
type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// runErrorHeader carries the run error next to a partial result.
const runErrorHeader = "X-Storagebench-Error"

type Server struct {
	opts []engine.Option
	path string
	log  logr.Logger
	exp  *metrics.Exporter

	// One benchmark at a time: concurrent runs would measure each other.
	busy sync.Mutex
}

// NewServer builds an agent that runs every request with opts. A non-empty
// path overrides the path in incoming configs.
func NewServer(path string, log logr.Logger, opts ...engine.Option) *Server {
	exp := metrics.NewExporter()
	return &Server{
		opts: append(append([]engine.Option{}, opts...), engine.WithLogger(log), engine.WithObserver(exp)),
		path: path,
		log:  log,
		exp:  exp,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.exp.Handler())
	return mux
}

func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.Info("agent listening", "addr", addr, "path", s.path)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cfg engine.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, engine.ErrInvalidConfig, fmt.Errorf("invalid body: %w", err))
		return
	}
	if s.path != "" {
		cfg.Path = s.path
	}

	if !s.busy.TryLock() {
		writeError(w, http.StatusConflict, nil, errors.New("a run is already in progress"))
		return
	}
	defer s.busy.Unlock()

	log := s.log.WithValues("remote", r.RemoteAddr)
	log.Info("run requested", "test", string(cfg.TestType), "qd", cfg.QueueDepth, "bs", cfg.BlockSizeBytes)

	// The request context ends the run if the controller goes away.
	res, err := engine.New(s.opts...).Run(r.Context(), cfg)
	if res == nil {
		log.Info("run failed", "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		writeError(w, status, kindOf(err), err)
		return
	}
	if err != nil {
		w.Header().Set(runErrorHeader, err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Info("failed to encode response", "err", err)
	}
}

var kinds = []error{engine.ErrInvalidConfig, engine.ErrFileAccess, engine.ErrIoFailure, engine.ErrCancelled}

func kindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, kind, err error) {
	body := errorBody{Error: err.Error()}
	if kind != nil {
		body.Kind = kind.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
