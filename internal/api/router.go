package api

import (
	"log/slog"
	"net/http"

	"github.com/foofork/riptide/internal/observability"
	"github.com/foofork/riptide/internal/orchestrator"
	"github.com/foofork/riptide/internal/streaming"
	"github.com/foofork/riptide/internal/worker"
	"github.com/gorilla/mux"
)

// Deps wires every component the router's handlers call into, built once
// in cmd/riptide's serve command and shared across requests. Every field
// is safe for concurrent use by construction (Runner, Pool, Producer,
// BufferManager and Monitor all already guard their own state).
type Deps struct {
	Runner    *orchestrator.Runner
	Pool      *worker.Pool
	Producer  *streaming.FrameProducer
	Buffers   *streaming.BufferManager
	Monitor   *observability.Monitor
	Logger    *slog.Logger
}

// NewRouter builds the mux.Router exposing the External Interfaces
// surface: sync submit, streaming submit, async job create/status, and
// health/capabilities.
func NewRouter(deps *Deps) *mux.Router {
	h := &handlers{deps: deps}

	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/extract", h.submitSync).Methods(http.MethodPost)
	api.HandleFunc("/extract/stream", h.submitStream).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.createJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", h.jobStatus).Methods(http.MethodGet)
	api.HandleFunc("/health", h.health).Methods(http.MethodGet)

	return r
}

type handlers struct {
	deps *Deps
}
