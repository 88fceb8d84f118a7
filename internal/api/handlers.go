package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/foofork/riptide/internal/streaming"
	"github.com/foofork/riptide/internal/types"
	"github.com/foofork/riptide/internal/worker"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// runStats summarizes one Run/Stream call for the sync submit response,
// the same total/successful/failed/from_cache shape the frame producer
// folds into its completion frame.
type runStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	FromCache  int `json:"from_cache"`
}

func statsFor(results []*types.PipelineResult) runStats {
	s := runStats{Total: len(results)}
	for _, r := range results {
		if r.Success() {
			s.Successful++
		} else {
			s.Failed++
		}
		if r.FromCache {
			s.FromCache++
		}
	}
	return s
}

type submitResponse struct {
	Results []*types.PipelineResult `json:"results"`
	Stats   runStats                `json:"stats"`
}

// submitSync handles Submit (sync) (spec §6.1): runs every URL to
// completion and returns the ordered results in one response.
func (h *handlers) submitSync(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}

	crawlReq, err := req.toCrawlRequest()
	if err != nil {
		writeError(w, err)
		return
	}

	results, err := h.deps.Runner.Run(r.Context(), crawlReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Results: results, Stats: statsFor(results)})
}

// negotiateStreamFormat picks ndjson/sse/websocket from an explicit
// ?format= query param first, then the Accept and Upgrade headers, and
// defaults to ndjson, the simplest format for a non-browser client that
// sent no preference at all.
func negotiateStreamFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return "websocket"
	}
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/event-stream"):
		return "sse"
	case strings.Contains(accept, "application/x-ndjson"):
		return "ndjson"
	default:
		return "ndjson"
	}
}

// submitStream handles Submit (streaming) (spec §6.2): content-negotiated
// delivery of the same per-URL results over NDJSON, SSE or WebSocket, all
// three driven from one FrameProducer so backpressure behaves identically
// regardless of wire format.
func (h *handlers) submitStream(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}

	crawlReq, err := req.toCrawlRequest()
	if err != nil {
		writeError(w, err)
		return
	}

	connID := uuid.NewString()
	buf := h.deps.Buffers.GetBuffer(connID)
	defer h.deps.Buffers.RemoveBuffer(connID)
	bp := streaming.NewBackpressureHandler(connID, buf)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames, err := h.deps.Producer.Produce(ctx, crawlReq, bp)
	if err != nil {
		writeError(w, err)
		return
	}

	format := negotiateStreamFormat(r)
	switch format {
	case "sse":
		err = streaming.WriteSSE(w, frames)
	case "websocket", "ws":
		err = streaming.WriteWebSocket(w, r, frames, cancel, h.deps.Logger)
	default:
		err = streaming.WriteNDJSON(w, frames)
	}
	if err != nil {
		h.deps.Logger.Warn("streaming submit ended with error", "conn_id", connID, "format", format, "error", err)
	}
}

type jobRequest struct {
	Kind    string        `json:"kind"`
	URLs    []string      `json:"urls"`
	Options submitOptions `json:"options"`
}

type jobResponse struct {
	ID     string      `json:"id"`
	Status worker.Status `json:"status"`
}

// createJob handles Job (async) submission (spec §6.3): single, batch,
// pdf, scheduled and custom kinds all share one request shape and differ
// only in retry budget, decided by worker.NewJob from Kind.
func (h *handlers) createJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}

	kind := worker.Kind(req.Kind)
	if kind == "" {
		kind = worker.KindSingle
	}
	switch kind {
	case worker.KindSingle, worker.KindBatch, worker.KindPDF, worker.KindScheduled, worker.KindCustom:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{
			Kind:    string(types.KindValidation),
			Message: "unknown job kind " + req.Kind,
		})
		return
	}

	sub := submitRequest{URLs: req.URLs, Options: req.Options}
	crawlReq, err := sub.toCrawlRequest()
	if err != nil {
		writeError(w, err)
		return
	}

	job := worker.NewJob(uuid.NewString(), kind, crawlReq.URLs, crawlReq.Options)
	if err := h.deps.Pool.Submit(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: string(types.KindInternal), Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, jobResponse{ID: job.ID, Status: job.Status})
}

// jobStatus handles Job (async) polling (spec §6.3): current status, and
// results once terminal.
func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, ok, err := h.deps.Pool.Status(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: string(types.KindInternal), Message: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Kind: string(types.KindValidation), Message: "unknown job id " + id})
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// health handles the Health/capabilities surface (spec §6.4): pool
// stats, per-host RPS, memory usage, degradation score, supported
// engines and stealth presets.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Monitor.Report())
}
