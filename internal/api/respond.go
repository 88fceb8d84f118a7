package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/foofork/riptide/internal/types"
)

// errorBody is the wire shape of every non-2xx response: a Kind a client
// can switch on, a human Message, and Retryable/RetryAfterMs describing
// whether retrying this exact request is worth attempting (spec §7's
// error taxonomy, surfaced instead of letting a *types.RiptideError's
// unexported-field Err serialize as `{}`).
type errorBody struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var rerr *types.RiptideError
	if !errors.As(err, &rerr) {
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Kind:    string(types.KindInternal),
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, statusForKind(rerr.Kind()), errorBody{
		Kind:         string(rerr.Kind()),
		Message:      rerr.Error(),
		Retryable:    rerr.IsRetryable(),
		RetryAfterMs: rerr.RetryAfter.Milliseconds(),
	})
}

// statusForKind maps the RipTide error taxonomy (spec §7) onto HTTP
// status codes for the sync and async surfaces.
func statusForKind(k types.Kind) int {
	switch k {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindAlreadyExists:
		return http.StatusConflict
	case types.KindRateLimited:
		return http.StatusTooManyRequests
	case types.KindResourceExhausted, types.KindMemoryPressure:
		return http.StatusServiceUnavailable
	case types.KindTimeout:
		return http.StatusGatewayTimeout
	case types.KindFetch:
		return http.StatusBadGateway
	case types.KindExtraction:
		return http.StatusUnprocessableEntity
	case types.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
