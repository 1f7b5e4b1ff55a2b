package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleetwatch/monitor/internal/monitorerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorDoc is the user-visible failure shape from spec.md §7: no stack
// traces, just {errorKind, message, requestId}.
type errorDoc struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// requestID returns the X-Request-Id chi's RequestID middleware assigned
// to (or read from) this request, attached to emitted events and error
// replies per spec.md §6's request-correlation requirement.
func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := monitorerr.KindOf(err)
	writeJSON(w, monitorerr.HTTPStatus(kind), errorDoc{
		ErrorKind: string(kind),
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}
