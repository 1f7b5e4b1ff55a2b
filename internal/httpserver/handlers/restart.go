package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/httpserver/deps"
)

// credentialsFromRequest extracts the two supported auth mechanisms from
// an HTTP request per spec.md §6: x-api-key header, or a bearer token.
func credentialsFromRequest(r *http.Request) (apiKey, bearerToken string) {
	apiKey = r.Header.Get("x-api-key")
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		bearerToken = auth[len(prefix):]
	}
	return apiKey, bearerToken
}

// RestartService implements POST /api/services/:id/restart.
func RestartService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, token := credentialsFromRequest(r)
		principal, err := d.Dispatcher.Authorize(apiKey, token)
		if err != nil {
			writeError(w, r, err)
			return
		}

		id := chi.URLParam(r, "id")
		cmd := domain.Command{
			Kind:           domain.CommandRestartService,
			RequestID:      requestID(r),
			Principal:      principal,
			RestartService: &domain.RestartServicePayload{ServiceID: id},
		}

		res, err := d.Dispatcher.RestartService(r.Context(), cmd)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true,
			"result": map[string]any{
				"serviceId": id,
				"success":   res.Success(),
				"exitCode":  res.ExitCode,
				"stdout":    res.Stdout,
				"stderr":    res.Stderr,
			},
		})
	}
}
