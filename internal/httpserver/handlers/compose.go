package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/httpserver/deps"
	"github.com/fleetwatch/monitor/internal/monitorerr"
)

// composeValidate is shared across requests; validator.Validate is safe
// for concurrent use once built, matching the package-level-instance
// pattern used throughout the corpus's go-playground/validator callers.
var composeValidate = validator.New()

// composeRequest is the POST /api/compose body (spec.md §6).
type composeRequest struct {
	Action   string   `json:"action" validate:"required"`
	Services []string `json:"services"`
	File     string   `json:"file"`
	Project  string   `json:"project"`
	Detach   bool     `json:"detach"`
	Tail     int      `json:"tail"`
	DryRun   bool     `json:"dryRun"`
}

// ComposeAction implements POST /api/compose.
func ComposeAction(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, token := credentialsFromRequest(r)
		principal, err := d.Dispatcher.Authorize(apiKey, token)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req composeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, monitorerr.Wrap(monitorerr.KindInvalid, "malformed request body", err))
			return
		}
		if err := composeValidate.Struct(req); err != nil {
			writeError(w, r, monitorerr.Wrap(monitorerr.KindInvalid, "invalid compose request", err))
			return
		}

		cmd := domain.Command{
			Kind:      domain.CommandComposeAction,
			RequestID: requestID(r),
			Principal: principal,
			ComposeAction: &domain.ComposeActionPayload{
				Action:   domain.ComposeActionKind(req.Action),
				Services: req.Services,
				File:     req.File,
				Project:  req.Project,
				Detach:   req.Detach,
				Tail:     req.Tail,
				DryRun:   req.DryRun,
			},
		}

		res, err := d.Dispatcher.ComposeAction(r.Context(), cmd)
		if err != nil {
			writeJSON(w, composeErrStatus(err), map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true,
			"result": map[string]any{
				"action":   req.Action,
				"services": req.Services,
				"success":  res.Success(),
				"statusCode": res.ExitCode,
				"stdout":   res.Stdout,
				"stderr":   res.Stderr,
			},
		})
	}
}

func composeErrStatus(err error) int {
	return monitorerr.HTTPStatus(monitorerr.KindOf(err))
}
