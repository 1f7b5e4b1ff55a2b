package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetwatch/monitor/internal/httpserver/deps"
	"github.com/fleetwatch/monitor/internal/monitorerr"
)

// ListServices implements GET /api/services.
func ListServices(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views := d.Registry.List()
		docs := make([]serviceDoc, len(views))
		for i, v := range views {
			docs[i] = newServiceDoc(v)
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

type serviceDetailDoc struct {
	serviceDoc
	RecentOutcomes []outcomeDoc `json:"recentOutcomes"`
}

// ServiceHealth implements GET /api/services/:id/health.
func ServiceHealth(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		view, ok := d.Registry.Get(id)
		if !ok {
			writeError(w, r, monitorerr.New(monitorerr.KindNotFound, "unknown service: "+id))
			return
		}
		doc := serviceDetailDoc{serviceDoc: newServiceDoc(view)}
		if view.Status.Ring != nil {
			doc.RecentOutcomes = newOutcomeDocs(view.Status.Ring.All())
		}
		writeJSON(w, http.StatusOK, doc)
	}
}
