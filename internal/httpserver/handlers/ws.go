package handlers

import (
	"net/http"

	"github.com/fleetwatch/monitor/internal/httpserver/deps"
)

// WS implements WS /ws.
func WS(d deps.Deps) http.HandlerFunc {
	return d.WSGateway.Handler()
}
