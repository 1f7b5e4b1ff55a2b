package deps

import (
	"net/http"
	"time"

	"github.com/fleetwatch/monitor/internal/broadcaster"
	"github.com/fleetwatch/monitor/internal/dispatcher"
	"github.com/fleetwatch/monitor/internal/logger"
	"github.com/fleetwatch/monitor/internal/metrics"
	"github.com/fleetwatch/monitor/internal/registry"
	"github.com/fleetwatch/monitor/internal/wsgateway"
)

// Deps bundles the dependencies every route handler needs, assembled once
// in internal/app and threaded through httpserver.New.
type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	AllowedHosts []string // Host headers allowed to access the server
	AllowedCIDRS []string // IPs allowed to access healthz/readyz endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy
	CORSOrigins  []string // allowed Origin values for the CORS middleware

	Registry    *registry.Registry
	Dispatcher  *dispatcher.Dispatcher
	Broadcast   *broadcaster.Broadcaster
	Metrics     *metrics.Metrics
	WSGateway   *wsgateway.Gateway
	PromHandler http.Handler // promhttp handler bound to the metrics registry
}
