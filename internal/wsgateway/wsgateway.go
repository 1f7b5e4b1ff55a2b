// Package wsgateway implements the /ws live event stream: an initial
// fleet snapshot, a periodic refresh, and Broadcaster events forwarded to
// the client, plus a small set of client→server commands
// (restart_service, subscribe_events, clear_subscription). A
// subscribe_events command replaces the connection's current filter
// rather than adding to it; clear_subscription resets it to unfiltered.
package wsgateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetwatch/monitor/internal/broadcaster"
	"github.com/fleetwatch/monitor/internal/dispatcher"
	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
	"github.com/fleetwatch/monitor/internal/metrics"
	"github.com/fleetwatch/monitor/internal/registry"
)

const snapshotInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway wires a Registry, Broadcaster, and Dispatcher to websocket
// connections.
type Gateway struct {
	reg     *registry.Registry
	bc      *broadcaster.Broadcaster
	dispatch *dispatcher.Dispatcher
	metrics *metrics.Metrics
	logger  logger.Logger
}

// New builds a Gateway.
func New(reg *registry.Registry, bc *broadcaster.Broadcaster, dispatch *dispatcher.Dispatcher, m *metrics.Metrics, log logger.Logger) *Gateway {
	return &Gateway{reg: reg, bc: bc, dispatch: dispatch, metrics: m, logger: log}
}

// command is a client→server message per spec.md §6.
type command struct {
	CommandType string      `json:"commandType"`
	ServiceID   string      `json:"serviceId,omitempty"`
	Token       string      `json:"token,omitempty"`
	Filter      *filterSpec `json:"filter,omitempty"`
}

type filterSpec struct {
	Kinds      []string `json:"kinds,omitempty"`
	ServiceIDs []string `json:"serviceIds,omitempty"`
}

func (f filterSpec) toBroadcasterFilter() broadcaster.Filter {
	var bf broadcaster.Filter
	if len(f.Kinds) > 0 {
		bf.Kinds = make(map[domain.EventKind]struct{}, len(f.Kinds))
		for _, k := range f.Kinds {
			bf.Kinds[domain.EventKind(k)] = struct{}{}
		}
	}
	if len(f.ServiceIDs) > 0 {
		bf.ServiceIDs = make(map[string]struct{}, len(f.ServiceIDs))
		for _, id := range f.ServiceIDs {
			bf.ServiceIDs[id] = struct{}{}
		}
	}
	return bf
}

// outMessage is a server→client message: either the initial/periodic
// snapshot, a forwarded Event, or an error reply to a bad command.
type outMessage struct {
	Type     string              `json:"type"`
	Services []registry.ServiceView `json:"services,omitempty"`
	Event    *domain.Event       `json:"event,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Handler upgrades the connection and runs its lifecycle until the client
// disconnects or the server shuts down.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Warn("ws upgrade failed", logger.Error(err))
			return
		}
		g.serve(r.Context(), conn)
	}
}

func (g *Gateway) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	g.metrics.WebsocketConnectionsActive.Inc()
	defer g.metrics.WebsocketConnectionsActive.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	write := func(msg outMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	if err := write(outMessage{Type: "snapshot", Services: g.reg.List()}); err != nil {
		return
	}

	sub := g.bc.Subscribe(broadcaster.Filter{})
	defer sub.Close()

	var subMu sync.Mutex
	resubscribe := func(f broadcaster.Filter) {
		subMu.Lock()
		defer subMu.Unlock()
		sub.Close()
		sub = g.bc.Subscribe(f)
	}
	currentSub := func() *broadcaster.Subscription {
		subMu.Lock()
		defer subMu.Unlock()
		return sub
	}

	done := make(chan struct{})
	go g.readLoop(conn, resubscribe, write, cancel, done)
	go g.snapshotLoop(ctx, write)

	for {
		// activeSub is re-read every iteration so a resubscribe that
		// happens between iterations is picked up immediately.
		activeSub := currentSub()
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case e, ok := <-activeSub.Events():
			if !ok {
				// resubscribe() closes the outgoing subscription before
				// installing the new one, which can unblock this select
				// with ok=false purely because the filter changed, not
				// because the connection is going away. Only treat it as
				// a real shutdown if currentSub() still points at the
				// subscription we were just reading from.
				if currentSub() != activeSub {
					continue
				}
				return
			}
			ev := e
			if err := write(outMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) snapshotLoop(ctx context.Context, write func(outMessage) error) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := write(outMessage{Type: "snapshot", Services: g.reg.List()}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) readLoop(conn *websocket.Conn, resubscribe func(broadcaster.Filter), write func(outMessage) error, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	defer cancel()
	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		g.handleCommand(cmd, resubscribe, write)
	}
}

func (g *Gateway) handleCommand(cmd command, resubscribe func(broadcaster.Filter), write func(outMessage) error) {
	switch cmd.CommandType {
	case "subscribe_events":
		f := broadcaster.Filter{}
		if cmd.Filter != nil {
			f = cmd.Filter.toBroadcasterFilter()
		}
		resubscribe(f)
	case "clear_subscription":
		resubscribe(broadcaster.Filter{})
	case "restart_service":
		g.handleRestart(cmd, write)
	default:
		_ = write(outMessage{Type: "error", Error: "unknown commandType: " + cmd.CommandType})
	}
}

func (g *Gateway) handleRestart(cmd command, write func(outMessage) error) {
	if cmd.ServiceID == "" {
		_ = write(outMessage{Type: "error", Error: "restart_service requires serviceId"})
		return
	}
	if _, err := g.dispatch.Authorize("", cmd.Token); err != nil {
		_ = write(outMessage{Type: "error", Error: "unauthorized"})
		return
	}

	ctx, cancelReq := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelReq()
	restartCmd := domain.Command{
		Kind:           domain.CommandRestartService,
		RestartService: &domain.RestartServicePayload{ServiceID: cmd.ServiceID},
	}
	if _, err := g.dispatch.RestartService(ctx, restartCmd); err != nil {
		_ = write(outMessage{Type: "error", Error: err.Error()})
	}
}
