package wsgateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetwatch/monitor/internal/auth"
	"github.com/fleetwatch/monitor/internal/broadcaster"
	"github.com/fleetwatch/monitor/internal/containerdriver"
	"github.com/fleetwatch/monitor/internal/dispatcher"
	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
	"github.com/fleetwatch/monitor/internal/metrics"
	"github.com/fleetwatch/monitor/internal/registry"
)

type noopLatency struct{}

func (noopLatency) ObserveRestartLatency(string, time.Duration) {}
func (noopLatency) ObserveComposeLatency(string, time.Duration) {}

type noopCounters struct{}

func (noopCounters) IncOpenModeAllowed()          {}
func (noopCounters) IncUnauthorized(string)       {}
func (noopCounters) IncRestart(bool)              {}
func (noopCounters) IncComposeAction(string, bool) {}

type noopRestartRecorder struct{}

func (noopRestartRecorder) RecordRestart(string) bool { return true }

func newTestGateway(t *testing.T) (*Gateway, *containerdriver.Fake) {
	t.Helper()
	reg := registry.New([]domain.Service{{ID: "svc", Name: "svc", ContainerName: "svc-container"}})
	bc := broadcaster.New(16, logger.New("error", false))
	fake := &containerdriver.Fake{}
	m := metrics.New(prometheus.NewRegistry())
	authz := auth.New(auth.Config{})
	dispatch := dispatcher.New(authz, fake, reg, noopRestartRecorder{}, bc, noopLatency{}, noopCounters{}, nil, logger.New("error", false))
	return New(reg, bc, dispatch, m, logger.New("error", false)), fake
}

func dialGateway(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandlerSendsInitialSnapshot(t *testing.T) {
	g, _ := newTestGateway(t)
	conn := dialGateway(t, g)

	var msg outMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "snapshot" {
		t.Fatalf("Type = %q, want snapshot", msg.Type)
	}
	if len(msg.Services) != 1 {
		t.Fatalf("Services = %d, want 1", len(msg.Services))
	}
}

func TestHandlerForwardsBroadcastEvents(t *testing.T) {
	g, _ := newTestGateway(t)
	conn := dialGateway(t, g)

	var snapshot outMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON snapshot: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // let serve's Subscribe happen before Publish
	g.bc.Publish(domain.Event{Kind: domain.EventServiceDown, At: time.Now(),
		ServiceDown: &domain.ServiceDownPayload{ServiceID: "svc"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON event: %v", err)
	}
	if msg.Type != "event" || msg.Event == nil || msg.Event.Kind != domain.EventServiceDown {
		t.Errorf("got %+v, want a forwarded service_down event", msg)
	}
}

func TestHandlerRejectsUnknownCommand(t *testing.T) {
	g, _ := newTestGateway(t)
	conn := dialGateway(t, g)

	var snapshot outMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON snapshot: %v", err)
	}

	if err := conn.WriteJSON(command{CommandType: "nonsense"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "error" {
		t.Errorf("Type = %q, want error", msg.Type)
	}
}

// A resubscribe must not tear the connection down: the old subscription
// channel closing underneath the server's read loop is an implementation
// detail of swapping filters, not a disconnect.
func TestHandlerSurvivesSubscribeEventsAndStillDeliversEvents(t *testing.T) {
	g, _ := newTestGateway(t)
	conn := dialGateway(t, g)

	var snapshot outMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON snapshot: %v", err)
	}

	if err := conn.WriteJSON(command{
		CommandType: "subscribe_events",
		Filter:      &filterSpec{Kinds: []string{string(domain.EventServiceDown)}},
	}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	time.Sleep(100 * time.Millisecond) // let the resubscribe land before publishing
	g.bc.Publish(domain.Event{Kind: domain.EventServiceDown, At: time.Now(),
		ServiceDown: &domain.ServiceDownPayload{ServiceID: "svc"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON after subscribe_events: %v (connection should survive a resubscribe)", err)
	}
	if msg.Type != "event" || msg.Event == nil || msg.Event.Kind != domain.EventServiceDown {
		t.Errorf("got %+v, want the forwarded service_down event", msg)
	}
}

func TestHandlerSurvivesClearSubscriptionAndStillDeliversEvents(t *testing.T) {
	g, _ := newTestGateway(t)
	conn := dialGateway(t, g)

	var snapshot outMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON snapshot: %v", err)
	}

	if err := conn.WriteJSON(command{CommandType: "clear_subscription"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	time.Sleep(100 * time.Millisecond) // let the resubscribe land before publishing
	g.bc.Publish(domain.Event{Kind: domain.EventServiceDown, At: time.Now(),
		ServiceDown: &domain.ServiceDownPayload{ServiceID: "svc"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON after clear_subscription: %v (connection should survive a resubscribe)", err)
	}
	if msg.Type != "event" {
		t.Errorf("Type = %q, want event", msg.Type)
	}
}

func TestHandlerRestartServiceViaCommand(t *testing.T) {
	g, fake := newTestGateway(t)
	conn := dialGateway(t, g)

	var snapshot outMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON snapshot: %v", err)
	}

	if err := conn.WriteJSON(command{CommandType: "restart_service", ServiceID: "svc"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fake2 := fake
		if len(fake2.RestartCalls) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected the container driver's Restart to be invoked")
}
