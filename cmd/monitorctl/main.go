// monitorctl is a read-only terminal dashboard for the fleet monitor
// engine: it polls GET /api/services on an interval and renders a live
// table of service health. It has no write path — restarts and compose
// actions stay in the API/WS surface, not here. Grounded on
// bureau-foundation-bureau's ticketui model (tea.Model driven by a
// periodic tea.Cmd, bubbles components, lipgloss styling), collapsed
// from its multi-pane ticket browser down to a single polled table.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 3 * time.Second

var (
	statusStyles = map[string]lipgloss.Style{
		"healthy":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"degraded":  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		"unhealthy": lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"unknown":   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(1, 0)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(1, 0)
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "monitor engine base URL")
	apiKey := flag.String("api-key", "", "x-api-key header, if the engine requires authorization")
	flag.Parse()

	m := newModel(*addr, *apiKey)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitorctl: %v\n", err)
		os.Exit(1)
	}
}

// serviceDoc mirrors internal/httpserver/handlers.serviceDoc's JSON
// shape — the wire contract, not a shared Go type, since monitorctl is
// a standalone client of the HTTP API.
type serviceDoc struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Type                string  `json:"type"`
	Critical            bool    `json:"critical"`
	Status              string  `json:"status"`
	LastLatencyMs       int64   `json:"lastLatencyMs"`
	ConsecutiveFailures int     `json:"consecutiveFailures"`
	ErrorRate           float64 `json:"errorRate"`
}

type fetchResultMsg struct {
	services []serviceDoc
	err      error
}

type tickMsg time.Time

type model struct {
	client  *http.Client
	addr    string
	apiKey  string
	table   table.Model
	lastErr error
	lastAt  time.Time
}

func newModel(addr, apiKey string) model {
	columns := []table.Column{
		{Title: "Service", Width: 24},
		{Title: "Status", Width: 10},
		{Title: "Critical", Width: 8},
		{Title: "Latency", Width: 10},
		{Title: "Fails", Width: 6},
		{Title: "ErrRate", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	return model{
		client: &http.Client{Timeout: 5 * time.Second},
		addr:   addr,
		apiKey: apiKey,
		table:  t,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetch() tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, m.addr+"/api/services", nil)
		if err != nil {
			return fetchResultMsg{err: err}
		}
		if m.apiKey != "" {
			req.Header.Set("x-api-key", m.apiKey)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return fetchResultMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fetchResultMsg{err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}
		var services []serviceDoc
		if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
			return fetchResultMsg{err: err}
		}
		return fetchResultMsg{services: services}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}
	case tickMsg:
		return m, tea.Batch(m.fetch(), tick())
	case fetchResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.lastAt = time.Now()
		m.table.SetRows(rowsFor(msg.services))
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func rowsFor(services []serviceDoc) []table.Row {
	rows := make([]table.Row, len(services))
	for i, s := range services {
		critical := ""
		if s.Critical {
			critical = "yes"
		}
		status := s.Status
		if style, ok := statusStyles[status]; ok {
			status = style.Render(status)
		}
		rows[i] = table.Row{
			s.Name, status, critical,
			fmt.Sprintf("%dms", s.LastLatencyMs),
			fmt.Sprintf("%d", s.ConsecutiveFailures),
			fmt.Sprintf("%.1f%%", s.ErrorRate*100),
		}
	}
	return rows
}

func (m model) View() string {
	header := headerStyle.Render("monitorctl — " + m.addr)
	body := m.table.View()

	footer := footerStyle.Render(fmt.Sprintf("q: quit  r: refresh  last updated: %s", formatLastAt(m.lastAt)))
	if m.lastErr != nil {
		footer = errStyle.Render("fetch failed: "+m.lastErr.Error()) + "\n" + footer
	}

	return header + "\n" + body + "\n" + footer
}

func formatLastAt(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.TimeOnly)
}
