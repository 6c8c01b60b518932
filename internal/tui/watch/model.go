package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/pointzerver/internal/events"
	"github.com/mattjoyce/pointzerver/internal/status"
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	baseURL string

	width  int
	height int

	status    status.StatusResponse
	connected bool
	anomalies []events.Event

	heartbeat Heartbeat
	rate      Rate
	spinner   Spinner
	table     table.Model
	theme     Theme

	hubEvents chan events.Event

	lastError string
}

// New creates a watch model for the status endpoint at baseURL.
func New(baseURL string) *Model {
	return &Model{
		baseURL:   baseURL,
		hubEvents: make(chan events.Event, 100),
		heartbeat: NewHeartbeat(),
		table:     newAnomalyTable(),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.baseURL, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchStatus(m.baseURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(20, m.width-6))

	case tickMsg:
		now := time.Time(msg)
		m.spinner.Decay(now)
		if m.connected && m.heartbeat.Stale(now, 3*pollInterval) {
			m.connected = false
		}
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		m.anomalies = append([]events.Event{e}, m.anomalies...)
		if len(m.anomalies) > maxAnomalies {
			m.anomalies = m.anomalies[:maxAnomalies]
		}
		m.table.SetRows(anomalyRows(m.anomalies))
		if e.Type != events.TypeBatchReport {
			m.spinner.OnEvent(time.Now())
		}
		return m, receiveNextEvent(m.hubEvents)

	case statusMsg:
		now := time.Now()
		m.status = status.StatusResponse(msg)
		m.connected = true
		m.heartbeat.Beat(now)
		m.rate.Observe(m.status.Receiver.Received, now)
		m.lastError = ""
		return m, pollStatus(m.baseURL, pollInterval)

	case sseDisconnectedMsg:
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.baseURL, m.hubEvents)

	case errMsg:
		m.connected = false
		m.lastError = msg.Error()
		return m, pollStatus(m.baseURL, pollInterval)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	header := renderHeader(m.status, m.connected, m.heartbeat, m.rate, m.spinner, m.theme, m.width)
	anomalies := renderAnomalies(m.table, m.anomalies, m.theme, m.width)

	parts := []string{header, anomalies}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll anomalies"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
