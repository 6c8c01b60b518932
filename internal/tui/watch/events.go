package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/pointzerver/internal/events"
)

const maxAnomalies = 50

func newAnomalyTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 8},
			{Title: "Event", Width: 24},
			{Title: "Command", Width: 11},
			{Title: "Detail", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// anomalyRows renders the log newest first.
func anomalyRows(log []events.Event) []table.Row {
	rows := make([]table.Row, 0, len(log))
	for _, e := range log {
		cmd, detail := describeEvent(e)
		rows = append(rows, table.Row{e.At.Format("15:04:05"), e.Type, cmd, detail})
	}
	return rows
}

// describeEvent pulls the command type and a short detail out of an
// event payload.
func describeEvent(e events.Event) (string, string) {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	cmd, _ := data["type"].(string)

	switch e.Type {
	case events.TypeCommandSlow:
		return cmd, fmt.Sprintf("total %vµs (decode %vµs, dispatch %vµs)",
			data["total_us"], data["decode_us"], data["dispatch_us"])
	case events.TypeDispatchFailed, events.TypeReceiveFailed:
		msg, _ := data["error"].(string)
		return cmd, truncate(msg, 40)
	case events.TypeBatchReport:
		mean, _ := data["mean_ns"].(float64)
		return cmd, fmt.Sprintf("%v cmds, mean %.0fµs, %v slow", data["commands"], mean/1e3, data["slow"])
	}

	return cmd, truncate(string(e.Data), 40)
}

func eventStyle(typ string, theme Theme) lipgloss.Style {
	switch {
	case strings.HasSuffix(typ, "_failed"):
		return theme.StatusFailed
	case strings.HasSuffix(typ, ".slow"):
		return theme.StatusWarn
	case typ == events.TypeBatchReport:
		return theme.StatusOK
	default:
		return theme.Dim
	}
}

func renderAnomalies(t table.Model, log []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(log) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("ANOMALIES"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	latest := log[0]
	summary := eventStyle(latest.Type, theme).Render(fmt.Sprintf(" latest: %s", latest.Type))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("ANOMALIES"),
		summary,
		t.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
