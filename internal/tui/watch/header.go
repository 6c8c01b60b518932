package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/pointzerver/internal/status"
)

func renderHeader(st status.StatusResponse, connected bool, hb Heartbeat, rate Rate, spinner Spinner, theme Theme, width int) string {
	innerWidth := width - 4

	state := theme.StatusOK.Render("SERVING")
	if !connected {
		state = theme.StatusFailed.Render("UNREACHABLE")
	} else if st.Receiver.DispatchErrors > 0 || st.Receiver.ReceiveErrors > 0 {
		state = theme.StatusWarn.Render("DEGRADED")
	}

	titleText := fmt.Sprintf(" POINTZERVER WATCH %s", theme.Highlight.Render(hb.Current()))
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	pad := max(1, innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	identLine := fmt.Sprintf(" %s  %s %s  %s %s  %s %d  %s %d  %s %s",
		state,
		theme.Label.Render("host"), orDash(st.Hostname),
		theme.Label.Render("ip"), orDash(st.IP),
		theme.Label.Render("cmd"), st.CommandPort,
		theme.Label.Render("disc"), st.DiscoveryPort,
		theme.Label.Render("up"), formatDuration(time.Duration(st.UptimeSeconds)*time.Second),
	)

	r := st.Receiver
	statsLine := fmt.Sprintf(" recv %d  ok %d  bad %d  fail %d  slow %d  rate %s  batch mean %dµs",
		r.Received, r.Dispatched, r.DecodeErrors, r.DispatchErrors, r.SlowCommands, rate, r.LastBatchMeanUS)

	lastEvent := "never"
	if !spinner.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", time.Since(spinner.LastEvent()).Round(time.Second))
	}
	activityLine := fmt.Sprintf(" Last anomaly: %s %s  backend: %s", lastEvent, spinner.Render(theme), orDash(st.InputBackend))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, identLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
