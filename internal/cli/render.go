package cli

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitsync/internal/syncer"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Width(14)

	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// statusView is everything the status panel shows
type statusView struct {
	Status syncer.Status
	Failed int
	Remote string
	Queue  string
	Habits int
	Now    time.Time
}

func renderStatus(v statusView) string {
	connection := onlineStyle.Render("● online")
	if !v.Status.IsOnline {
		connection = offlineStyle.Render("● offline")
	}
	if v.Status.IsSyncing {
		connection += " " + warnStyle.Render("(syncing)")
	}

	pending := fmt.Sprintf("%d", v.Status.PendingWriteCount)
	if v.Status.PendingWriteCount > 0 {
		pending = warnStyle.Render(pending)
	}
	failed := fmt.Sprintf("%d", v.Failed)
	if v.Failed > 0 {
		failed = offlineStyle.Render(failed)
	}

	lastSync := "never"
	if v.Status.LastSyncTime != nil {
		lastSync = fmt.Sprintf("%s (%s ago)", v.Status.LastSyncTime.Local().Format("2006-01-02 15:04:05"), v.Now.Sub(*v.Status.LastSyncTime).Round(time.Second))
	}

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("habitsync"),
		"",
		row("Connection", connection),
		row("Remote", v.Remote),
		row("Queue", v.Queue),
		row("Pending", pending),
		row("Failed", failed),
		row("Last sync", lastSync),
		row("Habits", fmt.Sprintf("%d", v.Habits)),
	)
	return boxStyle.Render(body)
}

// redact hides any password embedded in a remote address or key=value DSN
func redact(remote string) string {
	if strings.Contains(remote, "password=") && !strings.Contains(remote, "://") {
		fields := strings.Fields(remote)
		for i, f := range fields {
			if strings.HasPrefix(f, "password=") {
				fields[i] = "password=xxxxx"
			}
		}
		return strings.Join(fields, " ")
	}
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return remote
	}
	return u.Redacted()
}
