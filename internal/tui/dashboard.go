package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/models"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DashboardModel shows the overview: recent audit runs and finding counts.
type DashboardModel struct {
	db        database.DB
	runs      []models.AuditRun
	summaries map[int64]models.RunSummary
	width     int
	height    int
	lastLoad  time.Time
	loading   bool
}

// dashLoadedMsg carries loaded runs and their summaries.
type dashLoadedMsg struct {
	runs      []models.AuditRun
	summaries map[int64]models.RunSummary
}

// NewDashboardModel creates a DashboardModel.
func NewDashboardModel(db database.DB) DashboardModel {
	return DashboardModel{db: db, loading: true}
}

func (d DashboardModel) Init() tea.Cmd {
	return d.loadCmd()
}

func (d DashboardModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var runs []models.AuditRun
		_ = d.db.Select(ctx, &runs,
			`SELECT * FROM audit_runs ORDER BY started_at DESC LIMIT 20`)

		var rows []models.RunSummary
		_ = d.db.Select(ctx, &rows,
			`SELECT * FROM run_summaries ORDER BY run_id DESC LIMIT 20`)
		summaries := make(map[int64]models.RunSummary, len(rows))
		for _, s := range rows {
			summaries[s.RunID] = s
		}
		return dashLoadedMsg{runs: runs, summaries: summaries}
	}
}

func (d DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashLoadedMsg:
		d.runs = msg.runs
		d.summaries = msg.summaries
		d.loading = false
		d.lastLoad = time.Now()
		// Refresh every 10 seconds.
		return d, tea.Tick(10*time.Second, func(t time.Time) tea.Msg {
			return d.loadCmd()()
		})
	case tea.KeyMsg:
		if msg.String() == "r" {
			d.loading = true
			return d, d.loadCmd()
		}
	}
	return d, nil
}

func (d *DashboardModel) SetSize(w, h int) {
	d.width = w
	d.height = h
}

func (d DashboardModel) View() string {
	if d.loading && len(d.runs) == 0 {
		return panelStyle.Width(max(20, d.width-2)).Render("Loading audit runs...")
	}

	// Counters reflect the most recent run only; stacked totals across
	// runs would count the same lines repeatedly.
	var critical, high, medium, low int
	if len(d.runs) > 0 {
		if s, ok := d.summaries[d.runs[0].ID]; ok {
			critical = s.FindingsCritical
			high = s.FindingsHigh
			medium = s.FindingsMedium
			low = s.FindingsLow
		}
	}

	cardW := 18
	if d.width >= 100 {
		cardW = 20
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top,
		renderCounter("Critical", critical, criticalStyle, cardW),
		renderCounter("High", high, highStyle, cardW),
		renderCounter("Medium", medium, mediumStyle, cardW),
		renderCounter("Low", low, lowStyle, cardW),
	)

	lineLimit := d.height - 12
	if lineLimit < 5 {
		lineLimit = 5
	}
	rows := ""
	for i, run := range d.runs {
		if i >= lineLimit {
			break
		}
		status := run.Status
		statusFmt := mutedBadgeStyle.Render(status)
		switch status {
		case string(models.RunCompleted):
			statusFmt = lipgloss.NewStyle().Foreground(bgDark).Background(green).Padding(0, 1).Render(status)
		case string(models.RunFailed):
			statusFmt = lipgloss.NewStyle().Foreground(bgDark).Background(red).Padding(0, 1).Render(status)
		case string(models.RunRunning), string(models.RunPaused):
			statusFmt = lipgloss.NewStyle().Foreground(bgDark).Background(blue).Padding(0, 1).Render(status)
		}
		inventory := truncate(run.Inventory, 30)
		if inventory == "" {
			inventory = "-"
		}
		devices := fmt.Sprintf("%d devices", run.DeviceCount)
		counts := dimStyle.Render("no summary")
		if s, ok := d.summaries[run.ID]; ok {
			counts = dimStyle.Render(fmt.Sprintf("C:%d H:%d M:%d L:%d", s.FindingsCritical, s.FindingsHigh, s.FindingsMedium, s.FindingsLow))
		}
		line := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(8).Foreground(ink).Render(fmt.Sprintf("#%d", run.ID)),
			lipgloss.NewStyle().Width(32).Foreground(ink).Render(inventory),
			lipgloss.NewStyle().Width(13).Foreground(slate).Render(devices),
			lipgloss.NewStyle().Width(13).Render(statusFmt),
			counts,
		)
		rows += line + "\n"
	}

	if len(d.runs) == 0 {
		rows = dimStyle.Render("No audit runs yet. Run: vtyscan audit --inventory <file>\n")
	}

	updated := "never"
	if !d.lastLoad.IsZero() {
		updated = d.lastLoad.Format("15:04:05")
	}
	refreshInfo := lipgloss.JoinHorizontal(lipgloss.Left,
		keycapStyle.Render("r"),
		" ",
		dimStyle.Render("refresh"),
		"   ",
		dimStyle.Render("updated "+updated),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(summary),
		panelStyle.Width(max(20, d.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Recent Runs"),
				dimStyle.Render("Run     Inventory                       Devices      Status       Findings"),
				rows,
				refreshInfo,
			),
		),
	)
}

func renderCounter(label string, count int, style lipgloss.Style, width int) string {
	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Center,
			style.Bold(true).Render(fmt.Sprintf("%d", count)),
			dimStyle.Render(strings.ToUpper(label)),
		),
	) + "  "
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max+1:]
}
