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

// FindingsModel displays the latest run's risk findings with severity
// and telnet filters.
type FindingsModel struct {
	db       database.DB
	findings []models.FindingRecord
	width    int
	height   int
	cursor   int
	filter   string // "critical" | "high" | "telnet" | "" (all)
	loading  bool
}

type findingsLoadedMsg struct {
	findings []models.FindingRecord
}

// NewFindingsModel creates a FindingsModel.
func NewFindingsModel(db database.DB) FindingsModel {
	return FindingsModel{db: db, loading: true}
}

func (f FindingsModel) Init() tea.Cmd {
	return f.loadCmd()
}

func (f FindingsModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var findings []models.FindingRecord
		_ = f.db.Select(ctx, &findings,
			`SELECT * FROM risk_findings
			 WHERE run_id = (SELECT COALESCE(MAX(run_id), 0) FROM risk_findings)
			 ORDER BY CASE level
			   WHEN 'CRITICAL' THEN 0
			   WHEN 'HIGH' THEN 1
			   WHEN 'MEDIUM' THEN 2
			   ELSE 3 END, device, line
			 LIMIT 500`)
		return findingsLoadedMsg{findings: findings}
	}
}

func (f FindingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case findingsLoadedMsg:
		f.findings = msg.findings
		f.loading = false
		return f, tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
			return f.loadCmd()()
		})

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			f.cursor++
		case "k", "up":
			if f.cursor > 0 {
				f.cursor--
			}
		case "c":
			f.filter = "critical"
			f.cursor = 0
		case "h":
			f.filter = "high"
			f.cursor = 0
		case "t":
			f.filter = "telnet"
			f.cursor = 0
		case "0":
			f.filter = ""
			f.cursor = 0
		case "r":
			f.loading = true
			return f, f.loadCmd()
		}
	}
	f = f.clampCursor()
	return f, nil
}

func (f *FindingsModel) SetSize(w, h int) {
	f.width = w
	f.height = h
}

func (f FindingsModel) matches(rec models.FindingRecord) bool {
	switch f.filter {
	case "critical":
		return rec.Level == models.RiskCritical.String()
	case "high":
		return rec.Level == models.RiskCritical.String() || rec.Level == models.RiskHigh.String()
	case "telnet":
		return rec.Telnet
	default:
		return true
	}
}

func (f FindingsModel) View() string {
	if f.loading && len(f.findings) == 0 {
		return panelStyle.Width(max(20, f.width-2)).Render("Loading findings...")
	}

	rows := ""
	totalRows := 0
	lineLimit := f.height - 10
	if lineLimit < 5 {
		lineLimit = 5
	}

	for _, rec := range f.findings {
		if !f.matches(rec) {
			continue
		}
		if totalRows >= lineLimit {
			break
		}
		telnet := ""
		if rec.Telnet {
			telnet = "TELNET"
		}
		rows += f.renderRow(totalRows,
			rec.Level,
			truncate(rec.Device, 22),
			truncate(rec.Line, 12),
			fmt.Sprintf("%d", rec.Score),
			telnet,
			truncate(strings.Join(rec.ViolationList(), "; "), 40),
		)
		totalRows++
	}

	if rows == "" {
		rows = dimStyle.Render("No findings for the latest run.\n")
	}

	var criticalCount, highCount, telnetCount int
	for _, rec := range f.findings {
		switch rec.Level {
		case models.RiskCritical.String():
			criticalCount++
			highCount++
		case models.RiskHigh.String():
			highCount++
		}
		if rec.Telnet {
			telnetCount++
		}
	}

	filterBar := lipgloss.JoinHorizontal(lipgloss.Left,
		f.filterChip("All", "", len(f.findings), "0"),
		" ",
		f.filterChip("Critical", "critical", criticalCount, "c"),
		" ",
		f.filterChip("High+", "high", highCount, "h"),
		" ",
		f.filterChip("Telnet", "telnet", telnetCount, "t"),
		"  ",
		keycapStyle.Render("r"),
		" ",
		dimStyle.Render("refresh"),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		panelStyle.Width(max(20, f.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Risk Findings"),
				filterBar,
				"",
				dimStyle.Render("Level      Device                  Line          Score  Access  Violations"),
				rows,
				"",
				dimStyle.Render("j/k navigate  c critical  h high+  t telnet  0 all"),
			),
		),
	)
}

func (f FindingsModel) renderRow(idx int, level, device, line, score, telnet, violations string) string {
	cursor := " "
	if idx == f.cursor {
		cursor = "▌"
	}
	telnetText := dimStyle.Render(telnet)
	if telnet != "" {
		telnetText = lipgloss.NewStyle().Foreground(bgDark).Background(orange).Padding(0, 1).Render(telnet)
	}

	row := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
		lipgloss.NewStyle().Width(10).Render(severityStyle(level).Render(level)),
		lipgloss.NewStyle().Width(24).Foreground(ink).Render(device),
		lipgloss.NewStyle().Width(14).Foreground(slate).Render(line),
		lipgloss.NewStyle().Width(7).Foreground(slate).Render(score),
		lipgloss.NewStyle().Width(9).Render(telnetText),
		dimStyle.Render(violations),
	)
	if idx == f.cursor {
		return selectedRowStyle.Width(max(20, f.width-6)).Render(row) + "\n"
	}
	return row + "\n"
}

func (f FindingsModel) filterChip(label, value string, count int, key string) string {
	text := fmt.Sprintf("%s %d", label, count)
	if f.filter == value {
		return activeTabStyle.Render(text)
	}
	return tabStyle.Render(text + " [" + key + "]")
}

func (f FindingsModel) totalRows() int {
	total := 0
	for _, rec := range f.findings {
		if f.matches(rec) {
			total++
		}
	}
	return total
}

func (f FindingsModel) clampCursor() FindingsModel {
	total := f.totalRows()
	if total == 0 {
		f.cursor = 0
		return f
	}
	if f.cursor < 0 {
		f.cursor = 0
	}
	if f.cursor >= total {
		f.cursor = total - 1
	}
	return f
}
