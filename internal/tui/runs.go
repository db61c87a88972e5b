package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/models"
	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RunsModel lists audit runs and, on demand, the per-device phase
// trail of the selected run.
type RunsModel struct {
	db        database.DB
	runs      []models.AuditRun
	summaries map[int64]models.RunSummary
	phases    []models.PhaseRecord
	phasesFor int64
	width     int
	height    int
	cursor    int
	loading   bool
}

type runsLoadedMsg struct {
	runs      []models.AuditRun
	summaries map[int64]models.RunSummary
}

type phasesLoadedMsg struct {
	runID  int64
	phases []models.PhaseRecord
}

// NewRunsModel creates a RunsModel.
func NewRunsModel(db database.DB) RunsModel {
	return RunsModel{db: db, loading: true}
}

func (m RunsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m RunsModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var runs []models.AuditRun
		_ = m.db.Select(ctx, &runs,
			`SELECT * FROM audit_runs ORDER BY started_at DESC LIMIT 50`)

		var rows []models.RunSummary
		_ = m.db.Select(ctx, &rows,
			`SELECT * FROM run_summaries ORDER BY run_id DESC LIMIT 50`)
		summaries := make(map[int64]models.RunSummary, len(rows))
		for _, s := range rows {
			summaries[s.RunID] = s
		}
		return runsLoadedMsg{runs: runs, summaries: summaries}
	}
}

func (m RunsModel) loadPhasesCmd(runID int64) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var phases []models.PhaseRecord
		_ = m.db.Select(ctx, &phases,
			`SELECT * FROM phase_results WHERE run_id = ? ORDER BY device, stage`, runID)
		return phasesLoadedMsg{runID: runID, phases: phases}
	}
}

func (m RunsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runsLoadedMsg:
		m.runs = msg.runs
		m.summaries = msg.summaries
		m.loading = false
		if m.cursor >= len(m.runs) && len(m.runs) > 0 {
			m.cursor = len(m.runs) - 1
		}
		return m, tea.Tick(15*time.Second, func(t time.Time) tea.Msg {
			return m.loadCmd()()
		})

	case phasesLoadedMsg:
		m.phases = msg.phases
		m.phasesFor = msg.runID
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if m.cursor < len(m.runs)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "enter":
			if m.cursor < len(m.runs) {
				return m, m.loadPhasesCmd(m.runs[m.cursor].ID)
			}
		case "esc":
			m.phases = nil
			m.phasesFor = 0
		case "r":
			m.loading = true
			return m, m.loadCmd()
		}
	}
	return m, nil
}

func (m *RunsModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m RunsModel) View() string {
	if m.loading && len(m.runs) == 0 {
		return panelStyle.Width(max(20, m.width-2)).Render("Loading audit runs...")
	}

	lineLimit := m.height - 10
	if m.phasesFor != 0 {
		lineLimit = (m.height - 12) / 2
	}
	if lineLimit < 4 {
		lineLimit = 4
	}

	rows := ""
	for i, run := range m.runs {
		if i >= lineLimit {
			break
		}
		rows += m.renderRunRow(i, run)
	}
	if rows == "" {
		rows = dimStyle.Render("No audit runs recorded.\n")
	}

	sections := []string{
		panelHeaderStyle.Render("Audit Runs"),
		dimStyle.Render("Run     Started           Status       Devices  Outcome                Findings"),
		rows,
		"",
		dimStyle.Render("j/k navigate  enter phases  esc close  r refresh"),
	}

	list := panelStyle.Width(max(20, m.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
	if m.phasesFor == 0 {
		return list
	}
	return lipgloss.JoinVertical(lipgloss.Left, list, m.renderPhases(lineLimit))
}

func (m RunsModel) renderRunRow(idx int, run models.AuditRun) string {
	cursor := " "
	if idx == m.cursor {
		cursor = "▌"
	}
	statusFmt := mutedBadgeStyle.Render(run.Status)
	switch run.Status {
	case string(models.RunCompleted):
		statusFmt = lipgloss.NewStyle().Foreground(bgDark).Background(green).Padding(0, 1).Render(run.Status)
	case string(models.RunFailed):
		statusFmt = lipgloss.NewStyle().Foreground(bgDark).Background(red).Padding(0, 1).Render(run.Status)
	case string(models.RunRunning), string(models.RunPaused):
		statusFmt = lipgloss.NewStyle().Foreground(bgDark).Background(blue).Padding(0, 1).Render(run.Status)
	}

	outcome := dimStyle.Render("-")
	findings := dimStyle.Render("-")
	if s, ok := m.summaries[run.ID]; ok {
		outcome = dimStyle.Render(fmt.Sprintf("ok:%d part:%d fail:%d", s.Completed, s.Partial, s.Unreachable+s.AuthFailed+s.Stopped))
		findings = dimStyle.Render(fmt.Sprintf("C:%d H:%d M:%d L:%d", s.FindingsCritical, s.FindingsHigh, s.FindingsMedium, s.FindingsLow))
	}

	row := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
		lipgloss.NewStyle().Width(6).Foreground(ink).Render(fmt.Sprintf("#%d", run.ID)),
		lipgloss.NewStyle().Width(18).Foreground(slate).Render(run.StartedAt.Format("01-02 15:04:05")),
		lipgloss.NewStyle().Width(13).Render(statusFmt),
		lipgloss.NewStyle().Width(9).Foreground(slate).Render(fmt.Sprintf("%d", run.DeviceCount)),
		lipgloss.NewStyle().Width(23).Render(outcome),
		findings,
	)
	if idx == m.cursor {
		return selectedRowStyle.Width(max(20, m.width-6)).Render(row) + "\n"
	}
	return row + "\n"
}

func (m RunsModel) renderPhases(lineLimit int) string {
	rows := ""
	for i, p := range m.phases {
		if i >= lineLimit {
			rows += dimStyle.Render(fmt.Sprintf("… %d more\n", len(m.phases)-i))
			break
		}
		statusFmt := dimStyle.Render(p.Status)
		switch p.Status {
		case string(models.PhaseSuccess):
			statusFmt = okStyle.Render(p.Status)
		case string(models.PhaseFailed):
			statusFmt = criticalStyle.Render(p.Status)
		}
		detail := truncate(p.Detail, 44)
		rows += lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(20).Foreground(ink).Render(truncate(p.Device, 18)),
			lipgloss.NewStyle().Width(4).Foreground(slate).Render(fmt.Sprintf("%d", p.Stage)),
			lipgloss.NewStyle().Width(17).Foreground(slate).Render(p.StageName),
			lipgloss.NewStyle().Width(10).Render(statusFmt),
			dimStyle.Render(detail),
		) + "\n"
	}
	if rows == "" {
		rows = dimStyle.Render("No phase records for this run.\n")
	}

	return panelStyle.Width(max(20, m.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render(fmt.Sprintf("Phases of Run #%d", m.phasesFor)),
			dimStyle.Render("Device              #   Stage            Status    Detail"),
			rows,
		),
	)
}
