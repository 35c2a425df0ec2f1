// internal/tui/tui.go
// Package tui renders a live progress view for a measurement run. The run
// itself executes in a background goroutine and feeds the view through
// Bubble Tea messages; the final tables are printed after the program exits
// the alternate screen.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/logging"
	"github.com/mwiater/tachys/internal/speed"
	"github.com/mwiater/tachys/internal/util"
)

// maxVisibleRows bounds the completed-run history shown above the spinner.
const maxVisibleRows = 10

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

type measurementStartMsg struct {
	event speed.ProgressEvent
}

type measurementDoneMsg struct {
	event speed.ProgressEvent
}

type runFinishedMsg struct {
	reports []speed.ModelReport
}

type runFailedMsg struct {
	error
}

type model struct {
	cfg      *appconfig.Config
	spinner  spinner.Model
	current  *speed.ProgressEvent
	rows     []string
	done     int
	total    int
	reports  []speed.ModelReport
	err      error
	finished bool
	width    int
}

func initialModel(cfg *appconfig.Config) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &model{
		cfg:     cfg,
		spinner: s,
		total:   len(cfg.ModelList()) * len(cfg.PromptList()) * cfg.Repeats,
	}
}

// Init starts the spinner animation.
func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update reacts to key presses, window sizing and run progress messages.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case measurementStartMsg:
		event := msg.event
		m.current = &event
		if event.Total > 0 {
			m.total = event.Total
		}
		return m, nil

	case measurementDoneMsg:
		m.done++
		m.current = nil
		m.rows = append(m.rows, completedRow(msg.event))
		return m, nil

	case runFinishedMsg:
		m.finished = true
		m.reports = msg.reports
		return m, tea.Quit

	case runFailedMsg:
		m.err = msg.error
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

// View renders the progress header, recent completed runs and the active run.
func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Measuring token throughput"))
	b.WriteString(fmt.Sprintf("  %d/%d complete\n\n", m.done, m.total))

	start := util.Max(0, len(m.rows)-maxVisibleRows)
	for _, row := range m.rows[start:] {
		b.WriteString(doneStyle.Render("✓") + " " + row + "\n")
	}

	if m.current != nil {
		label := fmt.Sprintf("%s  %s  run %d", m.current.Model, util.TruncateRunes(m.current.Prompt, m.promptWidth()), m.current.Repeat)
		b.WriteString(m.spinner.View() + label + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errStyle.Render("Error: ") + util.WrapToWidth(m.err.Error(), util.Max(20, m.width-8)) + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("Press q to quit."))
	return b.String()
}

// promptWidth bounds prompt labels to the window so rows never wrap.
func (m *model) promptWidth() int {
	if m.width <= 0 {
		return 40
	}
	return util.Min(60, util.Max(20, m.width-30))
}

func completedRow(event speed.ProgressEvent) string {
	measurement := event.Measurement
	label := fmt.Sprintf("%s  %s  run %d", event.Model, util.TruncateRunes(event.Prompt, 40), event.Repeat)
	if measurement == nil {
		return label
	}
	return fmt.Sprintf("%s  prompt eval %s tps, response %s tps",
		label, speed.FormatTPS(measurement.PromptEvalTPS), speed.FormatTPS(measurement.ResponseTPS))
}

// Run executes a measurement run behind the progress view. The final tables
// and optional JSON records are written once the alternate screen closes.
func Run(cfg *appconfig.Config) error {
	m := initialModel(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Log lines on stdout would tear the alternate screen.
	logging.SetConsoleOutput(false)
	defer logging.SetConsoleOutput(true)

	go func() {
		reports, err := speed.MeasureModelsWithProgress(cfg, func(event speed.ProgressEvent) {
			if event.Done {
				p.Send(measurementDoneMsg{event: event})
			} else {
				p.Send(measurementStartMsg{event: event})
			}
		})
		if err != nil {
			p.Send(runFailedMsg{error: err})
			return
		}
		p.Send(runFinishedMsg{reports: reports})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("running progress view: %w", err)
	}

	final := finalModel.(*model)
	if final.err != nil {
		return final.err
	}
	if !final.finished {
		// The user quit before the run completed.
		return nil
	}

	speed.RenderReports(os.Stdout, final.reports)
	if cfg.JSONRecords {
		return speed.WriteRecordsJSON(os.Stdout, final.reports)
	}
	return nil
}
