package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/jivegate/internal/cli"
	"github.com/linuxmatters/jivegate/internal/pipeline"
)

// Status is the state of one file in the batch
type Status int

const (
	StatusQueued Status = iota
	StatusGating
	StatusDone
	StatusFailed
)

// fileState tracks progress for a single audio file
type fileState struct {
	input  string
	output string
	status Status

	done  int64
	total int64

	started time.Time
	elapsed time.Duration
	result  *pipeline.Result
	err     error
}

// fraction returns how far through the file we are, 0 when unknown
func (f *fileState) fraction() float64 {
	switch {
	case f.status == StatusDone:
		return 1
	case f.total > 0:
		return min(float64(f.done)/float64(f.total), 1)
	default:
		return 0
	}
}

// Model is the Bubbletea model for gating a batch of files
type Model struct {
	fileBar    progress.Model
	overallBar progress.Model

	files    []fileState
	finished int
	failed   int

	startTime       time.Time
	endTime         time.Time
	complete        bool
	completionDelay time.Duration

	// Called when the user interrupts, so running workers stop at their next read
	cancel func()

	width int
}

// NewModel creates a progress UI for the given inputs. cancel may be nil.
func NewModel(inputs []string, cancel func()) *Model {
	// Signal gradient: teal (closed) → green (open)
	fileBar := progress.New(
		progress.WithGradient(string(cli.SignalTeal), string(cli.SignalGreen)),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)
	overallBar := progress.New(
		progress.WithGradient(string(cli.SignalTeal), string(cli.SignalAmber)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	files := make([]fileState, len(inputs))
	for i, in := range inputs {
		files[i] = fileState{input: in, status: StatusQueued}
	}

	return &Model{
		fileBar:         fileBar,
		overallBar:      overallBar,
		files:           files,
		startTime:       time.Now(),
		completionDelay: 500 * time.Millisecond,
		cancel:          cancel,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.overallBar.Width = max(min(msg.Width-30, 50), 10)
		m.fileBar.Width = max(min(msg.Width-50, 30), 10)
		return m, nil

	case FileStart:
		if f := m.file(msg.Index); f != nil {
			f.status = StatusGating
			f.output = msg.OutputPath
			f.started = time.Now()
		}
		return m, nil

	case FileProgress:
		if f := m.file(msg.Index); f != nil {
			f.done = msg.FramesDone
			f.total = msg.TotalFrames
			f.elapsed = time.Since(f.started)
		}
		return m, nil

	case FileComplete:
		if f := m.file(msg.Index); f != nil {
			f.result = msg.Result
			f.err = msg.Err
			if !f.started.IsZero() {
				f.elapsed = time.Since(f.started)
			}
			if msg.Err != nil {
				f.status = StatusFailed
				m.failed++
			} else {
				f.status = StatusDone
			}
			m.finished++
		}
		return m, nil

	case AllComplete:
		m.complete = true
		m.endTime = time.Now()
		return m, tea.Tick(m.completionDelay, func(time.Time) tea.Msg {
			return quitMsg{}
		})

	case quitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.complete {
			return m, tea.Quit
		}
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *Model) file(i int) *fileState {
	if i < 0 || i >= len(m.files) {
		return nil
	}
	return &m.files[i]
}

// View renders the UI
func (m *Model) View() string {
	var s strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(cli.SignalTeal).
		Render("Jivegate 🎚️")
	s.WriteString(title)
	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Foreground(cli.SignalAmber).Render("Gating quiet stretches"))
	s.WriteString("\n\n")

	m.renderOverall(&s)
	s.WriteString("\n")
	for i := range m.files {
		m.renderFile(&s, &m.files[i])
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(cli.SignalTeal).
		Padding(1, 2).
		Render(strings.TrimRight(s.String(), "\n"))
}

// CompletionSummary returns the final view for printing after the program
// exits. Returns empty string if the batch is not complete.
func (m *Model) CompletionSummary() string {
	if !m.complete {
		return ""
	}
	return m.View()
}

func (m *Model) renderOverall(s *strings.Builder) {
	total := len(m.files)
	var sum float64
	for i := range m.files {
		if m.files[i].status == StatusFailed {
			sum++
			continue
		}
		sum += m.files[i].fraction()
	}
	percent := 0.0
	if total > 0 {
		percent = sum / float64(total)
	}

	s.WriteString("Progress: ")
	s.WriteString(m.overallBar.ViewAs(percent))
	s.WriteString(fmt.Sprintf("  %d%%", int(percent*100)))
	s.WriteString("\n")

	elapsed := time.Since(m.startTime)
	if m.complete {
		elapsed = m.endTime.Sub(m.startTime)
	}
	info := fmt.Sprintf("Files: %d/%d  │  Failed: %d  │  Time: %s",
		m.finished, total, m.failed, cli.FormatDuration(elapsed))
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(info))
	s.WriteString("\n")
}

func (m *Model) renderFile(s *strings.Builder, f *fileState) {
	name := filepath.Base(f.input)
	faint := lipgloss.NewStyle().Faint(true)

	switch f.status {
	case StatusQueued:
		s.WriteString(faint.Render("  · " + name + "  queued"))

	case StatusGating:
		s.WriteString(lipgloss.NewStyle().Foreground(cli.SignalAmber).Render("  ▸ "))
		s.WriteString(name)
		s.WriteString("  ")
		if f.total > 0 {
			s.WriteString(m.fileBar.ViewAs(f.fraction()))
			s.WriteString(fmt.Sprintf("  %d%%", int(f.fraction()*100)))
		} else {
			s.WriteString(faint.Render(fmt.Sprintf("%d frames", f.done)))
		}

	case StatusDone:
		s.WriteString(lipgloss.NewStyle().Foreground(cli.SignalGreen).Render("  ✓ "))
		s.WriteString(name)
		s.WriteString(faint.Render(" → " + filepath.Base(f.output)))
		if f.result != nil && f.result.Report != nil {
			s.WriteString(faint.Render(fmt.Sprintf("  open %.1f%%", f.result.Report.OpenRatio*100)))
		}
		s.WriteString(faint.Render("  " + cli.FormatDuration(f.elapsed)))

	case StatusFailed:
		s.WriteString(lipgloss.NewStyle().Foreground(cli.SignalRed).Render("  ✗ "))
		s.WriteString(name)
		if f.err != nil {
			s.WriteString(faint.Render("  " + f.err.Error()))
		}
	}
	s.WriteString("\n")
}
