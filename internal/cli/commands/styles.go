package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/leapstack-labs/galotfa/internal/state"
)

// statusStyles colours run statuses. Writers that are not colour terminals
// get the plain text.
type statusStyles struct {
	success lipgloss.Style
	failed  lipgloss.Style
	running lipgloss.Style
}

func newStatusStyles(w io.Writer) statusStyles {
	r := lipgloss.NewRenderer(w, termenv.WithColorCache(true))
	return statusStyles{
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		running: r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (s statusStyles) render(status state.RunStatus) string {
	switch status {
	case state.RunStatusSuccess:
		return s.success.Render(string(status))
	case state.RunStatusFailed:
		return s.failed.Render(string(status))
	case state.RunStatusRunning:
		return s.running.Render(string(status))
	default:
		return string(status)
	}
}

// stepProgress draws a single-line progress bar of a simulation.
type stepProgress struct {
	w     io.Writer
	bar   progress.Model
	total int64
}

func newStepProgress(w io.Writer, total int64) *stepProgress {
	return &stepProgress{
		w:     w,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total: total,
	}
}

// Update redraws the bar after step (0-based) completed.
func (p *stepProgress) Update(step int64) {
	done := step + 1
	_, _ = fmt.Fprintf(p.w, "\r%s step %d/%d", p.bar.ViewAs(float64(done)/float64(p.total)), done, p.total)
}

// Done ends the progress line.
func (p *stepProgress) Done() {
	_, _ = fmt.Fprintln(p.w)
}
