// Package console renders the live tail and the server's own diagnostics
// on the controlling terminal. It is a plain store subscriber plus a diag
// sink; nothing here feeds back into the store.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/magpie/internal/model"
)

var (
	styleFatal   = lipgloss.NewStyle().Foreground(lipgloss.Color("201")).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleDisplay = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleLog     = lipgloss.NewStyle()
	styleVerbose = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleMeta    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleDiag    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleDiagErr = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func severityStyle(s model.Severity) lipgloss.Style {
	switch {
	case s <= model.Fatal:
		return styleFatal
	case s == model.Error:
		return styleError
	case s == model.Warning:
		return styleWarning
	case s == model.Display:
		return styleDisplay
	case s >= model.Verbose:
		return styleVerbose
	}
	return styleLog
}

// Console writes colored log lines and diagnostics to one writer. A mutex
// keeps lines from the store subscriber and the diag sink from interleaving.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// New creates a console writing to stdout.
func New() *Console {
	return &Console{out: os.Stdout}
}

// LogSubscriber is the store subscriber: one rendered line per insert.
// It must stay fast; it runs inside the store guard.
func (c *Console) LogSubscriber(rec model.LogRecord) {
	ts := time.Unix(int64(rec.ReceivedAt), 0).Format("15:04:05")
	meta := styleMeta.Render(fmt.Sprintf("%s %-11s %s/%s", ts, rec.Severity, rec.Source, rec.Category))
	line := severityStyle(rec.Severity).Render(rec.Message)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s  %s\n", meta, line)
}

// DiagSink routes server diagnostics through the same writer so they do
// not tear the tail output. Install with diag.SetSink.
func (c *Console) DiagSink(component, message string, isError bool) {
	style := styleDiag
	if isError {
		style = styleDiagErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, style.Render(fmt.Sprintf("[%s] %s", component, message)))
}
