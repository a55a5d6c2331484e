package interceptors

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/farolabs/beacon/core"
)

// Console writes events to a terminal, one line per event, with the
// severity code colored when the output supports it.
type Console struct {
	output      io.Writer
	mu          sync.Mutex
	minSeverity core.Severity
	showPayload bool
	useColor    bool
}

// ConsoleOptions configures a console interceptor.
type ConsoleOptions struct {
	// Output defaults to stdout.
	Output io.Writer
	// MinSeverity drops events below it. Defaults to debug (everything).
	MinSeverity core.Severity
	// ShowPayload appends payload entries to each line.
	ShowPayload bool
	// NoColor disables ANSI colors regardless of terminal detection.
	NoColor bool
}

// NewConsole creates a console interceptor writing to stdout.
func NewConsole() *Console {
	return NewConsoleWithOptions(ConsoleOptions{ShowPayload: true})
}

// NewConsoleWithWriter creates a console interceptor with a custom writer.
func NewConsoleWithWriter(w io.Writer) *Console {
	return NewConsoleWithOptions(ConsoleOptions{Output: w, ShowPayload: true})
}

// NewConsoleWithOptions creates a console interceptor with custom options.
func NewConsoleWithOptions(opts ConsoleOptions) *Console {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Console{
		output:      opts.Output,
		minSeverity: opts.MinSeverity,
		showPayload: opts.ShowPayload,
		useColor:    !opts.NoColor && shouldUseColor(opts.Output),
	}
}

// Name identifies the interceptor in health reports.
func (c *Console) Name() string {
	return "console"
}

// Intercept writes one event line.
func (c *Console) Intercept(ctx context.Context, event *core.Event) error {
	if event.Severity < c.minSeverity {
		return nil
	}

	line := c.formatEvent(event)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.output, line)
	return err
}

// HealthCheck always succeeds; the console has no remote side to probe.
func (c *Console) HealthCheck(ctx context.Context) error {
	return nil
}

func (c *Console) formatEvent(event *core.Event) string {
	timestamp := event.Timestamp.Format("15:04:05.000")
	level := colorize("["+severityCode(event.Severity)+"]", severityColor(event.Severity), c.useColor)

	line := fmt.Sprintf("[%s] %s %s %s", timestamp, level, event.EventID(), event.Message)

	if c.showPayload {
		if payload := formatPayload(event.Payload); payload != "" {
			line += " " + payload
		}
	}
	return line
}

// ANSI color codes per severity.
const (
	colorGray    = "\033[90m"
	colorGreen   = "\033[32m"
	colorCyan    = "\033[36m"
	colorYellow  = "\033[33m"
	colorRed     = "\033[31m"
	colorMagenta = "\033[35m"
	colorReset   = "\033[0m"
)

func severityColor(s core.Severity) string {
	switch s {
	case core.SeverityDebug:
		return colorGray
	case core.SeverityInfo:
		return colorGreen
	case core.SeverityNotice:
		return colorCyan
	case core.SeverityWarning:
		return colorYellow
	case core.SeverityError:
		return colorRed
	case core.SeverityFault:
		return colorMagenta
	default:
		return ""
	}
}

func colorize(text, color string, useColor bool) string {
	if !useColor || color == "" {
		return text
	}
	return color + text + colorReset
}

// shouldUseColor determines whether to colorize output for a writer.
func shouldUseColor(w io.Writer) bool {
	// Check BEACON_FORCE_COLOR first
	if force := os.Getenv("BEACON_FORCE_COLOR"); force != "" {
		switch strings.ToLower(force) {
		case "none", "0", "false", "off":
			return false
		case "true", "1", "on":
			return true
		}
	}

	// Check if NO_COLOR env var is set
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}

	// On Windows, only modern terminals support ANSI
	if runtime.GOOS == "windows" {
		if _, ok := os.LookupEnv("WT_SESSION"); ok {
			return true
		}
		if _, ok := os.LookupEnv("ConEmuPID"); ok {
			return true
		}
		return false
	}

	// On Unix-like systems, check if output is a terminal
	if f, ok := w.(*os.File); ok {
		if stat, err := f.Stat(); err == nil {
			return (stat.Mode() & os.ModeCharDevice) != 0
		}
	}
	return false
}
