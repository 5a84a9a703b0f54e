package report

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jpalmerr/sitecheck"
)

// Console prints human-readable progress lines.
//
// Line formats:
//
//	Found 3 URLs
//	[200] https://example.com - 12ms
//	[ERR] https://down.example - request failed: ...
//	3 targets: 2 ok, 1 failed in 1.204s
//
// A Console is safe for concurrent use.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	success lipgloss.Style
	client  lipgloss.Style
	server  lipgloss.Style
	failure lipgloss.Style
	faint   lipgloss.Style
}

// NewConsole creates a [Console] writing to w. When color is false the
// output is plain ASCII.
func NewConsole(w io.Writer, color bool) *Console {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Console{
		w:       w,
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		client:  r.NewStyle().Foreground(lipgloss.Color("3")),
		server:  r.NewStyle().Foreground(lipgloss.Color("1")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		faint:   r.NewStyle().Faint(true),
	}
}

// ColorEnabled reports whether colored output should be used for f:
// f must be a terminal and NO_COLOR must be unset.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Banner prints the number of targets about to be probed.
func (c *Console) Banner(n int) {
	c.println(fmt.Sprintf("Found %d URLs", n))
}

// Outcome prints one progress line.
func (c *Console) Outcome(o sitecheck.Outcome) {
	if !o.OK() {
		c.println(fmt.Sprintf("%s %s - %s", c.failure.Render("[ERR]"), o.Target, o.Reason()))
		return
	}

	code := fmt.Sprintf("[%d]", o.StatusCode)
	c.println(fmt.Sprintf("%s %s - %s",
		c.codeStyle(o.StatusCode).Render(code),
		o.Target,
		c.faint.Render(fmt.Sprintf("%dms", o.Elapsed.Milliseconds())),
	))
}

// Summary prints the totals of a finished run.
func (c *Console) Summary(run *sitecheck.Run) {
	ok, failed := run.Counts()

	failedText := fmt.Sprintf("%d failed", failed)
	if failed > 0 {
		failedText = c.failure.Render(failedText)
	}

	c.println(fmt.Sprintf("%d targets: %s, %s in %s",
		len(run.Outcomes),
		c.success.Render(fmt.Sprintf("%d ok", ok)),
		failedText,
		run.Duration().Round(time.Millisecond),
	))
}

func (c *Console) codeStyle(code int) lipgloss.Style {
	switch {
	case code >= 500:
		return c.server
	case code >= 400:
		return c.client
	default:
		return c.success
	}
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, line)
}
