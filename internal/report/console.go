package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Console renders events for a human watching stderr. Progress is printed
// at roughly every tenth of the run and at completion.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	started  bool
	lastStep uint
}

// NewConsole creates a console emitter writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := e.(type) {
	case Progress:
		c.progress(ev)
	case Change:
		added, removed := DiffStats(ev.Diff)
		green.Fprintf(c.w, "✓ %s", ev.FilePath)
		if ev.Diff != "" {
			fmt.Fprintf(c.w, " (+%d -%d)", added, removed)
		}
		fmt.Fprintln(c.w)
	case Rewrite:
		cyan.Fprintf(c.w, "→ %s staged at %s\n", ev.InputPath, ev.StagedPath)
	case Error:
		if ev.FilePath != "" {
			red.Fprintf(c.w, "✗ %s: ", ev.FilePath)
		} else {
			red.Fprintf(c.w, "✗ ")
		}
		fmt.Fprintln(c.w, ev.Message)
	case Finish:
		green.Fprintln(c.w, "✓ Run finished")
	}
}

func (c *Console) progress(p Progress) {
	if p.Total == 0 {
		yellow.Fprintln(c.w, "⚠️  No files matched")
		return
	}
	step := p.Total / 10
	if step == 0 {
		step = 1
	}
	current := p.Processed / step
	if c.started && p.Processed != p.Total && current == c.lastStep {
		return
	}
	c.started = true
	c.lastStep = current
	fmt.Fprintf(c.w, "[%d/%d] %d%%\n", p.Processed, p.Total, p.Processed*100/p.Total)
}

// DiffStats counts added and removed lines in a unified diff. File headers
// are only recognised before the first hunk.
func DiffStats(unified string) (added, removed int) {
	inHunk := false
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case !inHunk:
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
