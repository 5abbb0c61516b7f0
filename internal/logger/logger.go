// Package logger implements the Target → Step → Action progress tree: a
// single mutex-guarded struct, repainted in place by moving the cursor up
// the previously drawn row count and rewriting it. There is no
// package-level instance; internal/runctx.New builds one Tree per
// invocation and threads it through Context.Log. Styling reuses
// github.com/charmbracelet/lipgloss, already present in the teacher's
// dependency graph transitively through its terminal UI tooling, the same
// way githubnext-gh-aw's pkg/console/console.go applies lipgloss styles
// conditionally based on whether stdout is a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/dalecbuild/emake/internal/action"
	"github.com/dalecbuild/emake/internal/graph"
)

// Status is one of the four states spec §4.8 names for every tree node.
type Status int

const (
	StatusProgress Status = iota
	StatusDone
	StatusFailed
	StatusSkipped
)

func (s Status) label() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "running"
	}
}

// Indicator names the optional progress presentation for a running action.
type Indicator int

const (
	IndicatorNone Indicator = iota
	IndicatorSpinner
	IndicatorBar
)

var (
	styleDone     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	styleSkipped  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleTarget   = lipgloss.NewStyle().Bold(true)
)

func styleFor(s Status) lipgloss.Style {
	switch s {
	case StatusDone:
		return styleDone
	case StatusFailed:
		return styleFailed
	case StatusSkipped:
		return styleSkipped
	default:
		return styleProgress
	}
}

type actionState struct {
	index     int
	kind      string
	status    Status
	indicator Indicator
	percent   int
	lastLine  string
	err       error
}

type targetState struct {
	name    string
	status  Status
	order   []int
	actions map[int]*actionState
}

// Tree is the mutex-guarded progress tree. It implements
// internal/runner.Logger.
type Tree struct {
	mu        sync.Mutex
	out       io.Writer
	isTTY     bool
	targets   map[string]*targetState
	order     []string
	lastLines int

	// Verbose gates WriteLine: the default (false, "silent") shows only
	// status transitions; `emake build --notsilent` sets this so a running
	// shell command's streamed stdout/stderr lines surface on the tree too.
	Verbose bool
}

// New constructs a Tree writing to stdout. Rendering degrades to plain
// appended lines (no cursor repaint) when stdout isn't a terminal, the same
// conditional lipgloss styling approach the teacher's own console package
// uses for its TTY-vs-pipe distinction.
func New() *Tree {
	return &Tree{
		out:     os.Stdout,
		isTTY:   isTerminal(os.Stdout),
		targets: make(map[string]*targetState),
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// terminalWidth returns stdout's column count, falling back to 80 when it
// can't be determined (piped output, or a non-terminal fd) — the same
// fallback original_source's terminal_size wrapper used for its own
// line-truncation logic.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// truncateLine clips s to fit within width columns, the way a
// fixed-width terminal row can't scroll to show an overlong action line.
func truncateLine(s string, width int) string {
	if width <= 1 || len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}

// NodeProgress marks a node Running and renders. id is either a bare
// target id (synthetic target-entry node) or "<target id>#<step index>".
func (t *Tree) NodeProgress(id graph.NodeID, targetID string) {
	t.update(id, targetID, StatusProgress, nil)
}

func (t *Tree) NodeDone(id graph.NodeID) {
	t.update(id, "", StatusDone, nil)
}

func (t *Tree) NodeFailed(id graph.NodeID, err error) {
	t.update(id, "", StatusFailed, err)
}

func (t *Tree) NodeSkipped(id graph.NodeID) {
	t.update(id, "", StatusSkipped, nil)
}

// ActionWriter returns an action.ProgressSink bound to one node id, handed
// to internal/action.Context.Log so a running shell command's stdout/stderr
// lines land on the right tree row.
func (t *Tree) ActionWriter(id graph.NodeID) action.ProgressSink {
	return actionSink{tree: t, id: id}
}

type actionSink struct {
	tree *Tree
	id   graph.NodeID
}

func (s actionSink) Write(line string) { s.tree.WriteLine(s.id, line) }

// WriteLine forwards a free-form progress line from a running action into
// the matching action node's last-line field, surfaced on the next render.
func (t *Tree) WriteLine(id graph.NodeID, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.Verbose {
		return
	}
	targetID, idx, hasStep := parseNodeID(id)
	if !hasStep {
		return
	}
	tgt := t.targets[targetID]
	if tgt == nil {
		return
	}
	if a := tgt.actions[idx]; a != nil {
		a.lastLine = line
	}
	t.render()
}

func (t *Tree) update(id graph.NodeID, targetID string, status Status, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parsedTarget, idx, hasStep := parseNodeID(id)
	if targetID == "" {
		targetID = parsedTarget
	}

	tgt := t.targets[targetID]
	if tgt == nil {
		tgt = &targetState{name: targetID, actions: make(map[int]*actionState)}
		t.targets[targetID] = tgt
		t.order = append(t.order, targetID)
	}

	if hasStep {
		a := tgt.actions[idx]
		if a == nil {
			a = &actionState{index: idx}
			tgt.actions[idx] = a
			tgt.order = append(tgt.order, idx)
		}
		a.status = status
		a.err = err
		if status == StatusProgress {
			a.indicator = IndicatorSpinner
		} else {
			a.indicator = IndicatorNone
		}
	}

	tgt.status = worstStatus(tgt)
	t.render()
}

func worstStatus(tgt *targetState) Status {
	status := StatusDone
	sawRunning := false
	for _, idx := range tgt.order {
		a := tgt.actions[idx]
		switch a.status {
		case StatusFailed:
			return StatusFailed
		case StatusProgress:
			sawRunning = true
		case StatusSkipped:
			if status == StatusDone {
				status = StatusSkipped
			}
		}
	}
	if sawRunning {
		return StatusProgress
	}
	return status
}

func parseNodeID(id graph.NodeID) (targetID string, stepIndex int, hasStep bool) {
	s := string(id)
	i := strings.LastIndex(s, "#")
	if i < 0 {
		return s, 0, false
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], idx, true
}

// render repaints the whole tree in place: move the cursor up the number
// of rows the previous render occupied, then rewrite every row. Rendering
// runs cooperatively, triggered only by state-changing calls above, not on
// a timer.
func (t *Tree) render() {
	var sb strings.Builder
	lines := 0
	width := 80
	if t.isTTY {
		width = terminalWidth()
	}

	for _, targetID := range t.order {
		tgt := t.targets[targetID]
		fmt.Fprintf(&sb, "%s %s\n", styleFor(tgt.status).Render(tgt.status.label()), styleTarget.Render(tgt.name))
		lines++
		for _, idx := range tgt.order {
			a := tgt.actions[idx]
			line := fmt.Sprintf("  [%d] %s", a.index, a.status.label())
			if a.indicator == IndicatorSpinner {
				line = "  [" + strconv.Itoa(a.index) + "] running"
			}
			if a.lastLine != "" {
				line += ": " + a.lastLine
			}
			if a.err != nil {
				line += ": " + a.err.Error()
			}
			fmt.Fprintln(&sb, styleFor(a.status).Render(truncateLine(line, width)))
			lines++
		}
	}

	if t.isTTY && t.lastLines > 0 {
		fmt.Fprintf(t.out, "\033[%dA", t.lastLines)
	}
	io.WriteString(t.out, sb.String())
	t.lastLines = lines
}
