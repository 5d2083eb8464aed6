// Package diff computes line-based edit scripts between two versions of a file.
//
// A Patch carries two views of the same change: an ordered list of edit
// operations that can be replayed against the original text, and a unified
// diff string for display. Lines are split with their terminators kept, so
// replaying a patch reproduces the target text byte for byte, including a
// missing trailing newline.
package diff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// OpKind identifies a single edit operation.
type OpKind string

const (
	// OpEqual keeps Count lines of the original text.
	OpEqual OpKind = "equal"

	// OpDelete removes Lines from the original text.
	OpDelete OpKind = "delete"

	// OpInsert adds Lines to the output.
	OpInsert OpKind = "insert"
)

// Validate checks if the op kind is one of the known values.
func (k OpKind) Validate() error {
	switch k {
	case OpEqual, OpDelete, OpInsert:
		return nil
	default:
		return fmt.Errorf("invalid op kind: %q", k)
	}
}

// Op is one step of an edit script.
type Op struct {
	Kind  OpKind   `json:"op"`
	Count int      `json:"count,omitempty"` // Equal only
	Lines []string `json:"lines,omitempty"` // Delete and Insert, terminators included
}

// Patch is the difference between an old and a new text.
type Patch struct {
	Ops     []Op   `json:"ops"`
	Unified string `json:"unified"`
}

// contextLines is the number of unchanged lines shown around each hunk.
const contextLines = 3

// Compute builds the patch that turns oldText into newText.
// The path is only used for the unified diff headers.
func Compute(path, oldText, newText string) Patch {
	a := SplitLines(oldText)
	b := SplitLines(newText)

	ops := make([]Op, 0)
	for _, oc := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch oc.Tag {
		case 'e':
			ops = append(ops, Op{Kind: OpEqual, Count: oc.I2 - oc.I1})
		case 'd':
			ops = append(ops, Op{Kind: OpDelete, Lines: copyLines(a[oc.I1:oc.I2])})
		case 'i':
			ops = append(ops, Op{Kind: OpInsert, Lines: copyLines(b[oc.J1:oc.J2])})
		case 'r':
			ops = append(ops,
				Op{Kind: OpDelete, Lines: copyLines(a[oc.I1:oc.I2])},
				Op{Kind: OpInsert, Lines: copyLines(b[oc.J1:oc.J2])},
			)
		}
	}

	return Patch{
		Ops:     ops,
		Unified: unified(path, a, b),
	}
}

// Apply replays the patch against oldText and returns the resulting text.
// It fails if the patch does not describe oldText: deleted lines must match
// and every original line must be consumed exactly once.
func (p Patch) Apply(oldText string) (string, error) {
	src := SplitLines(oldText)
	var out strings.Builder
	out.Grow(len(oldText))

	pos := 0
	for i, op := range p.Ops {
		switch op.Kind {
		case OpEqual:
			if op.Count < 0 || pos+op.Count > len(src) {
				return "", fmt.Errorf("op %d: equal run of %d lines exceeds source at line %d", i, op.Count, pos+1)
			}
			for _, line := range src[pos : pos+op.Count] {
				out.WriteString(line)
			}
			pos += op.Count
		case OpDelete:
			for j, line := range op.Lines {
				if pos+j >= len(src) {
					return "", fmt.Errorf("op %d: delete runs past end of source", i)
				}
				if src[pos+j] != line {
					return "", fmt.Errorf("op %d: source line %d does not match deleted text", i, pos+j+1)
				}
			}
			pos += len(op.Lines)
		case OpInsert:
			for _, line := range op.Lines {
				out.WriteString(line)
			}
		default:
			return "", fmt.Errorf("op %d: %w", i, op.Kind.Validate())
		}
	}

	if pos != len(src) {
		return "", fmt.Errorf("patch covers %d of %d source lines", pos, len(src))
	}

	return out.String(), nil
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	for _, op := range p.Ops {
		if op.Kind != OpEqual {
			return false
		}
	}
	return true
}

// Stats returns the number of inserted and deleted lines.
func (p Patch) Stats() (added, removed int) {
	for _, op := range p.Ops {
		switch op.Kind {
		case OpInsert:
			added += len(op.Lines)
		case OpDelete:
			removed += len(op.Lines)
		}
	}
	return added, removed
}

// SplitLines splits s into lines, keeping each line's "\n" terminator.
// The final line has no terminator if s does not end with one.
func SplitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func copyLines(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// unified renders a/b as a unified diff. difflib writes lines verbatim, so a
// final line without a terminator gets one here plus the usual marker.
func unified(path string, a, b []string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        displayLines(a),
		B:        displayLines(b),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  contextLines,
	})
	if err != nil {
		// difflib only fails on writer errors, which a strings.Builder never returns
		return ""
	}
	return text
}

const noNewlineMarker = "\\ No newline at end of file\n"

func displayLines(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	last := lines[len(lines)-1]
	if strings.HasSuffix(last, "\n") {
		return lines
	}
	out := copyLines(lines)
	out[len(out)-1] = last + "\n" + noNewlineMarker
	return out
}
