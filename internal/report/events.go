// Package report defines the events a run emits and the emitters that
// deliver them: NDJSON on stdout for callers, colored progress on stderr
// for humans, and the Redis run ledger.
package report

import "fmt"

// Kind is the discriminant of an event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindFinish   Kind = "finish"
	KindError    Kind = "error"
	KindRewrite  Kind = "rewrite"
	KindChange   Kind = "change"
)

// Validate checks if the kind is one of the known event kinds.
func (k Kind) Validate() error {
	switch k {
	case KindProgress, KindFinish, KindError, KindRewrite, KindChange:
		return nil
	default:
		return fmt.Errorf("unknown event kind: %q", k)
	}
}

// Event is one item of the output stream. The set of implementations is closed.
type Event interface {
	EventKind() Kind
}

// Progress reports how many files have been processed out of the total.
type Progress struct {
	Kind      Kind `json:"kind"`
	Processed uint `json:"processed"`
	Total     uint `json:"total"`
}

// Finish is the last event of a run.
type Finish struct {
	Kind Kind `json:"kind"`
}

// Error reports a failure. CaseID and FilePath are set when the failure is
// tied to a transformer or a file.
type Error struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	CaseID   string `json:"caseId,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// Rewrite reports that the would-be contents of InputPath were staged.
type Rewrite struct {
	Kind       Kind   `json:"kind"`
	InputPath  string `json:"inputPath"`
	StagedPath string `json:"stagedPath"`
	CaseID     string `json:"caseId"`
}

// Change reports a file mutated in place.
type Change struct {
	Kind     Kind   `json:"kind"`
	FilePath string `json:"filePath"`
	Diff     string `json:"diff"`
	CaseID   string `json:"caseId"`
}

func (Progress) EventKind() Kind { return KindProgress }
func (Finish) EventKind() Kind   { return KindFinish }
func (Error) EventKind() Kind    { return KindError }
func (Rewrite) EventKind() Kind  { return KindRewrite }
func (Change) EventKind() Kind   { return KindChange }

func NewProgress(processed, total uint) Progress {
	return Progress{Kind: KindProgress, Processed: processed, Total: total}
}

func NewFinish() Finish {
	return Finish{Kind: KindFinish}
}

func NewError(message, caseID, filePath string) Error {
	return Error{Kind: KindError, Message: message, CaseID: caseID, FilePath: filePath}
}

func NewRewrite(inputPath, stagedPath, caseID string) Rewrite {
	return Rewrite{Kind: KindRewrite, InputPath: inputPath, StagedPath: stagedPath, CaseID: caseID}
}

func NewChange(filePath, diff, caseID string) Change {
	return Change{Kind: KindChange, FilePath: filePath, Diff: diff, CaseID: caseID}
}
