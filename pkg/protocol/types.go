package protocol

import (
	"fmt"

	"github.com/dyluth/burrow/internal/diff"
)

// Kind is the discriminant carried by every encoded message.
type Kind string

const (
	// KindDispatch asks a worker to transform one file.
	KindDispatch Kind = "dispatch"

	// KindExit asks a worker to stop.
	KindExit Kind = "exit"

	// KindCommands carries the file commands produced for a dispatched file.
	KindCommands Kind = "commands"

	// KindIdle reports that a dispatched file needed no change.
	KindIdle Kind = "idle"

	// KindError reports that a dispatched file could not be processed.
	KindError Kind = "error"
)

// Validate checks if the kind is one of the known message kinds.
func (k Kind) Validate() error {
	switch k {
	case KindDispatch, KindExit, KindCommands, KindIdle, KindError:
		return nil
	default:
		return fmt.Errorf("unknown message kind: %q", k)
	}
}

// Message is one protocol message. The set of implementations is closed.
type Message interface {
	Kind() Kind
	Validate() error
	isMessage()
}

// Dispatch assigns one file to a worker.
// Data holds the file's full contents; workers never read the source tree.
type Dispatch struct {
	Path              string `json:"path"`
	Data              string `json:"data"`
	Engine            string `json:"engine"`
	TransformerSource string `json:"transformerSource"`
	CaseID            string `json:"caseId"`
	FormatOnApply     bool   `json:"formatOnApply"`
	Staged            bool   `json:"staged,omitempty"`
	OutputDirectory   string `json:"outputDirectory,omitempty"`
}

func (Dispatch) Kind() Kind { return KindDispatch }
func (Dispatch) isMessage() {}

// Validate checks dispatch fields for consistency.
func (d Dispatch) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("dispatch path cannot be empty")
	}
	if d.Engine == "" {
		return fmt.Errorf("dispatch engine cannot be empty")
	}
	if d.Staged && d.OutputDirectory == "" {
		return fmt.Errorf("staged dispatch requires an output directory")
	}
	return nil
}

// Exit tells a worker to stop after its current message.
type Exit struct{}

func (Exit) Kind() Kind      { return KindExit }
func (Exit) Validate() error { return nil }
func (Exit) isMessage()      {}

// Commands carries the commands built for one dispatched file.
type Commands struct {
	Commands []FormattedFileCommand `json:"commands"`
}

func (Commands) Kind() Kind { return KindCommands }
func (Commands) isMessage() {}

// Validate checks that at least one command is present and each is well formed.
func (c Commands) Validate() error {
	if len(c.Commands) == 0 {
		return fmt.Errorf("commands message must carry at least one command")
	}
	for i, cmd := range c.Commands {
		if err := cmd.Validate(); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	return nil
}

// Idle reports that the dispatched file needed no change.
type Idle struct{}

func (Idle) Kind() Kind      { return KindIdle }
func (Idle) Validate() error { return nil }
func (Idle) isMessage()      {}

// Error reports a failure while processing the dispatched file.
type Error struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	CaseID  string `json:"caseId,omitempty"`
}

func (Error) Kind() Kind { return KindError }
func (Error) isMessage() {}

// Validate checks that the error carries a message.
func (e Error) Validate() error {
	if e.Message == "" {
		return fmt.Errorf("error message cannot be empty")
	}
	return nil
}

// CommandKind identifies a file mutation.
type CommandKind string

const (
	CommandCreate CommandKind = "createFile"
	CommandUpdate CommandKind = "updateFile"
	CommandDelete CommandKind = "deleteFile"
	CommandMove   CommandKind = "moveFile"
)

// Validate checks if the command kind is one of the known values.
func (k CommandKind) Validate() error {
	switch k {
	case CommandCreate, CommandUpdate, CommandDelete, CommandMove:
		return nil
	default:
		return fmt.Errorf("unknown command kind: %q", k)
	}
}

// FileCommand is a single file mutation. Which fields are meaningful depends
// on Kind:
//
//	createFile: Path, NewData
//	updateFile: Path, OldData, NewData
//	deleteFile: Path (OldData optional, used for the diff)
//	moveFile:   OldPath, NewPath
type FileCommand struct {
	Kind    CommandKind `json:"kind"`
	Path    string      `json:"path,omitempty"`
	OldPath string      `json:"oldPath,omitempty"`
	NewPath string      `json:"newPath,omitempty"`
	OldData string      `json:"oldData,omitempty"`
	NewData string      `json:"newData,omitempty"`
}

// Validate checks that the fields required by the command kind are set.
func (c FileCommand) Validate() error {
	if err := c.Kind.Validate(); err != nil {
		return err
	}

	switch c.Kind {
	case CommandCreate, CommandUpdate, CommandDelete:
		if c.Path == "" {
			return fmt.Errorf("%s requires a path", c.Kind)
		}
		if c.OldPath != "" || c.NewPath != "" {
			return fmt.Errorf("%s must not carry oldPath/newPath", c.Kind)
		}
	case CommandMove:
		if c.OldPath == "" || c.NewPath == "" {
			return fmt.Errorf("moveFile requires oldPath and newPath")
		}
		if c.OldPath == c.NewPath {
			return fmt.Errorf("moveFile oldPath and newPath are identical: %s", c.OldPath)
		}
		if c.Path != "" {
			return fmt.Errorf("moveFile must not carry path")
		}
	}

	if c.Kind == CommandUpdate && c.OldData == c.NewData {
		return fmt.Errorf("updateFile for %s does not change the file", c.Path)
	}

	return nil
}

// Target returns the path the command affects after it is applied.
func (c FileCommand) Target() string {
	if c.Kind == CommandMove {
		return c.NewPath
	}
	return c.Path
}

// Source returns the path the command reads from before it is applied.
func (c FileCommand) Source() string {
	if c.Kind == CommandMove {
		return c.OldPath
	}
	return c.Path
}

// FormattedFileCommand is a FileCommand ready to be applied or staged.
// Patch is set for update and delete; StagedPath is set in staged mode.
type FormattedFileCommand struct {
	FileCommand
	CaseID     string      `json:"caseId"`
	Patch      *diff.Patch `json:"patch,omitempty"`
	StagedPath string      `json:"stagedPath,omitempty"`
}

// Validate checks the embedded command plus the formatting fields.
func (c FormattedFileCommand) Validate() error {
	if err := c.FileCommand.Validate(); err != nil {
		return err
	}
	if c.CaseID == "" {
		return fmt.Errorf("%s for %s is missing a case id", c.Kind, c.Target())
	}

	switch c.Kind {
	case CommandUpdate, CommandDelete:
		if c.Patch == nil {
			return fmt.Errorf("%s for %s is missing its diff", c.Kind, c.Path)
		}
		for i, op := range c.Patch.Ops {
			if err := op.Kind.Validate(); err != nil {
				return fmt.Errorf("diff op %d: %w", i, err)
			}
		}
	case CommandCreate, CommandMove:
		if c.Patch != nil {
			return fmt.Errorf("%s must not carry a diff", c.Kind)
		}
	}

	return nil
}

// DiffText returns the unified diff for display, or "" when there is none.
func (c FormattedFileCommand) DiffText() string {
	if c.Patch == nil {
		return ""
	}
	return c.Patch.Unified
}
