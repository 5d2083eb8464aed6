// Package apply turns commands received from workers into filesystem
// changes, either in place or staged into an output directory.
package apply

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/dyluth/burrow/internal/report"
	"github.com/dyluth/burrow/pkg/protocol"
)

// Mode selects where command output is written. It is fixed for a run.
type Mode string

const (
	// ModeDirect mutates the source tree.
	ModeDirect Mode = "direct"

	// ModeStaged writes would-be contents under the output directory and
	// leaves the source tree untouched.
	ModeStaged Mode = "staged"
)

// Validate checks if the mode is one of the known values.
func (m Mode) Validate() error {
	switch m {
	case ModeDirect, ModeStaged:
		return nil
	default:
		return fmt.Errorf("invalid output mode: %q (must be 'direct' or 'staged')", m)
	}
}

// Applier applies commands and reports each one as a change or rewrite event.
type Applier struct {
	mode    Mode
	emitter report.Emitter
}

// New creates an applier for mode.
func New(mode Mode, emitter report.Emitter) (*Applier, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = report.Discard
	}
	return &Applier{mode: mode, emitter: emitter}, nil
}

// Mode returns the applier's output mode.
func (a *Applier) Mode() Mode {
	return a.mode
}

// Apply performs one command. The event is emitted only on success.
func (a *Applier) Apply(ctx context.Context, cmd protocol.FormattedFileCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("refusing invalid command: %w", err)
	}

	if a.mode == ModeStaged {
		return a.stage(cmd)
	}
	return a.direct(cmd)
}

func (a *Applier) direct(cmd protocol.FormattedFileCommand) error {
	switch cmd.Kind {
	case protocol.CommandCreate:
		if err := os.MkdirAll(filepath.Dir(cmd.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create parent directory of %s: %w", cmd.Path, err)
		}
		if err := WriteFileAtomic(cmd.Path, []byte(cmd.NewData), 0o644); err != nil {
			return err
		}

	case protocol.CommandUpdate:
		info, err := os.Stat(cmd.Path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", cmd.Path, err)
		}
		current, err := os.ReadFile(cmd.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", cmd.Path, err)
		}
		if string(current) != cmd.OldData {
			return fmt.Errorf("%s changed on disk since it was read", cmd.Path)
		}
		updated, err := cmd.Patch.Apply(string(current))
		if err != nil {
			return fmt.Errorf("failed to apply diff to %s: %w", cmd.Path, err)
		}
		if err := WriteFileAtomic(cmd.Path, []byte(updated), info.Mode().Perm()); err != nil {
			return err
		}

	case protocol.CommandDelete:
		if err := os.Remove(cmd.Path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", cmd.Path, err)
		}

	case protocol.CommandMove:
		if _, err := os.Stat(cmd.NewPath); err == nil {
			return fmt.Errorf("cannot move %s: %s already exists", cmd.OldPath, cmd.NewPath)
		}
		if err := os.MkdirAll(filepath.Dir(cmd.NewPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent directory of %s: %w", cmd.NewPath, err)
		}
		if err := os.Rename(cmd.OldPath, cmd.NewPath); err != nil {
			return fmt.Errorf("failed to move %s to %s: %w", cmd.OldPath, cmd.NewPath, err)
		}
	}

	a.emitter.Emit(report.NewChange(cmd.Target(), cmd.DiffText(), cmd.CaseID))
	return nil
}

func (a *Applier) stage(cmd protocol.FormattedFileCommand) error {
	if cmd.StagedPath == "" {
		return fmt.Errorf("%s for %s has no staged path", cmd.Kind, cmd.Target())
	}

	var content string
	switch cmd.Kind {
	case protocol.CommandCreate, protocol.CommandUpdate:
		content = cmd.NewData
	case protocol.CommandDelete:
		content = ""
	case protocol.CommandMove:
		data, err := os.ReadFile(cmd.OldPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", cmd.OldPath, err)
		}
		content = string(data)
	}

	if err := os.MkdirAll(filepath.Dir(cmd.StagedPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := WriteFileAtomic(cmd.StagedPath, []byte(content), 0o644); err != nil {
		return err
	}

	a.emitter.Emit(report.NewRewrite(cmd.Source(), cmd.StagedPath, cmd.CaseID))
	return nil
}

// WriteFileAtomic replaces path with data via a temp file in the same
// directory and a rename, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".burrow-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Printf("[Apply] Failed to remove temp file %s: %v", tmpName, err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
