// Package command turns transform results into file commands and formats
// them for application or staging.
package command

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/dyluth/burrow/internal/diff"
	"github.com/dyluth/burrow/internal/transform"
	"github.com/dyluth/burrow/pkg/protocol"
)

// Options control how raw commands are formatted.
type Options struct {
	CaseID          string
	Staged          bool
	OutputDirectory string
}

// FromOutput derives the raw commands implied by a transform output for the
// file at path whose current contents are old. An unchanged output yields no
// commands.
func FromOutput(path, old string, out transform.Output) []protocol.FileCommand {
	var cmds []protocol.FileCommand

	renamed := !out.Delete && out.RenameTo != "" && out.RenameTo != path
	changed := !out.Unchanged && out.Text != old

	switch {
	case renamed && changed:
		// rewritten and renamed: write the new file, drop the old one
		cmds = append(cmds,
			protocol.FileCommand{Kind: protocol.CommandCreate, Path: out.RenameTo, NewData: out.Text},
			protocol.FileCommand{Kind: protocol.CommandDelete, Path: path, OldData: old},
		)
	case renamed:
		cmds = append(cmds, protocol.FileCommand{
			Kind:    protocol.CommandMove,
			OldPath: path,
			NewPath: out.RenameTo,
		})
	case out.Delete:
		cmds = append(cmds, protocol.FileCommand{
			Kind:    protocol.CommandDelete,
			Path:    path,
			OldData: old,
		})
	case changed:
		cmds = append(cmds, protocol.FileCommand{
			Kind:    protocol.CommandUpdate,
			Path:    path,
			OldData: old,
			NewData: out.Text,
		})
	}

	for _, f := range out.Created {
		cmds = append(cmds, protocol.FileCommand{
			Kind:    protocol.CommandCreate,
			Path:    f.Path,
			NewData: f.Data,
		})
	}

	return cmds
}

// Build validates a raw command and returns its formatted form: a diff for
// update and delete, and a staging path when staging is enabled.
func Build(raw protocol.FileCommand, opts Options) (protocol.FormattedFileCommand, error) {
	if err := raw.Validate(); err != nil {
		return protocol.FormattedFileCommand{}, fmt.Errorf("invalid command: %w", err)
	}
	if opts.CaseID == "" {
		return protocol.FormattedFileCommand{}, fmt.Errorf("case id is required to build %s for %s", raw.Kind, raw.Target())
	}
	if opts.Staged && opts.OutputDirectory == "" {
		return protocol.FormattedFileCommand{}, fmt.Errorf("staged build requires an output directory")
	}

	formatted := protocol.FormattedFileCommand{
		FileCommand: raw,
		CaseID:      opts.CaseID,
	}

	switch raw.Kind {
	case protocol.CommandUpdate:
		patch := diff.Compute(raw.Path, raw.OldData, raw.NewData)
		formatted.Patch = &patch
	case protocol.CommandDelete:
		patch := diff.Compute(raw.Path, raw.OldData, "")
		formatted.Patch = &patch
	}

	if opts.Staged {
		formatted.StagedPath = StagingPath(opts.OutputDirectory, raw.Target(), opts.CaseID)
	}

	return formatted, nil
}

// BuildAll formats every raw command with the same options.
func BuildAll(raws []protocol.FileCommand, opts Options) ([]protocol.FormattedFileCommand, error) {
	out := make([]protocol.FormattedFileCommand, 0, len(raws))
	for _, raw := range raws {
		cmd, err := Build(raw, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

// StagingName returns the stable staging file name for a (path, caseID)
// pair: the URL-safe base64 of md5(path ‖ caseID) with a .txt suffix.
func StagingName(path, caseID string) string {
	sum := md5.Sum([]byte(path + caseID))
	return base64.RawURLEncoding.EncodeToString(sum[:]) + ".txt"
}

// StagingPath joins the staging name onto the output directory.
func StagingPath(outputDirectory, path, caseID string) string {
	return filepath.Join(outputDirectory, StagingName(path, caseID))
}
