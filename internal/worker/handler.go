// Package worker implements the worker side of the burrow protocol and the
// spawners that start workers as goroutines, subprocesses or containers.
package worker

import (
	"context"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/dyluth/burrow/internal/command"
	"github.com/dyluth/burrow/internal/transform"
	"github.com/dyluth/burrow/pkg/protocol"
)

// Handler turns one dispatch into exactly one reply.
// A Handler is safe for concurrent use; compiled transformers are shared.
type Handler struct {
	cache *transform.Cache
}

// NewHandler creates a handler resolving engines from registry.
func NewHandler(registry *transform.Registry) *Handler {
	return &Handler{cache: transform.NewCache(registry)}
}

// Handle runs the dispatched file through its transformer and returns
// Commands when something changed, Idle when nothing did, and Error when the
// file could not be processed.
func (h *Handler) Handle(ctx context.Context, d protocol.Dispatch) protocol.Message {
	caseID := d.CaseID
	if caseID == "" {
		caseID = d.Engine
	}

	fail := func(err error) protocol.Message {
		return protocol.Error{
			Message: fmt.Sprintf("%s: %v", caseID, err),
			Path:    d.Path,
			CaseID:  caseID,
		}
	}

	tr, err := h.cache.Get(d.Engine, d.TransformerSource)
	if err != nil {
		return fail(err)
	}

	out, err := runTransform(ctx, tr, d.Path, d.Data)
	if err != nil {
		return fail(err)
	}

	if d.FormatOnApply {
		if out, err = formatOutput(d.Path, out); err != nil {
			return fail(err)
		}
	}

	if err := validateOutput(out); err != nil {
		return fail(err)
	}

	raws := command.FromOutput(d.Path, d.Data, out)
	if len(raws) == 0 {
		return protocol.Idle{}
	}

	cmds, err := command.BuildAll(raws, command.Options{
		CaseID:          caseID,
		Staged:          d.Staged,
		OutputDirectory: d.OutputDirectory,
	})
	if err != nil {
		return fail(err)
	}

	return protocol.Commands{Commands: cmds}
}

// runTransform calls the transformer and converts a panic into an error.
func runTransform(ctx context.Context, tr transform.Transformer, path, source string) (out transform.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Transformer panicked on %s: %v", path, r)
			err = fmt.Errorf("transformer panicked: %v", r)
		}
	}()
	return tr.Transform(ctx, path, source)
}

// validateOutput rejects text that cannot travel as a JSON string unchanged.
func validateOutput(out transform.Output) error {
	if !out.Unchanged && !out.Delete && !utf8.ValidString(out.Text) {
		return fmt.Errorf("transformer output is not valid UTF-8")
	}
	for _, f := range out.Created {
		if !utf8.ValidString(f.Data) {
			return fmt.Errorf("created file %s is not valid UTF-8", f.Path)
		}
	}
	return nil
}

func formatOutput(path string, out transform.Output) (transform.Output, error) {
	if !out.Unchanged && !out.Delete {
		target := path
		if out.RenameTo != "" {
			target = out.RenameTo
		}
		text, err := transform.Format(target, out.Text)
		if err != nil {
			return out, err
		}
		out.Text = text
	}

	for i, f := range out.Created {
		text, err := transform.Format(f.Path, f.Data)
		if err != nil {
			return out, err
		}
		out.Created[i].Data = text
	}

	return out, nil
}
