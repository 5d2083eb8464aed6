// Package testutil holds helpers shared by end-to-end run tests.
package testutil

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/burrow/internal/report"
	"github.com/stretchr/testify/require"
)

// WriteTree creates files under root from a map of slash-separated relative
// paths to contents.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// ReadTree returns every regular file under root keyed by slash-separated
// relative path.
func ReadTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

// ParseEvents decodes an NDJSON event stream, failing the test on any line
// that is not a known event.
func ParseEvents(t *testing.T, stream []byte) []report.Event {
	t.Helper()
	var events []report.Event
	sc := bufio.NewScanner(bytes.NewReader(stream))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		e, err := report.Unmarshal(sc.Bytes())
		require.NoError(t, err, "invalid event line: %s", sc.Text())
		events = append(events, e)
	}
	require.NoError(t, sc.Err())
	return events
}

// Kinds returns the kind of every event, in order.
func Kinds(events []report.Event) []report.Kind {
	kinds := make([]report.Kind, len(events))
	for i, e := range events {
		kinds[i] = e.EventKind()
	}
	return kinds
}
