package transform

import (
	"fmt"
	"go/format"
	"path/filepath"
)

// Format normalizes transform output before it is turned into commands.
// Go sources are run through gofmt; other files are returned as is.
func Format(path, text string) (string, error) {
	switch filepath.Ext(path) {
	case ".go":
		out, err := format.Source([]byte(text))
		if err != nil {
			return "", fmt.Errorf("failed to format %s: %w", path, err)
		}
		return string(out), nil
	default:
		return text, nil
	}
}
