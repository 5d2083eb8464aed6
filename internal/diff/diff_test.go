package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLines(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", []string{}},
		{"single terminated", "a\n", []string{"a\n"}},
		{"single unterminated", "a", []string{"a"}},
		{"mixed", "a\nb\nc", []string{"a\n", "b\n", "c"}},
		{"blank lines", "\n\n", []string{"\n", "\n"}},
		{"crlf kept", "a\r\nb\r\n", []string{"a\r\n", "b\r\n"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SplitLines(tc.input))
		})
	}
}

func TestCompute_RoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		old  string
		new  string
	}{
		{"replace middle line", "a\nb\nc\n", "a\nB\nc\n"},
		{"append line", "a\nb\n", "a\nb\nc\n"},
		{"prepend line", "b\nc\n", "a\nb\nc\n"},
		{"delete everything", "a\nb\nc\n", ""},
		{"create from empty", "", "x\ny\n"},
		{"drop trailing newline", "a\nb\n", "a\nb"},
		{"add trailing newline", "a\nb", "a\nb\n"},
		{"whitespace only", "func f() {\n\treturn\n}\n", "func f() {\n    return\n}\n"},
		{"large rewrite", strings.Repeat("line\n", 200), strings.Repeat("other\n", 150)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			patch := Compute("file.txt", tc.old, tc.new)

			got, err := patch.Apply(tc.old)
			require.NoError(t, err)
			assert.Equal(t, tc.new, got)
			assert.False(t, patch.Empty())
			assert.NotEmpty(t, patch.Unified)
		})
	}
}

func TestCompute_Identical(t *testing.T) {
	patch := Compute("same.txt", "a\nb\n", "a\nb\n")

	assert.True(t, patch.Empty())
	assert.Empty(t, patch.Unified)

	got, err := patch.Apply("a\nb\n")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", got)
}

func TestCompute_UnifiedHeaders(t *testing.T) {
	patch := Compute("src/main.go", "one\ntwo\n", "one\n2\n")

	assert.Contains(t, patch.Unified, "--- a/src/main.go")
	assert.Contains(t, patch.Unified, "+++ b/src/main.go")
	assert.Contains(t, patch.Unified, "-two\n")
	assert.Contains(t, patch.Unified, "+2\n")
}

func TestCompute_NoNewlineMarker(t *testing.T) {
	patch := Compute("f", "a\n", "a\nb")
	assert.Contains(t, patch.Unified, noNewlineMarker)
}

func TestPatch_Stats(t *testing.T) {
	patch := Compute("f", "a\nb\nc\n", "a\nx\ny\nc\n")

	added, removed := patch.Stats()
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)
}

func TestPatch_ApplyRejectsMismatch(t *testing.T) {
	patch := Compute("f", "a\nb\nc\n", "a\nB\nc\n")

	t.Run("different source", func(t *testing.T) {
		_, err := patch.Apply("a\nz\nc\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})

	t.Run("shorter source", func(t *testing.T) {
		_, err := patch.Apply("a\n")
		require.Error(t, err)
	})

	t.Run("longer source", func(t *testing.T) {
		_, err := patch.Apply("a\nb\nc\nd\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "covers 3 of 4")
	})

	t.Run("unknown op", func(t *testing.T) {
		bad := Patch{Ops: []Op{{Kind: "swap"}}}
		_, err := bad.Apply("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid op kind")
	})
}

func TestOpKind_Validate(t *testing.T) {
	assert.NoError(t, OpEqual.Validate())
	assert.NoError(t, OpDelete.Validate())
	assert.NoError(t, OpInsert.Validate())
	assert.Error(t, OpKind("").Validate())
}
