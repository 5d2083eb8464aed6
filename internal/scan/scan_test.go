package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestFiles(t *testing.T) {
	root := tree(t,
		"main.go",
		"pkg/a.go",
		"pkg/a_test.go",
		"pkg/deep/b.go",
		"vendor/lib/c.go",
		"README.md",
	)

	testCases := []struct {
		name     string
		opts     Options
		expected []string
	}{
		{
			name:     "recursive include",
			opts:     Options{Include: []string{"**/*.go"}},
			expected: []string{"main.go", "pkg/a.go", "pkg/a_test.go", "pkg/deep/b.go", "vendor/lib/c.go"},
		},
		{
			name:     "exclude directory subtree",
			opts:     Options{Include: []string{"**/*.go"}, Exclude: []string{"vendor"}},
			expected: []string{"main.go", "pkg/a.go", "pkg/a_test.go", "pkg/deep/b.go"},
		},
		{
			name:     "exclude file pattern",
			opts:     Options{Include: []string{"**/*.go"}, Exclude: []string{"**/*_test.go", "vendor/**"}},
			expected: []string{"main.go", "pkg/a.go", "pkg/deep/b.go"},
		},
		{
			name:     "overlapping includes are deduplicated",
			opts:     Options{Include: []string{"pkg/**", "**/*.go"}, Exclude: []string{"vendor/**"}},
			expected: []string{"main.go", "pkg/a.go", "pkg/a_test.go", "pkg/deep/b.go"},
		},
		{
			name:     "limit applies after sorting",
			opts:     Options{Include: []string{"**/*.go"}, Limit: 2},
			expected: []string{"main.go", "pkg/a.go"},
		},
		{
			name:     "no matches",
			opts:     Options{Include: []string{"**/*.rs"}},
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Root = root
			files, err := Files(tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rel(t, root, files))
			for _, f := range files {
				assert.True(t, filepath.IsAbs(f))
			}
		})
	}
}

func TestFiles_Errors(t *testing.T) {
	root := tree(t, "a.go")

	_, err := Files(Options{Root: root, Include: []string{"[bad"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file pattern")

	_, err = Files(Options{Root: filepath.Join(root, "missing"), Include: []string{"*"}})
	require.Error(t, err)

	_, err = Files(Options{Root: filepath.Join(root, "a.go"), Include: []string{"*"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
