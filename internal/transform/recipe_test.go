package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoStepRecipe = `
steps:
  - name: rename-logger
    engine: replace
    source: |
      rules:
        - find: "log.Printf"
          replace: "logger.Infof"
  - engine: lua
    source: |
      function transform(path, source)
        return string.upper(source)
      end
`

func TestRecipeEngine_TwoSteps(t *testing.T) {
	tr, err := DefaultRegistry().Compile("recipe", twoStepRecipe)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("second step sees first step output", func(t *testing.T) {
		out, err := tr.Transform(ctx, "a.go", "log.Printf(x)")
		require.NoError(t, err)
		assert.Equal(t, Rewrite("LOGGER.INFOF(X)"), out)
	})

	t.Run("unchanged step passes text through", func(t *testing.T) {
		out, err := tr.Transform(ctx, "a.go", "fmt.Println(x)")
		require.NoError(t, err)
		assert.Equal(t, Rewrite("FMT.PRINTLN(X)"), out)
	})

	t.Run("no step changes anything", func(t *testing.T) {
		out, err := tr.Transform(ctx, "a.go", "ALREADY UPPER")
		require.NoError(t, err)
		assert.True(t, out.Unchanged)
	})
}

func TestRecipeEngine_FailingMiddleStep(t *testing.T) {
	recipe := `
steps:
  - engine: replace
    source: |
      rules:
        - find: "a"
          replace: "b"
  - name: explode
    engine: lua
    source: |
      function transform(path, source)
        error("cannot handle " .. source)
      end
  - engine: lua
    source: |
      function transform(path, source)
        return "never reached"
      end
`
	tr, err := DefaultRegistry().Compile("recipe", recipe)
	require.NoError(t, err)

	_, err = tr.Transform(context.Background(), "f.txt", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1 (explode)")
	assert.Contains(t, err.Error(), "cannot handle b")
}

func TestRecipeEngine_FileOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("rename is seen by later steps and last rename wins", func(t *testing.T) {
		recipe := `
steps:
  - engine: lua
    source: |
      function transform(path, source)
        return { rename = "b.txt" }
      end
  - engine: lua
    source: |
      function transform(path, source)
        return { source = path, rename = "c.txt", create = { ["extra.txt"] = "x" } }
      end
`
		tr, err := DefaultRegistry().Compile("recipe", recipe)
		require.NoError(t, err)

		out, err := tr.Transform(ctx, "a.txt", "data")
		require.NoError(t, err)
		assert.Equal(t, "b.txt", out.Text)
		assert.Equal(t, "c.txt", out.RenameTo)
		assert.Equal(t, []File{{Path: "extra.txt", Data: "x"}}, out.Created)
	})

	t.Run("delete ends the chain", func(t *testing.T) {
		recipe := `
steps:
  - engine: lua
    source: |
      function transform(path, source)
        return { delete = true }
      end
  - engine: lua
    source: |
      function transform(path, source)
        error("should not run")
      end
`
		tr, err := DefaultRegistry().Compile("recipe", recipe)
		require.NoError(t, err)

		out, err := tr.Transform(ctx, "a.txt", "data")
		require.NoError(t, err)
		assert.True(t, out.Delete)
	})
}

func TestRecipeEngine_CompileErrors(t *testing.T) {
	testCases := []struct {
		name   string
		source string
		errMsg string
	}{
		{"no steps", "steps: []", "no steps defined"},
		{"missing engine", "steps:\n  - source: x", "step 0: engine is required"},
		{"unknown field", "steps:\n  - engine: lua\n    script: x", "failed to parse recipe"},
		{"unknown step engine", "steps:\n  - engine: nope\n    source: x", "unknown transform engine"},
		{"bad step source", "steps:\n  - name: broken\n    engine: lua\n    source: 'function ('", "step 0 (broken)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefaultRegistry().Compile("recipe", tc.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}

	_, err := RecipeEngine{}.Compile("steps:\n  - engine: lua")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registry")
}
