package transform

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecipeEngine chains other engines over one file:
//
//	steps:
//	  - name: rename-logger
//	    engine: replace
//	    source: |
//	      rules:
//	        - find: "log.Printf"
//	          replace: "logger.Infof"
//	  - engine: exec
//	    source: 'command: ["gofmt"]'
//
// Each step sees the text and path produced by the steps before it. A step
// that deletes the file ends the chain. Created files accumulate and the last
// rename wins.
type RecipeEngine struct {
	Registry *Registry
}

func (RecipeEngine) Name() string { return "recipe" }

// RecipeStep is one transformer in a recipe.
type RecipeStep struct {
	Name   string `yaml:"name,omitempty"`
	Engine string `yaml:"engine"`
	Source string `yaml:"source"`
}

// label names the step in errors.
func (s RecipeStep) label(i int) string {
	if s.Name != "" {
		return fmt.Sprintf("step %d (%s)", i, s.Name)
	}
	return fmt.Sprintf("step %d (%s)", i, s.Engine)
}

// Recipe is the document accepted by the recipe engine.
type Recipe struct {
	Steps []RecipeStep `yaml:"steps"`
}

// Validate checks every step.
func (r *Recipe) Validate() error {
	if len(r.Steps) == 0 {
		return fmt.Errorf("no steps defined")
	}
	for i, step := range r.Steps {
		if step.Engine == "" {
			return fmt.Errorf("step %d: engine is required", i)
		}
	}
	return nil
}

// Compile parses the recipe and compiles every step through the registry.
func (e RecipeEngine) Compile(source string) (Transformer, error) {
	if e.Registry == nil {
		return nil, fmt.Errorf("recipe engine has no registry")
	}

	var doc Recipe
	dec := yaml.NewDecoder(strings.NewReader(source))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	t := &recipeTransformer{steps: make([]compiledStep, 0, len(doc.Steps))}
	for i, step := range doc.Steps {
		tr, err := e.Registry.Compile(step.Engine, step.Source)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.label(i), err)
		}
		t.steps = append(t.steps, compiledStep{label: step.label(i), tr: tr})
	}
	return t, nil
}

type compiledStep struct {
	label string
	tr    Transformer
}

type recipeTransformer struct {
	steps []compiledStep
}

func (t *recipeTransformer) Transform(ctx context.Context, path, source string) (Output, error) {
	result := NoChange()
	text, current := source, path

	for _, step := range t.steps {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}

		out, err := step.tr.Transform(ctx, current, text)
		if err != nil {
			return Output{}, fmt.Errorf("%s: %w", step.label, err)
		}

		result.Created = append(result.Created, out.Created...)
		if out.Delete {
			return Output{Delete: true, Created: result.Created}, nil
		}
		if !out.Unchanged && out.Text != text {
			text = out.Text
			result.Unchanged = false
		}
		if out.RenameTo != "" && out.RenameTo != current {
			current = out.RenameTo
			result.RenameTo = current
		}
	}

	if !result.Unchanged {
		result.Text = text
	}
	if result.RenameTo == path {
		result.RenameTo = ""
	}
	return result, nil
}
