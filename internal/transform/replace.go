package transform

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ReplaceEngine runs declarative find/replace rules written in YAML:
//
//	rules:
//	  - find: "log.Printf"
//	    replace: "logger.Infof"
//	  - find: 'Foo(\w+)'
//	    replace: 'Bar$1'
//	    regex: true
//	    files: "**/*.go"
//
// Rules run in order, each on the output of the previous one.
type ReplaceEngine struct{}

func (ReplaceEngine) Name() string { return "replace" }

// ReplaceRule is one find/replace step.
type ReplaceRule struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
	Regex   bool   `yaml:"regex,omitempty"`
	Files   string `yaml:"files,omitempty"`
}

// ReplaceRules is the document accepted by the replace engine.
type ReplaceRules struct {
	Rules []ReplaceRule `yaml:"rules"`
}

// Validate checks every rule.
func (r *ReplaceRules) Validate() error {
	if len(r.Rules) == 0 {
		return fmt.Errorf("no rules defined")
	}
	for i, rule := range r.Rules {
		if rule.Find == "" {
			return fmt.Errorf("rule %d: find is required", i)
		}
		if rule.Files != "" && !doublestar.ValidatePattern(rule.Files) {
			return fmt.Errorf("rule %d: invalid files pattern: %s", i, rule.Files)
		}
	}
	return nil
}

// Compile parses and validates the rule document.
func (ReplaceEngine) Compile(source string) (Transformer, error) {
	var doc ReplaceRules
	dec := yaml.NewDecoder(strings.NewReader(source))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	t := &replaceTransformer{rules: make([]compiledRule, 0, len(doc.Rules))}
	for i, rule := range doc.Rules {
		cr := compiledRule{ReplaceRule: rule}
		if rule.Regex {
			re, err := regexp.Compile(rule.Find)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid regex: %w", i, err)
			}
			cr.re = re
		}
		t.rules = append(t.rules, cr)
	}
	return t, nil
}

type compiledRule struct {
	ReplaceRule
	re *regexp.Regexp
}

func (r compiledRule) matches(p string) bool {
	if r.Files == "" {
		return true
	}
	slashed := filepath.ToSlash(p)
	if ok, _ := doublestar.Match(r.Files, slashed); ok {
		return true
	}
	if !strings.Contains(r.Files, "/") {
		ok, _ := doublestar.Match(r.Files, path.Base(slashed))
		return ok
	}
	return false
}

func (r compiledRule) apply(text string) string {
	if r.re != nil {
		return r.re.ReplaceAllString(text, r.Replace)
	}
	return strings.ReplaceAll(text, r.Find, r.Replace)
}

type replaceTransformer struct {
	rules []compiledRule
}

func (t *replaceTransformer) Transform(ctx context.Context, p, source string) (Output, error) {
	text := source
	for _, rule := range t.rules {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if rule.matches(p) {
			text = rule.apply(text)
		}
	}
	if text == source {
		return NoChange(), nil
	}
	return Rewrite(text), nil
}
