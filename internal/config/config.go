package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dyluth/burrow/internal/apply"
	"github.com/dyluth/burrow/internal/pool"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file burrow looks for in the working directory.
const DefaultFileName = "burrow.yml"

// Isolation modes for workers.
const (
	IsolationInProcess = "inprocess"
	IsolationProcess   = "process"
	IsolationContainer = "container"
)

// BurrowConfig represents the top-level burrow.yml configuration
type BurrowConfig struct {
	Version string        `yaml:"version"`
	Codemod CodemodConfig `yaml:"codemod"`
	Files   FilesConfig   `yaml:"files"`
	Workers WorkersConfig `yaml:"workers"`
	Output  OutputConfig  `yaml:"output"`
	Ledger  *LedgerConfig `yaml:"ledger,omitempty"`
	Health  *HealthConfig `yaml:"health,omitempty"`
}

// CodemodConfig selects the transformer.
type CodemodConfig struct {
	Name       string `yaml:"name"`                  // Case id reported in events; defaults to the engine name
	Engine     string `yaml:"engine"`                // lua, replace, exec or recipe
	Source     string `yaml:"source,omitempty"`      // Inline transformer source
	SourceFile string `yaml:"source_file,omitempty"` // Path to the transformer source, relative to the config file
}

// FilesConfig describes the file set a run covers.
type FilesConfig struct {
	Root    string   `yaml:"root,omitempty"` // Default "."
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude,omitempty"`
	Limit   int      `yaml:"limit,omitempty"` // 0 = no limit
}

// WorkersConfig sizes and isolates the worker pool.
type WorkersConfig struct {
	Count       int    `yaml:"count,omitempty"`        // Default: NumCPU-1, at least 1
	Isolation   string `yaml:"isolation,omitempty"`    // inprocess (default), process or container
	Image       string `yaml:"image,omitempty"`        // Required for container isolation
	StallBudget string `yaml:"stall_budget,omitempty"` // Go duration, default 10s
	OnStall     string `yaml:"on_stall,omitempty"`     // error (default) or requeue
}

// OutputConfig selects direct or staged application.
type OutputConfig struct {
	Mode      string `yaml:"mode,omitempty"`      // direct (default) or staged
	Directory string `yaml:"directory,omitempty"` // Required for staged
	Format    bool   `yaml:"format,omitempty"`    // Run formatters on output
}

// LedgerConfig enables the Redis run ledger.
type LedgerConfig struct {
	RedisURL string `yaml:"redis_url"`
	Instance string `yaml:"instance,omitempty"` // Default "default"
}

// HealthConfig enables the /healthz endpoint.
type HealthConfig struct {
	Addr string `yaml:"addr,omitempty"` // Default ":8080"
}

// Default returns a configuration with every default applied and no
// codemod selected.
func Default() *BurrowConfig {
	c := &BurrowConfig{Version: "1.0"}
	c.applyDefaults()
	return c
}

func (c *BurrowConfig) applyDefaults() {
	if c.Files.Root == "" {
		c.Files.Root = "."
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = runtime.NumCPU() - 1
		if c.Workers.Count < 1 {
			c.Workers.Count = 1
		}
	}
	if c.Workers.Isolation == "" {
		c.Workers.Isolation = IsolationInProcess
	}
	if c.Workers.StallBudget == "" {
		c.Workers.StallBudget = pool.DefaultStallBudget.String()
	}
	if c.Workers.OnStall == "" {
		c.Workers.OnStall = string(pool.StallError)
	}
	if c.Output.Mode == "" {
		c.Output.Mode = string(apply.ModeDirect)
	}
	if c.Ledger != nil && c.Ledger.Instance == "" {
		c.Ledger.Instance = "default"
	}
	if c.Health != nil && c.Health.Addr == "" {
		c.Health.Addr = ":8080"
	}
}

// Validate applies defaults and performs strict validation on the configuration
func (c *BurrowConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	c.applyDefaults()

	if c.Codemod.Engine == "" {
		return fmt.Errorf("codemod.engine is required")
	}
	if c.Codemod.Source != "" && c.Codemod.SourceFile != "" {
		return fmt.Errorf("codemod.source and codemod.source_file are mutually exclusive")
	}
	if c.Codemod.Source == "" && c.Codemod.SourceFile == "" {
		return fmt.Errorf("codemod.source or codemod.source_file is required")
	}
	if c.Codemod.Name == "" {
		c.Codemod.Name = c.Codemod.Engine
	}

	if len(c.Files.Include) == 0 {
		return fmt.Errorf("files.include must list at least one pattern")
	}
	for _, p := range append(append([]string{}, c.Files.Include...), c.Files.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid file pattern: %q", p)
		}
	}
	if c.Files.Limit < 0 {
		return fmt.Errorf("files.limit must be >= 0, got %d", c.Files.Limit)
	}

	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be >= 1, got %d", c.Workers.Count)
	}
	switch c.Workers.Isolation {
	case IsolationInProcess, IsolationProcess:
	case IsolationContainer:
		if c.Workers.Image == "" {
			return fmt.Errorf("workers.image is required for container isolation")
		}
	default:
		return fmt.Errorf("unknown workers.isolation '%s' (valid: inprocess, process, container)", c.Workers.Isolation)
	}
	budget, err := time.ParseDuration(c.Workers.StallBudget)
	if err != nil {
		return fmt.Errorf("invalid workers.stall_budget: %w", err)
	}
	if budget <= 0 {
		return fmt.Errorf("workers.stall_budget must be positive, got %s", budget)
	}
	if err := pool.StallPolicy(c.Workers.OnStall).Validate(); err != nil {
		return fmt.Errorf("invalid workers.on_stall: %w", err)
	}

	if err := apply.Mode(c.Output.Mode).Validate(); err != nil {
		return fmt.Errorf("invalid output.mode: %w", err)
	}
	if c.Output.Mode == string(apply.ModeStaged) && c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required when output.mode is staged")
	}

	if c.Ledger != nil && c.Ledger.RedisURL == "" {
		return fmt.Errorf("ledger.redis_url is required when the ledger section is present")
	}

	return nil
}

// StallBudget returns the parsed stall budget. Call after Validate.
func (c *BurrowConfig) StallBudget() time.Duration {
	d, err := time.ParseDuration(c.Workers.StallBudget)
	if err != nil {
		return pool.DefaultStallBudget
	}
	return d
}

// TransformerSource returns the inline source or reads source_file relative
// to baseDir.
func (c *BurrowConfig) TransformerSource(baseDir string) (string, error) {
	if c.Codemod.Source != "" {
		return c.Codemod.Source, nil
	}

	path := c.Codemod.SourceFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read transformer source: %w", err)
	}
	return string(data), nil
}

// Load reads and validates burrow.yml from the specified path
func Load(path string) (*BurrowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config BurrowConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
