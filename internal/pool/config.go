package pool

import (
	"fmt"
	"time"
)

const (
	// DefaultStallBudget is how long a busy worker may stay silent before it
	// is replaced.
	DefaultStallBudget = 10 * time.Second

	// DefaultTickInterval is how often busy workers are checked for stalls.
	DefaultTickInterval = time.Second
)

// StallPolicy decides what happens to the task of a stalled worker.
type StallPolicy string

const (
	// StallError reports the task as an error and counts it as processed.
	StallError StallPolicy = "error"

	// StallRequeue puts the task back on the backlog once. A second stall
	// on the same task is reported as an error.
	StallRequeue StallPolicy = "requeue"
)

// Validate checks if the policy is one of the known values.
func (p StallPolicy) Validate() error {
	switch p {
	case StallError, StallRequeue:
		return nil
	default:
		return fmt.Errorf("invalid stall policy: %q (must be 'error' or 'requeue')", p)
	}
}

// Config describes one run of the pool. Everything except Workers and the
// timing fields is copied verbatim into each Dispatch.
type Config struct {
	Workers int

	Engine            string
	TransformerSource string
	CaseID            string
	FormatOnApply     bool
	Staged            bool
	OutputDirectory   string

	StallBudget  time.Duration
	TickInterval time.Duration
	StallPolicy  StallPolicy
}

// withDefaults returns a copy with zero-valued timing and policy fields filled in.
func (c Config) withDefaults() Config {
	if c.StallBudget <= 0 {
		c.StallBudget = DefaultStallBudget
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.StallPolicy == "" {
		c.StallPolicy = StallError
	}
	return c
}

// Validate checks that the pool can be started.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Workers)
	}
	if c.Engine == "" {
		return fmt.Errorf("engine is required")
	}
	if c.Staged && c.OutputDirectory == "" {
		return fmt.Errorf("output directory is required in staged mode")
	}
	return c.withDefaults().StallPolicy.Validate()
}
