package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/run"
	"github.com/spf13/cobra"
)

var (
	runConfigPath  string
	runWorkers     int
	runIsolation   string
	runImage       string
	runMode        string
	runOutputDir   string
	runFormat      bool
	runLimit       int
	runStallBudget string
	runOnStall     string
	runRedisURL    string
	runInstance    string
	runHealthAddr  string
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a codemod over a file set",
	Long: `Run the codemod described by burrow.yml over its file set.

Events are written to stdout as line-delimited JSON:
  progress, change, rewrite, error and a single final finish.
Human-readable progress goes to stderr unless --quiet is set.

Writing the line "shutdown" to stdin stops the run immediately.

Flags override the corresponding burrow.yml settings.

Examples:
  # Apply changes in place
  burrow run

  # Stage results instead of touching the source tree
  burrow run --mode=staged --output-dir=.burrow/out

  # Record the run in Redis so it can be watched from elsewhere
  burrow run --redis-url=redis://localhost:6379`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runConfigPath, "config", "c", config.DefaultFileName, "Path to burrow.yml")
	f.IntVarP(&runWorkers, "workers", "w", 0, "Number of workers")
	f.StringVar(&runIsolation, "isolation", "", "Worker isolation: inprocess, process or container")
	f.StringVar(&runImage, "image", "", "Worker image for container isolation")
	f.StringVar(&runMode, "mode", "", "Output mode: direct or staged")
	f.StringVar(&runOutputDir, "output-dir", "", "Staging directory for staged mode")
	f.BoolVar(&runFormat, "format", false, "Format transformed files before applying")
	f.IntVar(&runLimit, "limit", 0, "Process at most this many files")
	f.StringVar(&runStallBudget, "stall-budget", "", "Replace a worker silent for this long (e.g. 10s)")
	f.StringVar(&runOnStall, "on-stall", "", "Stalled file handling: error or requeue")
	f.StringVar(&runRedisURL, "redis-url", "", "Record the run in the ledger at this Redis URL")
	f.StringVar(&runInstance, "instance", "", "Ledger instance name")
	f.StringVar(&runHealthAddr, "health-addr", "", "Serve /healthz on this address")
	f.BoolVarP(&runQuiet, "quiet", "q", false, "Suppress human-readable progress on stderr")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to load configuration",
			err.Error(),
			map[string]string{"Config": runConfigPath},
			[]string{fmt.Sprintf("Create %s or pass --config", config.DefaultFileName)},
		)
	}
	applyRunFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := run.Options{
		ConfigDir: filepath.Dir(runConfigPath),
		Events:    cmd.OutOrStdout(),
		Control:   cmd.InOrStdin(),
	}
	if !runQuiet {
		opts.Console = cmd.ErrOrStderr()
	}

	_, err = run.Execute(ctx, cfg, opts)
	switch {
	case err == nil:
		return nil
	case run.IsShutdown(err):
		exit(0)
		return nil
	case ctx.Err() != nil:
		return printer.Error("run interrupted", "The run was stopped by a signal before it finished.", nil)
	default:
		return printer.Error("run failed", err.Error(), nil)
	}
}

// applyRunFlags overrides configuration with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.BurrowConfig) {
	changed := cmd.Flags().Changed

	if changed("workers") {
		cfg.Workers.Count = runWorkers
	}
	if changed("isolation") {
		cfg.Workers.Isolation = runIsolation
	}
	if changed("image") {
		cfg.Workers.Image = runImage
	}
	if changed("mode") {
		cfg.Output.Mode = runMode
	}
	if changed("output-dir") {
		cfg.Output.Directory = runOutputDir
	}
	if changed("format") {
		cfg.Output.Format = runFormat
	}
	if changed("limit") {
		cfg.Files.Limit = runLimit
	}
	if changed("stall-budget") {
		cfg.Workers.StallBudget = runStallBudget
	}
	if changed("on-stall") {
		cfg.Workers.OnStall = runOnStall
	}
	if changed("redis-url") {
		if cfg.Ledger == nil {
			cfg.Ledger = &config.LedgerConfig{}
		}
		cfg.Ledger.RedisURL = runRedisURL
	}
	if changed("instance") && cfg.Ledger != nil {
		cfg.Ledger.Instance = runInstance
	}
	if changed("health-addr") {
		cfg.Health = &config.HealthConfig{Addr: runHealthAddr}
	}
}
