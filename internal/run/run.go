// Package run wires a loaded configuration into a complete codemod run.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/client"
	"github.com/dyluth/burrow/internal/apply"
	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/control"
	"github.com/dyluth/burrow/internal/docker"
	"github.com/dyluth/burrow/internal/health"
	"github.com/dyluth/burrow/internal/pool"
	"github.com/dyluth/burrow/internal/report"
	"github.com/dyluth/burrow/internal/scan"
	"github.com/dyluth/burrow/internal/transform"
	"github.com/dyluth/burrow/internal/worker"
	"github.com/dyluth/burrow/pkg/ledger"
	"golang.org/x/sync/errgroup"
)

const healthShutdownTimeout = 5 * time.Second

// Options carry everything a run needs besides its configuration.
type Options struct {
	// ConfigDir resolves relative paths in the configuration.
	ConfigDir string

	// Events receives the NDJSON event stream. Defaults to os.Stdout.
	Events io.Writer

	// Console receives colored progress. Nil disables it.
	Console io.Writer

	// Control is read for the shutdown token. Nil disables it.
	Control io.Reader

	// Registry resolves transform engines. Defaults to transform.DefaultRegistry.
	Registry *transform.Registry

	// Executable is the burrow binary used for process isolation.
	Executable string

	// Docker is used for container isolation. When nil a client is
	// created from the environment.
	Docker client.ContainerAPIClient

	// PoolOptions are passed through to the pool, mainly for tests.
	PoolOptions []pool.Option
}

// Result summarises a completed run.
type Result struct {
	RunID  string
	Files  int
	Status pool.Status
}

// Execute runs the configured codemod over its file set. Configuration
// problems are returned before any worker starts. It returns
// pool.ErrShutdown when the shutdown token is read from Control.
func Execute(ctx context.Context, cfg *config.BurrowConfig, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Registry == nil {
		opts.Registry = transform.DefaultRegistry()
	}
	if opts.Events == nil {
		opts.Events = os.Stdout
	}

	source, err := cfg.TransformerSource(opts.ConfigDir)
	if err != nil {
		return nil, err
	}
	if _, err := opts.Registry.Compile(cfg.Codemod.Engine, source); err != nil {
		return nil, err
	}

	root := resolve(opts.ConfigDir, cfg.Files.Root)
	files, err := scan.Files(scan.Options{
		Root:    root,
		Include: cfg.Files.Include,
		Exclude: cfg.Files.Exclude,
		Limit:   cfg.Files.Limit,
	})
	if err != nil {
		return nil, err
	}

	outputDir := ""
	if cfg.Output.Directory != "" {
		outputDir = resolve(opts.ConfigDir, cfg.Output.Directory)
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	runID := ledger.NewRunID()
	emitters := []report.Emitter{report.NewJSONLines(opts.Events)}
	if opts.Console != nil {
		emitters = append(emitters, report.NewConsole(opts.Console))
	}

	var ledgerClient *ledger.Client
	if cfg.Ledger != nil {
		ledgerClient, err = openLedger(ctx, cfg, runID, root, len(files))
		if err != nil {
			return nil, err
		}
		defer ledgerClient.Close()
		emitters = append(emitters, report.NewLedgerSink(ledgerClient, runID))
	}
	emitter := report.Multi(emitters...)

	spawner, release, err := newSpawner(ctx, cfg, opts, runID, root)
	if err != nil {
		markRun(ledgerClient, runID, ledger.RunStatusAborted)
		return nil, err
	}
	defer release()

	applier, err := apply.New(apply.Mode(cfg.Output.Mode), emitter)
	if err != nil {
		markRun(ledgerClient, runID, ledger.RunStatusAborted)
		return nil, err
	}

	p := pool.New(pool.Config{
		Workers:           cfg.Workers.Count,
		Engine:            cfg.Codemod.Engine,
		TransformerSource: source,
		CaseID:            cfg.Codemod.Name,
		FormatOnApply:     cfg.Output.Format,
		Staged:            applier.Mode() == apply.ModeStaged,
		OutputDirectory:   outputDir,
		StallBudget:       cfg.StallBudget(),
		StallPolicy:       pool.StallPolicy(cfg.Workers.OnStall),
	}, spawner, emitter, applier.Apply, opts.PoolOptions...)

	log.Printf("[Run] Starting run %s: %d files, %d workers, %s isolation, %s mode",
		runID, len(files), cfg.Workers.Count, cfg.Workers.Isolation, cfg.Output.Mode)

	runErr := supervise(ctx, cfg, opts, p, files, ledgerClient)

	status := ledger.RunStatusFinished
	if runErr != nil {
		status = ledger.RunStatusAborted
	}
	markRun(ledgerClient, runID, status)

	result := &Result{RunID: runID, Files: len(files), Status: p.Status()}
	if runErr != nil {
		return result, runErr
	}
	log.Printf("[Run] Run %s finished: %d files processed, %d worker replacements",
		runID, result.Status.Processed, result.Status.Replacements)
	return result, nil
}

// supervise runs the pool alongside the optional health server and control
// watcher; both stop when the pool returns.
func supervise(ctx context.Context, cfg *config.BurrowConfig, opts Options, p *pool.Pool, files []string, ledgerClient *ledger.Client) error {
	g, gctx := errgroup.WithContext(ctx)
	poolDone := make(chan struct{})

	if cfg.Health != nil {
		var pinger health.Pinger
		if ledgerClient != nil {
			pinger = ledgerClient
		}
		srv := health.NewServer(cfg.Health.Addr, p.Status, pinger)
		if err := srv.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-poolDone
			shutdownCtx, cancel := context.WithTimeout(context.Background(), healthShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.Control != nil {
		g.Go(func() error {
			watchCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			go func() {
				<-poolDone
				cancel()
			}()
			control.WatchShutdown(watchCtx, opts.Control, control.ShutdownToken, p.Shutdown)
			return nil
		})
	}

	g.Go(func() error {
		defer close(poolDone)
		return p.Run(gctx, files)
	})

	return g.Wait()
}

func openLedger(ctx context.Context, cfg *config.BurrowConfig, runID, root string, total int) (*ledger.Client, error) {
	client, err := ledger.NewClientFromURL(cfg.Ledger.RedisURL, cfg.Ledger.Instance)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	err = client.CreateRun(ctx, &ledger.Run{
		ID:          runID,
		CaseID:      cfg.Codemod.Name,
		Engine:      cfg.Codemod.Engine,
		Mode:        cfg.Output.Mode,
		Workspace:   root,
		Workers:     cfg.Workers.Count,
		Status:      ledger.RunStatusRunning,
		Total:       uint(total),
		StartedAtMs: time.Now().UnixMilli(),
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return client, nil
}

// markRun records the terminal status. A finish event has usually set it
// already; aborted runs only get it here.
func markRun(client *ledger.Client, runID string, status ledger.RunStatus) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.SetStatus(ctx, runID, status); err != nil {
		log.Printf("[Run] Failed to mark run %s %s: %v", runID, status, err)
	}
}

// newSpawner builds the spawner for the configured isolation mode. The
// returned release func frees any client created here.
func newSpawner(ctx context.Context, cfg *config.BurrowConfig, opts Options, runID, root string) (worker.Spawner, func(), error) {
	release := func() {}

	switch cfg.Workers.Isolation {
	case config.IsolationInProcess:
		return &worker.InProcess{Handler: worker.NewHandler(opts.Registry)}, release, nil

	case config.IsolationProcess:
		return &worker.Process{Executable: opts.Executable}, release, nil

	case config.IsolationContainer:
		api := opts.Docker
		if api == nil {
			cli, err := docker.NewClient(ctx)
			if err != nil {
				return nil, nil, err
			}
			api = cli
			release = func() { cli.Close() }
		}
		closeClient := release
		release = func() {
			defer closeClient()
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if n, err := docker.RemoveRunWorkers(sweepCtx, api, runID); err != nil {
				log.Printf("[Run] Failed to clean up worker containers: %v", err)
			} else if n > 0 {
				log.Printf("[Run] Removed %d leftover worker containers", n)
			}
		}
		instance := "default"
		if cfg.Ledger != nil {
			instance = cfg.Ledger.Instance
		}
		return &worker.Container{
			API:       api,
			Image:     cfg.Workers.Image,
			Instance:  instance,
			RunID:     runID,
			Workspace: root,
		}, release, nil
	}
	return nil, nil, fmt.Errorf("unknown isolation mode: %s", cfg.Workers.Isolation)
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// IsShutdown reports whether err came from the shutdown token.
func IsShutdown(err error) bool {
	return errors.Is(err, pool.ErrShutdown)
}
