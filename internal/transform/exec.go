package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// maxOutputSize caps what an exec transformer may print (10MB).
	maxOutputSize = 10 * 1024 * 1024

	defaultExecTimeout = 30 * time.Second

	// FilePathEnv carries the file path to exec transformers.
	FilePathEnv = "BURROW_FILE_PATH"
)

// ExecEngine runs an external program per file. The transformer source is a
// YAML document:
//
//	command: ["sed", "-e", "s/foo/bar/g"]
//	timeout: 30s
//	env: ["LC_ALL=C"]
//
// The program receives the file contents on stdin and the path in
// BURROW_FILE_PATH, and prints the new contents on stdout. A non-zero exit is
// a transform failure.
type ExecEngine struct{}

func (ExecEngine) Name() string { return "exec" }

// ExecSpec is the document accepted by the exec engine.
type ExecSpec struct {
	Command []string `yaml:"command"`
	Timeout string   `yaml:"timeout,omitempty"`
	Env     []string `yaml:"env,omitempty"`
}

// Compile parses the spec and resolves the program on PATH.
func (ExecEngine) Compile(source string) (Transformer, error) {
	var spec ExecSpec
	dec := yaml.NewDecoder(strings.NewReader(source))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse exec spec: %w", err)
	}
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}

	timeout := defaultExecTimeout
	if spec.Timeout != "" {
		d, err := time.ParseDuration(spec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", spec.Timeout, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("timeout must be positive, got %s", spec.Timeout)
		}
		timeout = d
	}

	program, err := exec.LookPath(spec.Command[0])
	if err != nil {
		return nil, fmt.Errorf("command not found: %w", err)
	}

	return &execTransformer{
		program: program,
		args:    spec.Command[1:],
		env:     spec.Env,
		timeout: timeout,
	}, nil
}

type execTransformer struct {
	program string
	args    []string
	env     []string
	timeout time.Duration
}

func (t *execTransformer) Transform(ctx context.Context, path, source string) (Output, error) {
	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, t.program, t.args...)
	cmd.Env = append(os.Environ(), t.env...)
	cmd.Env = append(cmd.Env, FilePathEnv+"="+path)
	cmd.Stdin = strings.NewReader(source)

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	stdout := &limitedWriter{w: stdoutBuf, limit: maxOutputSize}
	cmd.Stdout = stdout
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: maxOutputSize}

	if err := cmd.Run(); err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return Output{}, fmt.Errorf("command timed out after %s", t.timeout)
		}
		return Output{}, fmt.Errorf("command failed: %w: %s", err, truncate(strings.TrimSpace(stderrBuf.String()), 500))
	}

	if stdout.overflowed {
		return Output{}, fmt.Errorf("command output exceeded 10MB limit")
	}

	text := stdoutBuf.String()
	if text == source {
		return NoChange(), nil
	}
	return Rewrite(text), nil
}

// limitedWriter wraps a writer and enforces a size limit.
// Bytes past the limit are discarded and set overflowed; output of exactly
// limit bytes is kept whole.
type limitedWriter struct {
	w          io.Writer
	limit      int
	written    int
	overflowed bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if len(p) > remaining {
		lw.overflowed = true
	}
	if remaining <= 0 {
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err
}

// truncate limits a string to maxLen characters, appending "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
