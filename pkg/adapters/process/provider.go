// Package process runs the Lisp evaluator as an external program.
//
// Each evaluation starts the configured command, writes the source text to its stdin and
// reads the output from stdout. This lets any interpreter with a script mode serve as the
// evaluator (e.g. "sbcl --script", "clisp -", a custom binary).
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/ports"
)

// ErrNoCommand is returned when no evaluator command is configured.
var ErrNoCommand = errors.New("no evaluator command configured")

// Provider acquires an Evaluator backed by an external program.
type Provider struct {
	cfg            Config
	errorsAsOutput bool
	logger         *slog.Logger
}

// Option configures the Provider.
type Option func(*Provider)

// WithErrorsAsOutput controls how a non-zero exit with a message on stderr is treated.
// When enabled (the default) the message is returned as the evaluation output, since most
// interpreters report Lisp errors that way. When disabled it is a failure of the evaluator.
func WithErrorsAsOutput(enabled bool) Option {
	return func(p *Provider) {
		p.errorsAsOutput = enabled
	}
}

// WithLogger configures a logger for the Provider.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider for cfg.
func NewProvider(cfg Config, opts ...Option) *Provider {
	p := &Provider{
		cfg:            cfg,
		errorsAsOutput: true,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements ports.EvaluatorProvider.
func (p *Provider) Name() string {
	return "process"
}

// Acquire resolves the command on PATH.
func (p *Provider) Acquire(ctx context.Context) (ports.Evaluator, error) {
	if p.cfg.Command == "" {
		return nil, ErrNoCommand
	}
	path, err := exec.LookPath(p.cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("evaluator command %q: %w", p.cfg.Command, err)
	}
	p.logger.Debug("Resolved evaluator command", "command", p.cfg.Command, "path", path)

	env := make([]string, 0, len(p.cfg.Environment))
	for k, v := range p.cfg.Environment {
		env = append(env, k+"="+v)
	}
	return &Evaluator{
		path:           path,
		args:           p.cfg.Args,
		env:            env,
		dir:            p.cfg.Dir,
		errorsAsOutput: p.errorsAsOutput,
	}, nil
}

// Evaluator runs one process per evaluation.
type Evaluator struct {
	path           string
	args           []string
	env            []string
	dir            string
	errorsAsOutput bool
}

// Run implements ports.Evaluator.
func (e *Evaluator) Run(ctx context.Context, source string) (string, error) {
	cmd := exec.CommandContext(ctx, e.path, e.args...)
	cmd.Dir = e.dir
	cmd.Env = append(cmd.Environ(), e.env...)
	cmd.Stdin = strings.NewReader(source)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("evaluation cancelled: %w", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		msg := strings.TrimSpace(stderr.String())
		if e.errorsAsOutput && errors.As(err, &exitErr) && msg != "" {
			return msg, nil
		}
		if msg != "" {
			return "", fmt.Errorf("execution failed: %w. Stderr: %s", err, msg)
		}
		return "", fmt.Errorf("execution failed: %w", err)
	}

	return strings.TrimRight(stdout.String(), "\r\n"), nil
}
