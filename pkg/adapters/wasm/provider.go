package wasm

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	extism "github.com/extism/go-sdk"
	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/ports"
	"github.com/tetratelabs/wazero"
)

// DefaultEntrypoint is the export the evaluator module must provide.
const DefaultEntrypoint = "run"

// ErrNoModule is returned when the provider has no module source configured.
var ErrNoModule = errors.New("no wasm module configured")

// Source locates the module.
type Source struct {
	Path string
	URL  string
	Data []byte
}

// FromFile reads the module from a local file.
func FromFile(path string) Source { return Source{Path: path} }

// FromURL downloads the module.
func FromURL(url string) Source { return Source{URL: url} }

// FromBytes uses an in-memory module.
func FromBytes(data []byte) Source { return Source{Data: data} }

func (s Source) wasm() (extism.Wasm, error) {
	switch {
	case len(s.Data) > 0:
		return extism.WasmData{Data: s.Data, Name: "evaluator"}, nil
	case s.Path != "":
		return extism.WasmFile{Path: s.Path, Name: "evaluator"}, nil
	case s.URL != "":
		return extism.WasmUrl{Url: s.URL, Name: "evaluator"}, nil
	}
	return nil, ErrNoModule
}

// String describes the source for logs.
func (s Source) String() string {
	switch {
	case len(s.Data) > 0:
		return fmt.Sprintf("bytes(%d)", len(s.Data))
	case s.Path != "":
		return s.Path
	}
	return s.URL
}

// Provider acquires an evaluator by compiling a wasm module.
type Provider struct {
	source     Source
	entrypoint string
	wasi       bool
	timeout    time.Duration
	logger     *slog.Logger

	compile func(context.Context, extism.Manifest, extism.PluginConfig) (compiledPlugin, error)
}

// Option configures the Provider.
type Option func(*Provider)

// WithEntrypoint sets the exported function that evaluates source.
func WithEntrypoint(name string) Option {
	return func(p *Provider) {
		p.entrypoint = name
	}
}

// WithWASI enables WASI for modules built against it.
func WithWASI(enabled bool) Option {
	return func(p *Provider) {
		p.wasi = enabled
	}
}

// WithCallTimeout bounds each call inside the module. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithLogger configures a logger for the Provider.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider for the module at source.
func NewProvider(source Source, opts ...Option) *Provider {
	p := &Provider{
		source:     source,
		entrypoint: DefaultEntrypoint,
		wasi:       true,
		logger:     logging.NewNop(),
		compile:    compileManifest,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements ports.EvaluatorProvider.
func (p *Provider) Name() string {
	return "wasm"
}

// Acquire compiles the module and checks that it exports the entrypoint.
func (p *Provider) Acquire(ctx context.Context) (ports.Evaluator, error) {
	wasm, err := p.source.wasm()
	if err != nil {
		return nil, err
	}

	manifest := extism.Manifest{Wasm: []extism.Wasm{wasm}}
	if p.timeout > 0 {
		manifest.Timeout = uint64(p.timeout.Milliseconds())
	}
	config := extism.PluginConfig{
		EnableWasi:    p.wasi,
		RuntimeConfig: wazero.NewRuntimeConfig().WithCloseOnContextDone(true),
	}

	p.logger.Debug("Compiling evaluator module", "source", p.source.String())
	plugin, err := p.compile(ctx, manifest, config)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module %s: %w", p.source, err)
	}

	ev := &Evaluator{plugin: plugin, entrypoint: p.entrypoint}
	if err := ev.check(ctx); err != nil {
		_ = plugin.Close(ctx)
		return nil, err
	}
	return ev, nil
}

// Evaluator runs source through a compiled module.
type Evaluator struct {
	plugin     compiledPlugin
	entrypoint string
}

func instanceConfig() extism.PluginInstanceConfig {
	return extism.PluginInstanceConfig{
		ModuleConfig: wazero.NewModuleConfig().
			WithSysWalltime().
			WithSysNanotime().
			WithRandSource(rand.Reader),
	}
}

// check verifies the entrypoint on a throwaway instance.
func (e *Evaluator) check(ctx context.Context) error {
	instance, err := e.plugin.Instance(ctx, instanceConfig())
	if err != nil {
		return fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer instance.Close(ctx)

	if !instance.FunctionExists(e.entrypoint) {
		return fmt.Errorf("%w: %q", ports.ErrEvaluatorMissingEntrypoint, e.entrypoint)
	}
	return nil
}

// Run implements ports.Evaluator.
func (e *Evaluator) Run(ctx context.Context, source string) (string, error) {
	instance, err := e.plugin.Instance(ctx, instanceConfig())
	if err != nil {
		return "", fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer instance.Close(ctx)

	exit, output, err := instance.CallWithContext(ctx, e.entrypoint, []byte(source))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("evaluation cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("evaluation failed: %w", err)
	}
	if exit != 0 {
		return "", fmt.Errorf("evaluator exited with code %d", exit)
	}
	return string(output), nil
}

// Close releases the compiled module.
func (e *Evaluator) Close() error {
	return e.plugin.Close(context.Background())
}
