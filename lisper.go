package lisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/svoctor/lisper-go/internal/config"
	"github.com/svoctor/lisper-go/internal/logging"
	boltAdapter "github.com/svoctor/lisper-go/pkg/adapters/bolt"
	"github.com/svoctor/lisper-go/pkg/adapters/memory"
	"github.com/svoctor/lisper-go/pkg/adapters/process"
	redisAdapter "github.com/svoctor/lisper-go/pkg/adapters/redis"
	"github.com/svoctor/lisper-go/pkg/adapters/wasm"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/highlight"
	"github.com/svoctor/lisper-go/pkg/loader"
	"github.com/svoctor/lisper-go/pkg/metrics"
	"github.com/svoctor/lisper-go/pkg/observability"
	"github.com/svoctor/lisper-go/pkg/orchestrator"
	"github.com/svoctor/lisper-go/pkg/persistence/middleware"
	"github.com/svoctor/lisper-go/pkg/ports"
	"github.com/svoctor/lisper-go/pkg/session"
)

// Playground wires the evaluator loader, the session manager, highlighting and metrics from
// a configuration. It is the entry point used by the lisper command and by embedders.
type Playground struct {
	Config      config.Config
	Loader      *loader.Loader
	Sessions    *session.Manager
	Highlighter *highlight.Highlighter
	Renderer    *highlight.Renderer
	Registry    *prometheus.Registry
	Metrics     *metrics.Collectors

	theme    domain.Theme
	orchOpts []orchestrator.Option
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	closers  []io.Closer
}

// Option defines a functional option for configuring the Playground.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	provider ports.EvaluatorProvider
	store    ports.SnapshotStore
	locker   ports.DistributedLocker
	hooks    domain.LifecycleHooks
	registry *prometheus.Registry
}

// WithLogger sets the logger. The default logs at the configured level to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProvider injects an evaluator provider, bypassing the configured one.
func WithProvider(p ports.EvaluatorProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithStore injects a snapshot store, bypassing the configured backend.
func WithStore(s ports.SnapshotStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithLocker injects a distributed locker for session creation.
func WithLocker(l ports.DistributedLocker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithLifecycleHooks registers observability hooks in addition to logging and metrics.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithRegistry registers metrics with reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// New builds a Playground from cfg. Nothing is loaded until the first evaluation.
func New(cfg config.Config, opts ...Option) (*Playground, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	}
	theme, err := cfg.ParsedTheme()
	if err != nil {
		return nil, err
	}
	ordering, err := cfg.ParsedOrdering()
	if err != nil {
		return nil, err
	}

	p := &Playground{
		Config: cfg,
		Highlighter: highlight.New(
			highlight.WithLexer(cfg.Highlight.Lexer),
			highlight.WithLogger(logger),
		),
		Renderer: highlight.NewRenderer(cfg.Highlight.LightStyle, cfg.Highlight.DarkStyle),
		theme:    theme,
		logger:   logger,
	}

	p.Registry = o.registry
	if p.Registry == nil {
		p.Registry = prometheus.NewRegistry()
		p.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	p.Metrics = metrics.New(p.Registry)
	p.hooks = observability.LogHooks(logger).Merge(p.Metrics.Hooks()).Merge(o.hooks)

	provider := o.provider
	if provider == nil {
		if provider, err = NewProvider(cfg.Evaluator, logger); err != nil {
			return nil, err
		}
	}
	p.Loader = loader.New(provider,
		loader.WithHooks(p.hooks),
		loader.WithLogger(logger),
	)

	store, locker := o.store, o.locker
	if store == nil {
		var closer io.Closer
		store, locker, closer, err = newStore(cfg.Store, locker)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			p.closers = append(p.closers, closer)
		}
	}
	if enc := cfg.Store.Encryption; enc.Key != "" {
		keys, err := middleware.ParseEncryptionConfig(enc.Key, enc.FallbackKeys)
		if err != nil {
			return nil, err
		}
		mw, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			return nil, err
		}
		store = middleware.Chain(store, mw)
	}

	p.orchOpts = []orchestrator.Option{
		orchestrator.WithOrdering(ordering),
		orchestrator.WithRunTimeout(cfg.Evaluator.Timeout),
	}
	mgrOpts := []session.Option{
		session.WithSample(cfg.Sample),
		session.WithTheme(theme),
		session.WithHooks(p.hooks),
		session.WithLogger(logger),
		session.WithOrchestratorOptions(p.orchOpts...),
	}
	if locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(locker))
	}
	p.Sessions = session.NewManager(store, p.Loader, mgrOpts...)

	logger.Debug("Playground ready",
		"provider", provider.Name(),
		"store", cfg.Store.Backend,
		"ordering", ordering,
	)
	return p, nil
}

// NewProvider builds the evaluator provider described by cfg.
func NewProvider(cfg config.EvaluatorConfig, logger *slog.Logger) (ports.EvaluatorProvider, error) {
	switch cfg.Provider {
	case "process":
		pc := process.Config{Command: cfg.Command, Args: cfg.Args}
		if cfg.Command == "" && cfg.Path != "" {
			loaded, err := process.LoadConfig(cfg.Path)
			if err != nil {
				return nil, err
			}
			pc = loaded
		}
		return process.NewProvider(pc, process.WithLogger(logger)), nil

	case "wasm", "":
		source := wasm.FromFile(cfg.Path)
		if cfg.URL != "" {
			source = wasm.FromURL(cfg.URL)
		}
		return wasm.NewProvider(source,
			wasm.WithEntrypoint(cfg.Entrypoint),
			wasm.WithWASI(cfg.WASI),
			wasm.WithCallTimeout(cfg.Timeout),
			wasm.WithLogger(logger),
		), nil
	}
	return nil, fmt.Errorf("unknown evaluator provider %q", cfg.Provider)
}

func newStore(cfg config.StoreConfig, locker ports.DistributedLocker) (ports.SnapshotStore, ports.DistributedLocker, io.Closer, error) {
	switch cfg.Backend {
	case "redis":
		store := redisAdapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisAdapter.WithTTL(cfg.TTL),
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
		)
		if locker == nil {
			locker = redisAdapter.NewLocker(store.Client(), store.Prefix()+"lock:")
		}
		return store, locker, store, nil

	case "bolt":
		store, err := boltAdapter.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, locker, store, nil
	}
	return memory.NewStore(), locker, nil, nil
}

// Eval evaluates source once, outside any stored session, and waits for the result.
func (p *Playground) Eval(ctx context.Context, source string) (*orchestrator.Call, error) {
	store := session.NewStore(domain.NewSnapshot("eval", "", p.theme),
		session.WithStoreHooks(p.hooks),
		session.WithStoreLogger(p.logger),
	)
	defer store.Close()

	orch := orchestrator.New(store, p.Loader, append([]orchestrator.Option{
		orchestrator.WithHooks(p.hooks),
		orchestrator.WithLogger(p.logger),
	}, p.orchOpts...)...)
	defer orch.Close()

	return orch.EvaluateAndWait(ctx, source)
}

// Logger returns the playground logger.
func (p *Playground) Logger() *slog.Logger {
	return p.logger
}

// Close persists and closes every live session, then releases the evaluator and the store.
func (p *Playground) Close(ctx context.Context) error {
	var errs []error
	if err := p.Sessions.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	loaderCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Loader.Close(loaderCtx); err != nil {
		errs = append(errs, err)
	}

	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
