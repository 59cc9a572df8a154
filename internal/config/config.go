// Package config loads the lisper configuration from defaults, an optional YAML file,
// LISPER_* environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/highlight"
	"github.com/svoctor/lisper-go/pkg/persistence/middleware"
	"github.com/svoctor/lisper-go/pkg/sanitize"
)

// EnvPrefix prefixes every environment override, e.g. LISPER_SERVER_ADDR.
const EnvPrefix = "LISPER"

// Config holds application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Sample     string           `mapstructure:"sample" yaml:"sample"`
	Theme      string           `mapstructure:"theme" yaml:"theme"`
	Evaluator  EvaluatorConfig  `mapstructure:"evaluator" yaml:"evaluator"`
	Evaluation EvaluationConfig `mapstructure:"evaluation" yaml:"evaluation"`
	Highlight  HighlightConfig  `mapstructure:"highlight" yaml:"highlight"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// EvaluatorConfig selects and configures the evaluator provider.
type EvaluatorConfig struct {
	// Provider is "wasm" or "process".
	Provider string `mapstructure:"provider" yaml:"provider"`
	// Path is the wasm module for the wasm provider, or an evaluator definition file
	// (YAML or JSON) for the process provider.
	Path       string        `mapstructure:"path" yaml:"path"`
	URL        string        `mapstructure:"url" yaml:"url"`
	Entrypoint string        `mapstructure:"entrypoint" yaml:"entrypoint"`
	Command    string        `mapstructure:"command" yaml:"command"`
	Args       []string      `mapstructure:"args" yaml:"args"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WASI       bool          `mapstructure:"wasi" yaml:"wasi"`
}

// EvaluationConfig holds orchestration settings.
type EvaluationConfig struct {
	Ordering       string `mapstructure:"ordering" yaml:"ordering"`
	MaxSourceBytes int    `mapstructure:"max_source_bytes" yaml:"max_source_bytes"`
}

// HighlightConfig selects the lexer and the style of each theme.
type HighlightConfig struct {
	Lexer      string `mapstructure:"lexer" yaml:"lexer"`
	LightStyle string `mapstructure:"light_style" yaml:"light_style"`
	DarkStyle  string `mapstructure:"dark_style" yaml:"dark_style"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Metrics bool   `mapstructure:"metrics" yaml:"metrics"`
}

// StoreConfig selects where session snapshots are persisted.
type StoreConfig struct {
	// Backend is "memory", "redis" or "bolt".
	Backend string        `mapstructure:"backend" yaml:"backend"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Bolt    BoltConfig    `mapstructure:"bolt" yaml:"bolt"`

	Encryption EncryptionConfig `mapstructure:"encryption" yaml:"encryption"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// BoltConfig holds bbolt settings.
type BoltConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// EncryptionConfig enables AES-GCM encryption of stored snapshots. Keys are base64 encoded
// 32 byte values; fallback keys only decrypt, which allows rotation.
type EncryptionConfig struct {
	Key          string   `mapstructure:"key" yaml:"key"`
	FallbackKeys []string `mapstructure:"fallback_keys" yaml:"fallback_keys"`
}

// Valid enum values.
var (
	Providers = []string{"wasm", "process"}
	Backends  = []string{"memory", "redis", "bolt"}
	LogLevels = []string{"debug", "info", "warn", "error"}
)

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"log-level":  "log.level",
	"theme":      "theme",
	"ordering":   "evaluation.ordering",
	"evaluator":  "evaluator.provider",
	"wasm":       "evaluator.path",
	"command":    "evaluator.command",
	"addr":       "server.addr",
	"store":      "store.backend",
	"redis-addr": "store.redis.addr",
	"bolt-path":  "store.bolt.path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("sample", domain.SampleSource)
	v.SetDefault("theme", string(domain.DefaultTheme))

	v.SetDefault("evaluator.provider", "wasm")
	v.SetDefault("evaluator.path", "lisper.wasm")
	v.SetDefault("evaluator.url", "")
	v.SetDefault("evaluator.entrypoint", "run")
	v.SetDefault("evaluator.command", "")
	v.SetDefault("evaluator.args", []string{})
	v.SetDefault("evaluator.timeout", 10*time.Second)
	v.SetDefault("evaluator.wasi", true)

	v.SetDefault("evaluation.ordering", string(domain.DefaultOrdering))
	v.SetDefault("evaluation.max_source_bytes", sanitize.DefaultMaxSourceBytes)

	v.SetDefault("highlight.lexer", highlight.DefaultLexer)
	v.SetDefault("highlight.light_style", highlight.DefaultLightStyle)
	v.SetDefault("highlight.dark_style", highlight.DefaultDarkStyle)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics", true)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.ttl", 24*time.Hour)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "lisper:session:")
	v.SetDefault("store.bolt.path", "lisper.db")
	v.SetDefault("store.encryption.key", "")
	v.SetDefault("store.encryption.fallback_keys", []string{})
}

// Default returns the configuration with no file, environment or flags applied.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration. An explicit path (or LISPER_CONFIG) must exist; otherwise the
// first of ./lisper.yaml and $XDG_CONFIG_HOME/lisper/config.yaml that exists is used.
// Flags in FlagKeys that were set on the command line take precedence over everything else.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if found := discover(); found != "" {
		v.SetConfigFile(found)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", found, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func discover() string {
	candidates := []string{"lisper.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "lisper", "config.yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// ParsedTheme returns the configured theme.
func (c Config) ParsedTheme() (domain.Theme, error) {
	return domain.ParseTheme(c.Theme)
}

// ParsedOrdering returns the configured ordering policy.
func (c Config) ParsedOrdering() (domain.OrderingPolicy, error) {
	return domain.ParseOrdering(c.Evaluation.Ordering)
}

// Validate checks enum values and suggests the closest valid value for typos.
func (c Config) Validate() error {
	var errs []error

	themes := make([]string, 0, len(domain.Themes))
	for _, t := range domain.Themes {
		themes = append(themes, string(t))
	}
	orderings := make([]string, 0, len(domain.OrderingPolicies))
	for _, p := range domain.OrderingPolicies {
		orderings = append(orderings, string(p))
	}

	errs = append(errs,
		oneOf("log.level", c.Log.Level, LogLevels),
		oneOf("theme", c.Theme, themes),
		oneOf("evaluation.ordering", c.Evaluation.Ordering, orderings),
		oneOf("evaluator.provider", c.Evaluator.Provider, Providers),
		oneOf("store.backend", c.Store.Backend, Backends),
	)

	switch strings.ToLower(c.Evaluator.Provider) {
	case "wasm":
		if c.Evaluator.Path == "" && c.Evaluator.URL == "" {
			errs = append(errs, errors.New("evaluator: wasm provider needs evaluator.path or evaluator.url"))
		}
	case "process":
		if c.Evaluator.Command == "" && c.Evaluator.Path == "" {
			errs = append(errs, errors.New("evaluator: process provider needs evaluator.command or evaluator.path"))
		}
	}
	if c.Evaluator.Timeout < 0 {
		errs = append(errs, fmt.Errorf("evaluator.timeout: must not be negative, got %s", c.Evaluator.Timeout))
	}
	if c.Store.Encryption.Key != "" {
		if _, err := middleware.ParseEncryptionConfig(c.Store.Encryption.Key, c.Store.Encryption.FallbackKeys); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption: %w", err))
		}
	} else if len(c.Store.Encryption.FallbackKeys) > 0 {
		errs = append(errs, errors.New("store.encryption: fallback_keys need an active key"))
	}
	if c.Evaluation.MaxSourceBytes < 0 {
		errs = append(errs, fmt.Errorf("evaluation.max_source_bytes: must not be negative, got %d", c.Evaluation.MaxSourceBytes))
	}

	return errors.Join(errs...)
}

const redacted = "<redacted>"

// YAML renders the configuration. Encryption keys are redacted.
func (c Config) YAML() (string, error) {
	if c.Store.Encryption.Key != "" {
		c.Store.Encryption.Key = redacted
	}
	if n := len(c.Store.Encryption.FallbackKeys); n > 0 {
		c.Store.Encryption.FallbackKeys = make([]string, n)
		for i := range c.Store.Encryption.FallbackKeys {
			c.Store.Encryption.FallbackKeys[i] = redacted
		}
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}
