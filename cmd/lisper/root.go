package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svoctor/lisper-go"
	"github.com/svoctor/lisper-go/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "lisper",
	Short: "Lisper is a live Lisp playground",
	Long: `Lisper highlights Lisp source as you type and evaluates it with a pluggable evaluator
(a WebAssembly module or an external process). Use it from the terminal, over HTTP or as an MCP server.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a config file (default ./lisper.yaml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("theme", "light", "Initial theme (light or dark)")
	pf.String("ordering", "monotonic", "Output ordering (monotonic, latest-started, last-completed)")
	pf.String("evaluator", "wasm", "Evaluator provider (wasm or process)")
	pf.String("wasm", "lisper.wasm", "Path to the evaluator module, or the process definition file")
	pf.String("command", "", "Evaluator command for the process provider")
	pf.String("store", "memory", "Session store (memory, redis, bolt)")
	pf.String("redis-addr", "localhost:6379", "Redis address for the redis store")
	pf.String("bolt-path", "lisper.db", "Database file for the bolt store")
}

// loadConfig resolves the configuration for cmd, honoring flags set on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}

// newPlayground loads the configuration and builds a Playground from it.
func newPlayground(cmd *cobra.Command, opts ...lisper.Option) (*lisper.Playground, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return lisper.New(cfg, opts...)
}
