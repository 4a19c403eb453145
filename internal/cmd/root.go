// Package cmd implements the loupe command line interface.
//
// One binary carries every role in the pipeline: crawl and index run
// worker pools, serve runs the query API, and the remaining commands
// are operator tooling over the same backends. Behavior is configured
// through the environment (see internal/config); flags only select
// per-invocation options.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/observability"
)

// versionInfo holds the build metadata handed over by main before
// Execute runs.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata. main calls it with the
// ldflags-stamped values so the version command and --version agree
// with the HTTP /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = version
}

// Runtime state shared by every command, set by initRuntime.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "loupe",
	Short: "Self-hosted web search: crawler, indexer, and query API",
	Long: `loupe is a small search engine in one binary.

crawl fetches pages from a shared Redis frontier into a WARC archive,
index folds archived pages into an on-disk inverted index, and serve
answers BM25-ranked queries over HTTP. Document metadata lives in
Postgres. Any number of crawl and index processes may run against the
same backends.

All connection settings come from the environment; see the config
package for the complete list.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

// initRuntime loads configuration and builds the process logger. Every
// subcommand runs through it, so RunE bodies can assume both are set.
func initRuntime(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	logger, err = observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	return nil
}

// Execute runs the CLI. Called once from main; exits non-zero on any
// command error.
func Execute() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// signalContext derives a context cancelled by SIGINT or SIGTERM, the
// shutdown signal for the worker and serve commands.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
