package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/channel/memstore"
	"github.com/csheth/citejump/internal/channel/redisstore"
	"github.com/csheth/citejump/internal/channel/sqlitestore"
	"github.com/csheth/citejump/internal/config"
	"github.com/csheth/citejump/internal/document"
	"github.com/csheth/citejump/internal/logger"
)

// logsAnnotation on a command sends its logs to the configured log file, so a
// full-screen program keeps the terminal. The value is "file", or the name of
// a boolean flag that turns this on.
const logsAnnotation = "citejump_logs"

// app holds what every subcommand shares once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	log        logger.Logger
	opener     *channel.Opener
	closers    []io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "citejump",
		Short:        "Jump from a cited answer to the highlighted passage in its PDF",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a citejump.yaml file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	_ = config.FlagKey(flags, "log-level", "log.level")

	root.AddCommand(
		newOpenCmd(a),
		newViewCmd(a),
		newSweepCmd(a),
		newLocateCmd(a),
		newDocsCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	if logsToFile(cmd) && cfg.Log.File != "" {
		f, err := openLogFile(cfg.Log.File)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, f)
		lc.Output = f
	}
	a.log = logger.New(lc)
	a.opener = channel.NewOpener()
	return nil
}

func logsToFile(cmd *cobra.Command) bool {
	switch v := cmd.Annotations[logsAnnotation]; v {
	case "":
		return false
	case "file":
		return true
	default:
		on, err := cmd.Flags().GetBool(v)
		return err == nil && on
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// channel wires the stores named by the configuration. SQLite carries bundles
// between processes; Redis, when configured, replaces the in-memory LRU as the
// volatile path.
func (a *app) channel(ctx context.Context) *channel.Channel {
	opts := a.sharedPaths(ctx)
	opts.Opener = a.opener
	if opts.Volatile == nil {
		opts.Volatile = memstore.New(a.cfg.Channel.MemoryEntries, a.cfg.Channel.Retention)
	}
	if opts.Durable == nil && a.cfg.Channel.RedisURL == "" {
		a.log.Debug("bundles published by this process stay in it")
	}
	return channel.New(opts)
}

// sharedPaths opens the channel paths other processes can see: the SQLite
// file and Redis. Either is left nil when unconfigured or unreachable.
func (a *app) sharedPaths(ctx context.Context) channel.Options {
	cc := a.cfg.Channel
	opts := channel.Options{
		Retention:   cc.Retention,
		InlineLimit: cc.InlineLimit,
		Logger:      a.log,
	}

	if cc.StorePath != "" {
		durable, err := sqlitestore.Open(cc.StorePath)
		if err != nil {
			a.log.Warn("durable store unavailable", "path", cc.StorePath, "error", err)
		} else {
			a.closers = append(a.closers, durable)
			opts.Durable = durable
		}
	}

	if cc.RedisURL != "" {
		volatile, err := redisstore.Open(ctx, cc.RedisURL, cc.Retention)
		if err != nil {
			a.log.Warn("redis unavailable, using memory store", "error", err)
		} else {
			a.closers = append(a.closers, volatile)
			opts.Volatile = volatile
		}
	}
	return opts
}

// openDocument resolves ref against the data directory, downloading URLs into
// the PDF cache, and opens it.
func (a *app) openDocument(ctx context.Context, ref string) (*document.Document, error) {
	cache, err := document.NewCache("", nil, a.log)
	if err != nil {
		a.log.Warn("download cache unavailable", "error", err)
	}
	path, err := document.Resolve(ctx, cache, a.cfg.DataDir, ref)
	if err != nil {
		return nil, err
	}
	return document.Open(path, a.log)
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil && a.log != nil {
		a.log.Warn("close failed", "error", err)
	}
}
