// Package cli implements the fragtree command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fragtree/pkg/buildinfo"
	"github.com/matzehuels/fragtree/pkg/cache"
	"github.com/matzehuels/fragtree/pkg/pipeline"
)

const (
	// appName is the application name used for directories and display.
	appName = "fragtree"

	// envRedisAddr selects the redis cache when no config file does.
	envRedisAddr = "FRAGTREE_REDIS_ADDR"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	noCache    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fragtree",
		Short: "fragtree computes optimal fragmentation trees",
		Long: `fragtree computes maximum-weight colorful subtrees of fragmentation graphs
by integer linear programming. Graphs and results are exchanged as JSON.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML config file")
	root.PersistentFlags().BoolVar(&c.noCache, "no-cache", false, "disable the result cache")

	root.AddCommand(c.solveCommand())
	root.AddCommand(c.batchCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads --config if given; otherwise it returns defaults.
func (c *CLI) loadConfig() (pipeline.Config, error) {
	if c.configPath == "" {
		return pipeline.Config{}, nil
	}
	cfg, err := pipeline.LoadConfig(c.configPath)
	if err != nil {
		return pipeline.Config{}, err
	}
	c.Logger.Debug("loaded config", "path", c.configPath)
	return cfg, nil
}

// newRunner creates a pipeline runner backed by the configured cache.
func (c *CLI) newRunner(ctx context.Context, cfg pipeline.CacheConfig) (*pipeline.Runner, error) {
	store, err := c.newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(store, nil, c.Logger)
	if cfg.TTL != "" {
		ttl, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("cache ttl: %w", err)
		}
		runner.TTL = ttl
	}
	return runner, nil
}

func (c *CLI) newCache(ctx context.Context, cfg pipeline.CacheConfig) (cache.Cache, error) {
	if c.noCache || cfg.Disabled {
		return cache.NewNullCache(), nil
	}
	addr := cfg.RedisAddr
	if addr == "" {
		addr = os.Getenv(envRedisAddr)
	}
	if addr != "" {
		rc, err := cache.DialRedis(ctx, addr, appName+":")
		if err != nil {
			return nil, err
		}
		c.Logger.Debug("using redis cache", "addr", addr)
		return rc, nil
	}

	dir := cfg.Dir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			c.Logger.Warn("no cache directory, caching disabled", "err", err)
			return cache.NewNullCache(), nil
		}
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/fragtree/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// solveFlags are the solver settings shared by solve, batch and serve.
type solveFlags struct {
	backend    string
	lowerBound float64
	timeLimit  float64
	cpus       int
	warmStart  bool
	refresh    bool
}

func (f *solveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.backend, "backend", "b", pipeline.DefaultBackend, "MIP backend: pbsat, enum")
	cmd.Flags().Float64Var(&f.lowerBound, "lower-bound", 0, "discard trees scoring below this value")
	cmd.Flags().Float64VarP(&f.timeLimit, "time-limit", "t", 0, "per-graph time limit in seconds (0 = unbounded)")
	cmd.Flags().IntVar(&f.cpus, "cpus", 0, "parallel solves (0 = all CPUs)")
	cmd.Flags().BoolVar(&f.warmStart, "warm-start", false, "seed the solver with a greedy tree")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "ignore cached results")
}

// apply overlays explicitly set flags on the config file options.
func (f *solveFlags) apply(cmd *cobra.Command, opts *pipeline.Options) {
	changed := cmd.Flags().Changed
	if changed("backend") || opts.Backend == "" {
		opts.Backend = f.backend
	}
	if changed("lower-bound") {
		lb := f.lowerBound
		opts.LowerBound = &lb
	}
	if changed("time-limit") {
		opts.TimeLimit = f.timeLimit
	}
	if changed("cpus") {
		opts.CPUs = f.cpus
	}
	if changed("warm-start") {
		opts.WarmStart = f.warmStart
	}
	if changed("refresh") {
		opts.Refresh = f.refresh
	}
}
