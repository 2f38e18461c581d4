package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	fio "github.com/matzehuels/fragtree/pkg/io"
	"github.com/matzehuels/fragtree/pkg/pipeline"
)

// batchCommand creates the batch command for solving many graphs.
func (c *CLI) batchCommand() *cobra.Command {
	var (
		flags      solveFlags
		outDir     string
		batchLimit float64
	)

	cmd := &cobra.Command{
		Use:   "batch [graph.json | dir]...",
		Short: "Solve many graphs in parallel",
		Long: `Solve every given graph file, and every *.json file in given directories,
on a pool of --cpus workers. Each graph gets its own --time-limit; the whole
batch is bounded by --batch-time-limit.

With --output-dir, each result is written as <name>.result.json.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.Options
			flags.apply(cmd, &opts)
			if cmd.Flags().Changed("batch-time-limit") {
				opts.InstanceTimeLimit = batchLimit
			}
			return c.runBatch(cmd.Context(), args, cfg.Cache, opts, outDir)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "", "directory for result files")
	cmd.Flags().Float64Var(&batchLimit, "batch-time-limit", 0, "time limit for the whole batch in seconds (0 = unbounded)")

	return cmd
}

func (c *CLI) runBatch(ctx context.Context, inputs []string, cc pipeline.CacheConfig, opts pipeline.Options, outDir string) error {
	paths, err := collectGraphFiles(inputs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no graph files found")
	}

	var jobs []pipeline.Job
	loadFailures := 0
	for _, p := range paths {
		g, err := fio.ImportGraph(p)
		if err != nil {
			printError("%s: %v", p, err)
			loadFailures++
			continue
		}
		jobs = append(jobs, pipeline.NewJob(jobName(p), g))
	}

	runner, err := c.newRunner(ctx, cc)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	printInfo("Solving %d graphs", len(jobs))
	prog := newProgress(c.Logger)
	results, batchErr := runner.SolveBatch(ctx, jobs, opts)

	failed := loadFailures
	for _, jr := range results {
		if jr.Err != nil {
			printError("%s: %v", jr.Job.Name, jr.Err)
			failed++
			continue
		}
		printResult(jr.Job.Name, jr.Outcome.Result, jr.Outcome.CacheHit, jr.Outcome.Duration)
		if outDir == "" {
			continue
		}
		path := filepath.Join(outDir, jr.Job.Name+".result.json")
		data, err := fio.EncodeResult(jr.Outcome.Result)
		if err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
		if err != nil {
			printError("write %s: %v", path, err)
			failed++
			continue
		}
		printFile(path)
	}
	prog.done(fmt.Sprintf("Solved %d of %d graphs", len(paths)-failed, len(paths)))

	if batchErr != nil {
		return batchErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graphs failed", failed, len(paths))
	}
	return nil
}

// collectGraphFiles expands directories to their *.json files.
func collectGraphFiles(inputs []string) ([]string, error) {
	var paths []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, in)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(in, "*.json"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !strings.HasSuffix(m, ".result.json") {
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func jobName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
