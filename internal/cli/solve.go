package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	fio "github.com/matzehuels/fragtree/pkg/io"
	"github.com/matzehuels/fragtree/pkg/pipeline"
)

type solveOpts struct {
	flags    solveFlags
	output   string
	format   string
	detailed bool
	quiet    bool
}

// solveCommand creates the solve command for a single graph.
func (c *CLI) solveCommand() *cobra.Command {
	var o solveOpts

	cmd := &cobra.Command{
		Use:   "solve [graph.json]",
		Short: "Compute the optimal fragmentation tree of a graph",
		Long: `Compute the maximum-weight colorful subtree of a fragmentation graph.

The graph is read from a JSON file. A summary is printed; with --output the
result is also written as JSON, DOT or SVG (see --format, or inferred from
the file extension). Use "-" as output to write to stdout.

Results are cached locally for faster subsequent runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.Options
			o.flags.apply(cmd, &opts)
			if o.format == "" {
				o.format = formatFromPath(o.output)
			}
			if err := pipeline.ValidateFormat(o.format); err != nil {
				return err
			}
			return c.runSolve(cmd.Context(), args[0], cfg.Cache, opts, o)
		},
	}

	o.flags.register(cmd)
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "write the result to this file")
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "output format: json (default), dot, svg")
	cmd.Flags().BoolVar(&o.detailed, "detailed", false, "include vertex ids and depth in DOT/SVG labels")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "suppress the summary")

	return cmd
}

func (c *CLI) runSolve(ctx context.Context, input string, cc pipeline.CacheConfig, opts pipeline.Options, o solveOpts) error {
	g, err := fio.ImportGraph(input)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", input, err)
	}
	c.Logger.Debug("loaded graph", "fragments", g.NumFragments(), "losses", g.NumLosses())

	runner, err := c.newRunner(ctx, cc)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spin := newSpinner(ctx, os.Stderr, "solving "+filepath.Base(input))
	if !o.quiet {
		spin.Start()
	}
	out, err := runner.Solve(ctx, g, opts)
	spin.Stop()
	if err != nil {
		return err
	}

	if !o.quiet {
		printResult(filepath.Base(input), out.Result, out.CacheHit, out.Duration)
	}
	if o.output == "" {
		return nil
	}

	data, err := runner.Render(ctx, out.Result, o.format, o.detailed)
	if err != nil {
		return err
	}
	if o.output == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(o.output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", o.output, err)
	}
	if !o.quiet {
		printFile(o.output)
	}
	return nil
}

// formatFromPath infers the output format from a file extension.
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		return pipeline.FormatDOT
	case ".svg":
		return pipeline.FormatSVG
	}
	return pipeline.FormatJSON
}
