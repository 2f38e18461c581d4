package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	fio "github.com/matzehuels/fragtree/pkg/io"
	"github.com/matzehuels/fragtree/pkg/pipeline"
)

// renderCommand creates the render command for saved results.
func (c *CLI) renderCommand() *cobra.Command {
	var (
		output   string
		format   string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "render [result.json]",
		Short: "Render a saved result as DOT or SVG",
		Long: `Render a result file written by 'solve' or 'batch' as a node-link
diagram. The format is taken from --format or the output file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = formatFromPath(output)
				if format == pipeline.FormatJSON {
					format = pipeline.FormatSVG
				}
			}
			if err := pipeline.ValidateFormat(format); err != nil {
				return err
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return c.runRender(cmd.Context(), args[0], cfg.Cache, format, output, detailed)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: svg (default), dot, json")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include vertex ids and depth in labels")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, input string, cc pipeline.CacheConfig, format, output string, detailed bool) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()
	res, err := fio.ReadResult(f)
	if err != nil {
		return fmt.Errorf("load result %s: %w", input, err)
	}

	runner, err := c.newRunner(ctx, cc)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	data, err := runner.Render(ctx, res, format, detailed)
	if err != nil {
		return err
	}
	if output == "" || output == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	printFile(output)
	return nil
}
