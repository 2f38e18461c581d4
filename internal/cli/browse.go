package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fragtree/pkg/pipeline"
)

// browseCommand creates the interactive result picker.
func (c *CLI) browseCommand() *cobra.Command {
	var (
		format   string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "browse [dir]",
		Short: "Pick a saved result interactively and render it",
		Long: `List the *.result.json files in a directory (default: the current one)
and render the selected tree next to it as <name>.svg or <name>.dot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := pipeline.ValidateFormat(format); err != nil {
				return err
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return c.runBrowse(cmd.Context(), dir, cfg.Cache, format, detailed)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", pipeline.FormatSVG, "output format: svg, dot")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include vertex ids and depth in labels")

	return cmd
}

func (c *CLI) runBrowse(ctx context.Context, dir string, cc pipeline.CacheConfig, format string, detailed bool) error {
	entries, err := loadResultEntries(dir, func(path string, err error) {
		c.Logger.Warn("skipping result", "path", path, "err", err)
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printWarning("no result files in %s", dir)
		return nil
	}

	p := tea.NewProgram(newResultListModel(entries), tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("result picker: %w", err)
	}
	sel := final.(resultListModel).Selected
	if sel == nil {
		return nil
	}

	runner, err := c.newRunner(ctx, cc)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	data, err := runner.Render(ctx, sel.Result, format, detailed)
	if err != nil {
		return err
	}
	out := filepath.Join(filepath.Dir(sel.Path), sel.Name+"."+format)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	printSuccess("Rendered %s", sel.Name)
	printFile(out)
	return nil
}
