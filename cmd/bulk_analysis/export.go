package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/export"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

func init() {
	register(newExportCmd)
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var (
		vf     viewFlags
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export [ID...]",
		Short: "Export domains to CSV or XLSX",
		Long:  "Writes the given domains, or every domain matching the filters, to a CSV or XLSX file in the current sort order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := workflow.ParseFormat(format)
			if err != nil {
				return err
			}
			return withController(cmd, g, appOptions{}, func(_ context.Context, a *app, c *workflow.Controller) error {
				if err := vf.apply(c); err != nil {
					return err
				}
				c.Select(args...)

				path := out
				if path == "" {
					path = export.Filename(c.ProjectID(), string(f), time.Now())
				}
				if dir := filepath.Dir(path); dir != "" && dir != "." {
					if err := os.MkdirAll(dir, 0755); err != nil {
						return fmt.Errorf("failed to create output directory %s: %w", dir, err)
					}
				}

				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create export file %s: %w", path, err)
				}
				if _, err := c.Export(file, f); err != nil {
					_ = file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return fmt.Errorf("failed to write export file %s: %w", path, err)
				}
				fmt.Fprintf(a.out, "Wrote %s\n", path)
				return nil
			})
		},
	}
	vf.register(cmd.Flags())
	cmd.Flags().StringVar(&format, "format", "csv", "Export format: csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default bulk-analysis-<project>-<date>.<ext>)")
	return cmd
}
