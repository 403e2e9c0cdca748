package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// withController runs fn against the loaded project and prints the
// controller's message afterwards, whether fn failed or not.
func withController(cmd *cobra.Command, g *globalFlags, opts appOptions, fn func(ctx context.Context, a *app, c *workflow.Controller) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, g, opts)
	if err != nil {
		return err
	}
	defer a.close()

	c, err := a.open(ctx, progressPrinter(a.out))
	if err != nil {
		return err
	}
	defer c.Close()

	err = fn(ctx, a, c)
	printMessage(a.out, c.Messages())
	return err
}

func init() {
	register(newStatusCmd, newDeleteCmd, newMoveCmd, newWorkflowsCmd)
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var (
		status string
		notes  string
	)
	cmd := &cobra.Command{
		Use:   "status ID [ID...]",
		Short: "Set the qualification status of domains",
		Long:  "Sets a manual qualification status. One id updates that domain with optional notes; several ids are updated in one bulk request.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := types.ParseQualificationStatus(status)
			if err != nil {
				return err
			}
			return withController(cmd, g, appOptions{}, func(ctx context.Context, _ *app, c *workflow.Controller) error {
				if len(args) == 1 {
					return c.SetStatus(ctx, args[0], s, notes)
				}
				if notes != "" {
					return fmt.Errorf("--notes applies to a single domain")
				}
				c.Select(args...)
				_, err := c.BulkSetStatus(ctx, s)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "New status: pending, high_quality, good_quality, marginal_quality, disqualified (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes stored with the decision")
	if err := cmd.MarkFlagRequired("set"); err != nil {
		panic(fmt.Sprintf("failed to mark set flag as required: %v", err))
	}
	return cmd
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID [ID...]",
		Short: "Delete domains from the project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, appOptions{}, func(ctx context.Context, _ *app, c *workflow.Controller) error {
				if len(args) == 1 {
					return c.Delete(ctx, args[0])
				}
				c.Select(args...)
				_, err := c.BulkDelete(ctx)
				return err
			})
		},
	}
}

func newMoveCmd(g *globalFlags) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "move ID [ID...]",
		Short: "Move domains to another project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, appOptions{}, func(ctx context.Context, _ *app, c *workflow.Controller) error {
				c.Select(args...)
				_, err := c.Move(ctx, target)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "Target project id (required)")
	if err := cmd.MarkFlagRequired("to"); err != nil {
		panic(fmt.Sprintf("failed to mark to flag as required: %v", err))
	}
	return cmd
}

func newWorkflowsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows ID [ID...]",
		Short: "Create guest-post workflows for qualified domains",
		Long:  "Creates one workflow per qualified domain without one. Others are skipped. Requires --client.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, appOptions{}, func(ctx context.Context, a *app, c *workflow.Controller) error {
				c.Select(args...)
				summary, err := c.CreateWorkflows(ctx)
				if err != nil {
					return err
				}
				for _, domain := range slices.Sorted(maps.Keys(summary.Failures)) {
					fmt.Fprintf(a.out, "  %s: %s\n", domain, summary.Failures[domain])
				}
				if summary.Skipped > 0 {
					fmt.Fprintf(a.out, "Skipped %d domains that are not qualified or already have a workflow\n", summary.Skipped)
				}
				if summary.Created == 0 && summary.Failed > 0 {
					return fmt.Errorf("all %d workflows failed", summary.Failed)
				}
				return nil
			})
		},
	}
}
