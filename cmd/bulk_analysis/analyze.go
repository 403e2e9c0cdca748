package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/keywords"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/selection"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// selectTargets selects args, or the project-wide preset when args is empty.
func selectTargets(ctx context.Context, c *workflow.Controller, args []string, preset string) error {
	if len(args) > 0 {
		c.Select(args...)
		return nil
	}
	if preset == "" {
		return errors.New("pass domain ids or --pending")
	}
	p, err := selection.ParsePreset(preset)
	if err != nil {
		return err
	}
	_, err = c.SmartSelect(ctx, p)
	return err
}

// waitJob blocks until the job ends. An interrupt cancels the job first.
func waitJob(ctx context.Context, c *workflow.Controller, done <-chan bulkjob.Snapshot) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var snap bulkjob.Snapshot
	select {
	case snap = <-done:
	case <-ctx.Done():
		c.CancelJob()
		snap = <-done
	}
	if snap.State == bulkjob.StateFailed {
		return fmt.Errorf("%s job failed: %s", snap.Kind, snap.Error)
	}
	return nil
}

func init() {
	register(newAnalyzeCmd, newQualifyCmd, newClustersCmd)
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var (
		kws         []string
		fromTargets bool
		pending     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [ID...]",
		Short: "Run DataForSEO keyword analysis",
		Long:  "Submits a DataForSEO ranking analysis for the given domains, or with --pending for every domain in the project still missing one, then polls until it finishes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, appOptions{journal: true}, func(ctx context.Context, a *app, c *workflow.Controller) error {
				preset := ""
				if pending {
					preset = string(selection.PresetPendingDataForSeo)
				}
				if err := selectTargets(ctx, c, args, preset); err != nil {
					return err
				}

				all := kws
				if fromTargets {
					clusters, err := c.KeywordClusters(ctx, kws, &keywords.FetchOptions{Timeout: a.cfg.RequestTimeout()})
					if err != nil {
						return err
					}
					all = keywords.SelectedKeywords(clusters)
				}

				done, err := c.StartAnalysis(nil, all)
				if err != nil {
					return err
				}
				return waitJob(ctx, c, done)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&kws, "keyword", "k", nil, "Keyword to rank for (repeatable or comma-separated)")
	cmd.Flags().BoolVar(&fromTargets, "from-targets", false, "Add the keywords of the client's target pages (requires --client)")
	cmd.Flags().BoolVar(&pending, "pending", false, "Analyze every project domain without DataForSEO results")
	return cmd
}

func newQualifyCmd(g *globalFlags) *cobra.Command {
	var (
		targetPages []string
		pending     bool
	)
	cmd := &cobra.Command{
		Use:   "qualify [ID...]",
		Short: "Run AI qualification",
		Long:  "Submits AI qualification for the given domains, or with --pending for every project domain not yet AI-qualified, then waits for the results.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, g, appOptions{journal: true}, func(ctx context.Context, _ *app, c *workflow.Controller) error {
				preset := ""
				if pending {
					preset = string(selection.PresetPendingAI)
				}
				if err := selectTargets(ctx, c, args, preset); err != nil {
					return err
				}
				done, err := c.StartQualification(nil, targetPages)
				if err != nil {
					return err
				}
				return waitJob(ctx, c, done)
			})
		},
	}
	cmd.Flags().StringSliceVar(&targetPages, "target-page", nil, "Target page id to qualify against (repeatable)")
	cmd.Flags().BoolVar(&pending, "pending", false, "Qualify every project domain still awaiting AI qualification")
	return cmd
}

func newClustersCmd(g *globalFlags) *cobra.Command {
	var kws []string
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Group keywords into topical clusters",
		Long:  "Clusters the given keywords together with the client's target page keywords, as offered before an analysis.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withController(cmd, g, appOptions{}, func(ctx context.Context, a *app, c *workflow.Controller) error {
				clusters, err := c.KeywordClusters(ctx, kws, &keywords.FetchOptions{Timeout: a.cfg.RequestTimeout()})
				if err != nil {
					return err
				}
				renderClusters(a.out, clusters)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&kws, "keyword", "k", nil, "Manual keyword (repeatable or comma-separated)")
	return cmd
}
