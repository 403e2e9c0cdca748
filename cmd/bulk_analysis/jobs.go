package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
)

var errNoDatabase = errors.New("the job journal needs DATABASE_URL or database_url in the config file")

func init() {
	register(newJobsCmd)
}

func newJobsCmd(g *globalFlags) *cobra.Command {
	var (
		filters db.JobFilters
		jobID   string
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show the bulk job journal",
		Long:  "Lists analysis and qualification jobs recorded in the PostgreSQL journal, newest first. With --id prints one job as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, g, appOptions{journal: true})
			if err != nil {
				return err
			}
			defer a.close()
			if a.journal == nil {
				return errNoDatabase
			}

			if jobID != "" {
				job, err := a.journal.GetJob(ctx, jobID)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(job, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal job: %w", err)
				}
				fmt.Fprintln(a.out, string(data))
				return nil
			}

			if filters.ProjectID == "" {
				filters.ProjectID = a.cfg.ProjectID
			}
			jobs, err := a.journal.ListJobs(ctx, filters)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(a.out, "No jobs recorded")
				return nil
			}
			renderJobs(a.out, jobs, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "id", "", "Show one job")
	cmd.Flags().StringVar(&filters.Kind, "kind", "", "Filter by kind: analysis or qualification")
	cmd.Flags().StringVar(&filters.Status, "status", "", "Filter by status: running, completed, failed, timeout, cancelled")
	cmd.Flags().IntVarP(&filters.Limit, "limit", "n", db.DefaultJobLimit, "Maximum jobs to list")
	return cmd
}
