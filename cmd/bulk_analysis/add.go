package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/duplicates"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/schemas"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// readDomains returns the raw text of path, or stdin for "-".
func readDomains(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read domains from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read domains file %s: %w", path, err)
	}
	return string(data), nil
}

// loadResolutions reads a JSON array of resolutions.
func loadResolutions(path string) ([]types.Resolution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resolutions file %s: %w", path, err)
	}
	var out []types.Resolution
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse resolutions JSON: %w", err)
	}
	return out, nil
}

// loadSubmission reads a JSON submission file checked against its schema.
func loadSubmission(path string) (workflow.AddRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.AddRequest{}, fmt.Errorf("failed to read submission file %s: %w", path, err)
	}
	if err := schemas.ValidateSubmission(data); err != nil {
		return workflow.AddRequest{}, fmt.Errorf("submission file %s: %w", path, err)
	}
	var sub types.PendingSubmission
	if err := json.Unmarshal(data, &sub); err != nil {
		return workflow.AddRequest{}, fmt.Errorf("failed to parse submission JSON: %w", err)
	}
	return workflow.AddRequest{
		Domains:        sub.Domains,
		TargetPageIDs:  sub.TargetPageIDs,
		ManualKeywords: sub.ManualKeywords,
		Metadata:       sub.Metadata,
	}, nil
}

// uniformResolutions applies one decision to every duplicate.
func uniformResolutions(dupes []types.DuplicateDomain, decision types.DuplicateResolution) []types.Resolution {
	out := make([]types.Resolution, 0, len(dupes))
	for _, d := range dupes {
		out = append(out, types.Resolution{Domain: d.Domain, ExistingDomainID: d.ExistingDomainID, Resolution: decision})
	}
	return out
}

func init() {
	register(newAddCmd)
}

func newAddCmd(g *globalFlags) *cobra.Command {
	var (
		file            string
		submission      string
		targetPages     []string
		kws             []string
		onDuplicate     string
		resolutionsPath string
	)
	cmd := &cobra.Command{
		Use:   "add [DOMAIN...]",
		Short: "Add domains to the project",
		Long: `Adds domains after a duplicate check. Domains already in the project are skipped and new
ones are created at once. Domains that exist in another project need a decision: pass
--on-duplicate to apply one to all of them, or --resolutions with a JSON array of
{"domain", "resolution"} objects. Without either, the duplicates are listed and left out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req workflow.AddRequest
			if submission != "" {
				var err error
				if req, err = loadSubmission(submission); err != nil {
					return err
				}
			}
			req.Domains = append(req.Domains, args...)
			if file != "" {
				text, err := readDomains(cmd, file)
				if err != nil {
					return err
				}
				req.Domains = append(req.Domains, text)
			}
			req.TargetPageIDs = append(req.TargetPageIDs, targetPages...)
			req.ManualKeywords = append(req.ManualKeywords, kws...)

			var decision types.DuplicateResolution
			if onDuplicate != "" {
				decision = types.DuplicateResolution(onDuplicate)
				if !decision.Valid() {
					return fmt.Errorf("unknown --on-duplicate %q", onDuplicate)
				}
			}
			var fromFile []types.Resolution
			if resolutionsPath != "" {
				if decision != "" {
					return fmt.Errorf("--on-duplicate and --resolutions are mutually exclusive")
				}
				var err error
				if fromFile, err = loadResolutions(resolutionsPath); err != nil {
					return err
				}
			}

			return withController(cmd, g, appOptions{}, func(ctx context.Context, a *app, c *workflow.Controller) error {
				out, err := c.SubmitDomains(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%d candidates: %d created, %d already in project, %d in other projects\n",
					len(out.Candidates), len(out.Created), len(out.AlreadyInProject), len(out.Duplicates))
				if out.State != duplicates.StateAwaitingResolution {
					return nil
				}

				renderDuplicates(a.out, out.Duplicates)
				resolutions := fromFile
				if decision != "" {
					resolutions = uniformResolutions(out.Duplicates, decision)
				}
				if resolutions == nil {
					c.CancelDuplicates()
					fmt.Fprintln(a.out, "Duplicates were not added; re-run with --on-duplicate or --resolutions to decide")
					return nil
				}
				resp, err := c.ResolveDuplicates(ctx, resolutions)
				if err != nil {
					c.CancelDuplicates()
					return err
				}
				a.log.Debug("duplicates resolved",
					logger.Int("created", resp.Created),
					logger.Int("moved", resp.Moved),
					logger.Int("updated", resp.Updated),
					logger.Int("skipped", resp.Skipped),
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "File of domains, one per line or comma-separated (- for stdin)")
	cmd.Flags().StringVar(&submission, "submission", "", "JSON submission file with domains, targetPageIds, manualKeywords and metadata")
	cmd.Flags().StringSliceVar(&targetPages, "target-page", nil, "Target page id to attach (repeatable)")
	cmd.Flags().StringSliceVarP(&kws, "keyword", "k", nil, "Manual keyword to attach (repeatable)")
	cmd.Flags().StringVar(&onDuplicate, "on-duplicate", "", "Decision for every duplicate: keep_both, move_to_new, skip, update_original")
	cmd.Flags().StringVar(&resolutionsPath, "resolutions", "", "JSON file with a decision per duplicate")
	return cmd
}
