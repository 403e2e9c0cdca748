package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/duplicates"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// AddRequest is the payload of SubmitDomains.
type AddRequest struct {
	Domains        []string          `json:"domains"`
	TargetPageIDs  []string          `json:"targetPageIds,omitempty"`
	ManualKeywords []string          `json:"manualKeywords,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SubmitDomains runs the duplicate check and adds the new domains.
func (c *Controller) SubmitDomains(ctx context.Context, req AddRequest) (duplicates.Outcome, error) {
	if err := c.checkOpen(); err != nil {
		return duplicates.Outcome{}, err
	}
	return c.dupes.Submit(ctx, types.PendingSubmission{
		ProjectID:      c.opts.ProjectID,
		ClientID:       c.opts.ClientID,
		Domains:        req.Domains,
		TargetPageIDs:  req.TargetPageIDs,
		ManualKeywords: req.ManualKeywords,
		Metadata:       req.Metadata,
	})
}

// PendingDuplicates returns the duplicates awaiting a decision.
func (c *Controller) PendingDuplicates() ([]types.DuplicateDomain, bool) {
	_, dupes, ok := c.dupes.Pending()
	return dupes, ok
}

// DuplicateState returns the duplicate flow's state.
func (c *Controller) DuplicateState() duplicates.State {
	return c.dupes.State()
}

// ResolveDuplicates sends one decision per pending duplicate.
func (c *Controller) ResolveDuplicates(ctx context.Context, resolutions []types.Resolution) (*types.ResolveDuplicatesResponse, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.dupes.Resolve(ctx, resolutions)
}

// CancelDuplicates drops the pending submission.
func (c *Controller) CancelDuplicates() bool {
	return c.dupes.Cancel()
}

// WorkflowSummary reports a bulk workflow creation.
type WorkflowSummary struct {
	Created  int               `json:"created"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped"`
	Failures map[string]string `json:"failures,omitempty"`
}

// CreateWorkflows starts a guest-post workflow for every selected domain that
// is qualified and has none yet. Each domain is a separate call; successes
// and failures are counted and reported together.
func (c *Controller) CreateWorkflows(ctx context.Context) (WorkflowSummary, error) {
	const op = "Create workflows"
	if err := c.checkOpen(); err != nil {
		return WorkflowSummary{}, err
	}
	if c.opts.ClientID == "" {
		return WorkflowSummary{}, c.fail(op, errors.New("project has no client"))
	}
	ids := c.selection.IDs()
	if len(ids) == 0 {
		return WorkflowSummary{}, c.fail(op, ErrNoSelection)
	}

	var summary WorkflowSummary
	var eligible []types.DomainRecord
	for _, rec := range c.store.Lookup(ids) {
		if rec.QualificationStatus.IsQualified() && !rec.HasWorkflow {
			eligible = append(eligible, rec)
		}
	}
	summary.Skipped = len(ids) - len(eligible)
	if len(eligible) == 0 {
		c.slot.Infof("No qualified domains without a workflow in the selection")
		return summary, nil
	}
	c.slot.Progressf("Creating %d workflows...", len(eligible))

	var (
		mu      sync.Mutex
		created []string
	)
	failures := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.WorkflowConcurrency)
	for _, rec := range eligible {
		g.Go(func() error {
			_, err := c.backend.CreateWorkflow(gctx, types.CreateWorkflowRequest{
				ClientID:            c.opts.ClientID,
				ProjectID:           c.opts.ProjectID,
				DomainID:            rec.ID,
				Domain:              rec.Domain,
				QualificationStatus: rec.QualificationStatus,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[rec.Domain] = api.Message(err)
				c.log.Warn("workflow creation failed", logger.String("domain", rec.Domain), logger.Error(err))
				return nil
			}
			created = append(created, rec.ID)
			return nil
		})
	}
	_ = g.Wait()

	summary.Created = len(created)
	summary.Failed = len(failures)
	if len(failures) > 0 {
		summary.Failures = failures
	}

	c.store.PatchLocal(created, func(r *types.DomainRecord) { r.HasWorkflow = true })
	c.selection.Remove(created...)

	switch {
	case summary.Failed == 0:
		c.slot.Successf("Created %d workflows", summary.Created)
	case summary.Created == 0:
		c.slot.Fail(op, errors.New(pluralFailed(summary.Failed)))
	default:
		c.slot.Successf("Created %d workflows, %s", summary.Created, pluralFailed(summary.Failed))
	}
	return summary, nil
}

func pluralFailed(n int) string {
	return fmt.Sprintf("%d failed", n)
}
