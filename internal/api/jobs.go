package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// SubmitAnalysis starts a keyword-ranking analysis job.
func (c *Client) SubmitAnalysis(ctx context.Context, req types.AnalysisBatchRequest) (*types.JobSubmission, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis request: %w", err)
	}
	var resp types.JobSubmission
	err := c.do(ctx, call{
		op:     "submit analysis",
		method: http.MethodPost,
		path:   "/bulk-analysis/dataforseo/batch",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		return nil, &Error{Op: "submit analysis", Message: "response carried no job id"}
	}
	return &resp, nil
}

// AnalysisStatus polls an analysis job. It has no side effects.
func (c *Client) AnalysisStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error) {
	return c.jobStatus(ctx, "analysis status", "/bulk-analysis/dataforseo/batch", jobID, types.JobKindAnalysis)
}

// SubmitQualification starts a master qualification run. The backend may
// answer with a job id or, for small batches, with final results.
func (c *Client) SubmitQualification(ctx context.Context, req types.QualificationRequest) (*types.QualificationSubmitResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid qualification request: %w", err)
	}
	var resp types.QualificationSubmitResponse
	err := c.do(ctx, call{
		op:     "submit qualification",
		method: http.MethodPost,
		path:   "/bulk-analysis/master-qualify",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	if resp.JobID == "" && !resp.Synchronous() {
		return nil, &Error{Op: "submit qualification", Message: "response carried neither a job id nor results"}
	}
	return &resp, nil
}

// QualificationStatus polls a qualification job.
func (c *Client) QualificationStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error) {
	return c.jobStatus(ctx, "qualification status", "/bulk-analysis/master-qualify", jobID, types.JobKindQualification)
}

func (c *Client) jobStatus(ctx context.Context, op, path, jobID string, kind types.JobKind) (*types.JobStatusResponse, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	var resp types.JobStatusResponse
	err := c.do(ctx, call{
		op:     op,
		method: http.MethodGet,
		path:   path,
		query:  url.Values{"jobId": {jobID}},
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	if resp.Job.ID == "" {
		resp.Job.ID = jobID
	}
	resp.Job.Kind = kind
	return &resp, nil
}

// SmartFilters returns project-wide pending id sets for smart selection.
func (c *Client) SmartFilters(ctx context.Context, projectID string) (*types.SmartFilters, error) {
	var query url.Values
	if projectID != "" {
		query = url.Values{"projectId": {projectID}}
	}
	var resp types.SmartFiltersResponse
	err := c.do(ctx, call{
		op:     "smart filters",
		method: http.MethodGet,
		path:   "/bulk-analysis/master-qualify",
		query:  query,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Filters, nil
}
