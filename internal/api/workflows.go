package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// CreateWorkflow starts a guest-post workflow for a qualified domain.
func (c *Client) CreateWorkflow(ctx context.Context, req types.CreateWorkflowRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid workflow request: %w", err)
	}
	var resp types.CreateWorkflowResponse
	err := c.do(ctx, call{
		op:     "create workflow",
		method: http.MethodPost,
		path:   "/workflows",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ListTargetPages returns a client's target pages.
func (c *Client) ListTargetPages(ctx context.Context, clientID string) ([]types.TargetPage, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	var resp types.ListTargetPagesResponse
	err := c.do(ctx, call{
		op:     "list target pages",
		method: http.MethodGet,
		path:   "/clients/" + url.PathEscape(clientID) + "/target-pages",
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return resp.TargetPages, nil
}
