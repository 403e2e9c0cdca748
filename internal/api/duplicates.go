package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// CheckDuplicates partitions candidate domains into those already in the
// project and those that exist elsewhere.
func (c *Client) CheckDuplicates(ctx context.Context, req types.CheckDuplicatesRequest) (*types.CheckDuplicatesResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid duplicate check: %w", err)
	}
	var resp types.CheckDuplicatesResponse
	err := c.do(ctx, call{
		op:     "check duplicates",
		method: http.MethodPost,
		path:   "/bulk-analysis/check-duplicates",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveDuplicates sends a held submission with its resolutions in one call.
func (c *Client) ResolveDuplicates(ctx context.Context, req types.ResolveDuplicatesRequest) (*types.ResolveDuplicatesResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolution: %w", err)
	}
	var resp types.ResolveDuplicatesResponse
	err := c.do(ctx, call{
		op:     "resolve duplicates",
		method: http.MethodPost,
		path:   "/bulk-analysis/resolve-duplicates",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
