package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// ListDomains returns every domain record of a project.
func (c *Client) ListDomains(ctx context.Context, projectID string) ([]types.DomainRecord, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	var resp types.ListDomainsResponse
	err := c.do(ctx, call{
		op:     "list domains",
		method: http.MethodGet,
		path:   "/bulk-analysis",
		query:  url.Values{"projectId": {projectID}},
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return resp.Domains, nil
}

// GetDomain fetches one fresh record.
func (c *Client) GetDomain(ctx context.Context, id string) (*types.DomainRecord, error) {
	var rec types.DomainRecord
	err := c.do(ctx, call{
		op:     "get domain",
		method: http.MethodGet,
		path:   "/bulk-analysis/" + url.PathEscape(id),
		out:    &rec,
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateDomain sets the status and notes of one domain and returns the updated record.
func (c *Client) UpdateDomain(ctx context.Context, id string, req types.UpdateDomainRequest) (*types.DomainRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid update: %w", err)
	}
	var rec types.DomainRecord
	err := c.do(ctx, call{
		op:     "update domain",
		method: http.MethodPut,
		path:   "/bulk-analysis/" + url.PathEscape(id),
		body:   req,
		out:    &rec,
	})
	if err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// DeleteDomain deletes one domain. A 404 counts as already deleted.
func (c *Client) DeleteDomain(ctx context.Context, id string) error {
	err := c.do(ctx, call{
		op:     "delete domain",
		method: http.MethodDelete,
		path:   "/bulk-analysis/" + url.PathEscape(id),
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// BulkUpdateStatus sets one status on many domains.
func (c *Client) BulkUpdateStatus(ctx context.Context, req types.BulkStatusRequest) (int, error) {
	if req.Action == "" {
		req.Action = types.ActionForStatus(req.Status)
	}
	if err := req.Validate(); err != nil {
		return 0, fmt.Errorf("invalid bulk update: %w", err)
	}
	var resp types.BulkUpdateResponse
	err := c.do(ctx, call{
		op:     "bulk update",
		method: http.MethodPut,
		path:   "/bulk-analysis/bulk",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// BulkDelete deletes many domains.
func (c *Client) BulkDelete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("no domains to delete")
	}
	var resp types.BulkDeleteResponse
	err := c.do(ctx, call{
		op:     "bulk delete",
		method: http.MethodDelete,
		path:   "/bulk-analysis/bulk",
		body:   types.BulkDeleteRequest{DomainIDs: ids},
		out:    &resp,
	})
	if err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// CreateDomains adds new domain records to a project.
func (c *Client) CreateDomains(ctx context.Context, req types.CreateDomainsRequest) (*types.CreateDomainsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid create: %w", err)
	}
	var resp types.CreateDomainsResponse
	err := c.do(ctx, call{
		op:     "create domains",
		method: http.MethodPost,
		path:   "/bulk-analysis",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	if resp.Created == 0 {
		resp.Created = len(resp.Domains)
	}
	return &resp, nil
}

// MoveDomains moves domains into another project.
func (c *Client) MoveDomains(ctx context.Context, req types.MoveDomainsRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, fmt.Errorf("invalid move: %w", err)
	}
	var resp types.MoveDomainsResponse
	err := c.do(ctx, call{
		op:     "move domains",
		method: http.MethodPost,
		path:   "/bulk-analysis/move",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return 0, err
	}
	return resp.Moved, nil
}
