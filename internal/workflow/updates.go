package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// acquire takes the status-update guard shared by single and bulk updates.
func (c *Controller) acquire(op string) (func(), error) {
	if !c.updating.CompareAndSwap(false, true) {
		return nil, c.fail(op, ErrBusy)
	}
	return func() { c.updating.Store(false) }, nil
}

// SetStatus records a manual decision for one domain. The local record is
// patched only after the backend confirms; the list is not reloaded. Empty
// notes keep the record's current notes.
func (c *Controller) SetStatus(ctx context.Context, id string, status types.QualificationStatus, notes string) error {
	const op = "Update status"
	if err := c.checkOpen(); err != nil {
		return err
	}
	release, err := c.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	if notes == "" {
		if rec, ok := c.store.Get(id); ok {
			notes = rec.Notes
		}
	}

	manual := true
	updated, err := c.backend.UpdateDomain(ctx, id, types.UpdateDomainRequest{
		Status:   status,
		UserID:   c.actingUser(ctx),
		Notes:    notes,
		IsManual: &manual,
	})
	if err != nil {
		return c.fail(op, err)
	}

	c.store.PatchLocal([]string{id}, func(r *types.DomainRecord) {
		r.QualificationStatus = updated.QualificationStatus
		r.Notes = updated.Notes
		r.WasManuallyQualified = updated.WasManuallyQualified
		if !updated.UpdatedAt.IsZero() {
			r.UpdatedAt = updated.UpdatedAt
		}
	})

	name := id
	if rec, ok := c.store.Get(id); ok {
		name = rec.Domain
	}
	c.slot.Successf("Marked %s as %s", name, updated.QualificationStatus.Label())
	c.log.Info("status updated", logger.String("domain_id", id), logger.String("status", string(updated.QualificationStatus)))
	return nil
}

// BulkSetStatus applies status to every selected domain, patches them locally
// once the backend confirms and clears the selection.
func (c *Controller) BulkSetStatus(ctx context.Context, status types.QualificationStatus) (int, error) {
	const op = "Bulk update"
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	ids := c.selection.IDs()
	if len(ids) == 0 {
		return 0, c.fail(op, ErrNoSelection)
	}
	if !status.Valid() {
		return 0, c.fail(op, fmt.Errorf("unknown status %q", status))
	}
	release, err := c.acquire(op)
	if err != nil {
		return 0, err
	}
	defer release()

	updated, err := c.backend.BulkUpdateStatus(ctx, types.BulkStatusRequest{
		DomainIDs: ids,
		Status:    status,
		Action:    types.ActionForStatus(status),
	})
	if err != nil {
		return 0, c.fail(op, err)
	}

	now := time.Now().UTC()
	c.store.PatchLocal(ids, func(r *types.DomainRecord) {
		r.QualificationStatus = status
		r.WasManuallyQualified = status != types.StatusPending
		r.UpdatedAt = now
	})
	c.selection.Clear()

	c.slot.Successf("Updated %d domains to %s", updated, status.Label())
	c.log.Info("bulk status updated", logger.Int("updated", updated), logger.String("status", string(status)))
	return updated, nil
}

// Delete removes one domain locally and reloads, since membership changed.
func (c *Controller) Delete(ctx context.Context, id string) error {
	const op = "Delete domain"
	if err := c.checkOpen(); err != nil {
		return err
	}
	name := id
	if rec, ok := c.store.Get(id); ok {
		name = rec.Domain
	}
	if err := c.backend.DeleteDomain(ctx, id); err != nil {
		return c.fail(op, err)
	}
	c.selection.Remove(id)
	c.store.Remove(id)
	if err := c.Reload(ctx); err != nil {
		return err
	}
	c.slot.Successf("Deleted %s", name)
	return nil
}

// BulkDelete deletes every selected domain and reloads.
func (c *Controller) BulkDelete(ctx context.Context) (int, error) {
	const op = "Bulk delete"
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	ids := c.selection.IDs()
	if len(ids) == 0 {
		return 0, c.fail(op, ErrNoSelection)
	}
	deleted, err := c.backend.BulkDelete(ctx, ids)
	if err != nil {
		return 0, c.fail(op, err)
	}
	c.selection.Clear()
	c.store.Remove(ids...)
	if err := c.Reload(ctx); err != nil {
		return deleted, err
	}
	c.slot.Successf("Deleted %d domains", deleted)
	return deleted, nil
}

// Move moves every selected domain into another project and reloads.
func (c *Controller) Move(ctx context.Context, targetProjectID string) (int, error) {
	const op = "Move domains"
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	ids := c.selection.IDs()
	if len(ids) == 0 {
		return 0, c.fail(op, ErrNoSelection)
	}
	if targetProjectID == c.opts.ProjectID {
		return 0, c.fail(op, fmt.Errorf("domains are already in project %s", targetProjectID))
	}
	moved, err := c.backend.MoveDomains(ctx, types.MoveDomainsRequest{DomainIDs: ids, TargetProjectID: targetProjectID})
	if err != nil {
		return 0, c.fail(op, err)
	}
	c.selection.Clear()
	if err := c.Reload(ctx); err != nil {
		return moved, err
	}
	c.slot.Successf("Moved %d domains to project %s", moved, targetProjectID)
	return moved, nil
}
