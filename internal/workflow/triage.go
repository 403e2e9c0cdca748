package workflow

import (
	"context"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/triage"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// triageActions adapts the controller to triage.Actions.
type triageActions struct {
	c *Controller
}

func (a triageActions) SetStatus(ctx context.Context, id string, status types.QualificationStatus, notes string) error {
	return a.c.SetStatus(ctx, id, status, notes)
}

func (a triageActions) StartAnalysis(ids, kws []string) error {
	_, err := a.c.StartAnalysis(ids, kws)
	return err
}

func (a triageActions) CancelJob() {
	a.c.CancelJob()
}

func (a triageActions) Reload(ctx context.Context) error {
	if a.c.closed.Load() {
		return nil
	}
	return a.c.Reload(ctx)
}

// OpenTriage starts a triage session over ids, closing any previous one.
func (c *Controller) OpenTriage(ctx context.Context, ids []string, opts triage.Options) (*triage.Session, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = c.log
	}
	session, err := triage.New(triageActions{c: c}, ids, opts)
	if err != nil {
		return nil, c.fail("Open triage", err)
	}

	c.mu.Lock()
	prev := c.triage
	c.triage = session
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close(ctx)
	}
	return session, nil
}

// Triage returns the open triage session, if any.
func (c *Controller) Triage() *triage.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triage
}

// CloseTriage closes the open session, which cancels its navigation and
// active job and reloads the records.
func (c *Controller) CloseTriage(ctx context.Context) error {
	c.mu.Lock()
	session := c.triage
	c.triage = nil
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close(ctx)
}
