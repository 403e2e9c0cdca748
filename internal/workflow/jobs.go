package workflow

import (
	"context"
	"errors"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/keywords"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/selection"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// StartAnalysis submits a DataForSEO analysis for ids, or the selection when
// ids is empty. The job runs in the background until it ends or Close is
// called; the returned channel delivers its final snapshot.
func (c *Controller) StartAnalysis(ids, kws []string) (<-chan bulkjob.Snapshot, error) {
	const op = "DataForSEO analysis"
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = c.selection.IDs()
	}
	if len(ids) == 0 {
		return nil, c.fail(op, ErrNoSelection)
	}
	kws = keywords.Dedupe(kws)
	if len(kws) == 0 {
		return nil, c.fail(op, ErrNoKeywords)
	}

	ids = append([]string(nil), ids...)
	return c.start(op, bulkjob.Spec{
		Kind:      types.JobKindAnalysis,
		ProjectID: c.opts.ProjectID,
		DomainIDs: ids,
		Submit: func(ctx context.Context) (*bulkjob.Submission, error) {
			sub, err := c.backend.SubmitAnalysis(ctx, types.AnalysisBatchRequest{
				DomainIDs:    ids,
				Keywords:     kws,
				LocationCode: c.opts.LocationCode,
				LanguageCode: c.opts.LanguageCode,
			})
			if err != nil {
				return nil, err
			}
			return &bulkjob.Submission{JobID: sub.JobID, TotalDomains: sub.TotalDomains}, nil
		},
		Poll: c.backend.AnalysisStatus,
	})
}

// StartQualification submits an AI qualification run for ids, or the
// selection when ids is empty. A backend answering synchronously is treated
// as a job that completed on submission.
func (c *Controller) StartQualification(ids, targetPageIDs []string) (<-chan bulkjob.Snapshot, error) {
	const op = "AI qualification"
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = c.selection.IDs()
	}
	if len(ids) == 0 {
		return nil, c.fail(op, ErrNoSelection)
	}

	ids = append([]string(nil), ids...)
	return c.start(op, bulkjob.Spec{
		Kind:      types.JobKindQualification,
		ProjectID: c.opts.ProjectID,
		DomainIDs: ids,
		Submit: func(ctx context.Context) (*bulkjob.Submission, error) {
			resp, err := c.backend.SubmitQualification(ctx, types.QualificationRequest{
				DomainIDs:     ids,
				TargetPageIDs: targetPageIDs,
				LocationCode:  c.opts.LocationCode,
				LanguageCode:  c.opts.LanguageCode,
			})
			if err != nil {
				return nil, err
			}
			total := resp.TotalDomains
			if resp.Synchronous() && resp.Summary != nil {
				total = resp.Summary.Total
			}
			return &bulkjob.Submission{JobID: resp.JobID, TotalDomains: total, Completed: resp.Synchronous()}, nil
		},
		Poll: c.backend.QualificationStatus,
	})
}

func (c *Controller) start(op string, spec bulkjob.Spec) (<-chan bulkjob.Snapshot, error) {
	done, err := c.runner.Start(c.ctx, spec)
	if err != nil {
		return nil, c.fail(op, err)
	}
	return done, nil
}

// Job returns the current or last job's snapshot.
func (c *Controller) Job() bulkjob.Snapshot {
	return c.runner.Snapshot()
}

// JobActive reports whether a job is running; job triggers are disabled while it is.
func (c *Controller) JobActive() bool {
	return c.runner.Active()
}

// CancelJob stops tracking the active job.
func (c *Controller) CancelJob() {
	c.runner.Cancel()
}

// WaitJob blocks until no job is running.
func (c *Controller) WaitJob() {
	c.runner.Wait()
}

// SmartSelect replaces the selection with every project domain pending the
// preset's analysis, as reported by the backend.
func (c *Controller) SmartSelect(ctx context.Context, preset selection.Preset) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	n, err := c.selection.SmartSelect(ctx, c.backend, c.opts.ProjectID, preset)
	if err != nil {
		var serr *selection.Error
		if errors.As(err, &serr) && serr.Cause != nil {
			return 0, c.fail("Smart select", serr.Cause)
		}
		return 0, c.fail("Smart select", err)
	}
	c.slot.Infof("Selected %d domains (%s)", n, presetLabel(preset))
	return n, nil
}

func presetLabel(p selection.Preset) string {
	switch p {
	case selection.PresetPendingDataForSeo:
		return "pending DataForSEO"
	case selection.PresetPendingAI:
		return "pending AI qualification"
	case selection.PresetPendingBoth:
		return "pending both analyses"
	}
	return string(p)
}
