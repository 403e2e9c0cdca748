package bulkjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/messages"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/metrics"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// Defaults
const (
	DefaultInterval           = 2 * time.Second
	DefaultMaxPollErrors      = 3
	DefaultRefetchConcurrency = 8
)

var (
	// ErrJobInFlight is returned when a job is started while another is active.
	ErrJobInFlight = errors.New("a bulk job is already running")
	// ErrPollTimeout is returned when a job exceeds its attempt or duration bound.
	ErrPollTimeout = errors.New("job polling timed out")
	// ErrNoDomains is returned for a job with no domains.
	ErrNoDomains = errors.New("no domains selected")
)

// JobFailedError reports a job the backend marked failed.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Submission is the backend's answer to a job submission. Completed marks a
// backend that finished the work synchronously; no polling follows.
type Submission struct {
	JobID        string
	TotalDomains int
	Completed    bool
}

// Spec describes one job.
type Spec struct {
	Kind      types.JobKind
	ProjectID string
	DomainIDs []string
	Submit    func(ctx context.Context) (*Submission, error)
	Poll      func(ctx context.Context, jobID string) (*types.JobStatusResponse, error)
}

// Refetcher loads one fresh record.
type Refetcher interface {
	GetDomain(ctx context.Context, id string) (*types.DomainRecord, error)
}

// Merger merges refetched records into the session's collection by id.
type Merger interface {
	MergeByID(records []types.DomainRecord) int
}

// Clearer empties the selection once a job completes.
type Clearer interface {
	Clear()
}

// Journal records job lifecycle. Errors are logged and otherwise ignored.
type Journal interface {
	RecordStart(ctx context.Context, jobID, projectID, kind string, total int) error
	RecordProgress(ctx context.Context, jobID string, processed, total int) error
	RecordFinish(ctx context.Context, jobID, status, message string) error
}

// ProgressEvent is published on every state change and progress update.
type ProgressEvent struct {
	Type    string        `json:"type"`
	JobID   string        `json:"job_id,omitempty"`
	Kind    types.JobKind `json:"kind"`
	State   State         `json:"state"`
	Current int           `json:"current"`
	Total   int           `json:"total"`
	Message string        `json:"message,omitempty"`
}

// ProgressEvent types
const (
	EventTypeSubmitted = "submitted"
	EventTypeProgress  = "progress"
	EventTypeCompleted = "completed"
	EventTypeFailed    = "failed"
)

// ProgressCallback receives progress events.
type ProgressCallback func(event ProgressEvent)

// Options configures a Runner.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration
	// MaxPollErrors is how many consecutive failed polls end the job.
	MaxPollErrors      int
	RefetchConcurrency int

	Logger     logger.Logger
	Metrics    *metrics.Metrics
	Messages   *messages.Slot
	Journal    Journal
	OnProgress ProgressCallback
	// Describe renders an error for the message slot.
	Describe func(error) string
}

// Snapshot is the observable state of the current or last job.
type Snapshot struct {
	State            State         `json:"state"`
	JobID            string        `json:"job_id,omitempty"`
	Kind             types.JobKind `json:"kind,omitempty"`
	Current          int           `json:"current"`
	Total            int           `json:"total"`
	KeywordsAnalyzed int           `json:"keywords_analyzed,omitempty"`
	RankingsFound    int           `json:"rankings_found,omitempty"`
	DomainIDs        []string      `json:"domain_ids,omitempty"`
	Refetched        int           `json:"refetched"`
	RefetchFailed    int           `json:"refetch_failed"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`

	err error
}

// Err returns the job's terminal error, nil when completed.
func (s Snapshot) Err() error {
	return s.err
}

// Runner runs at most one job at a time.
type Runner struct {
	opts      Options
	refetch   Refetcher
	records   Merger
	selection Clearer
	log       logger.Logger
	machine   Machine

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
	snap   Snapshot
}

// NewRunner creates a runner reconciling completed jobs into records and clearing selection.
func NewRunner(refetch Refetcher, records Merger, selection Clearer, opts Options) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxPollErrors <= 0 {
		opts.MaxPollErrors = DefaultMaxPollErrors
	}
	if opts.RefetchConcurrency <= 0 {
		opts.RefetchConcurrency = DefaultRefetchConcurrency
	}
	if opts.Messages == nil {
		opts.Messages = messages.NewSlot()
	}
	if opts.Describe == nil {
		opts.Describe = func(err error) string { return err.Error() }
	}
	return &Runner{
		opts:      opts,
		refetch:   refetch,
		records:   records,
		selection: selection,
		log:       logger.OrNop(opts.Logger),
		snap:      Snapshot{State: StateIdle},
	}
}

// Active reports whether a job is being submitted or polled.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Snapshot returns the state of the current or last job.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap
	s.DomainIDs = append([]string(nil), r.snap.DomainIDs...)
	return s
}

// Start launches spec in the background. It fails fast with ErrJobInFlight
// while another job is active; the active job is left alone. The returned
// channel delivers the final snapshot.
func (r *Runner) Start(ctx context.Context, spec Spec) (<-chan Snapshot, error) {
	if len(spec.DomainIDs) == 0 {
		return nil, ErrNoDomains
	}
	if spec.Submit == nil || spec.Poll == nil {
		return nil, fmt.Errorf("job spec needs Submit and Poll")
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, ErrJobInFlight
	}
	jobCtx, cancel := context.WithCancel(ctx)
	r.active = true
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	out := make(chan Snapshot, 1)
	go func() {
		defer close(done)
		defer cancel()
		snap := r.run(jobCtx, spec)

		r.mu.Lock()
		r.active = false
		r.cancel = nil
		r.mu.Unlock()

		out <- snap
		close(out)
	}()
	return out, nil
}

// Run runs spec to a terminal state and returns its final snapshot.
func (r *Runner) Run(ctx context.Context, spec Spec) (Snapshot, error) {
	ch, err := r.Start(ctx, spec)
	if err != nil {
		return r.Snapshot(), err
	}
	snap := <-ch
	return snap, snap.Err()
}

// Cancel stops the active job's loop. The job ends Failed with context.Canceled.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until no job is running.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels the active job and waits for its loop to exit.
func (r *Runner) Close() {
	r.Cancel()
	r.Wait()
}

func label(kind types.JobKind) string {
	if kind == types.JobKindQualification {
		return "AI qualification"
	}
	return "DataForSEO analysis"
}

func (r *Runner) transition(ev Event) State {
	to, err := r.machine.Apply(ev)
	if err != nil {
		r.log.Error("bulk job transition rejected", logger.Error(err))
	}
	r.mu.Lock()
	r.snap.State = to
	r.mu.Unlock()
	return to
}

func (r *Runner) emit(typ, message string) {
	if r.opts.OnProgress == nil {
		return
	}
	s := r.Snapshot()
	r.opts.OnProgress(ProgressEvent{
		Type:    typ,
		JobID:   s.JobID,
		Kind:    s.Kind,
		State:   s.State,
		Current: s.Current,
		Total:   s.Total,
		Message: message,
	})
}

func (r *Runner) run(ctx context.Context, spec Spec) Snapshot {
	ids := append([]string(nil), spec.DomainIDs...)
	start := time.Now()

	r.mu.Lock()
	r.snap = Snapshot{Kind: spec.Kind, DomainIDs: ids, Total: len(ids), StartedAt: start}
	r.mu.Unlock()
	r.transition(EventSubmit)

	name := label(spec.Kind)
	r.opts.Messages.Progressf("Starting %s for %d domains...", name, len(ids))

	sub, err := spec.Submit(ctx)
	if err != nil {
		r.transition(EventRejected)
		r.opts.Messages.Fail(name, errors.New(r.opts.Describe(err)))
		return r.finish(ctx, spec, err, false, start)
	}

	total := sub.TotalDomains
	if total <= 0 {
		total = len(ids)
	}
	r.mu.Lock()
	r.snap.JobID = sub.JobID
	r.snap.Total = total
	r.snap.Current = 0
	r.mu.Unlock()

	r.opts.Metrics.JobStarted(string(spec.Kind))
	if r.opts.Journal != nil && sub.JobID != "" {
		if jerr := r.opts.Journal.RecordStart(ctx, sub.JobID, spec.ProjectID, string(spec.Kind), total); jerr != nil {
			r.log.Warn("job journal start failed", logger.String("job_id", sub.JobID), logger.Error(jerr))
		}
	}
	r.log.Info("bulk job accepted",
		logger.String("job_id", sub.JobID),
		logger.String("kind", string(spec.Kind)),
		logger.Int("total", total),
		logger.Bool("synchronous", sub.Completed),
	)

	if sub.Completed {
		r.setProgress(types.BulkJob{ProcessedDomains: total, TotalDomains: total})
		r.transition(EventCompleted)
		return r.complete(ctx, spec, ids, start)
	}

	r.transition(EventAccepted)
	r.emit(EventTypeSubmitted, "")
	r.opts.Messages.Progressf("%s: 0/%d domains processed", name, total)

	err = r.poll(ctx, spec, sub.JobID)
	switch {
	case err == nil:
		r.transition(EventCompleted)
		return r.complete(ctx, spec, ids, start)
	case ctx.Err() != nil:
		r.transition(EventCancel)
		r.opts.Messages.Infof("Stopped tracking %s job %s", name, sub.JobID)
		return r.finish(ctx, spec, ctx.Err(), true, start)
	case errors.Is(err, ErrPollTimeout):
		r.transition(EventTimeout)
	default:
		r.transition(EventFailed)
	}
	r.opts.Messages.Fail(name, errors.New(r.opts.Describe(err)))
	return r.finish(ctx, spec, err, true, start)
}

// poll returns nil once the job completes.
func (r *Runner) poll(ctx context.Context, spec Spec, jobID string) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if r.opts.MaxDuration > 0 {
		timer := time.NewTimer(r.opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	attempts, consecutiveErrs := 0, 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrPollTimeout, r.opts.MaxDuration)
		case <-ticker.C:
		}

		attempts++
		r.opts.Metrics.PollTick(string(spec.Kind))
		resp, err := spec.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			consecutiveErrs++
			r.log.Warn("bulk job poll failed",
				logger.String("job_id", jobID),
				logger.Int("attempt", attempts),
				logger.Error(err),
			)
			if consecutiveErrs >= r.opts.MaxPollErrors {
				return fmt.Errorf("poll %s: %w", jobID, err)
			}
		} else {
			consecutiveErrs = 0
			switch resp.Job.Status {
			case types.JobStatusCompleted:
				r.setProgress(resp.Job)
				r.emitProgress(spec)
				return nil
			case types.JobStatusFailed:
				return &JobFailedError{JobID: jobID, Message: resp.Job.Error}
			default:
				r.setProgress(resp.Job)
				r.emitProgress(spec)
			}
		}

		if r.opts.MaxAttempts > 0 && attempts >= r.opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrPollTimeout, attempts)
		}
	}
}

// setProgress writes the latest counters; last write wins.
func (r *Runner) setProgress(job types.BulkJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Current = job.ProcessedDomains
	if job.TotalDomains > 0 {
		r.snap.Total = job.TotalDomains
	}
	r.snap.KeywordsAnalyzed = job.TotalKeywordsAnalyzed
	r.snap.RankingsFound = job.TotalRankingsFound
}

func (r *Runner) emitProgress(spec Spec) {
	s := r.Snapshot()
	r.opts.Messages.Progressf("%s: %d/%d domains processed", label(spec.Kind), s.Current, s.Total)
	r.emit(EventTypeProgress, "")
	if r.opts.Journal != nil && s.JobID != "" {
		if err := r.opts.Journal.RecordProgress(context.Background(), s.JobID, s.Current, s.Total); err != nil {
			r.log.Warn("job journal progress failed", logger.String("job_id", s.JobID), logger.Error(err))
		}
	}
}

// complete refetches every domain of the job individually, merges them by id
// and clears the selection.
func (r *Runner) complete(ctx context.Context, spec Spec, ids []string, start time.Time) Snapshot {
	fetched, failed := r.refetchAll(ctx, ids)
	r.records.MergeByID(fetched)
	r.selection.Clear()

	r.mu.Lock()
	r.snap.Refetched = len(fetched)
	r.snap.RefetchFailed = failed
	s := r.snap
	r.mu.Unlock()

	summary := fmt.Sprintf("%s complete: %d domains updated", label(spec.Kind), len(fetched))
	if spec.Kind == types.JobKindAnalysis && (s.KeywordsAnalyzed > 0 || s.RankingsFound > 0) {
		summary += fmt.Sprintf(", %d keywords analyzed, %d rankings found", s.KeywordsAnalyzed, s.RankingsFound)
	}
	if failed > 0 {
		summary += fmt.Sprintf(" (%d could not be refreshed)", failed)
	}
	r.opts.Messages.Successf("%s", summary)

	return r.finish(ctx, spec, nil, true, start)
}

func (r *Runner) refetchAll(ctx context.Context, ids []string) ([]types.DomainRecord, int) {
	results := make([]*types.DomainRecord, len(ids))
	var failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(r.opts.RefetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := r.refetch.GetDomain(ctx, id)
			if err != nil {
				failed.Add(1)
				r.log.Warn("refetch after job failed", logger.String("domain_id", id), logger.Error(err))
				return nil
			}
			results[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.DomainRecord, 0, len(ids))
	for _, rec := range results {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, int(failed.Load())
}

func (r *Runner) finish(ctx context.Context, spec Spec, err error, accepted bool, start time.Time) Snapshot {
	now := time.Now()

	r.mu.Lock()
	r.snap.FinishedAt = &now
	r.snap.err = err
	if err != nil {
		r.snap.Error = err.Error()
	}
	s := r.snap
	s.DomainIDs = append([]string(nil), r.snap.DomainIDs...)
	r.mu.Unlock()

	outcome := "completed"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case errors.Is(err, ErrPollTimeout):
		outcome = "timeout"
	default:
		outcome = "failed"
	}

	if accepted {
		r.opts.Metrics.JobFinished(string(spec.Kind), outcome, now.Sub(start))
		if r.opts.Journal != nil && s.JobID != "" {
			// The job context may already be cancelled; the journal still records the outcome.
			if jerr := r.opts.Journal.RecordFinish(context.WithoutCancel(ctx), s.JobID, outcome, s.Error); jerr != nil {
				r.log.Warn("job journal finish failed", logger.String("job_id", s.JobID), logger.Error(jerr))
			}
		}
	}

	typ := EventTypeCompleted
	if err != nil {
		typ = EventTypeFailed
	}
	r.emit(typ, s.Error)

	r.log.Info("bulk job finished",
		logger.String("job_id", s.JobID),
		logger.String("kind", string(spec.Kind)),
		logger.String("outcome", outcome),
		logger.Int("processed", s.Current),
		logger.Int("total", s.Total),
		logger.Duration("elapsed", now.Sub(start)),
	)
	return s
}
