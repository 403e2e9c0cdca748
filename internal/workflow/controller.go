// Package workflow is the per-project controller that ties the record store,
// view, selection, bulk job runner, duplicate flow and triage sessions
// together behind one set of operations.
//
// Every operation catches its own failure: the message slot gets a single ❌
// line and the error is returned for callers that need it. Nothing retries.
package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/duplicates"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/messages"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/metrics"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/selection"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/store"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/triage"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/view"
)

// DefaultWorkflowConcurrency bounds parallel workflow creation calls.
const DefaultWorkflowConcurrency = 4

var (
	// ErrBusy is returned when a status update overlaps another one.
	ErrBusy = errors.New("another status update is in progress")
	// ErrNoSelection is returned by bulk operations with nothing selected.
	ErrNoSelection = errors.New("no domains selected")
	// ErrNoKeywords is returned when an analysis has no keywords.
	ErrNoKeywords = errors.New("no keywords selected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

// Backend is every backend call the controller makes. *api.Client implements it.
type Backend interface {
	store.Lister
	bulkjob.Refetcher
	duplicates.Backend
	selection.Source

	UpdateDomain(ctx context.Context, id string, req types.UpdateDomainRequest) (*types.DomainRecord, error)
	DeleteDomain(ctx context.Context, id string) error
	BulkUpdateStatus(ctx context.Context, req types.BulkStatusRequest) (int, error)
	BulkDelete(ctx context.Context, ids []string) (int, error)
	MoveDomains(ctx context.Context, req types.MoveDomainsRequest) (int, error)

	SubmitAnalysis(ctx context.Context, req types.AnalysisBatchRequest) (*types.JobSubmission, error)
	AnalysisStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error)
	SubmitQualification(ctx context.Context, req types.QualificationRequest) (*types.QualificationSubmitResponse, error)
	QualificationStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error)

	CreateWorkflow(ctx context.Context, req types.CreateWorkflowRequest) (string, error)
	ListTargetPages(ctx context.Context, clientID string) ([]types.TargetPage, error)
}

// Options configures a Controller.
type Options struct {
	ProjectID string
	ClientID  string
	UserID    string

	PageSize     int
	LocationCode int
	LanguageCode string

	PollInterval        time.Duration
	MaxPollAttempts     int
	MaxPollDuration     time.Duration
	MaxPollErrors       int
	RefetchConcurrency  int
	WorkflowConcurrency int

	Journal    bulkjob.Journal
	OnProgress bulkjob.ProgressCallback
	Messages   *messages.Slot
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Controller owns one project's session state.
type Controller struct {
	opts    Options
	backend Backend
	log     logger.Logger
	slot    *messages.Slot

	store     *store.Store
	pager     *view.Pager
	selection *selection.Set
	runner    *bulkjob.Runner
	dupes     *duplicates.Flow

	// ctx bounds background work (job polling, triage navigation) and ends on Close.
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	updating atomic.Bool

	mu     sync.Mutex
	triage *triage.Session
}

// New creates a controller for opts.ProjectID. Call Reload to populate it.
func New(backend Backend, opts Options) (*Controller, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("project id is required")
	}
	if opts.Messages == nil {
		opts.Messages = messages.NewSlot()
	}
	if opts.WorkflowConcurrency <= 0 {
		opts.WorkflowConcurrency = DefaultWorkflowConcurrency
	}
	log := logger.OrNop(opts.Logger).With(logger.String("project_id", opts.ProjectID))

	c := &Controller{
		opts:      opts,
		backend:   backend,
		log:       log,
		slot:      opts.Messages,
		store:     store.New(backend),
		pager:     view.NewPager(opts.PageSize),
		selection: selection.NewSet(),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.runner = bulkjob.NewRunner(backend, c.store, c.selection, bulkjob.Options{
		Interval:           opts.PollInterval,
		MaxAttempts:        opts.MaxPollAttempts,
		MaxDuration:        opts.MaxPollDuration,
		MaxPollErrors:      opts.MaxPollErrors,
		RefetchConcurrency: opts.RefetchConcurrency,
		Logger:             log,
		Metrics:            opts.Metrics,
		Messages:           c.slot,
		Journal:            opts.Journal,
		OnProgress:         opts.OnProgress,
		Describe:           api.Message,
	})
	c.dupes = duplicates.New(backend, c.store, duplicates.Options{
		Logger:   log,
		Messages: c.slot,
		Describe: api.Message,
	})
	return c, nil
}

// ProjectID returns the controller's project.
func (c *Controller) ProjectID() string {
	return c.opts.ProjectID
}

// Messages returns the message slot.
func (c *Controller) Messages() *messages.Slot {
	return c.slot
}

// Store exposes the record store.
func (c *Controller) Store() *store.Store {
	return c.store
}

// fail turns err into the single error message and returns it.
func (c *Controller) fail(op string, err error) error {
	c.slot.Fail(op, errors.New(api.Message(err)))
	c.log.Warn(op+" failed", logger.Error(err))
	return err
}

func (c *Controller) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Reload replaces the records with the backend's list. A load overtaken by
// a newer one is discarded silently.
func (c *Controller) Reload(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	n, err := c.store.Load(ctx, c.opts.ProjectID)
	if errors.Is(err, store.ErrStaleLoad) {
		return nil
	}
	if err != nil {
		return c.fail("Load domains", err)
	}
	c.log.Debug("domains loaded", logger.Int("count", n))
	return nil
}

// Page is the table state a UI renders.
type Page struct {
	Domains      []types.DomainRecord `json:"domains"`
	Matched      int                  `json:"matched"`
	Total        int                  `json:"total"`
	HasMore      bool                 `json:"hasMore"`
	DisplayLimit int                  `json:"displayLimit"`
	Filters      view.Filters         `json:"filters"`
	SortKey      view.SortKey         `json:"sortKey"`
	SortOrder    view.SortOrder       `json:"sortOrder"`
	Selection    selection.Counts     `json:"selection"`
	Job          bulkjob.Snapshot     `json:"job"`
	Message      messages.Message     `json:"message"`
}

// Visible derives the current page from the records.
func (c *Controller) Visible() Page {
	records := c.store.Snapshot()
	q := c.pager.Query()
	res := view.Apply(records, q)
	msg, _ := c.slot.Current()
	return Page{
		Domains:      res.Visible,
		Matched:      res.Matched,
		Total:        len(records),
		HasMore:      res.HasMore,
		DisplayLimit: q.Limit,
		Filters:      q.Filters,
		SortKey:      q.SortKey,
		SortOrder:    q.Order,
		Selection:    c.selection.Counts(records),
		Job:          c.runner.Snapshot(),
		Message:      msg,
	}
}

// ShowMore grows the display limit by one page.
func (c *Controller) ShowMore() int {
	return c.pager.ShowMore()
}

// SetFilters validates and applies filters; a change resets the limit.
func (c *Controller) SetFilters(f view.Filters) error {
	if err := f.Validate(); err != nil {
		return c.fail("Filter", err)
	}
	c.pager.SetFilters(f)
	return nil
}

// SetSort changes the sort key and order.
func (c *Controller) SetSort(key view.SortKey, order view.SortOrder) {
	c.pager.SetSort(key, order)
}

// Toggle flips one id's selection.
func (c *Controller) Toggle(id string) bool {
	return c.selection.Toggle(id)
}

// Select adds ids to the selection.
func (c *Controller) Select(ids ...string) {
	c.selection.Add(ids...)
}

// SelectVisible replaces the selection with the visible page.
func (c *Controller) SelectVisible() int {
	c.selection.SetAll(types.IDs(c.Visible().Domains))
	return c.selection.Len()
}

// ClearSelection empties the selection.
func (c *Controller) ClearSelection() {
	c.selection.Clear()
}

// Selection returns the selected ids, sorted.
func (c *Controller) Selection() []string {
	return c.selection.IDs()
}

// Counts returns the selection badges.
func (c *Controller) Counts() selection.Counts {
	return c.selection.Counts(c.store.Snapshot())
}

// Close cancels job polling and triage navigation. It is idempotent.
func (c *Controller) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	c.runner.Close()

	c.mu.Lock()
	session := c.triage
	c.triage = nil
	c.mu.Unlock()
	if session != nil {
		_ = session.Close(c.ctx)
	}
	c.log.Debug("controller closed")
}
