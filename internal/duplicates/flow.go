// Package duplicates implements the add-domains flow: candidates are checked
// against the backend, same-project hits are dropped, fresh domains are
// created and cross-project duplicates wait for a per-domain decision.
package duplicates

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/messages"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// State of the flow.
type State string

// State values
const (
	StateComposing          State = "composing"
	StateChecking           State = "checking_duplicates"
	StateAwaitingResolution State = "awaiting_resolution"
	StateSubmitting         State = "submitting"
	StateSubmitted          State = "submitted"
	StateCancelled          State = "cancelled"
)

var (
	// ErrEmptyInput is returned when no usable domain remains after normalization.
	ErrEmptyInput = errors.New("no domains to add")
	// ErrNoPendingSubmission is returned by Resolve when nothing awaits resolution.
	ErrNoPendingSubmission = errors.New("no submission is awaiting duplicate resolution")
	// ErrAwaitingResolution is returned by Submit while earlier duplicates are unresolved.
	ErrAwaitingResolution = errors.New("resolve or cancel the pending duplicates first")
	// ErrInProgress is returned when a call overlaps a check or resolve in flight.
	ErrInProgress = errors.New("duplicate check already in progress")
)

// ResolutionError lists duplicates without a valid decision.
type ResolutionError struct {
	Missing []string
	Unknown []string
	Invalid []string
}

func (e *ResolutionError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing resolution for "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "not a pending duplicate: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid resolution for "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Backend is the subset of the api client the flow needs.
type Backend interface {
	CheckDuplicates(ctx context.Context, req types.CheckDuplicatesRequest) (*types.CheckDuplicatesResponse, error)
	CreateDomains(ctx context.Context, req types.CreateDomainsRequest) (*types.CreateDomainsResponse, error)
	ResolveDuplicates(ctx context.Context, req types.ResolveDuplicatesRequest) (*types.ResolveDuplicatesResponse, error)
}

// Reloader refreshes the record collection after membership changes.
type Reloader interface {
	Load(ctx context.Context, projectID string) (int, error)
}

// Options configures a Flow.
type Options struct {
	Logger   logger.Logger
	Messages *messages.Slot
	// Describe renders an error for the message slot.
	Describe func(error) string
}

// Outcome reports what one Submit did.
type Outcome struct {
	State            State                   `json:"state"`
	Candidates       []string                `json:"candidates"`
	AlreadyInProject []string                `json:"already_in_project,omitempty"`
	Created          []types.DomainRecord    `json:"created,omitempty"`
	Duplicates       []types.DuplicateDomain `json:"duplicates,omitempty"`
}

// Flow is safe for concurrent use; overlapping calls get ErrInProgress.
type Flow struct {
	backend Backend
	store   Reloader
	slot    *messages.Slot
	log     logger.Logger
	// describe renders errors for the slot.
	describe func(error) string

	mu         sync.Mutex
	state      State
	pending    *types.PendingSubmission
	duplicates []types.DuplicateDomain
}

// New creates a flow in the Composing state.
func New(backend Backend, store Reloader, opts Options) *Flow {
	if opts.Messages == nil {
		opts.Messages = messages.NewSlot()
	}
	if opts.Describe == nil {
		opts.Describe = func(err error) string { return err.Error() }
	}
	return &Flow{
		backend:  backend,
		store:    store,
		slot:     opts.Messages,
		log:      logger.OrNop(opts.Logger),
		describe: opts.Describe,
		state:    StateComposing,
	}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns a copy of the held submission and its duplicates.
func (f *Flow) Pending() (types.PendingSubmission, []types.DuplicateDomain, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return types.PendingSubmission{}, nil, false
	}
	return f.pending.Clone(), append([]types.DuplicateDomain(nil), f.duplicates...), true
}

// Normalize trims, lower-cases and dedupes candidate domains, stripping any
// scheme, "www." prefix, path and port. Order of first appearance is kept.
func Normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, field := range strings.FieldsFunc(r, func(c rune) bool { return c == ',' || c == '\n' || c == ' ' || c == '\t' }) {
			d := normalizeOne(field)
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func normalizeOne(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return ""
	}
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil && u.Host != "" {
			d = u.Host
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, ok := strings.Cut(d, ":"); ok {
		d = host
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.Trim(d, ".")
}

// begin moves into a busy state if the flow is idle enough to accept it.
func (f *Flow) begin(from []State, to State) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range from {
		if f.state == s {
			prev := f.state
			f.state = to
			return prev, nil
		}
	}
	switch f.state {
	case StateChecking, StateSubmitting:
		return f.state, ErrInProgress
	case StateAwaitingResolution:
		return f.state, ErrAwaitingResolution
	default:
		return f.state, ErrNoPendingSubmission
	}
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Submit checks sub.Domains for duplicates. Same-project hits are dropped,
// fresh domains are created right away and cross-project duplicates are held
// until Resolve or Cancel. A failed check changes nothing.
func (f *Flow) Submit(ctx context.Context, sub types.PendingSubmission) (Outcome, error) {
	candidates := Normalize(sub.Domains)
	if len(candidates) == 0 {
		f.slot.Fail("Add domains", ErrEmptyInput)
		return Outcome{State: f.State()}, ErrEmptyInput
	}
	if sub.ProjectID == "" {
		err := fmt.Errorf("project id is required")
		f.slot.Fail("Add domains", err)
		return Outcome{State: f.State()}, err
	}

	prev, err := f.begin([]State{StateComposing, StateSubmitted, StateCancelled}, StateChecking)
	if err != nil {
		f.slot.Fail("Add domains", err)
		return Outcome{State: prev}, err
	}
	f.slot.Progressf("Checking %d domains for duplicates...", len(candidates))

	resp, err := f.backend.CheckDuplicates(ctx, types.CheckDuplicatesRequest{Domains: candidates, ProjectID: sub.ProjectID})
	if err != nil {
		f.setState(prev)
		f.slot.Fail("Duplicate check", errors.New(f.describe(err)))
		return Outcome{State: prev}, err
	}

	already := setOf(resp.AlreadyInProject)
	dupes := make(map[string]types.DuplicateDomain, len(resp.Duplicates))
	for _, d := range resp.Duplicates {
		d.Domain = normalizeOne(d.Domain)
		if already[d.Domain] {
			continue
		}
		dupes[d.Domain] = d
	}

	out := Outcome{Candidates: candidates}
	var fresh []string
	var held []types.DuplicateDomain
	for _, c := range candidates {
		switch {
		case already[c]:
			out.AlreadyInProject = append(out.AlreadyInProject, c)
		case dupes[c].Domain != "":
			held = append(held, dupes[c])
		default:
			fresh = append(fresh, c)
		}
	}

	if len(fresh) == 0 && len(held) == 0 {
		f.setState(prev)
		out.State = prev
		f.slot.Infof("All %d domains are already in this project; nothing to add", len(candidates))
		f.log.Info("duplicate check dropped every candidate",
			logger.String("project_id", sub.ProjectID),
			logger.Int("candidates", len(candidates)),
		)
		return out, nil
	}

	if len(fresh) > 0 {
		create := sub.Clone()
		create.Domains = fresh
		created, err := f.backend.CreateDomains(ctx, create)
		if err != nil {
			f.setState(prev)
			out.State = prev
			f.slot.Fail("Add domains", errors.New(f.describe(err)))
			return out, err
		}
		out.Created = created.Domains
	}

	if len(held) > 0 {
		pending := sub.Clone()
		pending.Domains = domainsOf(held)
		f.mu.Lock()
		f.pending = &pending
		f.duplicates = held
		f.state = StateAwaitingResolution
		f.mu.Unlock()
		out.State = StateAwaitingResolution
		out.Duplicates = append([]types.DuplicateDomain(nil), held...)
	} else {
		f.setState(StateSubmitted)
		out.State = StateSubmitted
	}

	if len(out.Created) > 0 {
		if err := f.reload(ctx, sub.ProjectID); err != nil {
			return out, err
		}
	}

	switch {
	case len(held) > 0:
		f.slot.Infof("Added %d domains; %d already exist in other projects and need a decision", len(out.Created), len(held))
	default:
		f.slot.Successf("Added %d domains%s", len(out.Created), skippedSuffix(len(out.AlreadyInProject)))
	}
	f.log.Info("domains submitted",
		logger.String("project_id", sub.ProjectID),
		logger.Int("created", len(out.Created)),
		logger.Int("already_in_project", len(out.AlreadyInProject)),
		logger.Int("duplicates", len(held)),
	)
	return out, nil
}

// Resolve sends the held submission with one decision per duplicate in a
// single call. The held payload is cleared on success and kept on failure
// so the user can retry.
func (f *Flow) Resolve(ctx context.Context, resolutions []types.Resolution) (*types.ResolveDuplicatesResponse, error) {
	f.mu.Lock()
	if f.state != StateAwaitingResolution || f.pending == nil {
		state := f.state
		f.mu.Unlock()
		err := ErrNoPendingSubmission
		if state == StateSubmitting {
			err = ErrInProgress
		}
		f.slot.Fail("Duplicate resolution", err)
		return nil, err
	}
	resolved, rerr := bind(f.duplicates, resolutions)
	if rerr != nil {
		f.mu.Unlock()
		f.slot.Fail("Duplicate resolution", rerr)
		return nil, rerr
	}
	req := types.ResolveDuplicatesRequest{
		PendingSubmission: f.pending.Clone(),
		Duplicates:        append([]types.DuplicateDomain(nil), f.duplicates...),
		Resolutions:       resolved,
	}
	f.state = StateSubmitting
	f.mu.Unlock()

	f.slot.Progressf("Resolving %d duplicates...", len(resolved))
	resp, err := f.backend.ResolveDuplicates(ctx, req)
	if err != nil {
		f.setState(StateAwaitingResolution)
		f.slot.Fail("Duplicate resolution", errors.New(f.describe(err)))
		return nil, err
	}

	f.mu.Lock()
	f.pending = nil
	f.duplicates = nil
	f.state = StateSubmitted
	f.mu.Unlock()

	if err := f.reload(ctx, req.ProjectID); err != nil {
		return resp, err
	}
	f.slot.Successf("Duplicates resolved: %d created, %d moved, %d updated, %d skipped",
		resp.Created, resp.Moved, resp.Updated, resp.Skipped)
	return resp, nil
}

// Cancel drops the held submission. It reports whether anything was pending.
func (f *Flow) Cancel() bool {
	f.mu.Lock()
	if f.state != StateAwaitingResolution {
		f.mu.Unlock()
		return false
	}
	n := len(f.duplicates)
	f.pending = nil
	f.duplicates = nil
	f.state = StateCancelled
	f.mu.Unlock()

	f.slot.Infof("Duplicate resolution cancelled; %d domains were not added", n)
	return true
}

func (f *Flow) reload(ctx context.Context, projectID string) error {
	if f.store == nil {
		return nil
	}
	if _, err := f.store.Load(ctx, projectID); err != nil {
		f.slot.Fail("Reload domains", errors.New(f.describe(err)))
		return fmt.Errorf("reload after submit: %w", err)
	}
	return nil
}

// bind matches resolutions to duplicates by normalized domain and fills in
// the existing record id.
func bind(dupes []types.DuplicateDomain, resolutions []types.Resolution) ([]types.Resolution, error) {
	byDomain := make(map[string]types.Resolution, len(resolutions))
	rerr := &ResolutionError{}
	for _, r := range resolutions {
		d := normalizeOne(r.Domain)
		if !r.Resolution.Valid() {
			rerr.Invalid = append(rerr.Invalid, r.Domain)
			continue
		}
		r.Domain = d
		byDomain[d] = r
	}

	known := make(map[string]bool, len(dupes))
	out := make([]types.Resolution, 0, len(dupes))
	for _, d := range dupes {
		known[d.Domain] = true
		r, ok := byDomain[d.Domain]
		if !ok {
			rerr.Missing = append(rerr.Missing, d.Domain)
			continue
		}
		if r.ExistingDomainID == "" {
			r.ExistingDomainID = d.ExistingDomainID
		}
		out = append(out, r)
	}
	for d := range byDomain {
		if !known[d] {
			rerr.Unknown = append(rerr.Unknown, d)
		}
	}
	sort.Strings(rerr.Unknown)

	if len(rerr.Missing)+len(rerr.Unknown)+len(rerr.Invalid) > 0 {
		return nil, rerr
	}
	return out, nil
}

func setOf(domains []string) map[string]bool {
	m := make(map[string]bool, len(domains))
	for _, d := range domains {
		m[normalizeOne(d)] = true
	}
	return m
}

func domainsOf(dupes []types.DuplicateDomain) []string {
	out := make([]string, len(dupes))
	for i, d := range dupes {
		out[i] = d.Domain
	}
	return out
}

func skippedSuffix(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d already in project)", n)
}
