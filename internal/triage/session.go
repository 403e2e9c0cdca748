// Package triage steps through a fixed list of domains one at a time.
//
// A session opened from a guided link carries a ReturnTo target: once the
// current domain gets a non-pending status the session navigates back there
// after a short delay, unless it is closed first.
package triage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// DefaultReturnDelay is how long a guided session waits before navigating back.
const DefaultReturnDelay = 500 * time.Millisecond

var (
	// ErrEmpty is returned when a session is opened without domains.
	ErrEmpty = errors.New("triage needs at least one domain")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("triage session closed")
)

// Actions are the controller operations a session drives.
type Actions interface {
	SetStatus(ctx context.Context, id string, status types.QualificationStatus, notes string) error
	StartAnalysis(ids, keywords []string) error
	CancelJob()
	Reload(ctx context.Context) error
}

// Options configures a Session.
type Options struct {
	// ReturnTo enables guided mode.
	ReturnTo string
	// Navigate is called with ReturnTo once the delay elapses.
	Navigate func(target string)
	Delay    time.Duration
	Logger   logger.Logger
}

// Session is a cursor over a fixed id list.
type Session struct {
	actions Actions
	opts    Options
	log     logger.Logger

	mu       sync.Mutex
	ids      []string
	cursor   int
	closed   bool
	navigate context.CancelFunc
	// navigated is set once the delayed navigation fired.
	navigated bool
}

// New opens a session positioned on the first id.
func New(actions Actions, ids []string, opts Options) (*Session, error) {
	if len(ids) == 0 {
		return nil, ErrEmpty
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultReturnDelay
	}
	return &Session{
		actions: actions,
		opts:    opts,
		log:     logger.OrNop(opts.Logger),
		ids:     append([]string(nil), ids...),
	}, nil
}

// Guided reports whether the session navigates back after a decision.
func (s *Session) Guided() bool {
	return s.opts.ReturnTo != ""
}

// Current returns the id under the cursor.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[s.cursor]
}

// Position returns the 1-based cursor position and the list length.
func (s *Session) Position() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor + 1, len(s.ids)
}

// IDs returns the session's ids.
func (s *Session) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// Next advances the cursor; it reports false at the end of the list.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.ids)-1 {
		return false
	}
	s.cursor++
	return true
}

// Prev moves the cursor back; it reports false at the start of the list.
func (s *Session) Prev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == 0 {
		return false
	}
	s.cursor--
	return true
}

// SetStatus updates the current domain. In guided mode a non-pending status
// schedules navigation back to ReturnTo.
func (s *Session) SetStatus(ctx context.Context, status types.QualificationStatus, notes string) error {
	id, err := s.current()
	if err != nil {
		return err
	}
	if err := s.actions.SetStatus(ctx, id, status, notes); err != nil {
		return err
	}
	if s.Guided() && status != types.StatusPending {
		s.scheduleReturn()
	}
	return nil
}

// Analyze starts a keyword analysis job for the current domain.
func (s *Session) Analyze(keywords []string) error {
	id, err := s.current()
	if err != nil {
		return err
	}
	return s.actions.StartAnalysis([]string{id}, keywords)
}

// NavigationPending reports whether a delayed navigation is scheduled.
func (s *Session) NavigationPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigate != nil
}

// Navigated reports whether the delayed navigation fired.
func (s *Session) Navigated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigated
}

// Close cancels a pending navigation and any active job, then reloads the
// store. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.navigate != nil {
		s.navigate()
		s.navigate = nil
	}
	s.mu.Unlock()

	s.actions.CancelJob()
	return s.actions.Reload(ctx)
}

func (s *Session) current() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.ids[s.cursor], nil
}

func (s *Session) scheduleReturn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.navigate != nil {
		s.navigate()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.navigate = cancel

	target, delay := s.opts.ReturnTo, s.opts.Delay
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.mu.Lock()
		if ctx.Err() != nil || s.closed {
			s.mu.Unlock()
			return
		}
		s.navigate = nil
		s.navigated = true
		s.mu.Unlock()
		cancel()

		s.log.Debug("guided triage returning", logger.String("target", target))
		if s.opts.Navigate != nil {
			s.opts.Navigate(target)
		}
	}()
}
