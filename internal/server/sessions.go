package server

import (
	"context"
	"sync"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// Event names on the project event stream.
const (
	EventJob      = "job"
	EventProgress = "progress"
	EventMessage  = "message"
	EventNavigate = "navigate"
)

type event struct {
	name string
	data any
}

// hub fans session events out to SSE subscribers. Slow subscribers miss
// events rather than block the publisher.
type hub struct {
	mu   sync.Mutex
	subs map[int]chan event
	next int

	// done is closed when the session ends so streams can return.
	done     chan struct{}
	doneOnce sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan event), done: make(chan struct{})}
}

func (h *hub) close() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *hub) publish(name string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- event{name: name, data: data}:
		default:
		}
	}
}

func (h *hub) subscribe(buffer int) (<-chan event, func()) {
	ch := make(chan event, buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// session is one project's controller plus its event hub.
type session struct {
	ctrl *workflow.Controller
	hub  *hub
}

// SessionFactory builds a controller for a project. onProgress must be
// wired into the controller's options.
type SessionFactory func(projectID, clientID, userID string, onProgress bulkjob.ProgressCallback) (*workflow.Controller, error)

// sessions holds one open session per project.
type sessions struct {
	factory SessionFactory
	log     logger.Logger

	mu   sync.Mutex
	open map[string]*session
}

func newSessions(factory SessionFactory, log logger.Logger) *sessions {
	return &sessions{factory: factory, log: log, open: make(map[string]*session)}
}

// get returns the project's session, opening and loading it on first use.
// The first load runs outside the lock so other projects are not held up; if
// two requests race to open the same project the first one stored wins.
func (s *sessions) get(ctx context.Context, projectID, clientID, userID string) (*session, error) {
	if sess, ok := s.lookup(projectID); ok {
		return sess, nil
	}

	h := newHub()
	ctrl, err := s.factory(projectID, clientID, userID, func(ev bulkjob.ProgressEvent) {
		h.publish(EventProgress, ev)
	})
	if err != nil {
		return nil, err
	}
	if err := ctrl.Reload(ctx); err != nil {
		ctrl.Close()
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.open[projectID]; ok {
		s.mu.Unlock()
		ctrl.Close()
		h.close()
		return existing, nil
	}
	sess := &session{ctrl: ctrl, hub: h}
	s.open[projectID] = sess
	s.mu.Unlock()

	s.log.Info("session opened", logger.String("project_id", projectID), logger.Int("domains", ctrl.Store().Len()))
	return sess, nil
}

func (s *sessions) lookup(projectID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.open[projectID]
	return sess, ok
}

// close ends a project's session, stopping its job polling.
func (s *sessions) close(projectID string) bool {
	s.mu.Lock()
	sess, ok := s.open[projectID]
	delete(s.open, projectID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.ctrl.Close()
	sess.hub.close()
	s.log.Info("session closed", logger.String("project_id", projectID))
	return true
}

func (s *sessions) closeAll() {
	s.mu.Lock()
	open := s.open
	s.open = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range open {
		sess.ctrl.Close()
		sess.hub.close()
	}
}

func (s *sessions) projects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	return ids
}
