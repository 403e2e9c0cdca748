package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 15 * time.Second

// AnalysisRequest starts a keyword analysis. Empty DomainIDs means the selection.
type AnalysisRequest struct {
	DomainIDs []string `json:"domainIds,omitempty"`
	Keywords  []string `json:"keywords"`
}

// QualificationRequest starts an AI qualification. Empty DomainIDs means the selection.
type QualificationRequest struct {
	DomainIDs     []string `json:"domainIds,omitempty"`
	TargetPageIDs []string `json:"targetPageIds,omitempty"`
}

// ClustersRequest carries manual keywords to cluster with the target pages'.
type ClustersRequest struct {
	Manual []string `json:"manual,omitempty"`
}

// watchJob publishes the job's final snapshot once it ends.
func watchJob(sess *session, done <-chan bulkjob.Snapshot) {
	sess.hub.publish(EventJob, sess.ctrl.Job())
	go func() {
		if snap, ok := <-done; ok {
			sess.hub.publish(EventJob, snap)
		}
	}()
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	done, err := sess.ctrl.StartAnalysis(req.DomainIDs, req.Keywords)
	if err != nil {
		s.fail(w, err)
		return
	}
	watchJob(sess, done)
	s.jsonResponse(w, http.StatusAccepted, sess.ctrl.Job())
}

func (s *Server) handleStartQualification(w http.ResponseWriter, r *http.Request) {
	var req QualificationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	done, err := sess.ctrl.StartQualification(req.DomainIDs, req.TargetPageIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	watchJob(sess, done)
	s.jsonResponse(w, http.StatusAccepted, sess.ctrl.Job())
}

func (s *Server) handleCurrentJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, sess.ctrl.Job())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.ctrl.CancelJob()
	sess.ctrl.WaitJob()
	s.jsonResponse(w, http.StatusOK, sess.ctrl.Job())
}

// handleEvents streams the session: the current job first, then progress,
// messages, job transitions and triage navigation as they happen.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	events, unsubscribe := sess.hub.subscribe(64)
	defer unsubscribe()
	msgs, cancel := sess.ctrl.Messages().Subscribe(16)
	defer cancel()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sse.WriteEvent(EventJob, sess.ctrl.Job()); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-sess.hub.done:
			return
		case ev := <-events:
			err = sse.WriteEvent(ev.name, ev.data)
		case msg := <-msgs:
			err = sse.WriteEvent(EventMessage, msg)
		case <-ticker.C:
			err = sse.WriteComment("keep-alive")
		}
		if err != nil {
			s.log.Debug("event stream ended", logger.Error(err))
			return
		}
	}
}

func (s *Server) handleKeywordClusters(w http.ResponseWriter, r *http.Request) {
	var req ClustersRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	clusters, err := sess.ctrl.KeywordClusters(r.Context(), req.Manual, nil)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"clusters": clusters})
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, ErrJournalDisabled)
		return
	}
	q := r.URL.Query()
	filters := db.JobFilters{
		ProjectID: q.Get("project_id"),
		Kind:      q.Get("kind"),
		Status:    q.Get("status"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.fail(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		filters.Limit = limit
	}

	jobs, err := s.history.ListJobs(r.Context(), filters)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleJobHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, ErrJournalDisabled)
		return
	}
	job, err := s.history.GetJob(r.Context(), r.PathValue("job_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}
