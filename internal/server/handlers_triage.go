package server

import (
	"net/http"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/triage"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// TriageRequest opens a triage session. ReturnTo makes it guided: a decision
// publishes a navigate event with that URL after a short delay.
type TriageRequest struct {
	IDs      []string `json:"ids"`
	ReturnTo string   `json:"returnTo,omitempty"`
}

// TriageResponse describes the cursor.
type TriageResponse struct {
	Current  string             `json:"current"`
	Position int                `json:"position"`
	Total    int                `json:"total"`
	Guided   bool               `json:"guided"`
	Record   types.DomainRecord `json:"record"`
}

func (s *Server) triageResponse(w http.ResponseWriter, sess *session, t *triage.Session) {
	pos, total := t.Position()
	rec, _ := sess.ctrl.Store().Get(t.Current())
	s.jsonResponse(w, http.StatusOK, TriageResponse{
		Current:  t.Current(),
		Position: pos,
		Total:    total,
		Guided:   t.Guided(),
		Record:   rec,
	})
}

// openTriage returns the session's triage or answers 404.
func (s *Server) openTriage(w http.ResponseWriter, sess *session) (*triage.Session, bool) {
	t := sess.ctrl.Triage()
	if t == nil {
		s.errorResponse(w, http.StatusNotFound, "no triage session is open")
		return nil, false
	}
	return t, true
}

func (s *Server) handleOpenTriage(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t, err := sess.ctrl.OpenTriage(r.Context(), req.IDs, triage.Options{
		ReturnTo: req.ReturnTo,
		Navigate: func(target string) {
			sess.hub.publish(EventNavigate, map[string]string{"url": target})
		},
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.triageResponse(w, sess, t)
}

func (s *Server) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if t, ok := s.openTriage(w, sess); ok {
		s.triageResponse(w, sess, t)
	}
}

func (s *Server) handleTriageStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	status, err := types.ParseQualificationStatus(req.Status)
	if err != nil {
		s.fail(w, &ErrValidation{Field: "status", Message: err.Error()})
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t, ok := s.openTriage(w, sess)
	if !ok {
		return
	}
	if err := t.SetStatus(r.Context(), status, req.Notes); err != nil {
		s.fail(w, err)
		return
	}
	s.triageResponse(w, sess, t)
}

func (s *Server) handleTriageAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t, ok := s.openTriage(w, sess)
	if !ok {
		return
	}
	if err := t.Analyze(req.Keywords); err != nil {
		s.fail(w, err)
		return
	}
	sess.hub.publish(EventJob, sess.ctrl.Job())
	s.jsonResponse(w, http.StatusAccepted, sess.ctrl.Job())
}

// handleTriageMove handles next and prev.
func (s *Server) handleTriageMove(w http.ResponseWriter, r *http.Request) {
	direction := r.PathValue("direction")
	if direction != "next" && direction != "prev" {
		s.errorResponse(w, http.StatusNotFound, "unknown triage action "+direction)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t, ok := s.openTriage(w, sess)
	if !ok {
		return
	}
	if direction == "next" {
		t.Next()
	} else {
		t.Prev()
	}
	s.triageResponse(w, sess, t)
}

func (s *Server) handleCloseTriage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ctrl.CloseTriage(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
