package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/selection"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/view"
)

// StatusRequest sets one domain's status.
type StatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// SelectRequest changes the selection. Mode is add (default), toggle or visible.
type SelectRequest struct {
	IDs  []string `json:"ids"`
	Mode string   `json:"mode,omitempty"`
}

// SelectionResponse is the selection and its badges.
type SelectionResponse struct {
	IDs    []string         `json:"ids"`
	Counts selection.Counts `json:"counts"`
}

// SmartSelectRequest names a smart selection preset.
type SmartSelectRequest struct {
	Preset string `json:"preset"`
}

// MoveRequest moves the selection to another project.
type MoveRequest struct {
	TargetProjectID string `json:"targetProjectId"`
}

// CountResponse reports how many domains an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// decodeJSON decodes the body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &ErrValidation{Field: "body", Message: err.Error()}
}

// session opens or returns the project's session. client_id on the query
// applies when the session is first opened; the acting user travels on each
// request's context.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	projectID := r.PathValue("project_id")
	sess, err := s.sessions.get(r.Context(), projectID, r.URL.Query().Get("client_id"), s.userID(r))
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string][]string{"projects": s.sessions.projects()})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	if !s.sessions.close(projectID) {
		s.fail(w, &ErrSessionNotFound{ProjectID: projectID})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseView reads filter and sort parameters. Filters are replaced only when
// at least one filter parameter is present, so a bare GET keeps the current view.
func parseView(r *http.Request) (*view.Filters, *view.SortKey, view.SortOrder, error) {
	q := r.URL.Query()

	var filters *view.Filters
	if q.Has("status") || q.Has("workflow") || q.Has("verification") || q.Has("search") {
		f := view.Filters{
			Workflow:     view.WorkflowFilter(q.Get("workflow")),
			Verification: view.VerificationFilter(q.Get("verification")),
			Search:       q.Get("search"),
		}
		for _, raw := range strings.Split(q.Get("status"), ",") {
			if raw = strings.TrimSpace(raw); raw == "" {
				continue
			}
			status, err := types.ParseQualificationStatus(raw)
			if err != nil {
				return nil, nil, "", &ErrValidation{Field: "status", Message: err.Error()}
			}
			f.Statuses = append(f.Statuses, status)
		}
		if err := f.Validate(); err != nil {
			return nil, nil, "", &ErrValidation{Field: "filters", Message: err.Error()}
		}
		filters = &f
	}

	var key *view.SortKey
	order := view.Desc
	if raw := q.Get("sort"); raw != "" {
		k, err := view.ParseSortKey(raw)
		if err != nil {
			return nil, nil, "", &ErrValidation{Field: "sort", Message: err.Error()}
		}
		key = &k
	}
	if raw := q.Get("order"); raw != "" {
		o, err := view.ParseSortOrder(raw)
		if err != nil {
			return nil, nil, "", &ErrValidation{Field: "order", Message: err.Error()}
		}
		order = o
	}
	return filters, key, order, nil
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	filters, key, order, err := parseView(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if filters != nil {
		if err := sess.ctrl.SetFilters(*filters); err != nil {
			s.fail(w, err)
			return
		}
	}
	if key != nil {
		sess.ctrl.SetSort(*key, order)
	}
	s.jsonResponse(w, http.StatusOK, sess.ctrl.Visible())
}

func (s *Server) handleShowMore(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.ctrl.ShowMore()
	s.jsonResponse(w, http.StatusOK, sess.ctrl.Visible())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ctrl.Reload(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess.ctrl.Visible())
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
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
	id := r.PathValue("id")
	if err := sess.ctrl.SetStatus(r.Context(), id, status, req.Notes); err != nil {
		s.fail(w, err)
		return
	}
	rec, _ := sess.ctrl.Store().Get(id)
	s.jsonResponse(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.ctrl.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectionResponse(w http.ResponseWriter, sess *session) {
	s.jsonResponse(w, http.StatusOK, SelectionResponse{IDs: sess.ctrl.Selection(), Counts: sess.ctrl.Counts()})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.selectionResponse(w, sess)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	switch req.Mode {
	case "", "add":
		sess.ctrl.Select(req.IDs...)
	case "toggle":
		for _, id := range req.IDs {
			sess.ctrl.Toggle(id)
		}
	case "visible":
		sess.ctrl.SelectVisible()
	default:
		s.fail(w, &ErrValidation{Field: "mode", Message: "must be add, toggle or visible"})
		return
	}
	s.selectionResponse(w, sess)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.ctrl.ClearSelection()
	s.selectionResponse(w, sess)
}

func (s *Server) handleSmartSelect(w http.ResponseWriter, r *http.Request) {
	var req SmartSelectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	preset, err := selection.ParsePreset(req.Preset)
	if err != nil {
		s.fail(w, &ErrValidation{Field: "preset", Message: err.Error()})
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.ctrl.SmartSelect(r.Context(), preset); err != nil {
		s.fail(w, err)
		return
	}
	s.selectionResponse(w, sess)
}

func (s *Server) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
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
	n, err := sess.ctrl.BulkSetStatus(r.Context(), status)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	n, err := sess.ctrl.BulkDelete(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) handleBulkMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.TargetProjectID == "" {
		s.fail(w, &ErrValidation{Field: "targetProjectId", Message: "required"})
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	n, err := sess.ctrl.Move(r.Context(), req.TargetProjectID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) handleCreateWorkflows(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	summary, err := sess.ctrl.CreateWorkflows(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}
