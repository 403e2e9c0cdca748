package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/export"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// ResolveRequest carries one decision per pending duplicate.
type ResolveRequest struct {
	Resolutions []types.Resolution `json:"resolutions"`
}

// PendingResponse lists duplicates awaiting a decision.
type PendingResponse struct {
	State      string                  `json:"state"`
	Duplicates []types.DuplicateDomain `json:"duplicates"`
}

func (s *Server) handleAddDomains(w http.ResponseWriter, r *http.Request) {
	var req workflow.AddRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.ctrl.SubmitDomains(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusOK
	if len(out.Duplicates) > 0 {
		status = http.StatusAccepted
	}
	s.jsonResponse(w, status, out)
}

func (s *Server) handlePendingDuplicates(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	dupes, _ := sess.ctrl.PendingDuplicates()
	if dupes == nil {
		dupes = []types.DuplicateDomain{}
	}
	s.jsonResponse(w, http.StatusOK, PendingResponse{State: string(sess.ctrl.DuplicateState()), Duplicates: dupes})
}

func (s *Server) handleResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	resp, err := sess.ctrl.ResolveDuplicates(r.Context(), req.Resolutions)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleCancelDuplicates(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"cancelled": sess.ctrl.CancelDuplicates()})
}

var contentTypes = map[workflow.Format]string{
	workflow.FormatCSV:  "text/csv; charset=utf-8",
	workflow.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// handleExport serves export.csv or export.xlsx. The file is built in memory
// so a failure can still answer with a JSON error.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ext := r.URL.Path[strings.LastIndex(r.URL.Path, ".")+1:]
	format, err := workflow.ParseFormat(ext)
	if err != nil {
		s.fail(w, &ErrValidation{Field: "format", Message: err.Error()})
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if _, err := sess.ctrl.Export(&buf, format); err != nil {
		s.fail(w, err)
		return
	}

	name := export.Filename(sess.ctrl.ProjectID(), ext, time.Now())
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
