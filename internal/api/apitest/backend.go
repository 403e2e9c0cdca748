// Package apitest provides an in-memory fake of the bulk-analysis backend
// served over httptest, for tests of packages built on the api client.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// Route patterns, usable with Count and Fail.
const (
	RouteList              = "GET /bulk-analysis"
	RouteCreate            = "POST /bulk-analysis"
	RouteGet               = "GET /bulk-analysis/{id}"
	RouteUpdate            = "PUT /bulk-analysis/{id}"
	RouteDelete            = "DELETE /bulk-analysis/{id}"
	RouteBulkUpdate        = "PUT /bulk-analysis/bulk"
	RouteBulkDelete        = "DELETE /bulk-analysis/bulk"
	RouteMove              = "POST /bulk-analysis/move"
	RouteCheckDuplicates   = "POST /bulk-analysis/check-duplicates"
	RouteResolveDuplicates = "POST /bulk-analysis/resolve-duplicates"
	RouteSubmitAnalysis    = "POST /bulk-analysis/dataforseo/batch"
	RouteAnalysisStatus    = "GET /bulk-analysis/dataforseo/batch"
	RouteSubmitQualify     = "POST /bulk-analysis/master-qualify"
	RouteQualifyGet        = "GET /bulk-analysis/master-qualify"
	RouteCreateWorkflow    = "POST /workflows"
	RouteTargetPages       = "GET /clients/{id}/target-pages"
)

// Request is one recorded call.
type Request struct {
	Route string
	Path  string
	Query string
	Body  []byte
}

type failure struct {
	status  int
	message string
	times   int // <0 means until cleared
}

type job struct {
	kind      types.JobKind
	domainIDs []string
	keywords  []string
	steps     []types.BulkJob
	polls     int
}

// Backend is a fake bulk-analysis backend. Its zero value is not usable; call New.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	domains  []types.DomainRecord
	jobs     map[string]*job
	queued   [][]types.BulkJob
	nextID   int
	requests []Request
	failures map[string]*failure

	duplicates       *types.CheckDuplicatesResponse
	resolved         []types.ResolveDuplicatesRequest
	created          []types.CreateDomainsRequest
	workflowFailures map[string]bool
	targetPages      map[string][]types.TargetPage
	syncQualify      bool
	smartFilters     *types.SmartFilters
}

// New starts a fake backend seeded with records. Close it with t.Cleanup(b.Close).
func New(records ...types.DomainRecord) *Backend {
	b := &Backend{
		jobs:             make(map[string]*job),
		failures:         make(map[string]*failure),
		workflowFailures: make(map[string]bool),
		targetPages:      make(map[string][]types.TargetPage),
		domains:          append([]types.DomainRecord(nil), records...),
	}

	mux := http.NewServeMux()
	b.handle(mux, RouteList, b.handleList)
	b.handle(mux, RouteCreate, b.handleCreate)
	b.handle(mux, RouteGet, b.handleGet)
	b.handle(mux, RouteUpdate, b.handleUpdate)
	b.handle(mux, RouteDelete, b.handleDelete)
	b.handle(mux, RouteBulkUpdate, b.handleBulkUpdate)
	b.handle(mux, RouteBulkDelete, b.handleBulkDelete)
	b.handle(mux, RouteMove, b.handleMove)
	b.handle(mux, RouteCheckDuplicates, b.handleCheckDuplicates)
	b.handle(mux, RouteResolveDuplicates, b.handleResolveDuplicates)
	b.handle(mux, RouteSubmitAnalysis, b.handleSubmitAnalysis)
	b.handle(mux, RouteAnalysisStatus, b.handleJobStatus)
	b.handle(mux, RouteSubmitQualify, b.handleSubmitQualify)
	b.handle(mux, RouteQualifyGet, b.handleQualifyGet)
	b.handle(mux, RouteCreateWorkflow, b.handleCreateWorkflow)
	b.handle(mux, RouteTargetPages, b.handleTargetPages)

	b.Server = httptest.NewServer(http.StripPrefix("/api", mux))
	return b
}

// URL is the API base URL to hand to api.Options.
func (b *Backend) URL() string {
	return b.Server.URL + "/api"
}

// Close shuts the server down.
func (b *Backend) Close() {
	b.Server.Close()
}

// Fail makes route answer status with {error: message} until ClearFailures.
func (b *Backend) Fail(route string, status int, message string) {
	b.FailTimes(route, status, message, -1)
}

// FailTimes makes route fail for the next n calls.
func (b *Backend) FailTimes(route string, status int, message string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = &failure{status: status, message: message, times: n}
}

// ClearFailures removes every injected failure.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]*failure)
}

// QueueJob scripts the poll responses of the next submitted job. Each poll
// returns the next step; the last step repeats. An unscripted job completes
// on its first poll.
func (b *Backend) QueueJob(steps ...types.BulkJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued = append(b.queued, steps)
}

// SetDuplicates overrides the duplicate check response.
func (b *Backend) SetDuplicates(resp types.CheckDuplicatesResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duplicates = &resp
}

// SetSmartFilters overrides the computed smart filter sets.
func (b *Backend) SetSmartFilters(f types.SmartFilters) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.smartFilters = &f
}

// SetSynchronousQualification makes master-qualify answer with final results.
func (b *Backend) SetSynchronousQualification(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncQualify = on
}

// FailWorkflowFor makes workflow creation fail for a domain id.
func (b *Backend) FailWorkflowFor(domainID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workflowFailures[domainID] = true
}

// SetTargetPages seeds a client's target pages.
func (b *Backend) SetTargetPages(clientID string, pages ...types.TargetPage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targetPages[clientID] = pages
}

// Count returns how many calls hit route.
func (b *Backend) Count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Route == route {
			n++
		}
	}
	return n
}

// Requests returns a copy of every recorded call.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Domain returns the backend's copy of a record.
func (b *Backend) Domain(id string) (types.DomainRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(id); i >= 0 {
		return b.domains[i], true
	}
	return types.DomainRecord{}, false
}

// SetDomain inserts or replaces a record.
func (b *Backend) SetDomain(rec types.DomainRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(rec.ID); i >= 0 {
		b.domains[i] = rec
		return
	}
	b.domains = append(b.domains, rec)
}

// Resolved returns every resolve-duplicates payload received.
func (b *Backend) Resolved() []types.ResolveDuplicatesRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.ResolveDuplicatesRequest(nil), b.resolved...)
}

// Created returns every create payload received.
func (b *Backend) Created() []types.CreateDomainsRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.CreateDomainsRequest(nil), b.created...)
}

func (b *Backend) handle(mux *http.ServeMux, route string, h func(http.ResponseWriter, *http.Request, []byte)) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		b.requests = append(b.requests, Request{Route: route, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
		if f, ok := b.failures[route]; ok && f.times != 0 {
			if f.times > 0 {
				f.times--
			}
			status, message := f.status, f.message
			b.mu.Unlock()
			writeJSON(w, status, types.ErrorResponse{Error: message})
			return
		}
		b.mu.Unlock()

		h(w, r, body)
	})
}

func (b *Backend) indexOf(id string) int {
	for i := range b.domains {
		if b.domains[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) newID(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s-%d", prefix, b.nextID)
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request, _ []byte) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "projectId is required"})
		return
	}
	b.mu.Lock()
	out := make([]types.DomainRecord, 0)
	for _, d := range b.domains {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.ListDomainsResponse{Domains: out})
}

func (b *Backend) handleCreate(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.CreateDomainsRequest
	if !decode(w, body, &req) {
		return
	}
	b.mu.Lock()
	b.created = append(b.created, req)
	created := b.createLocked(req.ProjectID, req.ClientID, req.Domains)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, types.CreateDomainsResponse{Domains: created, Created: len(created)})
}

func (b *Backend) createLocked(projectID, clientID string, domains []string) []types.DomainRecord {
	now := time.Now().UTC()
	created := make([]types.DomainRecord, 0, len(domains))
	for _, d := range domains {
		rec := types.DomainRecord{
			ID:                  b.newID("dom"),
			ProjectID:           projectID,
			ClientID:            clientID,
			Domain:              d,
			QualificationStatus: types.StatusPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		b.domains = append(b.domains, rec)
		created = append(created, rec)
	}
	return created
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request, _ []byte) {
	b.mu.Lock()
	i := b.indexOf(r.PathValue("id"))
	var rec types.DomainRecord
	if i >= 0 {
		rec = b.domains[i]
	}
	b.mu.Unlock()
	if i < 0 {
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Error: "Domain not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) handleUpdate(w http.ResponseWriter, r *http.Request, body []byte) {
	var req types.UpdateDomainRequest
	if !decode(w, body, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	b.mu.Lock()
	i := b.indexOf(r.PathValue("id"))
	if i < 0 {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Error: "Domain not found"})
		return
	}
	rec := &b.domains[i]
	rec.QualificationStatus = req.Status
	rec.Notes = req.Notes
	rec.WasManuallyQualified = req.IsManual == nil || *req.IsManual
	rec.UpdatedAt = time.Now().UTC()
	out := *rec
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request, _ []byte) {
	b.mu.Lock()
	i := b.indexOf(r.PathValue("id"))
	if i >= 0 {
		b.domains = append(b.domains[:i], b.domains[i+1:]...)
	}
	b.mu.Unlock()
	if i < 0 {
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Error: "Domain not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (b *Backend) handleBulkUpdate(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.BulkStatusRequest
	if !decode(w, body, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	b.mu.Lock()
	updated := 0
	for _, id := range req.DomainIDs {
		if i := b.indexOf(id); i >= 0 {
			b.domains[i].QualificationStatus = req.Status
			b.domains[i].WasManuallyQualified = req.Status != types.StatusPending
			b.domains[i].UpdatedAt = time.Now().UTC()
			updated++
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.BulkUpdateResponse{Updated: updated})
}

func (b *Backend) handleBulkDelete(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.BulkDeleteRequest
	if !decode(w, body, &req) {
		return
	}
	b.mu.Lock()
	deleted := 0
	for _, id := range req.DomainIDs {
		if i := b.indexOf(id); i >= 0 {
			b.domains = append(b.domains[:i], b.domains[i+1:]...)
			deleted++
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.BulkDeleteResponse{Deleted: deleted})
}

func (b *Backend) handleMove(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.MoveDomainsRequest
	if !decode(w, body, &req) {
		return
	}
	b.mu.Lock()
	moved := 0
	for _, id := range req.DomainIDs {
		if i := b.indexOf(id); i >= 0 {
			b.domains[i].ProjectID = req.TargetProjectID
			moved++
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.MoveDomainsResponse{Moved: moved})
}

func (b *Backend) handleCheckDuplicates(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.CheckDuplicatesRequest
	if !decode(w, body, &req) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.duplicates != nil {
		writeJSON(w, http.StatusOK, b.duplicates)
		return
	}

	resp := types.CheckDuplicatesResponse{AlreadyInProject: []string{}, Duplicates: []types.DuplicateDomain{}}
	for _, candidate := range req.Domains {
		for _, d := range b.domains {
			if !strings.EqualFold(d.Domain, candidate) {
				continue
			}
			if d.ProjectID == req.ProjectID {
				resp.AlreadyInProject = append(resp.AlreadyInProject, candidate)
			} else {
				resp.Duplicates = append(resp.Duplicates, types.DuplicateDomain{
					Domain:            candidate,
					ExistingDomainID:  d.ID,
					ExistingProjectID: d.ProjectID,
					ExistingStatus:    d.QualificationStatus,
				})
			}
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleResolveDuplicates(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.ResolveDuplicatesRequest
	if !decode(w, body, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolved = append(b.resolved, req)

	var resp types.ResolveDuplicatesResponse
	for _, res := range req.Resolutions {
		switch res.Resolution {
		case types.ResolutionSkip:
			resp.Skipped++
		case types.ResolutionKeepBoth:
			resp.Domains = append(resp.Domains, b.createLocked(req.ProjectID, req.ClientID, []string{res.Domain})...)
			resp.Created++
		case types.ResolutionMoveToNew:
			if i := b.indexOf(res.ExistingDomainID); i >= 0 {
				b.domains[i].ProjectID = req.ProjectID
			}
			resp.Moved++
		case types.ResolutionUpdateOriginal:
			if i := b.indexOf(res.ExistingDomainID); i >= 0 {
				b.domains[i].UpdatedAt = time.Now().UTC()
			}
			resp.Updated++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleSubmitAnalysis(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.AnalysisBatchRequest
	if !decode(w, body, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	b.mu.Lock()
	id := b.startJobLocked(types.JobKindAnalysis, req.DomainIDs, req.Keywords)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, types.JobSubmission{JobID: id, TotalDomains: len(req.DomainIDs)})
}

func (b *Backend) handleSubmitQualify(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.QualificationRequest
	if !decode(w, body, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.syncQualify {
		j := &job{kind: types.JobKindQualification, domainIDs: req.DomainIDs}
		results := b.completeJobLocked(j)
		writeJSON(w, http.StatusOK, types.QualificationSubmitResponse{
			Results: results,
			Summary: summarize(results),
		})
		return
	}
	id := b.startJobLocked(types.JobKindQualification, req.DomainIDs, nil)
	writeJSON(w, http.StatusOK, types.JobSubmission{JobID: id, TotalDomains: len(req.DomainIDs)})
}

// handleQualifyGet serves both the job poll (?jobId=) and the smart filter query.
func (b *Backend) handleQualifyGet(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.URL.Query().Get("jobId") != "" {
		b.handleJobStatus(w, r, body)
		return
	}
	projectID := r.URL.Query().Get("projectId")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.smartFilters != nil {
		writeJSON(w, http.StatusOK, types.SmartFiltersResponse{Filters: *b.smartFilters})
		return
	}
	f := types.SmartFilters{AllPendingDataForSeo: []string{}, AllPendingAI: []string{}, AllPendingBoth: []string{}}
	for _, d := range b.domains {
		if projectID != "" && d.ProjectID != projectID {
			continue
		}
		noSeo := !d.HasDataForSeoResults
		noAI := d.AIQualifiedAt == nil && d.QualificationStatus == types.StatusPending
		if noSeo {
			f.AllPendingDataForSeo = append(f.AllPendingDataForSeo, d.ID)
		}
		if noAI {
			f.AllPendingAI = append(f.AllPendingAI, d.ID)
		}
		if noSeo && noAI {
			f.AllPendingBoth = append(f.AllPendingBoth, d.ID)
		}
	}
	writeJSON(w, http.StatusOK, types.SmartFiltersResponse{Filters: f})
}

func (b *Backend) startJobLocked(kind types.JobKind, ids, keywords []string) string {
	id := b.newID("job")
	j := &job{kind: kind, domainIDs: append([]string(nil), ids...), keywords: keywords}
	if len(b.queued) > 0 {
		j.steps = b.queued[0]
		b.queued = b.queued[1:]
	}
	b.jobs[id] = j
	return id
}

func (b *Backend) handleJobStatus(w http.ResponseWriter, r *http.Request, _ []byte) {
	jobID := r.URL.Query().Get("jobId")
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[jobID]
	if !ok {
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Error: "Job not found"})
		return
	}

	total := len(j.domainIDs)
	step := types.BulkJob{Status: types.JobStatusCompleted, ProcessedDomains: total, TotalDomains: total}
	if len(j.steps) > 0 {
		idx := j.polls
		if idx >= len(j.steps) {
			idx = len(j.steps) - 1
		}
		step = j.steps[idx]
		if step.TotalDomains == 0 {
			step.TotalDomains = total
		}
	}
	j.polls++
	step.ID = jobID
	step.Kind = j.kind

	if step.Status == types.JobStatusCompleted && j.polls == firstCompletedPoll(j) {
		b.completeJobLocked(j)
	}

	items := make([]types.BatchItem, 0, len(j.domainIDs))
	for i, id := range j.domainIDs {
		status := "pending"
		if i < step.ProcessedDomains {
			status = "completed"
		}
		items = append(items, types.BatchItem{DomainID: id, Status: status})
	}
	writeJSON(w, http.StatusOK, types.JobStatusResponse{Job: step, Items: items})
}

// firstCompletedPoll is the 1-based poll count at which the job first reports completed.
func firstCompletedPoll(j *job) int {
	for i, s := range j.steps {
		if s.Status == types.JobStatusCompleted {
			return i + 1
		}
	}
	if len(j.steps) == 0 {
		return 1
	}
	return -1
}

// completeJobLocked applies a job's effect to its domains.
func (b *Backend) completeJobLocked(j *job) []types.QualificationResult {
	now := time.Now().UTC()
	var results []types.QualificationResult
	for _, id := range j.domainIDs {
		i := b.indexOf(id)
		if i < 0 {
			continue
		}
		d := &b.domains[i]
		d.UpdatedAt = now
		switch j.kind {
		case types.JobKindAnalysis:
			d.HasDataForSeoResults = true
			d.KeywordCount += len(j.keywords)
			d.CheckedAt = &now
		case types.JobKindQualification:
			d.QualificationStatus = types.StatusGoodQuality
			d.WasManuallyQualified = false
			d.AIQualificationReasoning = "Topical overlap with target pages"
			d.AIQualifiedAt = &now
			results = append(results, types.QualificationResult{
				DomainID:  d.ID,
				Domain:    d.Domain,
				Status:    d.QualificationStatus,
				Reasoning: d.AIQualificationReasoning,
			})
		}
	}
	return results
}

func summarize(results []types.QualificationResult) *types.QualificationSummary {
	s := &types.QualificationSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case types.StatusHighQuality:
			s.HighQuality++
		case types.StatusGoodQuality:
			s.GoodQuality++
		case types.StatusMarginalQuality:
			s.MarginalQuality++
		case types.StatusDisqualified:
			s.Disqualified++
		}
	}
	return s
}

func (b *Backend) handleCreateWorkflow(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req types.CreateWorkflowRequest
	if !decode(w, body, &req) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.workflowFailures[req.DomainID] {
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "workflow creation failed"})
		return
	}
	if i := b.indexOf(req.DomainID); i >= 0 {
		b.domains[i].HasWorkflow = true
	}
	writeJSON(w, http.StatusCreated, types.CreateWorkflowResponse{ID: b.newID("wf")})
}

func (b *Backend) handleTargetPages(w http.ResponseWriter, r *http.Request, _ []byte) {
	b.mu.Lock()
	pages := append([]types.TargetPage{}, b.targetPages[r.PathValue("id")]...)
	b.mu.Unlock()
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
	writeJSON(w, http.StatusOK, types.ListTargetPagesResponse{TargetPages: pages})
}

func decode(w http.ResponseWriter, body []byte, v any) bool {
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
