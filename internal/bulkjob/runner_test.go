package bulkjob_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/api/apitest"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/messages"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/selection"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/store"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

type harness struct {
	backend *apitest.Backend
	client  *api.Client
	store   *store.Store
	sel     *selection.Set
	slot    *messages.Slot

	mu     sync.Mutex
	events []bulkjob.ProgressEvent
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	records := make([]types.DomainRecord, n)
	for i := range records {
		records[i] = types.DomainRecord{
			ID:                  fmt.Sprintf("d%d", i+1),
			ProjectID:           "p1",
			Domain:              fmt.Sprintf("site%d.com", i+1),
			QualificationStatus: types.StatusPending,
		}
	}
	backend := apitest.New(records...)
	t.Cleanup(backend.Close)

	opts := api.DefaultOptions(backend.URL())
	opts.RequestsPerSecond = 0
	client, err := api.NewClient(opts)
	require.NoError(t, err)

	st := store.New(client)
	_, err = st.Load(context.Background(), "p1")
	require.NoError(t, err)

	sel := selection.NewSet()
	sel.Add(types.IDs(records)...)

	return &harness{backend: backend, client: client, store: st, sel: sel, slot: messages.NewSlot()}
}

func (h *harness) runner(opts bulkjob.Options) *bulkjob.Runner {
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Millisecond
	}
	opts.Messages = h.slot
	opts.Describe = api.Message
	opts.OnProgress = func(ev bulkjob.ProgressEvent) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
	}
	return bulkjob.NewRunner(h.client, h.store, h.sel, opts)
}

func (h *harness) progress() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, ev := range h.events {
		if ev.Type == bulkjob.EventTypeProgress {
			out = append(out, fmt.Sprintf("%d/%d", ev.Current, ev.Total))
		}
	}
	return out
}

func (h *harness) analysisSpec(ids []string) bulkjob.Spec {
	return bulkjob.Spec{
		Kind:      types.JobKindAnalysis,
		ProjectID: "p1",
		DomainIDs: ids,
		Submit: func(ctx context.Context) (*bulkjob.Submission, error) {
			sub, err := h.client.SubmitAnalysis(ctx, types.AnalysisBatchRequest{DomainIDs: ids, Keywords: []string{"guest post"}})
			if err != nil {
				return nil, err
			}
			return &bulkjob.Submission{JobID: sub.JobID, TotalDomains: sub.TotalDomains}, nil
		},
		Poll: h.client.AnalysisStatus,
	}
}

func TestRunner_CompletesAndRefetchesEachDomain(t *testing.T) {
	h := newHarness(t, 5)
	h.backend.QueueJob(
		types.BulkJob{Status: types.JobStatusProcessing, ProcessedDomains: 2, TotalDomains: 5},
		types.BulkJob{Status: types.JobStatusProcessing, ProcessedDomains: 4, TotalDomains: 5},
		types.BulkJob{Status: types.JobStatusCompleted, ProcessedDomains: 5, TotalDomains: 5, TotalKeywordsAnalyzed: 5, TotalRankingsFound: 3},
	)
	r := h.runner(bulkjob.Options{})

	snap, err := r.Run(context.Background(), h.analysisSpec(h.sel.IDs()))
	require.NoError(t, err)

	assert.Equal(t, bulkjob.StateCompleted, snap.State)
	assert.Equal(t, []string{"2/5", "4/5", "5/5"}, h.progress())
	assert.Equal(t, 5, h.backend.Count(apitest.RouteGet), "one refetch per job domain")
	assert.Equal(t, 1, h.backend.Count(apitest.RouteList), "no full reload")
	assert.Equal(t, 3, h.backend.Count(apitest.RouteAnalysisStatus))
	assert.Equal(t, 5, snap.Refetched)

	assert.Zero(t, h.sel.Len(), "selection clears on completion")
	for _, rec := range h.store.Snapshot() {
		assert.True(t, rec.HasDataForSeoResults, rec.ID)
	}
	assert.Equal(t, []string{"d1", "d2", "d3", "d4", "d5"}, types.IDs(h.store.Snapshot()))

	msg, ok := h.slot.Current()
	require.True(t, ok)
	assert.Equal(t, messages.KindSuccess, msg.Kind)
	assert.Contains(t, msg.Text, "5 domains updated")
	assert.Contains(t, msg.Text, "3 rankings found")
}

func TestRunner_StopsPollingAfterTerminal(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.QueueJob(types.BulkJob{Status: types.JobStatusCompleted, ProcessedDomains: 2})
	r := h.runner(bulkjob.Options{})

	_, err := r.Run(context.Background(), h.analysisSpec([]string{"d1", "d2"}))
	require.NoError(t, err)

	polls := h.backend.Count(apitest.RouteAnalysisStatus)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, h.backend.Count(apitest.RouteAnalysisStatus))
	assert.False(t, r.Active())
}

func TestRunner_ServerFailureLeavesRecords(t *testing.T) {
	h := newHarness(t, 3)
	h.backend.QueueJob(
		types.BulkJob{Status: types.JobStatusProcessing, ProcessedDomains: 1},
		types.BulkJob{Status: types.JobStatusFailed, Error: "DataForSEO quota exceeded"},
	)
	r := h.runner(bulkjob.Options{})
	before := h.store.Snapshot()

	snap, err := r.Run(context.Background(), h.analysisSpec(h.sel.IDs()))
	require.Error(t, err)

	var failed *bulkjob.JobFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, bulkjob.StateFailed, snap.State)
	assert.Equal(t, before, h.store.Snapshot())
	assert.Zero(t, h.backend.Count(apitest.RouteGet))
	assert.Equal(t, 3, h.sel.Len(), "selection kept on failure")

	msg, _ := h.slot.Current()
	assert.Equal(t, messages.KindError, msg.Kind)
	assert.Contains(t, msg.String(), "❌")
	assert.Contains(t, msg.Text, "quota exceeded")
}

func TestRunner_SubmitFailureNoPolling(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.Fail(apitest.RouteSubmitAnalysis, http.StatusBadRequest, "No keywords provided")
	r := h.runner(bulkjob.Options{})

	snap, err := r.Run(context.Background(), h.analysisSpec([]string{"d1"}))
	require.Error(t, err)
	assert.Equal(t, bulkjob.StateFailed, snap.State)
	assert.Empty(t, snap.JobID)
	assert.Zero(t, h.backend.Count(apitest.RouteAnalysisStatus))

	msg, _ := h.slot.Current()
	assert.Equal(t, "DataForSEO analysis failed: No keywords provided", msg.Text)
}

func TestRunner_GuardRejectsSecondJob(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.QueueJob(types.BulkJob{Status: types.JobStatusProcessing, ProcessedDomains: 1})
	r := h.runner(bulkjob.Options{})

	done, err := r.Start(context.Background(), h.analysisSpec([]string{"d1", "d2"}))
	require.NoError(t, err)

	_, err = r.Start(context.Background(), h.analysisSpec([]string{"d1"}))
	assert.ErrorIs(t, err, bulkjob.ErrJobInFlight)
	assert.True(t, r.Active(), "first job keeps running")
	require.Eventually(t, func() bool { return h.backend.Count(apitest.RouteAnalysisStatus) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.backend.Count(apitest.RouteSubmitAnalysis))

	r.Cancel()
	snap := <-done
	assert.ErrorIs(t, snap.Err(), context.Canceled)
	assert.Equal(t, bulkjob.StateFailed, snap.State)
}

func TestRunner_CancelStopsLoop(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.QueueJob(types.BulkJob{Status: types.JobStatusProcessing, ProcessedDomains: 1})
	r := h.runner(bulkjob.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done, err := r.Start(ctx, h.analysisSpec([]string{"d1", "d2"}))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.backend.Count(apitest.RouteAnalysisStatus) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	snap := <-done
	assert.ErrorIs(t, snap.Err(), context.Canceled)

	polls := h.backend.Count(apitest.RouteAnalysisStatus)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, h.backend.Count(apitest.RouteAnalysisStatus), "no polls after cancellation")
	assert.False(t, r.Active())
}

func TestRunner_MaxAttempts(t *testing.T) {
	h := newHarness(t, 1)
	h.backend.QueueJob(types.BulkJob{Status: types.JobStatusProcessing})
	r := h.runner(bulkjob.Options{MaxAttempts: 3})

	snap, err := r.Run(context.Background(), h.analysisSpec([]string{"d1"}))
	assert.ErrorIs(t, err, bulkjob.ErrPollTimeout)
	assert.Equal(t, bulkjob.StateFailed, snap.State)
	assert.Equal(t, 3, h.backend.Count(apitest.RouteAnalysisStatus))
}

func TestRunner_MaxDuration(t *testing.T) {
	h := newHarness(t, 1)
	h.backend.QueueJob(types.BulkJob{Status: types.JobStatusProcessing})
	r := h.runner(bulkjob.Options{MaxDuration: 40 * time.Millisecond})

	_, err := r.Run(context.Background(), h.analysisSpec([]string{"d1"}))
	assert.ErrorIs(t, err, bulkjob.ErrPollTimeout)
}

func TestRunner_ToleratesTransientPollErrors(t *testing.T) {
	h := newHarness(t, 1)
	h.backend.FailTimes(apitest.RouteAnalysisStatus, http.StatusBadGateway, "upstream hiccup", 2)
	r := h.runner(bulkjob.Options{MaxPollErrors: 3})

	snap, err := r.Run(context.Background(), h.analysisSpec([]string{"d1"}))
	require.NoError(t, err)
	assert.Equal(t, bulkjob.StateCompleted, snap.State)
	assert.Equal(t, 3, h.backend.Count(apitest.RouteAnalysisStatus))
}

func TestRunner_RepeatedPollErrorsFail(t *testing.T) {
	h := newHarness(t, 1)
	h.backend.Fail(apitest.RouteAnalysisStatus, http.StatusInternalServerError, "boom")
	r := h.runner(bulkjob.Options{MaxPollErrors: 2})

	snap, err := r.Run(context.Background(), h.analysisSpec([]string{"d1"}))
	require.Error(t, err)
	assert.Equal(t, bulkjob.StateFailed, snap.State)
	assert.Equal(t, 2, h.backend.Count(apitest.RouteAnalysisStatus))
}

func TestRunner_SynchronousCompletion(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.SetSynchronousQualification(true)
	r := h.runner(bulkjob.Options{})

	ids := []string{"d1", "d2"}
	snap, err := r.Run(context.Background(), bulkjob.Spec{
		Kind:      types.JobKindQualification,
		DomainIDs: ids,
		Submit: func(ctx context.Context) (*bulkjob.Submission, error) {
			resp, err := h.client.SubmitQualification(ctx, types.QualificationRequest{DomainIDs: ids, LocationCode: 2840, LanguageCode: "en"})
			if err != nil {
				return nil, err
			}
			return &bulkjob.Submission{JobID: resp.JobID, TotalDomains: len(ids), Completed: resp.Synchronous()}, nil
		},
		Poll: h.client.QualificationStatus,
	})
	require.NoError(t, err)
	assert.Equal(t, bulkjob.StateCompleted, snap.State)
	assert.Zero(t, h.backend.Count(apitest.RouteQualifyGet))
	assert.Equal(t, 2, h.backend.Count(apitest.RouteGet))

	rec, _ := h.store.Get("d1")
	assert.Equal(t, types.StatusGoodQuality, rec.QualificationStatus)
}

func TestRunner_PartialRefetchFailure(t *testing.T) {
	h := newHarness(t, 3)
	r := h.runner(bulkjob.Options{})

	snap, err := r.Run(context.Background(), h.analysisSpec([]string{"d1", "d2", "gone"}))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Refetched)
	assert.Equal(t, 1, snap.RefetchFailed)

	msg, _ := h.slot.Current()
	assert.Contains(t, msg.Text, "1 could not be refreshed")
}

func TestRunner_RejectsEmptySpec(t *testing.T) {
	h := newHarness(t, 1)
	r := h.runner(bulkjob.Options{})

	_, err := r.Start(context.Background(), h.analysisSpec(nil))
	assert.ErrorIs(t, err, bulkjob.ErrNoDomains)
	assert.Zero(t, h.backend.Count(apitest.RouteSubmitAnalysis))
}

type recordingJournal struct {
	mu       sync.Mutex
	started  []string
	progress []int
	finished []string
}

func (j *recordingJournal) RecordStart(_ context.Context, jobID, _, _ string, _ int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, jobID)
	return nil
}

func (j *recordingJournal) RecordProgress(_ context.Context, _ string, processed, _ int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = append(j.progress, processed)
	return nil
}

func (j *recordingJournal) RecordFinish(_ context.Context, _, status, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, status)
	return nil
}

func TestRunner_Journal(t *testing.T) {
	h := newHarness(t, 2)
	h.backend.QueueJob(
		types.BulkJob{Status: types.JobStatusProcessing, ProcessedDomains: 1},
		types.BulkJob{Status: types.JobStatusCompleted, ProcessedDomains: 2},
	)
	journal := &recordingJournal{}
	r := h.runner(bulkjob.Options{Journal: journal})

	_, err := r.Run(context.Background(), h.analysisSpec([]string{"d1", "d2"}))
	require.NoError(t, err)

	assert.Len(t, journal.started, 1)
	assert.Equal(t, []int{1, 2}, journal.progress)
	assert.Equal(t, []string{"completed"}, journal.finished)
}
