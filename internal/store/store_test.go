package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// fakeLister returns queued responses; a response with a gate blocks until the gate closes.
type fakeLister struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	records []types.DomainRecord
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeLister) push(r fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, r)
}

func (f *fakeLister) ListDomains(ctx context.Context, _ string) ([]types.DomainRecord, error) {
	f.mu.Lock()
	r := f.responses[0]
	f.responses = f.responses[1:]
	f.calls++
	f.mu.Unlock()

	if r.started != nil {
		close(r.started)
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.records, r.err
}

func recs(pairs ...string) []types.DomainRecord {
	out := make([]types.DomainRecord, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.DomainRecord{ID: pairs[i], Domain: pairs[i+1], QualificationStatus: types.StatusPending})
	}
	return out
}

func TestStore_LoadReplaces(t *testing.T) {
	lister := &fakeLister{}
	lister.push(fakeResponse{records: recs("1", "a.com", "2", "b.com")})
	lister.push(fakeResponse{records: recs("3", "c.com")})
	s := New(lister)

	n, err := s.Load(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, s.Loaded())

	_, err = s.Load(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, types.IDs(s.Snapshot()))
	_, ok := s.Get("1")
	assert.False(t, ok)
}

func TestStore_FailedLoadKeepsPrevious(t *testing.T) {
	lister := &fakeLister{}
	lister.push(fakeResponse{records: recs("1", "a.com")})
	lister.push(fakeResponse{err: errors.New("boom")})
	s := New(lister)

	_, err := s.Load(context.Background(), "p")
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"1"}, types.IDs(s.Snapshot()))
}

func TestStore_StaleLoadDiscarded(t *testing.T) {
	lister := &fakeLister{}
	slow := fakeResponse{records: recs("old", "old.com"), gate: make(chan struct{}), started: make(chan struct{})}
	lister.push(slow)
	lister.push(fakeResponse{records: recs("new", "new.com")})
	s := New(lister)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), "p")
		errCh <- err
	}()
	<-slow.started

	_, err := s.Load(context.Background(), "p")
	require.NoError(t, err)

	close(slow.gate)
	assert.ErrorIs(t, <-errCh, ErrStaleLoad)
	assert.Equal(t, []string{"new"}, types.IDs(s.Snapshot()))
}

func TestStore_PatchDuringLoadSurvives(t *testing.T) {
	lister := &fakeLister{}
	lister.push(fakeResponse{records: recs("1", "a.com", "2", "b.com")})
	s := New(lister)
	_, err := s.Load(context.Background(), "p")
	require.NoError(t, err)

	slow := fakeResponse{records: recs("1", "a.com", "2", "b.com"), gate: make(chan struct{}), started: make(chan struct{})}
	lister.push(slow)

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), "p")
		done <- err
	}()
	<-slow.started

	n := s.PatchLocal([]string{"2"}, func(r *types.DomainRecord) { r.QualificationStatus = types.StatusHighQuality })
	assert.Equal(t, 1, n)

	close(slow.gate)
	require.NoError(t, <-done)

	rec, ok := s.Get("2")
	require.True(t, ok)
	assert.Equal(t, types.StatusHighQuality, rec.QualificationStatus, "late load must not clobber a newer patch")

	// Patches before the next load started are superseded by it.
	lister.push(fakeResponse{records: recs("1", "a.com", "2", "b.com")})
	_, err = s.Load(context.Background(), "p")
	require.NoError(t, err)
	rec, _ = s.Get("2")
	assert.Equal(t, types.StatusPending, rec.QualificationStatus)
}

func TestStore_PatchLocalPreservesOrder(t *testing.T) {
	lister := &fakeLister{}
	lister.push(fakeResponse{records: recs("1", "a.com", "2", "b.com", "3", "c.com")})
	s := New(lister)
	_, err := s.Load(context.Background(), "p")
	require.NoError(t, err)

	n := s.PatchLocal([]string{"3", "1", "missing"}, func(r *types.DomainRecord) { r.Notes = "seen" })
	assert.Equal(t, 2, n)

	snap := s.Snapshot()
	assert.Equal(t, []string{"1", "2", "3"}, types.IDs(snap))
	assert.Equal(t, "seen", snap[0].Notes)
	assert.Empty(t, snap[1].Notes)
	assert.Equal(t, "seen", snap[2].Notes)
}

func TestStore_MergeByID(t *testing.T) {
	lister := &fakeLister{}
	lister.push(fakeResponse{records: recs("1", "a.com", "2", "b.com", "3", "c.com")})
	s := New(lister)
	_, err := s.Load(context.Background(), "p")
	require.NoError(t, err)

	s.MergeByID([]types.DomainRecord{
		{ID: "2", Domain: "b.com", HasDataForSeoResults: true, KeywordCount: 9},
		{ID: "4", Domain: "d.com"},
	})

	snap := s.Snapshot()
	assert.Equal(t, []string{"1", "2", "3", "4"}, types.IDs(snap))
	assert.True(t, snap[1].HasDataForSeoResults)
	assert.Equal(t, 9, snap[1].KeywordCount)
}

func TestStore_RemoveAndLookup(t *testing.T) {
	lister := &fakeLister{}
	lister.push(fakeResponse{records: recs("1", "a.com", "2", "b.com", "3", "c.com")})
	s := New(lister)
	_, err := s.Load(context.Background(), "p")
	require.NoError(t, err)

	assert.Equal(t, 2, s.Remove("1", "3", "nope"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"2"}, types.IDs(s.Lookup([]string{"1", "2"})))

	rec, ok := s.Get("2")
	require.True(t, ok)
	assert.Equal(t, "b.com", rec.Domain)
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	lister := &fakeLister{}
	lister.push(fakeResponse{records: recs("1", "a.com")})
	s := New(lister)
	_, err := s.Load(context.Background(), "p")
	require.NoError(t, err)

	snap := s.Snapshot()
	snap[0].Domain = "mutated.com"

	rec, _ := s.Get("1")
	assert.Equal(t, "a.com", rec.Domain)
}
