// Package store holds a project's domain records for the session and
// reconciles them with the backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// ErrStaleLoad is returned by a load that was overtaken by a newer one.
// Its result is discarded.
var ErrStaleLoad = errors.New("stale load discarded")

// Lister fetches a project's records from the source of truth.
type Lister interface {
	ListDomains(ctx context.Context, projectID string) ([]types.DomainRecord, error)
}

// Ticket identifies one load.
type Ticket struct {
	ID  string
	Seq uint64
}

// Store is an ordered, concurrency-safe collection of domain records.
type Store struct {
	lister Lister

	mu      sync.RWMutex
	records []types.DomainRecord
	index   map[string]int

	loadSeq uint64
	// patchedAt records the load sequence current when a record was last
	// patched; a load that began at or before that point keeps the patch.
	patchedAt map[string]uint64
	loaded    bool
}

// New creates an empty store backed by lister.
func New(lister Lister) *Store {
	return &Store{
		lister:    lister,
		index:     make(map[string]int),
		patchedAt: make(map[string]uint64),
	}
}

// Load replaces the collection with the backend's current list.
// Only the newest load may apply; an overtaken load returns ErrStaleLoad.
// A failed load leaves the previous collection untouched.
func (s *Store) Load(ctx context.Context, projectID string) (int, error) {
	ticket := s.begin()

	records, err := s.lister.ListDomains(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", projectID, err)
	}

	return s.apply(ticket, records)
}

func (s *Store) begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadSeq++
	return Ticket{ID: uuid.NewString(), Seq: s.loadSeq}
}

func (s *Store) apply(ticket Ticket, records []types.DomainRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.Seq != s.loadSeq {
		return 0, fmt.Errorf("load %s: %w", ticket.ID, ErrStaleLoad)
	}

	next := make([]types.DomainRecord, len(records))
	copy(next, records)
	for i := range next {
		seq, patched := s.patchedAt[next[i].ID]
		if !patched || seq < ticket.Seq {
			continue
		}
		if cur, ok := s.index[next[i].ID]; ok {
			next[i] = s.records[cur]
		}
	}

	s.records = next
	s.reindex()
	s.patchedAt = make(map[string]uint64)
	s.loaded = true
	return len(next), nil
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.records))
	for i := range s.records {
		s.index[s.records[i].ID] = i
	}
}

// PatchLocal applies updater to each record whose id is in ids, in place,
// preserving order. It returns how many records were patched. Callers apply
// a patch only after the backend confirmed the change.
func (s *Store) PatchLocal(ids []string, updater func(*types.DomainRecord)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		i, ok := s.index[id]
		if !ok {
			continue
		}
		updater(&s.records[i])
		s.patchedAt[id] = s.loadSeq
		n++
	}
	return n
}

// MergeByID replaces records by id, keeping their position. Unknown ids are appended.
func (s *Store) MergeByID(records []types.DomainRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if i, ok := s.index[rec.ID]; ok {
			s.records[i] = rec
		} else {
			s.records = append(s.records, rec)
			s.index[rec.ID] = len(s.records) - 1
		}
		s.patchedAt[rec.ID] = s.loadSeq
	}
	return len(records)
}

// Remove drops records by id and returns how many were removed.
func (s *Store) Remove(ids ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return 0
	}

	kept := s.records[:0]
	for _, rec := range s.records {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	s.reindex()
	return len(drop)
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (types.DomainRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return types.DomainRecord{}, false
	}
	return s.records[i], true
}

// Lookup returns copies of the records for ids that are present, in ids order.
func (s *Store) Lookup(ids []string) []types.DomainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.DomainRecord, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			out = append(out, s.records[i])
		}
	}
	return out
}

// Snapshot returns a copy of the collection in order.
func (s *Store) Snapshot() []types.DomainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.DomainRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Loaded reports whether any load has been applied.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
