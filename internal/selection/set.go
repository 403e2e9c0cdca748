// Package selection tracks which domain records are selected as the input
// of bulk operations.
package selection

import (
	"sort"
	"sync"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// Set is a concurrency-safe set of domain record ids. It is never persisted.
type Set struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Toggle flips membership of id and reports whether it is now selected.
func (s *Set) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Add selects ids.
func (s *Set) Add(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Remove deselects ids.
func (s *Set) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// SetAll replaces the selection with ids.
func (s *Set) SetAll(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Clear empties the selection.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

// Has reports whether id is selected.
func (s *Set) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the selected ids, sorted.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Counts are the badge numbers for a selection.
type Counts struct {
	Selected        int `json:"selected"`
	Pending         int `json:"pending"`
	Qualified       int `json:"qualified"`
	Disqualified    int `json:"disqualified"`
	WithWorkflow    int `json:"withWorkflow"`
	WithoutAnalysis int `json:"withoutAnalysis"`
}

// Counts derives badge numbers for the selected records among records.
// Selected ids missing from records count toward Selected only.
func (s *Set) Counts(records []types.DomainRecord) Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{Selected: len(s.ids)}
	for i := range records {
		rec := &records[i]
		if _, ok := s.ids[rec.ID]; !ok {
			continue
		}
		switch {
		case rec.QualificationStatus == types.StatusPending:
			c.Pending++
		case rec.QualificationStatus == types.StatusDisqualified:
			c.Disqualified++
		case rec.QualificationStatus.IsQualified():
			c.Qualified++
		}
		if rec.HasWorkflow {
			c.WithWorkflow++
		}
		if !rec.HasDataForSeoResults {
			c.WithoutAnalysis++
		}
	}
	return c
}
