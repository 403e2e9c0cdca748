// Package view derives the visible slice of a project's domain records:
// filter, then sort, then a prefix page.
package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// DefaultPageSize is the display limit of one page.
const DefaultPageSize = 50

// WorkflowFilter selects on workflow presence.
type WorkflowFilter string

// WorkflowFilter values
const (
	WorkflowAll  WorkflowFilter = "all"
	WorkflowHas  WorkflowFilter = "has_workflow"
	WorkflowNone WorkflowFilter = "no_workflow"
)

// VerificationFilter selects on who qualified a record.
type VerificationFilter string

// VerificationFilter values
const (
	VerificationAll   VerificationFilter = "all"
	VerificationHuman VerificationFilter = "human_verified"
	VerificationAI    VerificationFilter = "ai_qualified"
	VerificationNone  VerificationFilter = "unverified"
)

// SortKey names a sortable column.
type SortKey string

// SortKey values
const (
	SortCreatedAt   SortKey = "createdAt"
	SortUpdatedAt   SortKey = "updatedAt"
	SortDomain      SortKey = "domain"
	SortStatus      SortKey = "qualificationStatus"
	SortHasDataSeo  SortKey = "hasDataForSeoResults"
	SortHasWorkflow SortKey = "hasWorkflow"
	SortKeywords    SortKey = "keywordCount"
)

// SortOrder is asc or desc.
type SortOrder string

// SortOrder values
const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Filters compose with AND. Zero values match everything.
type Filters struct {
	Statuses     []types.QualificationStatus `json:"statuses,omitempty"`
	Workflow     WorkflowFilter              `json:"workflow,omitempty"`
	Verification VerificationFilter          `json:"verification,omitempty"`
	Search       string                      `json:"search,omitempty"`
}

// Equal reports whether two filter sets select the same records.
// Status order is irrelevant.
func (f Filters) Equal(o Filters) bool {
	if f.workflow() != o.workflow() || f.verification() != o.verification() {
		return false
	}
	if strings.TrimSpace(f.Search) != strings.TrimSpace(o.Search) {
		return false
	}
	a, b := statusSet(f.Statuses), statusSet(o.Statuses)
	if len(a) != len(b) {
		return false
	}
	for s := range a {
		if !b[s] {
			return false
		}
	}
	return true
}

// Validate rejects unknown filter values.
func (f Filters) Validate() error {
	switch f.workflow() {
	case WorkflowAll, WorkflowHas, WorkflowNone:
	default:
		return fmt.Errorf("unknown workflow filter %q", f.Workflow)
	}
	switch f.verification() {
	case VerificationAll, VerificationHuman, VerificationAI, VerificationNone:
	default:
		return fmt.Errorf("unknown verification filter %q", f.Verification)
	}
	for _, s := range f.Statuses {
		if !s.Valid() {
			return fmt.Errorf("unknown status %q", s)
		}
	}
	return nil
}

func (f Filters) workflow() WorkflowFilter {
	if f.Workflow == "" {
		return WorkflowAll
	}
	return f.Workflow
}

func (f Filters) verification() VerificationFilter {
	if f.Verification == "" {
		return VerificationAll
	}
	return f.Verification
}

func statusSet(statuses []types.QualificationStatus) map[types.QualificationStatus]bool {
	set := make(map[types.QualificationStatus]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

// Match reports whether rec passes every filter.
func (f Filters) Match(rec *types.DomainRecord) bool {
	return f.matchStatus(rec) && f.matchWorkflow(rec) && f.matchVerification(rec) && f.matchSearch(rec)
}

func (f Filters) matchStatus(rec *types.DomainRecord) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if rec.QualificationStatus == s {
			return true
		}
	}
	return false
}

func (f Filters) matchWorkflow(rec *types.DomainRecord) bool {
	switch f.workflow() {
	case WorkflowHas:
		return rec.HasWorkflow
	case WorkflowNone:
		return !rec.HasWorkflow
	}
	return true
}

func (f Filters) matchVerification(rec *types.DomainRecord) bool {
	switch f.verification() {
	case VerificationHuman:
		return rec.WasManuallyQualified
	case VerificationAI:
		return rec.IsAIQualified()
	case VerificationNone:
		return rec.IsPending()
	}
	return true
}

func (f Filters) matchSearch(rec *types.DomainRecord) bool {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	return q == "" || strings.Contains(strings.ToLower(rec.Domain), q)
}

// Query is every input of a derivation.
type Query struct {
	Filters Filters
	SortKey SortKey
	Order   SortOrder
	Limit   int
}

// Result is a derived view.
type Result struct {
	Visible []types.DomainRecord
	Matched int
	HasMore bool
}

// Apply filters, sorts and limits records. It does not modify records.
// A Limit <= 0 returns every match.
func Apply(records []types.DomainRecord, q Query) Result {
	matched := make([]types.DomainRecord, 0, len(records))
	for i := range records {
		if q.Filters.Match(&records[i]) {
			matched = append(matched, records[i])
		}
	}

	Sort(matched, q.SortKey, q.Order)

	res := Result{Visible: matched, Matched: len(matched)}
	if q.Limit > 0 && len(matched) > q.Limit {
		res.Visible = matched[:q.Limit]
		res.HasMore = true
	}
	return res
}

// Sort stable-sorts records in place. An empty key keeps input order.
func Sort(records []types.DomainRecord, key SortKey, order SortOrder) {
	cmp := comparator(key)
	if cmp == nil {
		return
	}
	sign := 1
	if order == Desc {
		sign = -1
	}
	sort.SliceStable(records, func(i, j int) bool {
		return sign*cmp(&records[i], &records[j]) < 0
	})
}

// ParseSortKey validates a sort key.
func ParseSortKey(raw string) (SortKey, error) {
	key := SortKey(raw)
	if raw == "" || comparator(key) != nil {
		return key, nil
	}
	return "", fmt.Errorf("unknown sort key %q", raw)
}

// ParseSortOrder validates a sort order; empty means asc.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(raw)) {
	case "", Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("unknown sort order %q", raw)
}

func comparator(key SortKey) func(a, b *types.DomainRecord) int {
	switch key {
	case SortCreatedAt:
		return func(a, b *types.DomainRecord) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortUpdatedAt:
		return func(a, b *types.DomainRecord) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case SortDomain:
		return func(a, b *types.DomainRecord) int { return strings.Compare(a.Domain, b.Domain) }
	case SortStatus:
		return func(a, b *types.DomainRecord) int {
			return compareInt(a.QualificationStatus.Rank(), b.QualificationStatus.Rank())
		}
	case SortHasDataSeo:
		return func(a, b *types.DomainRecord) int { return compareBool(a.HasDataForSeoResults, b.HasDataForSeoResults) }
	case SortHasWorkflow:
		return func(a, b *types.DomainRecord) int { return compareBool(a.HasWorkflow, b.HasWorkflow) }
	case SortKeywords:
		return func(a, b *types.DomainRecord) int { return compareInt(a.KeywordCount, b.KeywordCount) }
	}
	return nil
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// false sorts before true.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
