package view

import "sync"

// Pager holds the filter, sort and display-limit state of one table.
// Changing any filter value resets the limit to one page.
type Pager struct {
	mu       sync.Mutex
	pageSize int
	limit    int
	filters  Filters
	key      SortKey
	order    SortOrder
}

// NewPager creates a pager; pageSize <= 0 uses DefaultPageSize.
// The default sort is newest first.
func NewPager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{pageSize: pageSize, limit: pageSize, key: SortCreatedAt, order: Desc}
}

// ShowMore grows the display limit by one page and returns it.
func (p *Pager) ShowMore() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit += p.pageSize
	return p.limit
}

// SetFilters replaces the filters. It reports whether they changed,
// in which case the limit is back to one page.
func (p *Pager) SetFilters(f Filters) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filters.Equal(f) {
		p.filters = f
		return false
	}
	p.filters = f
	p.limit = p.pageSize
	return true
}

// SetSort changes the sort; the limit is kept.
func (p *Pager) SetSort(key SortKey, order SortOrder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key, p.order = key, order
}

// DisplayLimit returns the current limit.
func (p *Pager) DisplayLimit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// Filters returns the current filters.
func (p *Pager) Filters() Filters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters
}

// Query snapshots the state as a Query.
func (p *Pager) Query() Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Query{Filters: p.filters, SortKey: p.key, Order: p.order, Limit: p.limit}
}
