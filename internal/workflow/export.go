package workflow

import (
	"fmt"
	"io"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/export"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/view"
)

// Format is an export file format.
type Format string

// Format values
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatCSV, FormatXLSX:
		return Format(raw), nil
	}
	return "", fmt.Errorf("unknown export format %q", raw)
}

// ExportRecords returns what Export writes: the selected records when there
// is a selection, otherwise every record matching the filters. Both follow
// the current sort and ignore the display limit.
func (c *Controller) ExportRecords() []types.DomainRecord {
	q := c.pager.Query()
	if ids := c.selection.IDs(); len(ids) > 0 {
		records := c.store.Lookup(ids)
		view.Sort(records, q.SortKey, q.Order)
		return records
	}
	q.Limit = 0
	return view.Apply(c.store.Snapshot(), q).Visible
}

// Export writes ExportRecords to w.
func (c *Controller) Export(w io.Writer, format Format) (int, error) {
	records := c.ExportRecords()
	var err error
	switch format {
	case FormatCSV:
		err = export.WriteCSV(w, records)
	case FormatXLSX:
		err = export.WriteXLSX(w, records)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return 0, c.fail("Export", err)
	}
	c.slot.Successf("Exported %d domains", len(records))
	return len(records), nil
}
