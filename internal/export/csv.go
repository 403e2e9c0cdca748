// Package export renders domain records as CSV or XLSX downloads.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// Header is the column row shared by every export format.
var Header = []string{"Domain", "Status", "Keywords", "Has Workflow", "Checked Date", "Notes", "AI Reasoning"}

// CheckedDateLayout formats the Checked Date column.
const CheckedDateLayout = "2006-01-02"

// Row returns the export columns of one record.
func Row(r types.DomainRecord) []string {
	checked := ""
	if r.CheckedAt != nil {
		checked = r.CheckedAt.UTC().Format(CheckedDateLayout)
	}
	workflow := "No"
	if r.HasWorkflow {
		workflow = "Yes"
	}
	return []string{
		r.Domain,
		string(r.QualificationStatus),
		strconv.Itoa(r.KeywordCount),
		workflow,
		checked,
		r.Notes,
		r.AIQualificationReasoning,
	}
}

// WriteCSV writes the header and one row per record. Every field is wrapped
// in double quotes and internal quotes are doubled.
func WriteCSV(w io.Writer, records []types.DomainRecord) error {
	bw := bufio.NewWriter(w)
	if err := writeQuoted(bw, Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := writeQuoted(bw, Row(r)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeQuoted(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Filename returns the download name for a project export.
func Filename(projectID, ext string, now time.Time) string {
	name := "bulk-analysis"
	if projectID != "" {
		name += "-" + projectID
	}
	return name + "-" + now.Format(CheckedDateLayout) + "." + ext
}
