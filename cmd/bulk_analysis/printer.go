package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/messages"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

const dateLayout = "2006-01-02"

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func renderDomains(w io.Writer, page workflow.Page) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Domain", "Status", "Verified", "DataForSEO", "Keywords", "Workflow", "Updated"})
	for _, r := range page.Domains {
		verified := "-"
		switch {
		case r.WasManuallyQualified:
			verified = "human"
		case r.IsAIQualified():
			verified = "ai"
		}
		t.AppendRow(table.Row{
			r.ID,
			r.Domain,
			r.QualificationStatus.Label(),
			verified,
			yesNo(r.HasDataForSeoResults),
			r.KeywordCount,
			yesNo(r.HasWorkflow),
			r.UpdatedAt.Format(dateLayout),
		})
	}
	t.Render()
	fmt.Fprintf(w, "%d of %d matching\n", len(page.Domains), page.Matched)
	if page.HasMore {
		fmt.Fprintf(w, "%d more not shown; use --limit or --all\n", page.Matched-len(page.Domains))
	}
}

func renderDuplicates(w io.Writer, dupes []types.DuplicateDomain) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Domain", "Existing project", "Existing status"})
	for _, d := range dupes {
		project := d.ExistingProjectName
		if project == "" {
			project = d.ExistingProjectID
		}
		t.AppendRow(table.Row{d.Domain, project, d.ExistingStatus.Label()})
	}
	t.Render()
}

func renderClusters(w io.Writer, clusters []types.KeywordCluster) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Cluster", "Count", "Keywords"})
	for _, c := range clusters {
		t.AppendRow(table.Row{c.Name, len(c.Keywords), strings.Join(c.Keywords, ", ")})
	}
	t.Render()
}

func renderJobs(w io.Writer, jobs []db.Job, now time.Time) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Job", "Project", "Kind", "Status", "Progress", "Started", "Duration", "Message"})
	for _, j := range jobs {
		msg := ""
		if j.Message != nil {
			msg = *j.Message
		}
		t.AppendRow(table.Row{
			j.JobID,
			j.ProjectID,
			j.Kind,
			j.Status,
			fmt.Sprintf("%d/%d", j.Processed, j.Total),
			j.StartedAt.Format(time.DateTime),
			j.Duration(now).Round(time.Second),
			msg,
		})
	}
	t.Render()
}

// printMessage writes the controller's current message, if any.
func printMessage(w io.Writer, slot *messages.Slot) {
	if msg, ok := slot.Current(); ok {
		fmt.Fprintln(w, msg.String())
	}
}

// progressPrinter reports job progress on w, one line per change.
func progressPrinter(w io.Writer) bulkjob.ProgressCallback {
	return func(ev bulkjob.ProgressEvent) {
		switch ev.Type {
		case bulkjob.EventTypeSubmitted:
			fmt.Fprintf(w, "Submitted %s job %s (%d domains)\n", ev.Kind, ev.JobID, ev.Total)
		case bulkjob.EventTypeProgress:
			fmt.Fprintf(w, "  %d/%d\n", ev.Current, ev.Total)
		}
	}
}
