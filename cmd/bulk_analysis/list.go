package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/view"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// viewFlags are the filter and sort flags shared by list and export.
type viewFlags struct {
	statuses     []string
	workflow     string
	verification string
	search       string
	sort         string
	order        string
}

func (v *viewFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&v.statuses, "status", "s", nil, "Qualification statuses to include (repeatable or comma-separated)")
	fs.StringVar(&v.workflow, "workflow", "", "Workflow filter: all, has_workflow, no_workflow")
	fs.StringVar(&v.verification, "verification", "", "Verification filter: all, human_verified, ai_qualified, unverified")
	fs.StringVar(&v.search, "search", "", "Case-insensitive domain or notes substring")
	fs.StringVar(&v.sort, "sort", "", "Sort key (createdAt, updatedAt, domain, qualificationStatus, hasDataForSeoResults, hasWorkflow, keywordCount)")
	fs.StringVar(&v.order, "order", "desc", "Sort order: asc or desc")
}

// apply pushes the flags into the controller's view.
func (v *viewFlags) apply(c *workflow.Controller) error {
	f := view.Filters{
		Workflow:     view.WorkflowFilter(v.workflow),
		Verification: view.VerificationFilter(v.verification),
		Search:       v.search,
	}
	for _, raw := range v.statuses {
		s, err := types.ParseQualificationStatus(raw)
		if err != nil {
			return err
		}
		f.Statuses = append(f.Statuses, s)
	}
	if err := c.SetFilters(f); err != nil {
		return err
	}

	key, err := view.ParseSortKey(v.sort)
	if err != nil {
		return err
	}
	order, err := view.ParseSortOrder(v.order)
	if err != nil {
		return err
	}
	if key != "" {
		c.SetSort(key, order)
	}
	return nil
}

func init() {
	register(newListCmd)
}

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		vf    viewFlags
		all   bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the project's domains",
		Long:  "Loads the project's domains and prints the filtered, sorted page. The page size comes from --limit or page_size in the config.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, g, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()
			if limit > 0 {
				a.cfg.PageSize = limit
			}

			c, err := a.open(ctx, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := vf.apply(c); err != nil {
				return err
			}
			page := c.Visible()
			for all && page.HasMore {
				c.ShowMore()
				page = c.Visible()
			}

			renderDomains(a.out, page)
			fmt.Fprintf(a.out, "%d domains in project\n", page.Total)
			return nil
		},
	}
	vf.register(cmd.Flags())
	cmd.Flags().BoolVar(&all, "all", false, "Print every matching domain instead of one page")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Page size (default page_size from config)")
	return cmd
}
