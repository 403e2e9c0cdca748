package workflow

import (
	"context"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/keywords"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// KeywordClusters builds toggleable clusters from the client's target pages
// plus manual keywords. Target pages without keywords are fetched and their
// headings used instead; a page that cannot be fetched is skipped.
func (c *Controller) KeywordClusters(ctx context.Context, manual []string, fetch *keywords.FetchOptions) ([]types.KeywordCluster, error) {
	var pages []types.TargetPage
	if c.opts.ClientID != "" {
		var err error
		pages, err = c.backend.ListTargetPages(ctx, c.opts.ClientID)
		if err != nil {
			return nil, c.fail("Load target pages", err)
		}
	}

	for i := range pages {
		if len(pages[i].Keywords) > 0 || pages[i].URL == "" {
			continue
		}
		kws, err := keywords.FetchTargetPage(ctx, pages[i].URL, fetch)
		if err != nil {
			c.log.Warn("target page keyword extraction failed", logger.String("url", pages[i].URL), logger.Error(err))
			continue
		}
		pages[i].Keywords = kws
	}

	all := append(keywords.FromTargetPages(pages), manual...)
	clusters := keywords.Cluster(all)
	if len(clusters) == 0 {
		return nil, c.fail("Keyword clusters", ErrNoKeywords)
	}
	return clusters, nil
}
