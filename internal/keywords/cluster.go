// Package keywords builds the keyword lists sent with analysis jobs: topical
// clusters the user can toggle, target page keyword sets and keywords
// extracted from a target page's HTML.
package keywords

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// OtherCluster collects keywords that share no term with any other keyword.
const OtherCluster = "Other"

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "best": true, "by": true, "can": true, "do": true, "for": true,
	"from": true, "how": true, "in": true, "is": true, "it": true, "my": true,
	"near": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"top": true, "vs": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "with": true, "you": true, "your": true,
}

// Normalize lower-cases, trims and collapses inner whitespace.
func Normalize(keyword string) string {
	return strings.Join(strings.Fields(strings.ToLower(keyword)), " ")
}

// Dedupe normalizes keywords and drops blanks and repeats, keeping first order.
func Dedupe(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		n := Normalize(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func terms(keyword string) []string {
	fields := strings.FieldsFunc(keyword, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// Cluster groups keywords by their most widely shared term. Each keyword joins
// the cluster of whichever of its terms appears in the most keywords; terms
// used by a single keyword do not form clusters. Every cluster starts selected.
// Clusters are ordered by size, then name, with Other last.
func Cluster(keywords []string) []types.KeywordCluster {
	list := Dedupe(keywords)
	if len(list) == 0 {
		return nil
	}

	freq := make(map[string]int)
	termsOf := make([][]string, len(list))
	for i, k := range list {
		seen := make(map[string]bool)
		for _, t := range terms(k) {
			if seen[t] {
				continue
			}
			seen[t] = true
			termsOf[i] = append(termsOf[i], t)
			freq[t]++
		}
	}

	groups := make(map[string][]string)
	var order []string
	for i, k := range list {
		head := ""
		for _, t := range termsOf[i] {
			if freq[t] < 2 {
				continue
			}
			if head == "" || freq[t] > freq[head] || (freq[t] == freq[head] && t < head) {
				head = t
			}
		}
		name := OtherCluster
		if head != "" {
			name = title(head)
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], k)
	}

	clusters := make([]types.KeywordCluster, 0, len(order))
	for _, name := range order {
		clusters = append(clusters, types.KeywordCluster{Name: name, Keywords: groups[name], Selected: true})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if (a.Name == OtherCluster) != (b.Name == OtherCluster) {
			return b.Name == OtherCluster
		}
		if len(a.Keywords) != len(b.Keywords) {
			return len(a.Keywords) > len(b.Keywords)
		}
		return a.Name < b.Name
	})
	return clusters
}

// Toggle flips the Selected gate of the named cluster and reports whether it exists.
func Toggle(clusters []types.KeywordCluster, name string) bool {
	for i := range clusters {
		if clusters[i].Name == name {
			clusters[i].Selected = !clusters[i].Selected
			return true
		}
	}
	return false
}

// SelectedKeywords flattens the selected clusters, deduped.
func SelectedKeywords(clusters []types.KeywordCluster) []string {
	var all []string
	for _, c := range clusters {
		if c.Selected {
			all = append(all, c.Keywords...)
		}
	}
	return Dedupe(all)
}

// FromTargetPages merges the keyword sets of target pages, deduped in page order.
func FromTargetPages(pages []types.TargetPage) []string {
	var all []string
	for _, p := range pages {
		all = append(all, p.Keywords...)
	}
	return Dedupe(all)
}

func title(term string) string {
	r := []rune(term)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
