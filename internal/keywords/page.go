package keywords

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout bounds a target page fetch.
const DefaultTimeout = 15 * time.Second

// DefaultUserAgent identifies target page fetches.
const DefaultUserAgent = "Mozilla/5.0 (compatible; BulkAnalysis/1.0)"

// maxPageBytes caps how much of a target page is read.
const maxPageBytes = 4 << 20

// FetchError describes a failed target page fetch.
type FetchError struct {
	URL     string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// FetchOptions configures FetchTargetPage.
type FetchOptions struct {
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// FetchTargetPage downloads a target page and extracts candidate keywords.
func FetchTargetPage(ctx context.Context, pageURL string, opts *FetchOptions) ([]string, error) {
	if opts == nil {
		opts = &FetchOptions{}
	}
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &FetchError{URL: pageURL, Message: "invalid URL", Cause: err}
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: pageURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Message: "failed to read response body", Cause: err}
	}

	kws, err := ExtractFromHTML(string(body))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Message: "failed to parse HTML", Cause: err}
	}
	return kws, nil
}

// ExtractFromHTML derives candidate keywords from a page's meta keywords,
// title, h1 and h2 headings, in that order.
func ExtractFromHTML(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var out []string
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		if name, _ := s.Attr("name"); strings.EqualFold(name, "keywords") {
			out = append(out, strings.Split(s.AttrOr("content", ""), ",")...)
		}
	})
	out = append(out, splitTitle(doc.Find("title").First().Text())...)
	doc.Find("h1, h2").Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})

	kept := out[:0]
	for _, k := range out {
		n := Normalize(k)
		if n != "" && len(strings.Fields(n)) <= 6 {
			kept = append(kept, n)
		}
	}
	return Dedupe(kept), nil
}

// splitTitle drops the site name suffix from "Topic | Site" style titles.
func splitTitle(title string) []string {
	for _, sep := range []string{" | ", " - ", " – ", " :: "} {
		if before, _, ok := strings.Cut(title, sep); ok {
			return []string{before}
		}
	}
	return []string{title}
}
