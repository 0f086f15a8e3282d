package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrIncomplete is returned when the repo pages yielded fewer counters than
// a healthy scrape produces, which usually means GitHub changed its markup.
// The failure is surfaced precisely instead of silently falling back.
var ErrIncomplete = errors.New("html extraction incomplete")

// FetchError is a network-level failure for one of the HTML pages.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("crawler: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Language is one entry of the repo's language breakdown.
type Language struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// Stats holds the counters scraped from the repo's HTML pages. They stand
// in for several paged API calls, saving quota.
type Stats struct {
	Commits      int
	Branches     int
	Tags         int
	Releases     int
	Contributors int
	Languages    []Language
}

// Extractor scrapes repository counters from GitHub's HTML pages.
type Extractor struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the HTTP client used for page fetches.
func WithHTTPClient(h *http.Client) Option {
	return func(e *Extractor) { e.http = h }
}

// WithLimiter overrides the politeness limiter applied before each fetch.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Extractor) { e.limiter = l }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(e *Extractor) { e.userAgent = ua }
}

// New returns an extractor with a one-request-per-second default limiter.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(1), 2),
		userAgent: "github-api-utils",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var (
	commitsRe      = regexp.MustCompile(`(?i)([\d,]+)\s+commits?`)
	releasesRe     = regexp.MustCompile(`(?i)releases\s+([\d,]+)`)
	contributorsRe = regexp.MustCompile(`(?i)contributors\s+([\d,]+)`)
	branchesRe     = regexp.MustCompile(`(?i)([\d,]+)\s+branch(?:es)?`)
	tagsRe         = regexp.MustCompile(`(?i)([\d,]+)\s+tags?`)
	languageRe     = regexp.MustCompile(`([\p{L}+#\-\s]+)\s+([\d.]+)%`)
	nonDigitsRe    = regexp.MustCompile(`[^\d]`)
	spacesRe       = regexp.MustCompile(`\s+`)
)

// Stats fetches the repo page and its branch-and-tag-count companion and
// extracts the counters and language breakdown.
func (e *Extractor) Stats(ctx context.Context, htmlURL string) (*Stats, error) {
	repoDoc, err := e.fetch(ctx, htmlURL)
	if err != nil {
		return nil, err
	}
	countDoc, err := e.fetch(ctx, strings.TrimRight(htmlURL, "/")+"/branch-and-tag-count")
	if err != nil {
		return nil, err
	}

	found := map[string]int{}

	// Counters live in the link text of the repo page's main container.
	scanLinks(repoDoc, func(text string) {
		matchCounter(found, "commits", commitsRe, text)
		matchCounter(found, "releases", releasesRe, text)
		matchCounter(found, "contributors", contributorsRe, text)
	})

	// The companion page is tiny; scan its whole text.
	countText := normalizeSpace(countDoc.Text())
	matchCounter(found, "branches", branchesRe, countText)
	matchCounter(found, "tags", tagsRe, countText)

	// Releases and contributors legitimately disappear from the page when
	// zero; the other three counters must be present.
	for _, optional := range []string{"releases", "contributors"} {
		if _, ok := found[optional]; !ok {
			found[optional] = 0
		}
	}
	if len(found) < 5 {
		missing := []string{}
		for _, key := range []string{"commits", "branches", "tags"} {
			if _, ok := found[key]; !ok {
				missing = append(missing, key)
			}
		}
		return nil, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	stats := &Stats{
		Commits:      found["commits"],
		Branches:     found["branches"],
		Tags:         found["tags"],
		Releases:     found["releases"],
		Contributors: found["contributors"],
		Languages:    extractLanguages(repoDoc),
	}
	log.WithFields(log.Fields{
		"url":     htmlURL,
		"commits": stats.Commits,
		"langs":   len(stats.Languages),
	}).Debug("crawler: extracted repo stats")
	return stats, nil
}

func (e *Extractor) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	return doc, nil
}

// scanLinks visits the text of every anchor inside the page's main
// container, falling back to the whole document when no main element exists.
func scanLinks(doc *goquery.Document, visit func(text string)) {
	container := doc.Find("main")
	if container.Length() == 0 {
		container = doc.Selection
	}
	container.Find("a").Each(func(_ int, sel *goquery.Selection) {
		visit(normalizeSpace(sel.Text()))
	})
}

// matchCounter records the first match for key, keeping earlier matches.
func matchCounter(found map[string]int, key string, re *regexp.Regexp, text string) {
	if _, ok := found[key]; ok {
		return
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return
	}
	found[key] = toCount(m[1])
}

// extractLanguages pulls the breakdown from the section headed "Languages".
func extractLanguages(doc *goquery.Document) []Language {
	var langs []Language
	doc.Find("h2").Each(func(_ int, heading *goquery.Selection) {
		if strings.TrimSpace(heading.Text()) != "Languages" {
			return
		}
		heading.Parent().Find("li").Each(func(_ int, item *goquery.Selection) {
			m := languageRe.FindStringSubmatch(normalizeSpace(item.Text()))
			if m == nil {
				return
			}
			percent, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				return
			}
			langs = append(langs, Language{Name: strings.TrimSpace(m[1]), Percent: percent})
		})
	})
	return langs
}

func toCount(raw string) int {
	n, _ := strconv.Atoi(nonDigitsRe.ReplaceAllString(raw, ""))
	return n
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}
