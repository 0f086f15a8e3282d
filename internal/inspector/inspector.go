package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mohatt/github-api-utils/internal/crawler"
	"github.com/mohatt/github-api-utils/internal/github"
	"github.com/mohatt/github-api-utils/internal/pham"
)

// APIError wraps a failure on the GitHub API side of an inspection.
type APIError struct {
	Owner string
	Name  string
	Err   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inspect %s/%s: api: %v", e.Owner, e.Name, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// CrawlerError wraps a failure on the HTML or scoring side of an inspection.
type CrawlerError struct {
	Owner string
	Name  string
	Err   error
}

func (e *CrawlerError) Error() string {
	return fmt.Sprintf("inspect %s/%s: crawler: %v", e.Owner, e.Name, e.Err)
}

func (e *CrawlerError) Unwrap() error { return e.Err }

// Inspector drives the dispatcher, the HTML extractor and the scoring
// engine to produce the merged inspection result for one repository.
type Inspector struct {
	api     *github.Wrapper
	crawler *crawler.Extractor
	now     func() time.Time
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(i *Inspector) { i.now = now }
}

// New returns an inspector over the given collaborators.
func New(api *github.Wrapper, extractor *crawler.Extractor, opts ...Option) *Inspector {
	i := &Inspector{api: api, crawler: extractor, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect fetches the repository's API metadata and participation series,
// scrapes its HTML counters, scores the merged view, and returns the
// combined document.
func (i *Inspector) Inspect(ctx context.Context, owner, name string) (gjson.Result, error) {
	repoDoc, err := i.api.CallJSON(ctx, "repo/show", owner, name)
	if err != nil {
		return gjson.Result{}, &APIError{Owner: owner, Name: name, Err: err}
	}
	participation, err := i.api.CallJSON(ctx, "repo/participation", owner, name)
	if err != nil {
		return gjson.Result{}, &APIError{Owner: owner, Name: name, Err: err}
	}

	htmlURL := repoDoc.Get("html_url").String()
	stats, err := i.crawler.Stats(ctx, htmlURL)
	if err != nil {
		return gjson.Result{}, &CrawlerError{Owner: owner, Name: name, Err: err}
	}

	scored, err := pham.Compute(scoringInput(repoDoc, participation, stats), i.now())
	if err != nil {
		return gjson.Result{}, &CrawlerError{Owner: owner, Name: name, Err: err}
	}

	log.WithFields(log.Fields{
		"repo":   owner + "/" + name,
		"scores": scored.Scores,
	}).Debug("inspector: scored repository")

	return mergeResult(repoDoc, stats, scored)
}

// scoringInput builds the engine input from the repo document, the weekly
// participation series and the scraped counters.
func scoringInput(repoDoc, participation gjson.Result, stats *crawler.Stats) pham.Input {
	var weekly []int
	for _, v := range participation.Get("all").Array() {
		weekly = append(weekly, int(v.Int()))
	}
	return pham.Input{
		Stargazers:    int(repoDoc.Get("stargazers_count").Int()),
		Subscribers:   int(repoDoc.Get("subscribers_count").Int()),
		Forks:         int(repoDoc.Get("forks_count").Int()),
		SizeKB:        int(repoDoc.Get("size").Int()),
		CreatedAt:     parseTime(repoDoc.Get("created_at")),
		PushedAt:      parseTime(repoDoc.Get("pushed_at")),
		UpdatedAt:     parseTime(repoDoc.Get("updated_at")),
		Participation: weekly,
		Commits:       stats.Commits,
		Releases:      stats.Releases,
		Contributors:  stats.Contributors,
	}
}

// parseTime reads an RFC 3339 timestamp, returning the zero time for
// missing or unparseable values so the engine's fallbacks apply.
func parseTime(v gjson.Result) time.Time {
	if !v.Exists() || v.Type == gjson.Null {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v.String())
	if err != nil {
		return time.Time{}
	}
	return t
}

// mergeResult assembles the final document: the stripped repo JSON plus the
// license id, the scraped counters, the language breakdown and the scores.
func mergeResult(repoDoc gjson.Result, stats *crawler.Stats, scored *pham.Result) (gjson.Result, error) {
	out := Strip(repoDoc).Raw

	var err error
	set := func(key string, value interface{}) {
		if err != nil {
			return
		}
		out, err = sjson.Set(out, key, value)
	}
	setRaw := func(key string, value interface{}) {
		if err != nil {
			return
		}
		var raw []byte
		raw, err = json.Marshal(value)
		if err != nil {
			return
		}
		out, err = sjson.SetRaw(out, key, string(raw))
	}

	set("license_id", licenseID(repoDoc))
	set("commits_count", stats.Commits)
	set("branches_count", stats.Branches)
	set("tags_count", stats.Tags)
	set("releases_count", stats.Releases)
	set("contributors_count", stats.Contributors)
	langs := stats.Languages
	if langs == nil {
		langs = []crawler.Language{}
	}
	setRaw("languages", langs)
	setRaw("scores", scored.Scores)
	set("scores_avg", scored.Avg)
	setRaw("highlight", scored.Highlight)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("merge inspection result: %w", err)
	}
	return gjson.Parse(out), nil
}

// licenseID extracts the SPDX id, dropping the placeholders GitHub uses for
// missing or unasserted licenses.
func licenseID(repoDoc gjson.Result) string {
	id := repoDoc.Get("license.spdx_id").String()
	switch strings.ToLower(id) {
	case "", "none", "noassertion":
		return ""
	}
	return id
}
