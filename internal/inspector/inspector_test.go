package inspector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mohatt/github-api-utils/internal/crawler"
	"github.com/mohatt/github-api-utils/internal/credential"
	"github.com/mohatt/github-api-utils/internal/github"
)

const inspectorRepoPage = `<html><body><main>
<a>1,234 commits</a>
<a>Releases 12</a>
<a>Contributors 56</a>
<div><h2>Languages</h2><ul><li>Go 90.0%</li><li>Shell 10.0%</li></ul></div>
</main></body></html>`

const inspectorCountPage = `<html><body><main><a>3 branches</a><a>9 tags</a></main></body></html>`

// testStack wires an API server, an HTML server, and the full
// wrapper+crawler+inspector pipeline around them.
func testStack(t *testing.T, now time.Time, repoJSON func(htmlBase string) string) (*Inspector, *httptest.Server) {
	t.Helper()

	htmlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/branch-and-tag-count") {
			fmt.Fprint(w, inspectorCountPage)
			return
		}
		fmt.Fprint(w, inspectorRepoPage)
	}))
	t.Cleanup(htmlSrv.Close)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/octocat/hello":
			fmt.Fprint(w, repoJSON(htmlSrv.URL))
		case "/repos/octocat/hello/stats/participation":
			fmt.Fprint(w, `{"all":[10,20,30,40],"owner":[0,0,0,0]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		}
	}))
	t.Cleanup(apiSrv.Close)

	client := github.NewClient(github.WithBaseURL(apiSrv.URL))
	wrapper := github.NewWrapper(client, github.WithToken(credential.NewAnonymous()))
	extractor := crawler.New(crawler.WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	return New(wrapper, extractor, WithClock(func() time.Time { return now })), apiSrv
}

func defaultRepoJSON(now time.Time) func(string) string {
	created := now.Add(-208 * 7 * 24 * time.Hour).Format(time.RFC3339)
	pushed := now.Format(time.RFC3339)
	return func(htmlBase string) string {
		return fmt.Sprintf(`{
			"name": "hello",
			"full_name": "octocat/hello",
			"html_url": %q,
			"forks_url": "https://api.github.com/repos/octocat/hello/forks",
			"owner": {"login": "octocat", "avatar_url": "https://avatars.example/1", "html_url": "https://github.com/octocat"},
			"stargazers_count": 5000,
			"subscribers_count": 100,
			"forks_count": 300,
			"size": 12000,
			"created_at": %q,
			"pushed_at": %q,
			"updated_at": %q,
			"license": {"key": "mit", "spdx_id": "MIT"}
		}`, htmlBase+"/octocat/hello", created, pushed, pushed)
	}
}

func TestInspect(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	insp, _ := testStack(t, now, defaultRepoJSON(now))

	res, err := insp.Inspect(context.Background(), "octocat", "hello")
	require.NoError(t, err)

	// URL keys stripped, html_url renamed, avatar kept.
	assert.True(t, res.Get("url").Exists())
	assert.False(t, res.Get("html_url").Exists())
	assert.False(t, res.Get("forks_url").Exists())
	assert.True(t, res.Get("owner.avatar_url").Exists())

	assert.Equal(t, "MIT", res.Get("license_id").String())

	assert.Equal(t, int64(1234), res.Get("commits_count").Int())
	assert.Equal(t, int64(3), res.Get("branches_count").Int())
	assert.Equal(t, int64(9), res.Get("tags_count").Int())
	assert.Equal(t, int64(12), res.Get("releases_count").Int())
	assert.Equal(t, int64(56), res.Get("contributors_count").Int())

	langs := res.Get("languages").Array()
	require.Len(t, langs, 2)
	assert.Equal(t, "Go", langs[0].Get("name").String())
	assert.Equal(t, 90.0, langs[0].Get("percent").Float())

	for _, key := range []string{"scores.p", "scores.h", "scores.a", "scores.m", "scores_avg"} {
		assert.True(t, res.Get(key).Exists(), key)
	}
	assert.NotEmpty(t, res.Get("highlight.type").String())
	assert.NotEmpty(t, res.Get("highlight.message").String())
}

func TestInspectLicenseMissing(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name    string
		license string
	}{
		{"absent", `null`},
		{"none placeholder", `{"key":"other","spdx_id":"NONE"}`},
		{"noassertion placeholder", `{"key":"other","spdx_id":"NOASSERTION"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := func(htmlBase string) string {
				return fmt.Sprintf(`{
					"name": "hello",
					"html_url": %q,
					"stargazers_count": 1,
					"created_at": %q,
					"pushed_at": %q,
					"license": %s
				}`, htmlBase+"/octocat/hello", now.Add(-100*24*time.Hour).Format(time.RFC3339), now.Format(time.RFC3339), tt.license)
			}
			insp, _ := testStack(t, now, repo)
			res, err := insp.Inspect(context.Background(), "octocat", "hello")
			require.NoError(t, err)
			assert.True(t, res.Get("license_id").Exists())
			assert.Empty(t, res.Get("license_id").String())
		})
	}
}

func TestInspectAPIFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	insp, _ := testStack(t, now, defaultRepoJSON(now))

	_, err := insp.Inspect(context.Background(), "octocat", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "missing", apiErr.Name)
}

func TestInspectCrawlerFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	// The repo JSON points at a dead HTML host.
	repo := func(string) string {
		return fmt.Sprintf(`{
			"name": "hello",
			"html_url": "http://127.0.0.1:1/octocat/hello",
			"created_at": %q,
			"pushed_at": %q
		}`, now.Add(-100*24*time.Hour).Format(time.RFC3339), now.Format(time.RFC3339))
	}
	insp, _ := testStack(t, now, repo)

	_, err := insp.Inspect(context.Background(), "octocat", "hello")
	var crawlErr *CrawlerError
	require.ErrorAs(t, err, &crawlErr)

	var fetchErr *crawler.FetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestInspectDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	insp, _ := testStack(t, now, defaultRepoJSON(now))

	first, err := insp.Inspect(context.Background(), "octocat", "hello")
	require.NoError(t, err)
	second, err := insp.Inspect(context.Background(), "octocat", "hello")
	require.NoError(t, err)
	assert.Equal(t, first.Raw, second.Raw)
}
