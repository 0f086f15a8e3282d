package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohatt/github-api-utils/internal/credential"
)

func mustToken(t *testing.T) *credential.Credential {
	t.Helper()
	cred, err := credential.NewPersonal("test-token")
	require.NoError(t, err)
	return cred
}

func TestClientAuthModes(t *testing.T) {
	var lastAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	ctx := context.Background()

	c.AuthenticateToken("tok")
	_, err := c.getJSON(ctx, "/rate_limit", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", lastAuth)

	c.AuthenticateClient("id", "sec")
	_, err = c.getJSON(ctx, "/rate_limit", nil)
	require.NoError(t, err)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("id:sec")), lastAuth)

	c.Deauthenticate()
	_, err = c.getJSON(ctx, "/rate_limit", nil)
	require.NoError(t, err)
	assert.Empty(t, lastAuth)
}

func TestClientRateLimitDetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1700000600")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.getJSON(context.Background(), "/repos/a/b", nil)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, int64(1_700_000_600), rle.Reset)
}

func TestClientPlainForbiddenIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"Must have admin rights"}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.getJSON(context.Background(), "/repos/a/b", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Must have admin rights", apiErr.Message)
}

func TestClientLastStatus(t *testing.T) {
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	res, err := c.getJSON(context.Background(), "/repos/a/b/stats/participation", nil)
	require.NoError(t, err)
	assert.False(t, res.Exists())
	assert.Equal(t, http.StatusAccepted, c.LastStatus())

	status = http.StatusOK
	_, err = c.getJSON(context.Background(), "/repos/a/b", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, c.LastStatus())
}

func TestClientNamespaces(t *testing.T) {
	c := NewClient()
	tests := []struct {
		namespace string
		scope     string
	}{
		{"repo", "core"},
		{"search", "search"},
		{"rate_limit", "none"},
		{"user", "core"},
	}
	for _, tt := range tests {
		ns, ok := c.Namespace(tt.namespace)
		require.True(t, ok, tt.namespace)
		assert.Equal(t, tt.scope, string(ns.Scope()))
	}
	_, ok := c.Namespace("gists")
	assert.False(t, ok)
}

func TestClientEndToEndThroughWrapper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/octocat/hello":
			fmt.Fprint(w, `{"full_name":"octocat/hello","stargazers_count":7}`)
		case "/repos/octocat/hello/stats/participation":
			fmt.Fprint(w, `{"all":[1,2,3]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		}
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	w := NewWrapper(c, WithToken(mustToken(t)))

	doc, err := w.CallJSON(context.Background(), "repo/show", "octocat", "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.Get("stargazers_count").Int())

	part, err := w.CallJSON(context.Background(), "repo/participation", "octocat", "hello")
	require.NoError(t, err)
	assert.Len(t, part.Get("all").Array(), 3)

	_, err = w.CallJSON(context.Background(), "repo/show", "octocat", "missing")
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestParseLinkHeader(t *testing.T) {
	header := `<https://api.github.com/repos/a/b/tags?page=2>; rel="next", <https://api.github.com/repos/a/b/tags?page=9>; rel="last"`
	links := parseLinkHeader(header)
	assert.Equal(t, "https://api.github.com/repos/a/b/tags?page=2", links["next"])
	assert.Equal(t, "https://api.github.com/repos/a/b/tags?page=9", links["last"])
	assert.Empty(t, parseLinkHeader(""))
}
