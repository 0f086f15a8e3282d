package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL   = "https://api.github.com"
	defaultUserAgent = "github-api-utils"
	acceptJSON       = "application/vnd.github+json"
)

type authMode int

const (
	authNone authMode = iota
	authToken
	authClient
)

// Client is a thin GitHub REST client satisfying the dispatcher's
// collaborator contract: namespace navigation, method invocation, last-status
// retrieval, and three authentication modes. It performs no rotation or
// retry itself; that is the wrapper's job.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string

	mu           sync.Mutex
	mode         authMode
	token        string
	clientID     string
	clientSecret string
	lastStatus   int
	lastHeader   http.Header

	namespaces map[string]*Namespace
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client; timeouts live there.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithBaseURL points the client at a different API root, used by tests.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient returns a ready client with the full namespace tree registered.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.namespaces = buildTree(c)
	return c
}

// Namespace returns the named top-level API namespace.
func (c *Client) Namespace(name string) (*Namespace, bool) {
	ns, ok := c.namespaces[name]
	return ns, ok
}

// AuthenticateToken switches to bearer token authentication.
func (c *Client) AuthenticateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode, c.token = authToken, token
	c.clientID, c.clientSecret = "", ""
}

// AuthenticateClient switches to OAuth application (client id + secret)
// authentication.
func (c *Client) AuthenticateClient(id, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode, c.clientID, c.clientSecret = authClient, id, secret
	c.token = ""
}

// Deauthenticate drops all credentials; subsequent requests are anonymous.
func (c *Client) Deauthenticate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = authNone
	c.token, c.clientID, c.clientSecret = "", "", ""
}

// LastStatus returns the HTTP status code of the most recent request.
func (c *Client) LastStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

// lastLink returns the given rel from the most recent Link header.
func (c *Client) lastLink(rel string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastHeader == nil {
		return ""
	}
	return parseLinkHeader(c.lastHeader.Get("Link"))[rel]
}

// getJSON performs an authenticated GET against path and decodes the body.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.getURL(ctx, target)
}

// getURL is getJSON for a fully formed URL, used when following pagination
// links handed back by the API.
func (c *Client) getURL(ctx context.Context, target string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", acceptJSON)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	c.mu.Lock()
	switch c.mode {
	case authToken:
		req.Header.Set("Authorization", "Bearer "+c.token)
	case authClient:
		req.SetBasicAuth(c.clientID, c.clientSecret)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("github request %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response body: %w", err)
	}

	c.mu.Lock()
	c.lastStatus = resp.StatusCode
	c.lastHeader = resp.Header.Clone()
	c.mu.Unlock()

	if rle := rateLimitFromResponse(resp); rle != nil {
		log.WithFields(log.Fields{"url": target, "reset": rle.Reset}).Debug("github: quota exhausted")
		return gjson.Result{}, rle
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return gjson.Result{}, &APIError{Status: resp.StatusCode, Message: msg, URL: target}
	}
	if len(body) == 0 {
		return gjson.Result{}, nil
	}
	return gjson.ParseBytes(body), nil
}

// rateLimitFromResponse recognizes GitHub's primary rate-limit signal: a 403
// or 429 with a zeroed X-RateLimit-Remaining header.
func rateLimitFromResponse(resp *http.Response) *RateLimitError {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "0" {
		return nil
	}
	reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		reset = time.Now().Add(10 * time.Minute).Unix()
	}
	return &RateLimitError{Reset: reset}
}

// parseLinkHeader extracts rel→URL pairs from an RFC 5988 Link header.
func parseLinkHeader(header string) map[string]string {
	links := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, seg := range segments[1:] {
			seg = strings.TrimSpace(seg)
			if rel, ok := strings.CutPrefix(seg, `rel="`); ok {
				links[strings.TrimSuffix(rel, `"`)] = target
			}
		}
	}
	return links
}
