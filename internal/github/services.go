package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mohatt/github-api-utils/internal/credential"
)

// Method is a single API operation. Results are JSON documents or pagers;
// the wrapper guards against anything else.
type Method func(ctx context.Context, args ...interface{}) (interface{}, error)

// Namespace is a node in the API tree: it carries the rate-limit scope its
// operations consume, nested sub-namespaces, and leaf methods.
type Namespace struct {
	name    string
	scope   credential.Scope
	subs    map[string]*Namespace
	methods map[string]Method
}

// Name returns the namespace segment name.
func (n *Namespace) Name() string { return n.name }

// Scope returns the rate-limit bucket this namespace draws from.
func (n *Namespace) Scope() credential.Scope { return n.scope }

// Sub navigates to a nested namespace.
func (n *Namespace) Sub(name string) (*Namespace, bool) {
	sub, ok := n.subs[name]
	return sub, ok
}

// Method returns the named leaf operation.
func (n *Namespace) Method(name string) (Method, bool) {
	m, ok := n.methods[name]
	return m, ok
}

// buildTree registers every supported API operation. Namespaces map to
// GitHub's rate-limit buckets: search draws from the search quota,
// rate_limit consumes none, everything else draws from core.
func buildTree(c *Client) map[string]*Namespace {
	repo := &Namespace{
		name:  "repo",
		scope: credential.ScopeCore,
		methods: map[string]Method{
			"show": func(ctx context.Context, args ...interface{}) (interface{}, error) {
				owner, name, err := ownerRepo(args)
				if err != nil {
					return nil, err
				}
				return c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, name), nil)
			},
			"participation": func(ctx context.Context, args ...interface{}) (interface{}, error) {
				owner, name, err := ownerRepo(args)
				if err != nil {
					return nil, err
				}
				return c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/stats/participation", owner, name), nil)
			},
			"languages": func(ctx context.Context, args ...interface{}) (interface{}, error) {
				owner, name, err := ownerRepo(args)
				if err != nil {
					return nil, err
				}
				return c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/languages", owner, name), nil)
			},
			"branches":     c.listMethod("branches"),
			"tags":         c.listMethod("tags"),
			"releases":     c.listMethod("releases"),
			"contributors": c.listMethod("contributors"),
			"commits":      c.listMethod("commits"),
		},
	}

	search := &Namespace{
		name:  "search",
		scope: credential.ScopeSearch,
		methods: map[string]Method{
			"repositories": func(ctx context.Context, args ...interface{}) (interface{}, error) {
				q, err := oneString(args)
				if err != nil {
					return nil, err
				}
				return c.getJSON(ctx, "/search/repositories", url.Values{"q": {q}})
			},
		},
	}

	rateLimit := &Namespace{
		name:  "rate_limit",
		scope: credential.ScopeNone,
		methods: map[string]Method{
			"show": func(ctx context.Context, _ ...interface{}) (interface{}, error) {
				return c.getJSON(ctx, "/rate_limit", nil)
			},
		},
	}

	user := &Namespace{
		name:  "user",
		scope: credential.ScopeCore,
		methods: map[string]Method{
			"show": func(ctx context.Context, args ...interface{}) (interface{}, error) {
				login, err := oneString(args)
				if err != nil {
					return nil, err
				}
				return c.getJSON(ctx, "/users/"+login, nil)
			},
			"repos": func(ctx context.Context, args ...interface{}) (interface{}, error) {
				login, err := oneString(args)
				if err != nil {
					return nil, err
				}
				return c.getJSON(ctx, "/users/"+login+"/repos", nil)
			},
		},
	}

	return map[string]*Namespace{
		repo.name:      repo,
		search.name:    search,
		rateLimit.name: rateLimit,
		user.name:      user,
	}
}

// listMethod builds a paged collection operation under /repos/{owner}/{repo}.
// An optional third integer argument sets the page size; the result is a
// Pager positioned before the first page.
func (c *Client) listMethod(collection string) Method {
	return func(_ context.Context, args ...interface{}) (interface{}, error) {
		if len(args) < 2 || len(args) > 3 {
			return nil, fmt.Errorf("%s: want owner, repository name and optional page size, got %d argument(s)", collection, len(args))
		}
		owner, name, err := ownerRepo(args[:2])
		if err != nil {
			return nil, err
		}
		perPage := 0
		if len(args) > 2 {
			n, ok := toInt(args[2])
			if !ok {
				return nil, fmt.Errorf("%s: per-page argument must be an integer", collection)
			}
			perPage = n
		}
		path := fmt.Sprintf("/repos/%s/%s/%s", owner, name, collection)
		query := url.Values{}
		if perPage > 0 {
			query.Set("per_page", strconv.Itoa(perPage))
		}
		return c.NewPager(path, query), nil
	}
}

func ownerRepo(args []interface{}) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("want owner and repository name, got %d argument(s)", len(args))
	}
	owner, ok1 := args[0].(string)
	name, ok2 := args[1].(string)
	if !ok1 || !ok2 || owner == "" || name == "" {
		return "", "", fmt.Errorf("owner and repository name must be non-empty strings")
	}
	return owner, name, nil
}

func oneString(args []interface{}) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("want exactly one string argument, got %d", len(args))
	}
	s, ok := args[0].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument must be a non-empty string")
	}
	return s, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
