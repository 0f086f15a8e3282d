package github

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// Pager walks a paged collection endpoint by following the Link headers
// GitHub attaches to list responses. It is stateful and bound to the client
// that created it; the wrapper routes its fetches through the rate-limit
// protocol.
type Pager struct {
	client  *Client
	first   string
	current string
	next    string
	last    string
	fetched bool
}

// NewPager returns a pager positioned before the first page of path.
func (c *Client) NewPager(path string, query map[string][]string) *Pager {
	target := c.baseURL + path
	if len(query) > 0 {
		q := ""
		for key, values := range query {
			for _, v := range values {
				if q != "" {
					q += "&"
				}
				q += key + "=" + v
			}
		}
		target += "?" + q
	}
	return &Pager{client: c, first: target, current: target}
}

// Fetch retrieves the current page and records the pagination links.
func (p *Pager) Fetch(ctx context.Context) (gjson.Result, error) {
	res, err := p.client.getURL(ctx, p.current)
	if err != nil {
		return gjson.Result{}, err
	}
	p.fetched = true
	p.next = p.client.lastLink("next")
	p.last = p.client.lastLink("last")
	return res, nil
}

// HasNext reports whether the most recent fetch advertised a next page.
func (p *Pager) HasNext() bool { return p.next != "" }

// FetchNext advances to the next page and retrieves it.
func (p *Pager) FetchNext(ctx context.Context) (gjson.Result, error) {
	if !p.fetched {
		return p.Fetch(ctx)
	}
	if p.next == "" {
		return gjson.Result{}, fmt.Errorf("pager: no next page")
	}
	p.current = p.next
	return p.Fetch(ctx)
}

// FetchLast jumps to the last page and retrieves it. When the collection
// fits one page the current page is the last one.
func (p *Pager) FetchLast(ctx context.Context) (gjson.Result, error) {
	if !p.fetched {
		if _, err := p.Fetch(ctx); err != nil {
			return gjson.Result{}, err
		}
	}
	if p.last != "" {
		p.current = p.last
	}
	return p.Fetch(ctx)
}

// FetchAll walks every page from the first and concatenates the array
// elements into a single JSON array.
func (p *Pager) FetchAll(ctx context.Context) (gjson.Result, error) {
	p.current = p.first
	p.fetched = false

	raw := "["
	count := 0
	for {
		page, err := p.Fetch(ctx)
		if err != nil {
			return gjson.Result{}, err
		}
		for _, item := range page.Array() {
			if count > 0 {
				raw += ","
			}
			raw += item.Raw
			count++
		}
		if !p.HasNext() {
			break
		}
		p.current = p.next
	}
	raw += "]"
	return gjson.Parse(raw), nil
}
