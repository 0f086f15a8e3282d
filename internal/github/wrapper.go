package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/mohatt/github-api-utils/internal/credential"
	"github.com/mohatt/github-api-utils/internal/pool"
)

const (
	// maxCallRetries bounds credential rotations within a single call.
	maxCallRetries = 5
	// maxInvokeRetries bounds 202 retries within a single invocation.
	maxInvokeRetries = 5
	// fallbackResetDelay is assumed when a rate-limit error carries no
	// reset timestamp.
	fallbackResetDelay = 600
)

// API is the HTTP-client collaborator contract the wrapper drives: namespace
// navigation, three authentication modes, and last-status retrieval.
type API interface {
	Namespace(name string) (*Namespace, bool)
	AuthenticateToken(token string)
	AuthenticateClient(id, secret string)
	Deauthenticate()
	LastStatus() int
}

// Wrapper is the scope-aware dispatcher. It routes dotted API paths onto the
// client, picks and authenticates a credential for the call's scope, rotates
// the pool on rate-limit exhaustion, and retries 202 responses, all within
// bounded retry budgets.
type Wrapper struct {
	api   API
	pool  *pool.Pool
	now   func() time.Time
	sleep func(time.Duration)

	mu        sync.Mutex
	custom    *credential.Credential
	customSet bool
	current   map[credential.Scope]*credential.Credential
}

// WrapperOption configures a Wrapper.
type WrapperOption func(*Wrapper)

// WithPool installs the credential pool the wrapper rotates through.
func WithPool(p *pool.Pool) WrapperOption {
	return func(w *Wrapper) { w.pool = p }
}

// WithToken installs a single fixed credential, bypassing the pool. An
// explicit Anonymous credential is a valid choice.
func WithToken(cred *credential.Credential) WrapperOption {
	return func(w *Wrapper) { w.custom, w.customSet = cred, true }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) WrapperOption {
	return func(w *Wrapper) { w.now = now }
}

// WithSleep overrides the sleep function, used by tests to observe waits.
func WithSleep(sleep func(time.Duration)) WrapperOption {
	return func(w *Wrapper) { w.sleep = sleep }
}

// NewWrapper returns a dispatcher over the given API client.
func NewWrapper(api API, opts ...WrapperOption) *Wrapper {
	w := &Wrapper{
		api:     api,
		now:     time.Now,
		sleep:   time.Sleep,
		current: map[credential.Scope]*credential.Credential{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// UseToken switches to custom-token mode at runtime.
func (w *Wrapper) UseToken(cred *credential.Credential) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.custom, w.customSet = cred, true
}

// Call resolves path, applies the rate-limit protocol, and invokes the
// operation. Paths look like "repo/show": the first segment selects a
// namespace, intermediate segments navigate sub-namespaces, and the last
// names the method.
func (w *Wrapper) Call(ctx context.Context, path string, args ...interface{}) (interface{}, error) {
	method, scope, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	return w.protected(ctx, scope, func(ctx context.Context) (interface{}, error) {
		return w.invoke(ctx, method, args...)
	})
}

// CallJSON is Call for operations returning a JSON document.
func (w *Wrapper) CallJSON(ctx context.Context, path string, args ...interface{}) (gjson.Result, error) {
	res, err := w.Call(ctx, path, args...)
	if err != nil {
		return gjson.Result{}, err
	}
	doc, ok := res.(gjson.Result)
	if !ok {
		return gjson.Result{}, fmt.Errorf("%w: %s returned %T, want JSON", ErrUnexpectedResponse, path, res)
	}
	return doc, nil
}

// CallPager is Call for paged collection operations.
func (w *Wrapper) CallPager(ctx context.Context, path string, args ...interface{}) (*Pager, error) {
	res, err := w.Call(ctx, path, args...)
	if err != nil {
		return nil, err
	}
	pager, ok := res.(*Pager)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T, want a pager", ErrUnexpectedResponse, path, res)
	}
	return pager, nil
}

// Fetch retrieves the pager's current page under the rate-limit protocol.
func (w *Wrapper) Fetch(ctx context.Context, p *Pager) (gjson.Result, error) {
	return w.pagerCall(ctx, func(ctx context.Context) (gjson.Result, error) { return p.Fetch(ctx) })
}

// FetchAll walks all of the pager's pages under the rate-limit protocol.
func (w *Wrapper) FetchAll(ctx context.Context, p *Pager) (gjson.Result, error) {
	return w.pagerCall(ctx, func(ctx context.Context) (gjson.Result, error) { return p.FetchAll(ctx) })
}

// Next advances the pager by one page under the rate-limit protocol.
func (w *Wrapper) Next(ctx context.Context, p *Pager) (gjson.Result, error) {
	return w.pagerCall(ctx, func(ctx context.Context) (gjson.Result, error) { return p.FetchNext(ctx) })
}

// Last jumps the pager to its final page under the rate-limit protocol.
func (w *Wrapper) Last(ctx context.Context, p *Pager) (gjson.Result, error) {
	return w.pagerCall(ctx, func(ctx context.Context) (gjson.Result, error) { return p.FetchLast(ctx) })
}

// HasNext reports whether the pager advertises a further page.
func (w *Wrapper) HasNext(p *Pager) bool { return p.HasNext() }

func (w *Wrapper) pagerCall(ctx context.Context, fetch func(context.Context) (gjson.Result, error)) (gjson.Result, error) {
	res, err := w.protected(ctx, credential.ScopeCore, func(ctx context.Context) (interface{}, error) {
		return w.invoke(ctx, func(ctx context.Context, _ ...interface{}) (interface{}, error) {
			return fetch(ctx)
		})
	})
	if err != nil {
		return gjson.Result{}, err
	}
	return res.(gjson.Result), nil
}

// resolve maps a dotted path onto the client's namespace tree.
func (w *Wrapper) resolve(path string) (Method, credential.Scope, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return nil, "", fmt.Errorf("%w: %q needs at least a namespace and a method", ErrBadPath, path)
	}
	ns, ok := w.api.Namespace(segments[0])
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown namespace %q", ErrBadPath, segments[0])
	}
	for _, seg := range segments[1 : len(segments)-1] {
		ns, ok = ns.Sub(seg)
		if !ok {
			return nil, "", fmt.Errorf("%w: unknown sub-namespace %q in %q", ErrBadPath, seg, path)
		}
	}
	method, ok := ns.Method(segments[len(segments)-1])
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown method %q in %q", ErrBadPath, segments[len(segments)-1], path)
	}
	return method, ns.Scope(), nil
}

// protected runs fn under the per-scope rate-limit state machine: select,
// wait if the scope is exhausted, authenticate, invoke, rotate on
// rate-limit, all within the bounded retry budget.
func (w *Wrapper) protected(ctx context.Context, scope credential.Scope, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	w.mu.Lock()
	custom, customSet := w.custom, w.customSet
	w.mu.Unlock()

	if customSet {
		w.authenticate(custom)
		return fn(ctx)
	}
	if w.pool == nil {
		return nil, ErrNoCredentials
	}

	for attempt := 0; attempt <= maxCallRetries; attempt++ {
		w.mu.Lock()
		cred := w.current[scope]
		w.mu.Unlock()
		if cred == nil {
			var err error
			cred, err = w.pool.GetToken(ctx, scope)
			if err != nil {
				return nil, err
			}
			w.setCurrent(scope, cred)
		}

		if wait, ok := cred.CanAccess(scope, w.now()); !ok {
			log.Warnf("github: token %s exhausted for %s, sleeping %ds", cred.ShortID(), scope, wait)
			w.sleep(time.Duration(wait) * time.Second)
			w.setCurrent(scope, nil)
			continue
		}

		w.authenticate(cred)
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		reset, retriable := rateLimitReset(err, w.now())
		if !retriable {
			return nil, err
		}
		log.WithFields(log.Fields{"token": cred.ShortID(), "scope": scope, "reset": reset}).Debug("github: rotating credential")
		next, err := w.pool.NextToken(ctx, scope, reset)
		if err != nil {
			return nil, err
		}
		w.setCurrent(scope, next)
	}
	return nil, fmt.Errorf("%w: gave up after %d rotations", ErrRetryExhausted, maxCallRetries)
}

// invoke runs the operation, retrying while the API answers 202 Accepted.
func (w *Wrapper) invoke(ctx context.Context, method Method, args ...interface{}) (interface{}, error) {
	for attempt := 0; ; attempt++ {
		res, err := method(ctx, args...)
		if err != nil {
			return nil, err
		}
		if w.api.LastStatus() == http.StatusAccepted {
			if attempt >= maxInvokeRetries {
				return nil, fmt.Errorf("%w: still 202 after %d attempts", ErrRetryExhausted, attempt+1)
			}
			log.Debug("github: got 202, result still computing, retrying in 1s")
			w.sleep(time.Second)
			continue
		}
		if err := guardResult(res); err != nil {
			return nil, err
		}
		return res, nil
	}
}

// authenticate switches the client's credentials before the call. Dispatch
// is on the credential variant; nothing is cached on the client across
// rotations.
func (w *Wrapper) authenticate(cred *credential.Credential) {
	switch cred.Kind() {
	case credential.KindPersonal:
		w.api.AuthenticateToken(cred.Token())
	case credential.KindClientSecret:
		w.api.AuthenticateClient(cred.ClientID(), cred.ClientSecret())
	default:
		w.api.Deauthenticate()
	}
}

func (w *Wrapper) setCurrent(scope credential.Scope, cred *credential.Credential) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cred == nil {
		delete(w.current, scope)
		return
	}
	w.current[scope] = cred
}

// rateLimitReset classifies err as a recoverable rate-limit signal. A typed
// RateLimitError carries its own reset; a generic error mentioning "rate
// limit exceeded" gets the fallback delay.
func rateLimitReset(err error, now time.Time) (int64, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		reset := rle.Reset
		if reset <= now.Unix() {
			reset = now.Unix() + 1
		}
		return reset, true
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit exceeded") {
		return now.Unix() + fallbackResetDelay, true
	}
	return 0, false
}

// guardResult rejects results that are neither JSON documents, collections,
// scalars, nor pagers.
func guardResult(v interface{}) error {
	switch v.(type) {
	case nil, gjson.Result, *Pager, string, bool, int, int64, float64, []interface{}, map[string]interface{}:
		return nil
	}
	return fmt.Errorf("%w: got %T", ErrUnexpectedResponse, v)
}
