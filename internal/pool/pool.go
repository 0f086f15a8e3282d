package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mohatt/github-api-utils/internal/credential"
)

var (
	// ErrEmpty is returned by GetToken when the pool holds no credentials.
	ErrEmpty = errors.New("empty pool")
	// ErrBadReset is returned by NextToken for a reset that is not in the future.
	ErrBadReset = errors.New("bad reset timestamp")
	// ErrNoCurrent is returned by NextToken without a prior GetToken for the scope.
	ErrNoCurrent = errors.New("no current token for scope")
)

// Pool is the scope-aware credential pool. The backing store is
// authoritative: every operation reads it fresh, and the only in-memory
// state is the per-scope "current" choice made by the last GetToken.
type Pool struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	current map[credential.Scope]*credential.Credential
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the time source, used by tests to freeze time.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New returns a pool over the given store.
func New(store Store, opts ...Option) *Pool {
	p := &Pool{
		store:   store,
		now:     time.Now,
		current: map[credential.Scope]*credential.Credential{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFile returns a pool backed by the JSON file at path.
func NewFile(path string, opts ...Option) *Pool {
	return New(NewFileStore(path), opts...)
}

// SetTokens writes creds to the pool. With purge the store contents are
// replaced by exactly creds; otherwise creds are merged in without
// overwriting entries that already exist.
func (p *Pool) SetTokens(ctx context.Context, creds []*credential.Credential, purge bool) error {
	for i, cred := range creds {
		if cred == nil {
			return fmt.Errorf("set tokens: entry %d is not a credential", i)
		}
	}
	return p.store.Update(ctx, func(current []*credential.Credential) ([]*credential.Credential, error) {
		if purge {
			return mergeCreds(nil, creds, true), nil
		}
		return mergeCreds(current, creds, false), nil
	})
}

// GetTokens returns the current snapshot in iteration order: insertion
// order with any Anonymous credential pushed to the end.
func (p *Pool) GetTokens(ctx context.Context) ([]*credential.Credential, error) {
	creds, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*credential.Credential, len(creds))
	for i, cred := range creds {
		out[i] = cred.Clone()
	}
	return out, nil
}

// GetToken picks the best credential for scope: the first one whose quota is
// open, or failing that the one with the shortest remaining wait. The choice
// is remembered as the scope's current token.
func (p *Pool) GetToken(ctx context.Context, scope credential.Scope) (*credential.Credential, error) {
	creds, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrEmpty
	}

	now := p.now()
	var (
		best     *credential.Credential
		bestWait int64 = -1
	)
	for _, cred := range creds {
		wait, ok := cred.CanAccess(scope, now)
		if ok {
			best, bestWait = cred, -1
			break
		}
		if bestWait < 0 || wait < bestWait {
			best, bestWait = cred, wait
		}
	}
	if bestWait >= 0 && best != nil {
		log.Debugf("pool: all tokens exhausted for %s, best is %s (wait %ds)", scope, best.ShortID(), bestWait)
	}

	chosen := best.Clone()
	p.mu.Lock()
	p.current[scope] = chosen
	p.mu.Unlock()
	return chosen.Clone(), nil
}

// NextToken stamps the current token for scope with the given reset, writes
// it back, and selects again. It requires a future reset and a prior
// GetToken for the scope.
func (p *Pool) NextToken(ctx context.Context, scope credential.Scope, reset int64) (*credential.Credential, error) {
	if reset <= p.now().Unix() {
		return nil, fmt.Errorf("%w: %d is not in the future", ErrBadReset, reset)
	}
	p.mu.Lock()
	cred := p.current[scope]
	p.mu.Unlock()
	if cred == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCurrent, scope)
	}

	cred.SetReset(scope, reset)
	log.Warnf("pool: token %s exhausted for %s until %d, rotating", cred.ShortID(), scope, reset)

	err := p.store.Update(ctx, func(current []*credential.Credential) ([]*credential.Credential, error) {
		return mergeCreds(current, []*credential.Credential{cred}, true), nil
	})
	if err != nil {
		return nil, err
	}
	return p.GetToken(ctx, scope)
}

// snapshot loads the store and applies the Anonymous pushback invariant.
func (p *Pool) snapshot(ctx context.Context) ([]*credential.Credential, error) {
	creds, err := p.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return pushback(creds), nil
}

// pushback moves any Anonymous credential to the end, keeping the relative
// order of the rest.
func pushback(creds []*credential.Credential) []*credential.Credential {
	out := make([]*credential.Credential, 0, len(creds))
	var anon []*credential.Credential
	for _, cred := range creds {
		if cred.IsAnonymous() {
			anon = append(anon, cred)
			continue
		}
		out = append(out, cred)
	}
	return append(out, anon...)
}

// mergeCreds folds incoming into current keyed by identity. New identities
// append in order; existing ones are replaced only when overwrite is set.
func mergeCreds(current, incoming []*credential.Credential, overwrite bool) []*credential.Credential {
	index := make(map[string]int, len(current))
	out := make([]*credential.Credential, 0, len(current)+len(incoming))
	for _, cred := range current {
		index[cred.ID()] = len(out)
		out = append(out, cred)
	}
	for _, cred := range incoming {
		id := cred.ID()
		if at, ok := index[id]; ok {
			if overwrite {
				out[at] = cred
			}
			continue
		}
		index[id] = len(out)
		out = append(out, cred)
	}
	return out
}
