package pool

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohatt/github-api-utils/internal/credential"
)

func newRedisPool(t *testing.T, now time.Time) (*Pool, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client, "test:pool")
	return New(store, WithClock(func() time.Time { return now })), srv
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	p, _ := newRedisPool(t, now)

	a := mustPersonal(t, "A")
	require.NoError(t, p.SetTokens(ctx, []*credential.Credential{a, credential.NewAnonymous()}, false))

	creds, err := p.GetTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID(), "null"}, ids(creds))
}

func TestRedisStoreMissingKeyIsEmpty(t *testing.T) {
	p, _ := newRedisPool(t, time.Unix(1_700_000_000, 0))
	creds, err := p.GetTokens(context.Background())
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	p, srv := newRedisPool(t, time.Unix(1_700_000_000, 0))
	srv.Set("test:pool", `"hello"`)
	_, err := p.GetTokens(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRedisStoreRotation(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	p, _ := newRedisPool(t, now)

	a := mustPersonal(t, "A")
	b := mustPersonal(t, "B")
	a.SetReset(credential.ScopeCore, now.Unix()+300)
	require.NoError(t, p.SetTokens(ctx, []*credential.Credential{a, b}, false))

	got, err := p.GetToken(ctx, credential.ScopeCore)
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())

	got, err = p.NextToken(ctx, credential.ScopeCore, now.Unix()+600)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), got.ID())
}
