package credential

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	pat, err := NewPersonal("secret-token")
	require.NoError(t, err)
	cst, err := NewClientSecret("id", "secret")
	require.NoError(t, err)

	tests := []struct {
		name  string
		cred  *Credential
		id    string
		short string
	}{
		{"anonymous", NewAnonymous(), "null", "null"},
		{"personal", pat, "pat#" + md5hex("secret-token"), ("pat#" + md5hex("secret-token"))[:8]},
		{"client secret", cst, "cst#" + md5hex("idsecret"), ("cst#" + md5hex("idsecret"))[:8]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.id, tt.cred.ID())
			assert.Equal(t, tt.short, tt.cred.ShortID())
		})
	}
}

func TestIdentityStable(t *testing.T) {
	a, err := NewPersonal("tok")
	require.NoError(t, err)
	b, err := NewPersonal("tok")
	require.NoError(t, err)
	assert.Equal(t, a.ID(), b.ID())

	c, err := NewPersonal("other")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestIdentityHidesSecret(t *testing.T) {
	cred, err := NewPersonal("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, cred.ID(), "hunter2")
}

func TestCanAccess(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	cred, err := NewPersonal("tok")
	require.NoError(t, err)

	wait, ok := cred.CanAccess(ScopeCore, now)
	assert.True(t, ok)
	assert.Zero(t, wait)

	cred.SetReset(ScopeCore, now.Unix()+300)
	wait, ok = cred.CanAccess(ScopeCore, now)
	assert.False(t, ok)
	assert.Equal(t, int64(300), wait)

	// Other scopes are unaffected.
	_, ok = cred.CanAccess(ScopeSearch, now)
	assert.True(t, ok)

	// A reset in the past allows access again.
	cred.SetReset(ScopeCore, now.Unix()-1)
	_, ok = cred.CanAccess(ScopeCore, now)
	assert.True(t, ok)

	// An exactly-now reset counts as expired.
	cred.SetReset(ScopeCore, now.Unix())
	_, ok = cred.CanAccess(ScopeCore, now)
	assert.True(t, ok)
}

func TestSetResetOverwrites(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cred := NewAnonymous()
	cred.SetReset(ScopeSearch, now.Unix()+100)
	cred.SetReset(ScopeSearch, now.Unix()+50)
	wait, ok := cred.CanAccess(ScopeSearch, now)
	assert.False(t, ok)
	assert.Equal(t, int64(50), wait)
}

func TestJSONRoundTrip(t *testing.T) {
	pat, err := NewPersonal("tok")
	require.NoError(t, err)
	pat.SetReset(ScopeCore, 1_700_000_300)
	cst, err := NewClientSecret("id", "sec")
	require.NoError(t, err)

	for _, cred := range []*Credential{NewAnonymous(), pat, cst} {
		data, err := json.Marshal(cred)
		require.NoError(t, err)

		var back Credential
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, cred.ID(), back.ID())
		assert.Equal(t, cred.Kind(), back.Kind())
		assert.Equal(t, cred.Reset(ScopeCore), back.Reset(ScopeCore))
	}
}

func TestJSONRejectsUnknownKind(t *testing.T) {
	var cred Credential
	err := json.Unmarshal([]byte(`{"kind":"ssh_key","token":"x"}`), &cred)
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	cred, err := NewPersonal("tok")
	require.NoError(t, err)
	cred.SetReset(ScopeCore, 100)

	clone := cred.Clone()
	clone.SetReset(ScopeCore, 200)
	assert.Equal(t, int64(100), cred.Reset(ScopeCore))
	assert.Equal(t, int64(200), clone.Reset(ScopeCore))
}
