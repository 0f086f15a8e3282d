package credential

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Scope identifies a GitHub rate-limit bucket. Quotas are tracked per
// credential and per scope independently.
type Scope string

const (
	// ScopeCore covers the regular REST endpoints.
	ScopeCore Scope = "core"
	// ScopeSearch covers the search endpoints, which carry a much smaller quota.
	ScopeSearch Scope = "search"
	// ScopeNone marks calls that consume no quota, e.g. rate-limit inspection.
	ScopeNone Scope = "none"
)

// Kind tags the credential variant.
type Kind string

const (
	KindAnonymous    Kind = "null"
	KindPersonal     Kind = "pat"
	KindClientSecret Kind = "client_secret"
)

// Credential is a single GitHub identity plus its per-scope reset deadlines.
// The identity fields are immutable after construction; only the reset map
// changes over the credential's lifetime.
type Credential struct {
	kind         Kind
	token        string
	clientID     string
	clientSecret string

	resets map[Scope]int64
}

// NewAnonymous returns the no-auth sentinel credential.
func NewAnonymous() *Credential {
	return &Credential{kind: KindAnonymous, resets: map[Scope]int64{}}
}

// NewPersonal returns a personal-access-token credential.
func NewPersonal(token string) (*Credential, error) {
	if token == "" {
		return nil, fmt.Errorf("personal credential: empty token")
	}
	return &Credential{kind: KindPersonal, token: token, resets: map[Scope]int64{}}, nil
}

// NewClientSecret returns an OAuth application credential.
func NewClientSecret(id, secret string) (*Credential, error) {
	if id == "" || secret == "" {
		return nil, fmt.Errorf("client-secret credential: empty client id or secret")
	}
	return &Credential{kind: KindClientSecret, clientID: id, clientSecret: secret, resets: map[Scope]int64{}}, nil
}

// Kind returns the variant tag.
func (c *Credential) Kind() Kind { return c.kind }

// Token returns the personal access token; empty for other variants.
func (c *Credential) Token() string { return c.token }

// ClientID returns the OAuth client id; empty for other variants.
func (c *Credential) ClientID() string { return c.clientID }

// ClientSecret returns the OAuth client secret; empty for other variants.
func (c *Credential) ClientSecret() string { return c.clientSecret }

// ID returns the stable identity string. Secrets only ever enter the
// identity through the hash.
func (c *Credential) ID() string {
	switch c.kind {
	case KindPersonal:
		return "pat#" + md5hex(c.token)
	case KindClientSecret:
		return "cst#" + md5hex(c.clientID+c.clientSecret)
	default:
		return "null"
	}
}

// ShortID returns the first 8 characters of the identity, used in logs.
func (c *Credential) ShortID() string {
	id := c.ID()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// IsAnonymous reports whether this is the no-auth sentinel.
func (c *Credential) IsAnonymous() bool { return c.kind == KindAnonymous }

// CanAccess reports whether the credential may be used for scope at the
// given instant. When the recorded reset lies in the future it returns the
// remaining wait in whole seconds and false.
func (c *Credential) CanAccess(scope Scope, now time.Time) (int64, bool) {
	reset, ok := c.resets[scope]
	if !ok || reset <= now.Unix() {
		return 0, true
	}
	return reset - now.Unix(), false
}

// SetReset overwrites the reset deadline for scope unconditionally.
func (c *Credential) SetReset(scope Scope, epoch int64) {
	if c.resets == nil {
		c.resets = map[Scope]int64{}
	}
	c.resets[scope] = epoch
}

// Reset returns the recorded reset epoch for scope, zero when absent.
func (c *Credential) Reset(scope Scope) int64 { return c.resets[scope] }

// Clone returns a deep copy. The pool hands out clones so callers cannot
// mutate the snapshot it read from disk.
func (c *Credential) Clone() *Credential {
	resets := make(map[Scope]int64, len(c.resets))
	for k, v := range c.resets {
		resets[k] = v
	}
	out := *c
	out.resets = resets
	return &out
}

type credentialJSON struct {
	Kind         Kind            `json:"kind"`
	Token        string          `json:"token,omitempty"`
	ClientID     string          `json:"client_id,omitempty"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Resets       map[Scope]int64 `json:"resets,omitempty"`
}

// MarshalJSON serializes the credential for the pool file.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialJSON{
		Kind:         c.kind,
		Token:        c.token,
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Resets:       c.resets,
	})
}

// UnmarshalJSON restores a credential from the pool file. Unknown variant
// tags are rejected so a corrupt pool surfaces instead of round-tripping.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw credentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case KindAnonymous:
		if raw.Token != "" || raw.ClientID != "" {
			return fmt.Errorf("anonymous credential carries secrets")
		}
	case KindPersonal:
		if raw.Token == "" {
			return fmt.Errorf("personal credential missing token")
		}
	case KindClientSecret:
		if raw.ClientID == "" || raw.ClientSecret == "" {
			return fmt.Errorf("client-secret credential missing id or secret")
		}
	default:
		return fmt.Errorf("unknown credential kind %q", raw.Kind)
	}
	c.kind = raw.Kind
	c.token = raw.Token
	c.clientID = raw.ClientID
	c.clientSecret = raw.ClientSecret
	c.resets = raw.Resets
	if c.resets == nil {
		c.resets = map[Scope]int64{}
	}
	return nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
