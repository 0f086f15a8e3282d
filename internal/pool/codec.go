package pool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mohatt/github-api-utils/internal/credential"
)

// The on-disk format is a single JSON object keyed by credential identity.
// gjson iterates object members in document order and sjson appends new
// members at the end, so insertion order survives a round trip without an
// auxiliary index.

func decode(data []byte) ([]*credential.Credential, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrCorrupt)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not a mapping", ErrCorrupt)
	}
	var (
		creds  []*credential.Credential
		badEnt error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			badEnt = fmt.Errorf("%w: entry %q is not a credential", ErrCorrupt, key.String())
			return false
		}
		var cred credential.Credential
		if err := json.Unmarshal([]byte(value.Raw), &cred); err != nil {
			badEnt = fmt.Errorf("%w: entry %q: %v", ErrCorrupt, key.String(), err)
			return false
		}
		if cred.ID() != key.String() {
			badEnt = fmt.Errorf("%w: entry %q does not match its identity %q", ErrCorrupt, key.String(), cred.ID())
			return false
		}
		creds = append(creds, &cred)
		return true
	})
	if badEnt != nil {
		return nil, badEnt
	}
	return creds, nil
}

func encode(creds []*credential.Credential) ([]byte, error) {
	out := []byte("{}")
	for _, cred := range creds {
		raw, err := json.Marshal(cred)
		if err != nil {
			return nil, fmt.Errorf("marshal credential %s: %w", cred.ShortID(), err)
		}
		out, err = sjson.SetRawBytes(out, escapeKey(cred.ID()), raw)
		if err != nil {
			return nil, fmt.Errorf("serialize pool entry %s: %w", cred.ShortID(), err)
		}
	}
	return out, nil
}

// escapeKey protects sjson path metacharacters; identities contain '#'.
func escapeKey(key string) string {
	r := strings.NewReplacer("\\", "\\\\", ".", "\\.", "#", "\\#", "*", "\\*", "?", "\\?", "|", "\\|", "@", "\\@")
	return r.Replace(key)
}
