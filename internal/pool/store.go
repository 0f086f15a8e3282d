package pool

import (
	"context"
	"errors"

	"github.com/mohatt/github-api-utils/internal/credential"
)

// ErrCorrupt flags pool contents that cannot be decoded: invalid syntax, a
// non-mapping top level, or an entry that is not a credential.
var ErrCorrupt = errors.New("corrupt pool")

// Store is the durable backend holding the serialized identity→credential
// mapping. Load returns a point-in-time snapshot; Update runs fn on the
// current contents and replaces them with its result, atomically with
// respect to concurrent readers and writers of the same backend.
type Store interface {
	Load(ctx context.Context) ([]*credential.Credential, error)
	Update(ctx context.Context, fn func(current []*credential.Credential) ([]*credential.Credential, error)) error
}
