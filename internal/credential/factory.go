package credential

import (
	"errors"
	"fmt"
)

// ErrBadDescriptor flags a malformed credential descriptor: empty tag,
// unknown tag, or wrong argument arity.
var ErrBadDescriptor = errors.New("bad credential descriptor")

// ErrConstruction wraps a constructor failure for an otherwise well-formed
// descriptor.
var ErrConstruction = errors.New("credential construction failed")

// Descriptor is the config-facing form of a credential: a tag plus
// positional arguments. In YAML/JSON it may appear as a bare tag string
// ("null") or as a list (["pat", "token"]).
type Descriptor struct {
	Tag  string
	Args []string
}

// UnmarshalYAML accepts both the scalar and the sequence form.
func (d *Descriptor) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var tag string
	if err := unmarshal(&tag); err == nil {
		d.Tag = tag
		d.Args = nil
		return nil
	}
	var parts []string
	if err := unmarshal(&parts); err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty descriptor list", ErrBadDescriptor)
	}
	d.Tag = parts[0]
	d.Args = parts[1:]
	return nil
}

// arities maps each recognized tag to its required argument count.
var arities = map[Kind]int{
	KindAnonymous:    0,
	KindPersonal:     1,
	KindClientSecret: 2,
}

// Supports returns the recognized descriptor tags in a stable order.
func Supports() []string {
	return []string{string(KindAnonymous), string(KindPersonal), string(KindClientSecret)}
}

// Supported reports whether tag is a recognized descriptor tag.
func Supported(tag string) bool {
	_, ok := arities[Kind(tag)]
	return ok
}

// New constructs a credential from a single tag plus positional parameters.
func New(tag string, args ...string) (*Credential, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", ErrBadDescriptor)
	}
	want, ok := arities[Kind(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tag %q", ErrBadDescriptor, tag)
	}
	if len(args) != want {
		return nil, fmt.Errorf("%w: tag %q takes %d argument(s), got %d", ErrBadDescriptor, tag, want, len(args))
	}
	var (
		cred *Credential
		err  error
	)
	switch Kind(tag) {
	case KindAnonymous:
		cred = NewAnonymous()
	case KindPersonal:
		cred, err = NewPersonal(args[0])
	case KindClientSecret:
		cred, err = NewClientSecret(args[0], args[1])
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConstruction, err)
	}
	return cred, nil
}

// NewBatch constructs credentials from a sequence of descriptors. Duplicate
// identities collapse to a single instance; the later descriptor wins while
// the position of the first occurrence is kept.
func NewBatch(descs []Descriptor) ([]*Credential, error) {
	var (
		order []string
		byID  = map[string]*Credential{}
	)
	for _, d := range descs {
		cred, err := New(d.Tag, d.Args...)
		if err != nil {
			return nil, err
		}
		id := cred.ID()
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = cred
	}
	out := make([]*Credential, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}
