package scheme

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no artifact exists under a name.
var ErrNotFound = errors.New("scheme not found")

// Store persists encoded scheme artifacts by name. Saving an existing name
// overwrites it.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// Save encodes s and writes it under name, or under s.Name() when name is
// empty.
func (s *Scheme) Save(ctx context.Context, st Store, name string) error {
	if name == "" {
		name = s.Name()
	}
	data, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	if err := st.Put(ctx, name, data); err != nil {
		return fmt.Errorf("save scheme %s: %w", name, err)
	}
	return nil
}

// Load reads and decodes the scheme stored under name.
func Load(ctx context.Context, st Store, name string) (*Scheme, error) {
	data, err := st.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load scheme %s: %w", name, err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load scheme %s: %w", name, err)
	}
	return s, nil
}
