// Package store provides the public factory for caretrack's offline store
// backends while keeping their implementations internal.
package store

import (
	"fmt"

	"github.com/mesh-intelligence/caretrack/internal/badgerstore"
	"github.com/mesh-intelligence/caretrack/internal/sqlite"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// New creates an unattached store for the named backend.
//
// Example:
//
//	s, err := store.New(types.BackendSQLite)
//	err = s.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".caretrack-db",
//	})
//	defer s.Detach()
func New(backend string) (types.Store, error) {
	switch backend {
	case types.BackendSQLite:
		return sqlite.NewBackend(), nil
	case types.BackendBadger:
		return badgerstore.NewBackend(), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, backend)
	}
}

// Open creates the backend named by config and attaches it.
func Open(config types.Config) (types.Store, error) {
	s, err := New(config.Backend)
	if err != nil {
		return nil, err
	}
	if err := s.Attach(config); err != nil {
		return nil, fmt.Errorf("attaching %s store: %w", config.Backend, err)
	}
	return s, nil
}
