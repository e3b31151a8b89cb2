package storage

import (
	"errors"
	"fmt"
)

// Store backends accepted by NewStore.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedStore = errors.New("unsupported store backend")

// NewStore builds a backend by kind. An empty kind is the in-memory store.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if sqlitePath == "" {
			return nil, fmt.Errorf("%s backend requires a database path", KindSQLite)
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStore, kind)
	}
}

// CloseIfSupported releases backends that hold resources. The memory store has
// nothing to release.
func CloseIfSupported(store Store) error {
	if store == nil {
		return nil
	}
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
