package storage

import (
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// NormalizeKind maps a user supplied backend name onto a known kind. An
// empty name selects the build's default backend.
func NormalizeKind(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "":
		return DefaultStoreKind(), nil
	case KindMemory, "mem":
		return KindMemory, nil
	case KindSQLite, "sqlite3", "db":
		return KindSQLite, nil
	default:
		return "", fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// NewStore opens a backend for cohort spikes, weights and run records.
// sqlitePath is ignored by the memory backend.
func NewStore(kind, sqlitePath string) (Store, error) {
	normalized, err := NormalizeKind(kind)
	if err != nil {
		return nil, err
	}
	if normalized == KindSQLite {
		return newSQLiteStore(sqlitePath)
	}
	return NewMemoryStore(), nil
}

// CloseIfSupported releases backends that hold a connection.
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
