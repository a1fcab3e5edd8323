package storage

import "fmt"

// NewStore opens the run result store named by kind. An empty kind selects
// the in-process memory store; "sqlite" needs a binary built with the sqlite
// tag.
func NewStore(kind, dbPath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(dbPath)
	default:
		return nil, fmt.Errorf("unknown run store %q (want memory or sqlite)", kind)
	}
}

// CloseIfSupported releases stores that hold a database handle.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
