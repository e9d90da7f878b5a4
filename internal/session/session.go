// Package session holds the ephemeral tier-3 override store.
//
// Session overrides live only in process memory (an in-memory Badger
// instance) and expire after a TTL or on explicit session end. Callers must
// never assume durability across process restarts, and a missing session is
// "no session overrides", never an error.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mindlens/mindlens/internal/lens"
)

// DefaultTTL is how long a session override survives without renewal.
const DefaultTTL = 2 * time.Hour

// Store is the in-memory session override store.
//
// Keys are session/<session_id>/<node_id>; every Set refreshes the entry
// TTL. Sessions are fully isolated from each other by key prefix - no
// cross-session visibility.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates an in-memory session store.
func Open(ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	opts := badger.DefaultOptions("").WithInMemory(true)
	// Badger's internal logging is noise at this layer; slog carries the
	// store's own events.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	return &Store{db: db, ttl: ttl}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func sessionPrefix(sessionID string) []byte {
	return []byte("session/" + sessionID + "/")
}

func overrideKey(sessionID, nodeID string) []byte {
	return append(sessionPrefix(sessionID), nodeID...)
}

// Set records a session override for (session, node). The entry expires
// after the store TTL unless refreshed by another Set.
func (s *Store) Set(sessionID, nodeID string, state lens.NodeState) error {
	if sessionID == "" || nodeID == "" {
		return lens.NewInvalidArgument("session id and node id are required")
	}
	if !state.Valid() {
		return lens.NewInvalidArgument(fmt.Sprintf("malformed node state %q", state))
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(overrideKey(sessionID, nodeID), []byte(state)).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("set session override: %w", err)
	}

	slog.Debug("session override set",
		"session", sessionID,
		"node", nodeID,
		"state", string(state),
	)
	return nil
}

// GetAll returns every live override for a session, keyed by node id.
// An unknown or expired session yields an empty map.
func (s *Store) GetAll(sessionID string) (map[string]lens.NodeState, error) {
	overrides := make(map[string]lens.NodeState)
	if sessionID == "" {
		return overrides, nil
	}

	prefix := sessionPrefix(sessionID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			nodeID := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				overrides[nodeID] = lens.NodeState(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session overrides: %w", err)
	}

	return overrides, nil
}

// Get returns the override state for (session, node) and whether one exists.
func (s *Store) Get(sessionID, nodeID string) (lens.NodeState, bool, error) {
	var state lens.NodeState
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(overrideKey(sessionID, nodeID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			state = lens.NodeState(val)
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("get session override: %w", err)
	}

	return state, found, nil
}

// Clear removes every override for a session (explicit session end).
func (s *Store) Clear(sessionID string) error {
	if sessionID == "" {
		return nil
	}

	prefix := sessionPrefix(sessionID)
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		// Delete after iteration - mutating under an open iterator is
		// undefined in Badger.
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	slog.Debug("session cleared", "session", sessionID)
	return nil
}
