// Package state is the persistent identity store: the mapping from AutoKuma
// IDs to server-side ids, plus the missing-since markers that implement the
// deletion grace period. It is backed by an embedded badger database under
// the configured data directory; every write is durable on its own.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/entity"
)

const (
	idPrefix      = "id/"
	missingPrefix = "missing/"
	versionKey    = "version"

	authTokenFile = "auth_token"
)

// Store is the identity store. A single Store owns the database directory;
// the reconciler is the only writer.
type Store struct {
	db      *badger.DB
	dataDir string
	logger  *zap.Logger
}

// Open opens (or creates) the store at <dataDir>/identity.
func Open(dataDir string, logger *zap.Logger) (*Store, error) {
	path := filepath.Join(dataDir, "identity")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating identity store directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening identity store: %w", err)
	}

	logger.Info("identity store opened", zap.String("path", path))
	return &Store{db: db, dataDir: dataDir, logger: logger}, nil
}

// OpenInMemory opens an ephemeral store, for tests.
func OpenInMemory(logger *zap.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func idKey(kind entity.Kind, autokumaID string) []byte {
	return []byte(idPrefix + string(kind) + "/" + autokumaID)
}

func missingKey(kind entity.Kind, autokumaID string) []byte {
	return []byte(missingPrefix + string(kind) + "/" + autokumaID)
}

// Get returns the server id mapped to the given AutoKuma ID. Server ids are
// stored in their string form: decimal for numeric kinds, the slug for
// status pages.
func (s *Store) Get(kind entity.Kind, autokumaID string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(kind, autokumaID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("identity store get: %w", err)
	}
	return value, true, nil
}

// Put records a mapping.
func (s *Store) Put(kind entity.Kind, autokumaID, serverID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(idKey(kind, autokumaID), []byte(serverID))
	})
	if err != nil {
		return fmt.Errorf("identity store put: %w", err)
	}
	return nil
}

// Delete removes a mapping and its missing marker.
func (s *Store) Delete(kind entity.Kind, autokumaID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(idKey(kind, autokumaID)); err != nil {
			return err
		}
		return txn.Delete(missingKey(kind, autokumaID))
	})
	if err != nil {
		return fmt.Errorf("identity store delete: %w", err)
	}
	return nil
}

// List returns every mapping of a kind, keyed by AutoKuma ID.
func (s *Store) List(kind entity.Kind) (map[string]string, error) {
	out := make(map[string]string)
	prefix := []byte(idPrefix + string(kind) + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			autokumaID := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				out[autokumaID] = string(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("identity store list: %w", err)
	}
	return out, nil
}

// Clean removes mappings whose server id is no longer present in live. The
// server deleted those entities out from under us; keeping the mapping would
// block re-creation.
func (s *Store) Clean(kind entity.Kind, live map[string]struct{}) error {
	mappings, err := s.List(kind)
	if err != nil {
		return err
	}
	for autokumaID, serverID := range mappings {
		if _, alive := live[serverID]; alive {
			continue
		}
		s.logger.Info("removing stale identity mapping",
			zap.String("kind", string(kind)),
			zap.String("autokuma_id", autokumaID),
			zap.String("server_id", serverID),
		)
		if err := s.Delete(kind, autokumaID); err != nil {
			return err
		}
	}
	return nil
}

// MarkMissing records when an entity first went unobserved, if not already
// marked.
func (s *Store) MarkMissing(kind entity.Kind, autokumaID string, now time.Time) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(missingKey(kind, autokumaID))
		if err == nil {
			return nil // already marked, keep the original timestamp
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(missingKey(kind, autokumaID), []byte(strconv.FormatInt(now.Unix(), 10)))
	})
	if err != nil {
		return fmt.Errorf("identity store mark missing: %w", err)
	}
	return nil
}

// MissingSince returns when the entity was marked missing.
func (s *Store) MissingSince(kind entity.Kind, autokumaID string) (time.Time, bool, error) {
	var ts int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(missingKey(kind, autokumaID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := strconv.ParseInt(string(val), 10, 64)
			if err != nil {
				return err
			}
			ts = parsed
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("identity store missing since: %w", err)
	}
	return time.Unix(ts, 0), true, nil
}

// ClearMissing removes the missing marker; the entity reappeared.
func (s *Store) ClearMissing(kind entity.Kind, autokumaID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(missingKey(kind, autokumaID))
	})
	if err != nil {
		return fmt.Errorf("identity store clear missing: %w", err)
	}
	return nil
}

// Version returns the store schema version; 0 means the store predates (or
// has never seen) the identity-based scheme and may require migration from
// the legacy tag-based scheme.
func (s *Store) Version() (int, error) {
	var version int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(versionKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := strconv.Atoi(string(val))
			if err != nil {
				return err
			}
			version = parsed
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("identity store version: %w", err)
	}
	return version, nil
}

// SetVersion records the store schema version.
func (s *Store) SetVersion(version int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(versionKey), []byte(strconv.Itoa(version)))
	})
	if err != nil {
		return fmt.Errorf("identity store set version: %w", err)
	}
	return nil
}

// LookupID implements entity.IDLookup over the numeric kinds.
func (s *Store) LookupID(kind entity.Kind, autokumaID string) (int, bool) {
	value, ok, err := s.Get(kind, autokumaID)
	if err != nil || !ok {
		return 0, false
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return id, true
}

// LookupSlug implements entity.IDLookup for status pages.
func (s *Store) LookupSlug(autokumaID string) (string, bool) {
	value, ok, err := s.Get(entity.KindStatusPage, autokumaID)
	if err != nil || !ok {
		return "", false
	}
	return value, true
}

// LoadAuthToken reads the cached session token, if any.
func (s *Store) LoadAuthToken() string {
	if s.dataDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(s.dataDir, authTokenFile))
	if err != nil {
		return ""
	}
	return string(data)
}

// StoreAuthToken caches the session token with owner-only permissions.
func (s *Store) StoreAuthToken(token string) error {
	if s.dataDir == "" || token == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(s.dataDir, authTokenFile), []byte(token), 0o600)
}

// PurgeAuthToken removes the cached token after a rejection.
func (s *Store) PurgeAuthToken() {
	if s.dataDir == "" {
		return
	}
	_ = os.Remove(filepath.Join(s.dataDir, authTokenFile))
}
