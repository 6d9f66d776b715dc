package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

var tokenKey = []byte("corelink/token")

// BadgerStore keeps the token in a badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates a database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open keystore database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryBadgerStore opens a database that lives only in memory.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory keystore: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// SaveToken stores the token.
func (s *BadgerStore) SaveToken(token, coreID string) error {
	data, err := json.Marshal(newToken(token, coreID))
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tokenKey, data)
	})
}

// LoadToken reads the token. Returns nil, nil if none is stored.
func (s *BadgerStore) LoadToken() (*Token, error) {
	var tok *Token
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			t := &Token{}
			if err := json.Unmarshal(val, t); err != nil {
				return fmt.Errorf("decode token: %w", err)
			}
			tok = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// ClearToken deletes the token.
func (s *BadgerStore) ClearToken() error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tokenKey)
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
