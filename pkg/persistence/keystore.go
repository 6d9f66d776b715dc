package persistence

import (
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// TokenVersion is the current version of the stored token format.
const TokenVersion = 1

// Token is the persisted registration result.
type Token struct {
	// Version is the stored format version.
	Version int `json:"version" yaml:"version"`

	// Token is the value to present when registering again.
	Token string `json:"token" yaml:"token"`

	// CoreID identifies the Core that issued the token.
	CoreID string `json:"core_id" yaml:"core_id"`

	// SavedAt is when the token was stored.
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`
}

// Keystore holds at most one token.
type Keystore interface {
	// LoadToken returns the stored token, or nil if none is stored.
	LoadToken() (*Token, error)

	// SaveToken replaces the stored token.
	SaveToken(token, coreID string) error

	// ClearToken removes the stored token. Clearing an empty store is not
	// an error.
	ClearToken() error
}

// Store is a Keystore that holds resources until closed.
type Store interface {
	Keystore
	io.Closer
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Default locations below the data directory.
const (
	TokenFileName = "token.json"
	BadgerDirName = "db"
)

// Open opens the named backend below dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(filepath.Join(dataDir, TokenFileName)), nil
	case BackendBadger:
		return OpenBadgerStore(filepath.Join(dataDir, BadgerDirName))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown keystore backend %q", backend)
	}
}

func newToken(token, coreID string) *Token {
	return &Token{
		Version: TokenVersion,
		Token:   token,
		CoreID:  coreID,
		SavedAt: time.Now().UTC(),
	}
}
