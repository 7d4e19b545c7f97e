package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"AngelLink/internal/model"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "desk"

// Persisted keys.
const (
	KeyAuthToken      = "auth_token"
	KeyPendingTokens  = "pending_tokens"
	KeyPendingTokenID = "pending_token_id"
)

// Carryover is a linking result that could not be completed before the desk
// went away. Either Tokens or TokenID is set.
type Carryover struct {
	Tokens  *model.Tokens
	TokenID string
}

// Empty reports whether there is nothing to resume.
func (c Carryover) Empty() bool {
	return c.Tokens.Empty() && c.TokenID == ""
}

// Store holds the process-wide key-value state: the bearer credential and the
// pending carry-over. The credential is cached in memory so reads on every
// request do not hit the file.
type Store struct {
	db *bolt.DB

	mu    sync.RWMutex
	token string
}

// Open opens (or creates) the state file.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir state path: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	s := &Store{db: db}
	if err := db.View(func(tx *bolt.Tx) error {
		s.token = string(tx.Bucket([]byte(bucketName)).Get([]byte(KeyAuthToken)))
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("read credential: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Token returns the bearer credential, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores the credential after a login.
func (s *Store) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty credential")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(KeyAuthToken, []byte(token)); err != nil {
		return err
	}
	s.token = token
	return nil
}

// ClearToken removes the credential. Clearing an already empty credential is a no-op.
func (s *Store) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(KeyAuthToken))
	})
}

// SaveCarryover persists a pending linking result, replacing any previous one.
func (s *Store) SaveCarryover(c Carryover) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if err := b.Delete([]byte(KeyPendingTokens)); err != nil {
			return err
		}
		if err := b.Delete([]byte(KeyPendingTokenID)); err != nil {
			return err
		}
		if c.Tokens != nil && !c.Tokens.Empty() {
			data, err := json.Marshal(c.Tokens)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(KeyPendingTokens), data); err != nil {
				return err
			}
		}
		if c.TokenID != "" {
			return b.Put([]byte(KeyPendingTokenID), []byte(c.TokenID))
		}
		return nil
	})
}

// TakeCarryover reads and deletes the pending record in one transaction, so a
// record is handed out at most once. A corrupt token blob is dropped.
func (s *Store) TakeCarryover() (Carryover, error) {
	var c Carryover
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if data := b.Get([]byte(KeyPendingTokens)); len(data) > 0 {
			var t model.Tokens
			if err := json.Unmarshal(data, &t); err == nil {
				c.Tokens = &t
			}
		}
		if id := b.Get([]byte(KeyPendingTokenID)); len(id) > 0 {
			c.TokenID = string(id)
		}
		if err := b.Delete([]byte(KeyPendingTokens)); err != nil {
			return err
		}
		return b.Delete([]byte(KeyPendingTokenID))
	})
	return c, err
}

// ClearCarryover drops the pending record once an attempt reached a conclusive outcome.
func (s *Store) ClearCarryover() error {
	_, err := s.TakeCarryover()
	return err
}

func (s *Store) put(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), value)
	})
}
