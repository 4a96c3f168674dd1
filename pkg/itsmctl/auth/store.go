package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	StorageFile     = "file"
	StorageKeychain = "keychain"

	// KeyringService is the service name entries are filed under in the OS keychain.
	KeyringService = "itsmctl"
)

// TokenStore persists one token per cache key.
type TokenStore interface {
	Get(key string) (StoredToken, bool, error)
	Save(key string, token StoredToken) error
	Delete(key string) error
}

// NewTokenStore returns the store for kind. An empty kind is the file store.
func NewTokenStore(kind, path string) (TokenStore, error) {
	switch kind {
	case "", StorageFile:
		if path == "" {
			return nil, errors.New("token cache path is required")
		}
		return &FileStore{Path: path}, nil
	case StorageKeychain:
		return &KeyringStore{Service: KeyringService}, nil
	default:
		return nil, fmt.Errorf("unknown token storage %q (expected file or keychain)", kind)
	}
}

// FileStore keeps every token in a single 0600 JSON document.
type FileStore struct {
	Path string
}

func (s *FileStore) Get(key string) (StoredToken, bool, error) {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return StoredToken{}, false, nil
		}
		return StoredToken{}, false, err
	}
	token, ok := cache.Tokens[key]
	return token, ok, nil
}

func (s *FileStore) Save(key string, token StoredToken) error {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		cache = &TokenCache{Tokens: map[string]StoredToken{}}
	}
	cache.Tokens[key] = token
	return SaveTokenCache(s.Path, cache)
}

func (s *FileStore) Delete(key string) error {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if _, ok := cache.Tokens[key]; !ok {
		return nil
	}
	delete(cache.Tokens, key)
	return SaveTokenCache(s.Path, cache)
}

// KeyringStore keeps each token as a JSON secret in the OS keychain.
type KeyringStore struct {
	Service string
}

func (s *KeyringStore) service() string {
	if s.Service == "" {
		return KeyringService
	}
	return s.Service
}

func (s *KeyringStore) Get(key string) (StoredToken, bool, error) {
	secret, err := keyring.Get(s.service(), key)
	if errors.Is(err, keyring.ErrNotFound) {
		return StoredToken{}, false, nil
	}
	if err != nil {
		return StoredToken{}, false, fmt.Errorf("failed to read keychain: %w", err)
	}
	var token StoredToken
	if err := json.Unmarshal([]byte(secret), &token); err != nil {
		return StoredToken{}, false, fmt.Errorf("failed to parse keychain entry %s: %w", key, err)
	}
	return token, true, nil
}

func (s *KeyringStore) Save(key string, token StoredToken) error {
	content, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(s.service(), key, string(content)); err != nil {
		return fmt.Errorf("failed to write keychain: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete(key string) error {
	err := keyring.Delete(s.service(), key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keychain entry: %w", err)
	}
	return nil
}
