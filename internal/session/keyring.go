package session

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	keyToken = "user_token"
	keyRole  = "user_role"
)

// Store persists the sign-in credential in the system keyring, falling back
// to an encrypted file when no OS keychain is available. It implements
// Accessor.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the named keyring service.
func Open(serviceName, fileDir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// SaveCredential stores the bearer token and role from a successful login.
func (s *Store) SaveCredential(token, role string) error {
	if err := s.ring.Set(keyring.Item{Key: keyToken, Data: []byte(token)}); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	if err := s.ring.Set(keyring.Item{Key: keyRole, Data: []byte(role)}); err != nil {
		return fmt.Errorf("storing role: %w", err)
	}
	return nil
}

// Clear removes the persisted credential. Missing keys are not an error.
func (s *Store) Clear() error {
	for _, key := range []string{keyToken, keyRole} {
		if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("removing %q: %w", key, err)
		}
	}
	return nil
}

// Token returns the stored bearer token if it is present and unexpired.
func (s *Store) Token() (string, error) {
	item, err := s.ring.Get(keyToken)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotAuthenticated
		}
		return "", fmt.Errorf("reading token: %w", err)
	}

	token := string(item.Data)
	if _, err := decodeIdentity(token); err != nil {
		return "", err
	}
	return token, nil
}

// Identity decodes the principal from the stored token. The role stored at
// login time takes precedence over a role claim inside the token.
func (s *Store) Identity() (Identity, error) {
	token, err := s.Token()
	if err != nil {
		return Identity{}, err
	}

	id, err := decodeIdentity(token)
	if err != nil {
		return Identity{}, err
	}

	if item, err := s.ring.Get(keyRole); err == nil && len(item.Data) > 0 {
		id.Role = string(item.Data)
	}
	return id, nil
}

// Authenticated reports whether a usable credential is stored.
func (s *Store) Authenticated() bool {
	_, err := s.Token()
	return err == nil
}
