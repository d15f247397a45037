package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringService is the service name records are filed under in the OS
// credential vault.
const keyringService = "aic-mcp"

// KeyringStore persists the token record in the OS credential vault
// (Keychain, Secret Service, Windows Credential Manager), used in
// attended mode. Records are keyed by tenant host so switching tenants
// does not clobber another tenant's entry.
type KeyringStore struct {
	tenantHost string
}

// NewKeyringStore creates a vault-backed token store for the given
// tenant host.
func NewKeyringStore(tenantHost string) *KeyringStore {
	return &KeyringStore{tenantHost: tenantHost}
}

// Load reads the persisted record. An absent vault entry maps to
// ErrNoToken.
func (s *KeyringStore) Load() (TokenRecord, error) {
	raw, err := keyring.Get(keyringService, s.tenantHost)
	if errors.Is(err, keyring.ErrNotFound) {
		return TokenRecord{}, ErrNoToken
	}

	if err != nil {
		return TokenRecord{}, fmt.Errorf("reading credential vault: %w", err)
	}

	var rec TokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return TokenRecord{}, fmt.Errorf("decoding vault entry: %w", err)
	}

	return rec, nil
}

// Save replaces the persisted record.
func (s *KeyringStore) Save(rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}

	if err := keyring.Set(keyringService, s.tenantHost, string(data)); err != nil {
		return fmt.Errorf("writing credential vault: %w", err)
	}

	return nil
}

// Erase removes the persisted record. An absent entry is not an error.
func (s *KeyringStore) Erase() error {
	err := keyring.Delete(keyringService, s.tenantHost)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting vault entry: %w", err)
	}

	return nil
}
