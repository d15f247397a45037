package auth

import "errors"

//go:generate mockgen -source=store.go -destination=store_mock_test.go -package=auth

// ErrNoToken is returned by TokenStore.Load when no record is persisted.
var ErrNoToken = errors.New("no token stored")

// TokenStore persists a single TokenRecord between process runs.
// Implementations are single-writer, last-write-wins: each Save fully
// replaces the record.
type TokenStore interface {
	// Load returns the persisted record, or ErrNoToken when absent.
	Load() (TokenRecord, error)

	// Save replaces the persisted record.
	Save(TokenRecord) error

	// Erase removes the persisted record. Erasing an absent record is
	// not an error.
	Erase() error
}
