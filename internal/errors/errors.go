package errors

import "errors"

// Configuration errors.
var (
	ErrMissingTenant = errors.New("tenant URL is not configured")
	ErrInvalidMode   = errors.New("invalid process mode")
)

// Tenant API errors.
var (
	ErrAPIRequest  = errors.New("tenant API request failed")
	ErrAPIResponse = errors.New("unexpected tenant API response")
	ErrNotFound    = errors.New("object not found")
)
