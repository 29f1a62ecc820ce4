// Package common defines shared constants and sentinel errors used across
// cloudchat components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Engine-level errors.
	ErrNoActiveAccount   = errors.New("no active account")
	ErrUnknownMessage    = errors.New("unknown message")
	ErrNotRetryable      = errors.New("message is not retryable")
	ErrSourceUnavailable = errors.New("message source unavailable")

	// Account store errors.
	ErrVaultLocked        = errors.New("account store is locked")
	ErrWrongPassword      = errors.New("wrong password")
	ErrInvalidAccount     = errors.New("invalid account configuration")
	ErrUnsupportedStorage = errors.New("unsupported storage type")
)
