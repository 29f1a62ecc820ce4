// Package metadata is a small key/value store in the local database. It
// holds the current-account pointer, the device id and the vault salt and
// verifier (see the Meta* keys in internal/common).
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// GetString is Get for text values; absent keys yield "".
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
}
