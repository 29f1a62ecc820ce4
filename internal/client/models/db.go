package models

import "time"

// SealedAccount is an account configuration as persisted in the local
// database. The configuration (credentials included) is stored as AEAD
// ciphertext alongside its nonce.
type SealedAccount struct {
	// ID is the account identifier (ServerConfig.ID).
	ID string

	// Name is kept in clear so accounts can be listed before unsealing.
	Name string

	// Sealed is the encrypted JSON of the ServerConfig.
	Sealed []byte
	// Nonce is the AEAD nonce for Sealed.
	Nonce []byte

	// UpdatedAt is the last modification time in UTC.
	UpdatedAt time.Time
}
