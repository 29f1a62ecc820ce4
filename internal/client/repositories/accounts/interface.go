// Package accounts persists sealed account configurations in the local
// SQLite database.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
)

// Repository stores SealedAccount rows keyed by ID.
type Repository interface {
	// Upsert inserts the account or replaces the row with the same ID.
	Upsert(ctx context.Context, a *models.SealedAccount) error

	// Get returns common.ErrNotFound when no row has id.
	Get(ctx context.Context, id string) (*models.SealedAccount, error)

	// List returns all accounts ordered by name.
	List(ctx context.Context) ([]*models.SealedAccount, error)

	// Delete returns common.ErrNotFound when no row has id.
	Delete(ctx context.Context, id string) error
}
