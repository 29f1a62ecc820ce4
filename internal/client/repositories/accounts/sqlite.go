package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, a *models.SealedAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, sealed, nonce, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sealed = excluded.sealed,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at
	`, a.ID, a.Name, a.Sealed, a.Nonce, a.UpdatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert account[%s]: %w", a.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.SealedAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, sealed, nonce, updated_at FROM accounts WHERE id = ?`, id)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account[%s]: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account[%s]: %w", id, err)
	}
	return a, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.SealedAccount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, sealed, nonce, updated_at FROM accounts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	result := []*models.SealedAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account[%s]: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account[%s]: %w", id, common.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.SealedAccount, error) {
	var (
		a       models.SealedAccount
		updated int64
	)
	if err := s.Scan(&a.ID, &a.Name, &a.Sealed, &a.Nonce, &updated); err != nil {
		return nil, err
	}
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return &a, nil
}
