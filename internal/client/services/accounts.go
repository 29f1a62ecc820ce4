// Package services contains application services for the cloudchat client.
// This file defines the account service: the password-protected vault of
// backend account configurations, the current-account pointer and the
// device identity.
package services

import (
	"bytes"
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/repositories/accounts"
	"github.com/dmitrijs2005/cloudchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/cryptox"
	"github.com/dmitrijs2005/cloudchat/internal/dbx"
	"github.com/google/uuid"
)

const saltSize = 32

// AccountService manages stored backend accounts.
//
// Contract:
//   - Unlock must succeed before any account operation; otherwise
//     common.ErrVaultLocked is returned.
//   - The first Unlock on a fresh database initialises the vault with the
//     given password.
//   - Save makes the saved account current. Delete of the current account
//     moves the pointer to the first remaining account (or clears it).
//   - Export/Import exchange plaintext JSON arrays of models.ServerConfig.
type AccountService interface {
	IsInitialized(ctx context.Context) (bool, error)
	Unlock(ctx context.Context, password []byte) error
	Lock()

	List(ctx context.Context) ([]models.ServerConfig, error)
	Get(ctx context.Context, id string) (models.ServerConfig, error)
	Save(ctx context.Context, cfg models.ServerConfig) (models.ServerConfig, error)
	Switch(ctx context.Context, id string) (models.ServerConfig, error)
	Delete(ctx context.Context, id string) error
	Current(ctx context.Context) (models.ServerConfig, error)

	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (int, error)

	DeviceID(ctx context.Context) (string, error)
}

type accountService struct {
	db  *sql.DB
	now func() time.Time

	mu  sync.RWMutex
	key []byte
}

// NewAccountService constructs an AccountService over the local database.
func NewAccountService(db *sql.DB) AccountService {
	return &accountService{db: db, now: time.Now}
}

func (s *accountService) metadataRepo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (s *accountService) accountsRepo(db dbx.DBTX) accounts.Repository {
	return accounts.NewSQLiteRepository(db)
}

// IsInitialized reports whether a vault password has been set.
func (s *accountService) IsInitialized(ctx context.Context) (bool, error) {
	v, err := s.metadataRepo(s.db).Get(ctx, common.MetaVaultVerifier)
	if err != nil {
		return false, err
	}
	return len(v) > 0, nil
}

// Unlock derives the vault key from password. On a fresh database it stores
// a new salt and verifier; otherwise the derived verifier must match the
// stored one or common.ErrWrongPassword is returned.
func (s *accountService) Unlock(ctx context.Context, password []byte) error {
	repo := s.metadataRepo(s.db)

	salt, err := repo.Get(ctx, common.MetaVaultSalt)
	if err != nil {
		return err
	}
	verifier, err := repo.Get(ctx, common.MetaVaultVerifier)
	if err != nil {
		return err
	}

	if len(salt) == 0 || len(verifier) == 0 {
		salt = common.GenerateRandByteArray(saltSize)
		key := cryptox.DeriveMasterKey(password, salt)
		verifier = cryptox.MakeVerifier(key)

		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			txRepo := s.metadataRepo(tx)
			if err := txRepo.Set(ctx, common.MetaVaultSalt, salt); err != nil {
				return err
			}
			return txRepo.Set(ctx, common.MetaVaultVerifier, verifier)
		})
		if err != nil {
			return fmt.Errorf("vault init error: %w", err)
		}
		s.setKey(key)
		return nil
	}

	key := cryptox.DeriveMasterKey(password, salt)
	if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(key)) == 0 {
		return common.ErrWrongPassword
	}
	s.setKey(key)
	return nil
}

func (s *accountService) setKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.key)
	s.key = key
}

// Lock forgets the vault key.
func (s *accountService) Lock() {
	s.setKey(nil)
}

func (s *accountService) vaultKey() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, common.ErrVaultLocked
	}
	return bytes.Clone(s.key), nil
}

func (s *accountService) open(row *models.SealedAccount, key []byte) (models.ServerConfig, error) {
	var cfg models.ServerConfig
	if err := cryptox.Open(row.Sealed, row.Nonce, key, &cfg); err != nil {
		return models.ServerConfig{}, fmt.Errorf("decryption error: %w", err)
	}
	return cfg, nil
}

func (s *accountService) seal(cfg models.ServerConfig, key []byte) (*models.SealedAccount, error) {
	ct, nonce, err := cryptox.Seal(cfg, key)
	if err != nil {
		return nil, fmt.Errorf("encryption error: %w", err)
	}
	return &models.SealedAccount{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Sealed:    ct,
		Nonce:     nonce,
		UpdatedAt: s.now(),
	}, nil
}

// List returns all accounts ordered by name.
func (s *accountService) List(ctx context.Context) ([]models.ServerConfig, error) {
	key, err := s.vaultKey()
	if err != nil {
		return nil, err
	}
	rows, err := s.accountsRepo(s.db).List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]models.ServerConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := s.open(row, key)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", row.ID, err)
		}
		result = append(result, cfg)
	}
	return result, nil
}

func (s *accountService) Get(ctx context.Context, id string) (models.ServerConfig, error) {
	key, err := s.vaultKey()
	if err != nil {
		return models.ServerConfig{}, err
	}
	row, err := s.accountsRepo(s.db).Get(ctx, id)
	if err != nil {
		return models.ServerConfig{}, err
	}
	return s.open(row, key)
}

// Save normalises and validates cfg, stores it and makes it current.
func (s *accountService) Save(ctx context.Context, cfg models.ServerConfig) (models.ServerConfig, error) {
	key, err := s.vaultKey()
	if err != nil {
		return models.ServerConfig{}, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return models.ServerConfig{}, err
	}

	row, err := s.seal(cfg, key)
	if err != nil {
		return models.ServerConfig{}, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.accountsRepo(tx).Upsert(ctx, row); err != nil {
			return err
		}
		return s.metadataRepo(tx).SetString(ctx, common.MetaCurrentAccount, cfg.ID)
	})
	if err != nil {
		return models.ServerConfig{}, fmt.Errorf("saving error: %w", err)
	}
	return cfg, nil
}

// Switch makes the account with id current and returns it.
func (s *accountService) Switch(ctx context.Context, id string) (models.ServerConfig, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return models.ServerConfig{}, err
	}
	if err := s.metadataRepo(s.db).SetString(ctx, common.MetaCurrentAccount, cfg.ID); err != nil {
		return models.ServerConfig{}, err
	}
	return cfg, nil
}

func (s *accountService) Delete(ctx context.Context, id string) error {
	if _, err := s.vaultKey(); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accRepo := s.accountsRepo(tx)
		metaRepo := s.metadataRepo(tx)

		if err := accRepo.Delete(ctx, id); err != nil {
			return err
		}

		current, err := metaRepo.GetString(ctx, common.MetaCurrentAccount)
		if err != nil {
			return err
		}
		if current != id {
			return nil
		}

		rest, err := accRepo.List(ctx)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return metaRepo.Delete(ctx, common.MetaCurrentAccount)
		}
		return metaRepo.SetString(ctx, common.MetaCurrentAccount, rest[0].ID)
	})
}

// Current returns the current account or common.ErrNoActiveAccount.
func (s *accountService) Current(ctx context.Context) (models.ServerConfig, error) {
	if _, err := s.vaultKey(); err != nil {
		return models.ServerConfig{}, err
	}
	id, err := s.metadataRepo(s.db).GetString(ctx, common.MetaCurrentAccount)
	if err != nil {
		return models.ServerConfig{}, err
	}
	if id == "" {
		return models.ServerConfig{}, common.ErrNoActiveAccount
	}
	cfg, err := s.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return models.ServerConfig{}, common.ErrNoActiveAccount
	}
	return cfg, err
}

// Export writes all accounts as an indented JSON array. Secrets are written
// in plaintext.
func (s *accountService) Export(ctx context.Context, w io.Writer) error {
	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

// Import upserts every account of a JSON array and returns how many were
// stored. If no account is current, the first imported one becomes current.
func (s *accountService) Import(ctx context.Context, r io.Reader) (int, error) {
	key, err := s.vaultKey()
	if err != nil {
		return 0, err
	}

	var list []models.ServerConfig
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return 0, fmt.Errorf("malformed account list: %w", err)
	}

	rows := make([]*models.SealedAccount, 0, len(list))
	for i := range list {
		cfg := list[i]
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return 0, fmt.Errorf("account #%d: %w", i+1, err)
		}
		row, err := s.seal(cfg, key)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accRepo := s.accountsRepo(tx)
		for _, row := range rows {
			if err := accRepo.Upsert(ctx, row); err != nil {
				return err
			}
		}

		metaRepo := s.metadataRepo(tx)
		current, err := metaRepo.GetString(ctx, common.MetaCurrentAccount)
		if err != nil {
			return err
		}
		if current == "" {
			return metaRepo.SetString(ctx, common.MetaCurrentAccount, rows[0].ID)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import error: %w", err)
	}
	return len(rows), nil
}

// DeviceID returns the identity of this installation, generating it on
// first use. It does not require the vault to be unlocked.
func (s *accountService) DeviceID(ctx context.Context) (string, error) {
	repo := s.metadataRepo(s.db)
	id, err := repo.GetString(ctx, common.MetaDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := repo.SetString(ctx, common.MetaDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
