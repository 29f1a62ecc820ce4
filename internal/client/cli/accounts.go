package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dustin/go-humanize"
)

// getPassword and getSecretText are indirections used to facilitate testing.
var getPassword = GetPassword
var getSecretText = GetSecretText

// Accounts lists stored accounts; the current one is marked with '*'.
func (a *App) Accounts(ctx context.Context) error {
	list, err := a.accounts.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.println("No accounts.")
		return nil
	}

	current, _ := a.engine.Account()
	for _, cfg := range list {
		mark := " "
		if cfg.ID == current.ID {
			mark = "*"
		}
		a.printf("%s %s  %-20s %-7s %s\n", mark, cfg.ID, cfg.Name, cfg.Type, accountTarget(cfg))
	}
	return nil
}

func accountTarget(cfg models.ServerConfig) string {
	var target string
	switch cfg.Type {
	case models.StorageS3:
		target = "s3://" + cfg.Bucket
		if cfg.Endpoint != "" {
			target = cfg.Endpoint + " " + target
		}
	default:
		target = cfg.WebDAVURL
	}
	return target + " /" + cfg.Prefix()
}

// AddAccount interactively creates an account, stores it and switches to it.
func (a *App) AddAccount(ctx context.Context) error {
	var cfg models.ServerConfig

	typ, err := GetWithDefault(a.reader, "Storage type (webdav|s3)", string(models.StorageWebDAV), a.out)
	if err != nil {
		return err
	}
	cfg.Type = models.StorageType(strings.ToLower(typ))

	if cfg.Username, err = GetSimpleText(a.reader, "Your name in the chat", a.out); err != nil {
		return err
	}
	if cfg.Name, err = GetWithDefault(a.reader, "Account name", cfg.Username, a.out); err != nil {
		return err
	}

	switch cfg.Type {
	case models.StorageS3:
		err = a.askS3(&cfg)
	case models.StorageWebDAV:
		err = a.askWebDAV(&cfg)
	default:
		return fmt.Errorf("%w: %q", common.ErrUnsupportedStorage, typ)
	}
	if err != nil {
		return err
	}

	if cfg.ServerPath, err = GetWithDefault(a.reader, "Root folder on the server (optional)", "", a.out); err != nil {
		return err
	}
	if cfg.SaveDir, err = GetWithDefault(a.reader, "Chat folder", cfg.Username, a.out); err != nil {
		return err
	}

	limit, err := GetWithDefault(a.reader, "Auto-download media up to (e.g. 5MB, 0 = default)", "0", a.out)
	if err != nil {
		return err
	}
	if n, err := humanize.ParseBytes(limit); err == nil {
		cfg.AutoDownloadLimit = int64(n)
	} else {
		return fmt.Errorf("auto-download limit: %w", err)
	}

	if models.ParseDeploymentMode(a.config.DeploymentMode) == models.DeploymentSelfHosted {
		if cfg.AllowInsecureTLS, err = GetYesNo(a.reader, "Accept self-signed certificates?", false, a.out); err != nil {
			return err
		}
	}

	saved, err := a.accounts.Save(ctx, cfg)
	if err != nil {
		return err
	}
	a.printf("Account %s saved.\n", saved.ID)
	return a.activate(ctx, saved)
}

func (a *App) askS3(cfg *models.ServerConfig) error {
	var err error
	if cfg.Endpoint, err = GetWithDefault(a.reader, "Endpoint (empty for AWS)", "", a.out); err != nil {
		return err
	}
	if cfg.Bucket, err = GetSimpleText(a.reader, "Bucket", a.out); err != nil {
		return err
	}
	if cfg.Region, err = GetWithDefault(a.reader, "Region", "us-east-1", a.out); err != nil {
		return err
	}
	if cfg.AccessKey, err = GetSimpleText(a.reader, "Access key", a.out); err != nil {
		return err
	}
	cfg.SecretKey, err = getSecretText(a.out, "Secret key")
	return err
}

func (a *App) askWebDAV(cfg *models.ServerConfig) error {
	var err error
	if cfg.WebDAVURL, err = GetSimpleText(a.reader, "WebDAV URL", a.out); err != nil {
		return err
	}
	if cfg.WebDAVUser, err = GetWithDefault(a.reader, "WebDAV user", cfg.Username, a.out); err != nil {
		return err
	}
	cfg.WebDAVPass, err = getSecretText(a.out, "WebDAV password")
	return err
}

// Use switches to the account with id.
func (a *App) Use(ctx context.Context, id string) error {
	cfg, err := a.accounts.Switch(ctx, id)
	if err != nil {
		return err
	}
	return a.activate(ctx, cfg)
}

// RemoveAccount deletes a stored account. Removing the active account
// switches to whichever account becomes current.
func (a *App) RemoveAccount(ctx context.Context, id string) error {
	current, active := a.engine.Account()
	wasActive := active && current.ID == id

	if err := a.accounts.Delete(ctx, id); err != nil {
		return err
	}
	a.println("Account removed.")

	if !wasActive {
		return nil
	}
	if err := a.engine.Close(ctx); err != nil {
		a.logger.Warn(ctx, "engine did not drain", "error", err)
	}
	return a.activateCurrent(ctx)
}

// Export writes all accounts, secrets included, to path.
func (a *App) Export(ctx context.Context, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := a.accounts.Export(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.printf("Accounts exported to %s. The file contains passwords in clear text.\n", path)
	return nil
}

// Import reads accounts exported by Export.
func (a *App) Import(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := a.accounts.Import(ctx, f)
	if err != nil {
		return err
	}
	a.printf("%d account(s) imported.\n", n)

	if !a.hasAccount() {
		return a.activateCurrent(ctx)
	}
	return nil
}

// Test checks that the active account's backend is reachable.
func (a *App) Test(ctx context.Context) error {
	p, ok := a.engine.Provider()
	if !ok {
		return common.ErrNoActiveAccount
	}
	if err := p.TestConnection(ctx); err != nil {
		if storage.IsAuthError(err) {
			return fmt.Errorf("authentication failed, check the account credentials: %w", err)
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	a.println("Connection OK.")
	return nil
}

// Logins prints the shared login log of the active account.
func (a *App) Logins(ctx context.Context) error {
	p, ok := a.engine.Provider()
	if !ok {
		return common.ErrNoActiveAccount
	}
	records, err := a.audit.History(ctx, p)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.println("No logins recorded.")
		return nil
	}
	for _, r := range records {
		a.printf("%-20s %-16s %s (%s)\n", r.At.Local().Format("2006-01-02 15:04:05"), r.Username, r.DeviceID, humanize.Time(r.At))
	}
	return nil
}
