package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/client"
	"github.com/dmitrijs2005/cloudchat/internal/client/config"
	"github.com/dmitrijs2005/cloudchat/internal/client/engine"
	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/services"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage/backends"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/filex"
	"github.com/dmitrijs2005/cloudchat/internal/logging"
)

const (
	logFileName  = "cloudchat.log"
	dbFileName   = "vault.db"
	closeTimeout = 10 * time.Second
	maxUnlocks   = 3
)

type App struct {
	config   *config.Config
	accounts services.AccountService
	audit    *services.AuditService
	engine   *engine.Engine
	logger   logging.Logger
	reader   *bufio.Reader
	out      io.Writer

	closers []io.Closer

	fast        bool
	activatedAt atomic.Int64

	seenMu sync.Mutex
	seen   map[string]bool
}

// NewApp wires the local database, account vault, storage backends and the
// sync engine below c.DataDir. Logs go to a JSON file in the same directory
// so they do not interleave with the REPL.
func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(c.DataDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	logger := logging.NewJSONLogger(logFile, c.LogLevel)

	db, err := client.InitDatabase(ctx, filepath.Join(c.DataDir, dbFileName))
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		_ = logFile.Close()
		return nil, err
	}

	a, err := newApp(ctx, c, db, engine.ProviderFactory(backends.New(models.ParseDeploymentMode(c.DeploymentMode), c.HTTPTimeout, logger)), logger)
	if err != nil {
		_ = db.Close()
		_ = logFile.Close()
		return nil, err
	}
	a.closers = append(a.closers, db, logFile)
	return a, nil
}

// newApp builds the App over an open database; tests call it with an
// in-memory provider factory.
func newApp(ctx context.Context, c *config.Config, db *sql.DB, factory engine.ProviderFactory, logger logging.Logger) (*App, error) {
	accounts := services.NewAccountService(db)

	deviceID, err := accounts.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}

	tmpDir, err := filex.EnsureSubDir(c.DataDir, "tmp")
	if err != nil {
		return nil, err
	}
	audit := services.NewAuditService(deviceID, tmpDir, logger)

	eng, err := engine.New(engine.Options{
		DataDir:                c.DataDir,
		SyncInterval:           c.SyncInterval,
		FastSyncInterval:       c.FastSyncInterval,
		MaxConcurrentTransfers: c.MaxConcurrentTransfers,
		UploadAttempts:         c.UploadAttempts,
		UploadRetryBaseDelay:   c.UploadRetryBaseDelay,
		TombstoneTTL:           c.TombstoneTTL,
		Auditor:                audit,
	}, factory, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		config:   c,
		accounts: accounts,
		audit:    audit,
		engine:   eng,
		logger:   logger,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		seen:     map[string]bool{},
	}, nil
}

// Run unlocks the vault, activates the current account and runs the REPL
// until the user exits or stdin ends.
func (a *App) Run(ctx context.Context) {
	defer a.close()

	a.println("Welcome to cloudchat CLI (type 'help' for commands)")

	if err := a.Unlock(ctx); err != nil {
		a.println("Error:", err)
		return
	}

	if err := a.activateCurrent(ctx); err != nil {
		a.println("Error:", err)
	}

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	go a.watchIncoming(watchCtx)

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := a.engine.Close(ctx); err != nil {
		a.logger.Warn(ctx, "engine did not drain", "error", err)
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) hasAccount() bool {
	_, ok := a.engine.Account()
	return ok
}

// getStatus renders the prompt status: "(<account> <phase>[ fast])".
func (a *App) getStatus() string {
	cfg, ok := a.engine.Account()
	if !ok {
		return ""
	}
	parts := []string{cfg.Name, string(a.engine.Phase().Get())}
	if a.fast {
		parts = append(parts, "fast")
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Unlock asks for the vault password. On first run the password is set
// (entered twice); otherwise up to maxUnlocks attempts are allowed.
func (a *App) Unlock(ctx context.Context) error {
	initialized, err := a.accounts.IsInitialized(ctx)
	if err != nil {
		return err
	}

	if !initialized {
		a.println("Choose a password to protect stored accounts.")
		pw, err := getPassword(a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pw)

		confirm, err := getSecret(a.out, "Repeat password: ")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(confirm)

		if string(pw) != string(confirm) {
			return errors.New("passwords do not match")
		}
		return a.accounts.Unlock(ctx, pw)
	}

	for i := 0; i < maxUnlocks; i++ {
		pw, err := getPassword(a.out)
		if err != nil {
			return err
		}
		err = a.accounts.Unlock(ctx, pw)
		common.WipeByteArray(pw)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrWrongPassword) {
			return err
		}
		a.println("Wrong password.")
	}
	return common.ErrWrongPassword
}

// activateCurrent starts the engine on the stored current account, if any.
func (a *App) activateCurrent(ctx context.Context) error {
	cfg, err := a.accounts.Current(ctx)
	if errors.Is(err, common.ErrNoActiveAccount) {
		a.println("No accounts yet. Use 'addaccount' or 'import <file>'.")
		return nil
	}
	if err != nil {
		return err
	}
	return a.activate(ctx, cfg)
}

func (a *App) activate(ctx context.Context, cfg models.ServerConfig) error {
	a.seenMu.Lock()
	a.seen = map[string]bool{}
	a.seenMu.Unlock()
	a.activatedAt.Store(time.Now().UnixMilli())

	if err := a.engine.Activate(ctx, cfg); err != nil {
		return err
	}
	a.engine.SetFastSync(a.fast)
	a.printf("Using account %s (%s)\n", cfg.Name, cfg.Type)
	return nil
}

// watchIncoming prints messages from other devices as they arrive. Only
// messages newer than the current activation are announced.
func (a *App) watchIncoming(ctx context.Context) {
	ch, cancel := a.engine.Messages().Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msgs, ok := <-ch:
			if !ok {
				return
			}
			for _, m := range a.unseenIncoming(msgs) {
				a.println()
				a.println(formatMessage(m, idleView()))
			}
		}
	}
}

func (a *App) unseenIncoming(msgs []models.Message) []models.Message {
	since := a.activatedAt.Load()

	a.seenMu.Lock()
	defer a.seenMu.Unlock()

	var out []models.Message
	for _, m := range msgs {
		if a.seen[m.ID] {
			continue
		}
		a.seen[m.ID] = true
		if !m.IsOutgoing && m.Timestamp >= since {
			out = append(out, m)
		}
	}
	return out
}
