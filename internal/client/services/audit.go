package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/logging"
)

// AuditService maintains the shared login log of an account.
type AuditService struct {
	deviceID string
	tmpDir   string
	now      func() time.Time
	logger   logging.Logger
}

// NewAuditService builds an AuditService that records logins as deviceID.
// tmpDir holds the downloaded log while it is being appended to.
func NewAuditService(deviceID, tmpDir string, logger logging.Logger) *AuditService {
	return &AuditService{
		deviceID: deviceID,
		tmpDir:   tmpDir,
		now:      time.Now,
		logger:   logger,
	}
}

// RecordLogin appends one line for this device to the login log of cfg.
// A missing log is created.
func (a *AuditService) RecordLogin(ctx context.Context, p storage.Provider, cfg models.ServerConfig) error {
	existing, err := a.fetch(ctx, p)
	if err != nil {
		return err
	}

	rec := models.LoginRecord{At: a.now(), Username: cfg.Username, DeviceID: a.deviceID}

	var b strings.Builder
	b.WriteString(existing)
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(rec.Line())
	b.WriteByte('\n')

	if _, err := p.UploadText(ctx, b.String(), common.LoginLogFileName); err != nil {
		return fmt.Errorf("upload login log: %w", err)
	}
	a.logger.Debug(ctx, "login recorded", "account", cfg.ID, "device", a.deviceID)
	return nil
}

// History returns the parsed login log, skipping malformed lines.
func (a *AuditService) History(ctx context.Context, p storage.Provider) ([]models.LoginRecord, error) {
	text, err := a.fetch(ctx, p)
	if err != nil {
		return nil, err
	}

	var out []models.LoginRecord
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := models.ParseLoginRecord(line)
		if err != nil {
			a.logger.Warn(ctx, "skipping login record", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

func (a *AuditService) fetch(ctx context.Context, p storage.Provider) (string, error) {
	f, err := os.CreateTemp(a.tmpDir, "logins-*.txt")
	if err != nil {
		return "", err
	}
	path := f.Name()
	_ = f.Close()
	defer func() { _ = os.Remove(path) }()

	if err := p.DownloadFile(ctx, common.LoginLogFileName, path, nil); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("download login log: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
