package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the cloudchat CLI.
//
// Units: all intervals and delays are time.Duration values.
type Config struct {
	// DataDir holds the account database, history mirrors, media cache and log.
	DataDir string

	SyncInterval     time.Duration
	FastSyncInterval time.Duration

	// DeploymentMode is "managed" or "selfhosted"; see models.DeploymentMode.
	DeploymentMode string

	MaxConcurrentTransfers int64
	UploadAttempts         uint64
	UploadRetryBaseDelay   time.Duration
	TombstoneTTL           time.Duration
	HTTPTimeout            time.Duration

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.SyncInterval = 5 * time.Second
	c.FastSyncInterval = time.Second
	c.DeploymentMode = "managed"
	c.MaxConcurrentTransfers = 2
	c.UploadAttempts = 3
	c.UploadRetryBaseDelay = 500 * time.Millisecond
	c.TombstoneTTL = 10 * time.Minute
	c.HTTPTimeout = 30 * time.Second
	c.LogLevel = "info"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cloudchat")
	}
	return ".cloudchat"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
