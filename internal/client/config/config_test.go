package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.NotEmpty(t, c.DataDir)
	assert.Equal(t, 5*time.Second, c.SyncInterval)
	assert.Equal(t, time.Second, c.FastSyncInterval)
	assert.Equal(t, "managed", c.DeploymentMode)
	assert.Equal(t, int64(2), c.MaxConcurrentTransfers)
	assert.Equal(t, uint64(3), c.UploadAttempts)
	assert.Equal(t, 500*time.Millisecond, c.UploadRetryBaseDelay)
	assert.Equal(t, 10*time.Minute, c.TombstoneTTL)
	assert.Equal(t, 30*time.Second, c.HTTPTimeout)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, "managed", cfg.DeploymentMode)
}
