package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cloudchat/internal/flagx"
	"github.com/dmitrijs2005/cloudchat/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. Absent keys leave the
// corresponding Config field untouched.
type JsonConfig struct {
	DataDir                string          `json:"data_dir"`
	SyncInterval           *timex.Duration `json:"sync_interval"`
	FastSyncInterval       *timex.Duration `json:"fast_sync_interval"`
	DeploymentMode         string          `json:"deployment_mode"`
	MaxConcurrentTransfers int64           `json:"max_concurrent_transfers"`
	UploadAttempts         uint64          `json:"upload_attempts"`
	UploadRetryBaseDelay   *timex.Duration `json:"upload_retry_base_delay"`
	TombstoneTTL           *timex.Duration `json:"tombstone_ttl"`
	HTTPTimeout            *timex.Duration `json:"http_timeout"`
	LogLevel               string          `json:"log_level"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from -c or -config (flagx.JsonConfigFlags); without
// one nothing is loaded. Read or unmarshal errors panic.
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DeploymentMode, jc.DeploymentMode)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.MaxConcurrentTransfers > 0 {
		cfg.MaxConcurrentTransfers = jc.MaxConcurrentTransfers
	}
	if jc.UploadAttempts > 0 {
		cfg.UploadAttempts = jc.UploadAttempts
	}

	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.FastSyncInterval != nil {
		cfg.FastSyncInterval = jc.FastSyncInterval.Duration
	}
	if jc.UploadRetryBaseDelay != nil {
		cfg.UploadRetryBaseDelay = jc.UploadRetryBaseDelay.Duration
	}
	if jc.TombstoneTTL != nil {
		cfg.TombstoneTTL = jc.TombstoneTTL.Duration
	}
	if jc.HTTPTimeout != nil {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
