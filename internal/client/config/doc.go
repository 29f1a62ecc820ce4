// Package config loads runtime configuration for the cloudchat CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   data directory (default: <user config dir>/cloudchat)
//	-i int      sync interval (seconds)
//	-m string   deployment mode: managed | selfhosted
//	-t int      maximum concurrent transfers
//	-l string   log level
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds. Every key is optional:
//
//	{
//	  "data_dir": "/var/lib/cloudchat",
//	  "sync_interval": "5s",
//	  "fast_sync_interval": "1s",
//	  "deployment_mode": "selfhosted",
//	  "max_concurrent_transfers": 2,
//	  "upload_attempts": 3,
//	  "upload_retry_base_delay": "500ms",
//	  "tombstone_ttl": "10m",
//	  "http_timeout": "30s",
//	  "log_level": "debug"
//	}
//
// This package does not read environment variables directly; use the JSON
// file or flags to configure values.
package config
