package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   data directory
//	-i int      sync interval (in seconds)
//	-m string   deployment mode: managed or selfhosted
//	-t int      maximum concurrent transfers
//	-l string   log level
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-i", "-m", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	fs.StringVar(&cfg.DeploymentMode, "m", cfg.DeploymentMode, "deployment mode (managed|selfhosted)")
	fs.Int64Var(&cfg.MaxConcurrentTransfers, "t", cfg.MaxConcurrentTransfers, "maximum concurrent transfers")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *syncInterval > 0 {
		cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	}
}
