// Package backends turns an account into a concrete storage.Provider.
package backends

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage/s3store"
	"github.com/dmitrijs2005/cloudchat/internal/client/storage/webdav"
	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/dmitrijs2005/cloudchat/internal/logging"
)

// Factory builds a provider for one account.
type Factory func(ctx context.Context, cfg models.ServerConfig) (storage.Provider, error)

// New returns a Factory that applies the deployment's trust policy to every
// account it builds a provider for.
func New(mode models.DeploymentMode, timeout time.Duration, logger logging.Logger) Factory {
	return func(ctx context.Context, cfg models.ServerConfig) (storage.Provider, error) {
		policy := models.PolicyFor(mode, cfg)
		if policy == models.TransportInsecure {
			logger.Warn(ctx, "tls verification disabled for account", "account", cfg.Name)
		}
		client := storage.NewHTTPClient(policy, timeout)

		switch cfg.Type {
		case models.StorageS3:
			return s3store.New(ctx, cfg, client, logger)
		case models.StorageWebDAV:
			return webdav.New(cfg, client, logger)
		default:
			return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedStorage, cfg.Type)
		}
	}
}
