package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cloudchat/internal/common"
	"github.com/google/uuid"
)

// StorageType selects the backend family of an account.
type StorageType string

const (
	StorageS3     StorageType = "s3"
	StorageWebDAV StorageType = "webdav"
)

// DefaultAutoDownloadLimit is the per-account threshold (bytes) above which
// media is only fetched on explicit request.
const DefaultAutoDownloadLimit int64 = 5 * 1024 * 1024

// ServerConfig identifies one backend account.
type ServerConfig struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type StorageType `json:"type"`

	// S3
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`

	// WebDAV
	WebDAVURL  string `json:"webdav_url"`
	WebDAVUser string `json:"webdav_user"`
	WebDAVPass string `json:"webdav_pass"`

	// Username is the sender identity shown to other devices.
	Username string `json:"username"`
	// ServerPath is an optional root below the bucket / DAV base URL.
	ServerPath string `json:"server_path"`
	// SaveDir isolates this account's objects on a shared backend.
	SaveDir string `json:"save_dir"`

	AutoDownloadLimit int64 `json:"auto_download_limit"`
	AllowInsecureTLS  bool  `json:"allow_insecure_tls"`
}

// Normalize fills defaults: id, name, save dir and auto-download limit.
func (c *ServerConfig) Normalize() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Type = StorageType(strings.ToLower(strings.TrimSpace(string(c.Type))))
	if c.Type == "" {
		c.Type = StorageWebDAV
	}
	if c.SaveDir == "" {
		c.SaveDir = c.Username
	}
	if c.Name == "" {
		c.Name = c.Username
	}
	if c.AutoDownloadLimit == 0 {
		c.AutoDownloadLimit = DefaultAutoDownloadLimit
	}
}

// Root returns ServerPath without surrounding slashes and whitespace.
func (c ServerConfig) Root() string {
	return strings.Trim(strings.TrimSpace(c.ServerPath), "/")
}

// Prefix is the object key prefix "<root>/<saveDir>/" (root may be empty).
func (c ServerConfig) Prefix() string {
	dir := strings.Trim(strings.TrimSpace(c.SaveDir), "/")
	root := c.Root()
	switch {
	case root == "" && dir == "":
		return ""
	case root == "":
		return dir + "/"
	case dir == "":
		return root + "/"
	default:
		return root + "/" + dir + "/"
	}
}

// Validate checks that cfg has what its storage type needs.
func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", common.ErrInvalidAccount)
	}
	switch c.Type {
	case StorageS3:
		if strings.TrimSpace(c.Bucket) == "" {
			return fmt.Errorf("%w: bucket is required", common.ErrInvalidAccount)
		}
	case StorageWebDAV:
		if strings.TrimSpace(c.WebDAVURL) == "" {
			return fmt.Errorf("%w: webdav url is required", common.ErrInvalidAccount)
		}
	default:
		return fmt.Errorf("%w: %q", common.ErrUnsupportedStorage, c.Type)
	}
	return nil
}
