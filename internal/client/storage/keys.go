package storage

import (
	"net/url"
	"strings"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
)

// ObjectKey returns "<root>/<saveDir>/<name>" for cfg.
func ObjectKey(cfg models.ServerConfig, name string) string {
	return cfg.Prefix() + name
}

// EscapedKey is ObjectKey with every path segment URL-escaped, suitable for
// building links. Spaces become %20, never "+".
func EscapedKey(cfg models.ServerConfig, name string) string {
	parts := strings.Split(ObjectKey(cfg, name), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// NormalizeEndpoint trims whitespace and a trailing slash and adds
// defaultScheme when the endpoint has none. Empty stays empty.
func NormalizeEndpoint(endpoint, defaultScheme string) string {
	e := strings.TrimSpace(endpoint)
	if e == "" {
		return ""
	}
	if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
		e = defaultScheme + "://" + e
	}
	return strings.TrimRight(e, "/")
}
