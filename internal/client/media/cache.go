// Package media manages the on-disk cache of message payloads and the
// thumbnails generated for them.
package media

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/cloudchat/internal/filex"
)

const tmpSuffix = ".tmp"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName replaces every character outside [a-zA-Z0-9._-] with '_'.
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Cache maps message ids to files under one directory as
// "<id>_<sanitized name>".
type Cache struct {
	dir string
}

// NewCache creates (if needed) the "media" directory under dataDir.
func NewCache(dataDir string) (*Cache, error) {
	dir, err := filex.EnsureSubDir(dataDir, "media")
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) Dir() string { return c.dir }

// Path is the cache location for a message payload.
func (c *Cache) Path(id, name string) string {
	return filepath.Join(c.dir, id+"_"+SanitizeName(name))
}

// TempPath is where an in-flight download is written before it is moved
// into place.
func (c *Cache) TempPath(id, name string) string {
	return c.Path(id, name) + tmpSuffix
}

// Lookup returns the cached path when the payload is present.
func (c *Cache) Lookup(id, name string) (string, bool) {
	p := c.Path(id, name)
	if filex.Exists(p) {
		return p, true
	}
	return "", false
}

// Find returns any cached payload for id, ignoring the file name. It is the
// fallback when the name recorded in the message no longer matches.
func (c *Cache) Find(id string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(c.dir, globEscape(id)+"_*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		if strings.HasSuffix(m, tmpSuffix) {
			continue
		}
		if filex.Exists(m) {
			return m, true
		}
	}
	return "", false
}

// Remove deletes the cached payload and any leftover temp file.
func (c *Cache) Remove(id, name string) {
	_ = os.Remove(c.Path(id, name))
	_ = os.Remove(c.TempPath(id, name))
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
