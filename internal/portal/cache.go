package portal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/frederic-klein/fml/internal/mod"
)

// listCachePath reports false when gameVersion cannot be used as part of a
// file name inside the cache directory.
func (c *Client) listCachePath(gameVersion string) (string, bool) {
	if gameVersion == "" {
		gameVersion = "all"
	}
	if strings.ContainsAny(gameVersion, `/\`) || strings.Contains(gameVersion, "..") {
		return "", false
	}
	return filepath.Join(c.cacheDir, fmt.Sprintf("mods-%s.json", gameVersion)), true
}

func (c *Client) isCacheValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < c.cacheTTL
}

func (c *Client) readListCache(gameVersion string) ([]mod.Entry, bool) {
	if c.cacheDir == "" || c.cacheTTL <= 0 {
		return nil, false
	}
	path, ok := c.listCachePath(gameVersion)
	if !ok || !c.isCacheValid(path) {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entries []mod.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("Ignoring unreadable mod list cache", "path", path, "err", err)
		return nil, false
	}
	return entries, true
}

func (c *Client) writeListCache(gameVersion string, entries []mod.Entry) error {
	if c.cacheDir == "" || c.cacheTTL <= 0 {
		return nil
	}
	path, ok := c.listCachePath(gameVersion)
	if !ok {
		return fmt.Errorf("game version %q is not usable in a cache file name", gameVersion)
	}
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding mod list: %w", err)
	}

	// Write to temp file first, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}
