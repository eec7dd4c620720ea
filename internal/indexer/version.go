package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IndexVersion is the schema version of the result index.
// Bump it whenever SiteRecord or the table layout changes; existing caches
// are wiped and rebuilt on the next run.
const IndexVersion = 2

const versionFileName = "index_version"

// CheckAndMigrateCache wipes cacheDir unless it was written by the current
// IndexVersion. Returns true if the cache was cleared.
func CheckAndMigrateCache(cacheDir string) (bool, error) {
	versionFile := filepath.Join(cacheDir, versionFileName)

	data, err := os.ReadFile(versionFile)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read version file: %w", err)
	}

	if err == nil {
		stored, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && stored == IndexVersion {
			return false, nil
		}
	}

	// missing, corrupted or outdated
	if err := clearCacheDir(cacheDir); err != nil {
		return false, fmt.Errorf("failed to clear cache: %w", err)
	}
	if err := os.WriteFile(versionFile, []byte(strconv.Itoa(IndexVersion)), 0644); err != nil {
		return false, fmt.Errorf("failed to write version: %w", err)
	}

	return true, nil
}

// clearCacheDir removes everything inside cacheDir, creating it if needed
func clearCacheDir(cacheDir string) error {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(cacheDir, 0755)
		}
		return err
	}

	for _, entry := range entries {
		path := filepath.Join(cacheDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	return nil
}
