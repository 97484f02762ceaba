package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks the journal directory: $XDG_DATA_HOME/farm, then
// /var/lib/farm, then the per-user application data directory, then
// ~/.farm. Without a home directory it falls back to ./data.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "farm")
	}
	candidates := []struct{ marker, dir string }{
		{"/var/lib", "/var/lib/farm"},
		{filepath.Join(homeDir, "Library"), filepath.Join(homeDir, "Library", "Application Support", "Farm")},
		{filepath.Join(homeDir, "AppData"), filepath.Join(homeDir, "AppData", "Local", "Farm")},
	}
	for _, c := range candidates {
		if isDir(c.marker) {
			return c.dir
		}
	}
	return filepath.Join(homeDir, ".farm")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
