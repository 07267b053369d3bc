package config

import (
	"os"
	"path/filepath"
)

// Paths holds XDG-style directories the gateway uses for local state when
// running with the fs object-store backend.
type Paths struct {
	Data  string // ~/.local/share/sandbox-gateway
	Cache string // ~/.cache/sandbox-gateway
}

// GetPaths returns the standard local-state directories.
func GetPaths() *Paths {
	return &Paths{
		Data:  filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "sandbox-gateway"),
		Cache: filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "sandbox-gateway"),
	}
}

// EnsurePaths creates every directory in Paths.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Cache} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultCacheHome() string {
	return filepath.Join(os.Getenv("HOME"), ".cache")
}
