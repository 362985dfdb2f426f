package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDir returns the portman data directory, creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	dir := filepath.Join(home, ".portman")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create .portman directory: %w", err)
	}

	return dir, nil
}

// DBPath returns the registry database path. The PORTMAN_DB environment
// variable overrides the default location.
func DBPath() (string, error) {
	if override := os.Getenv("PORTMAN_DB"); override != "" {
		return override, nil
	}

	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "registry.db"), nil
}
