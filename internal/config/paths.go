package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Paths struct {
	BaseDir    string
	DBPath     string
	ConfigPath string
}

func ResolvePaths(appSlug string) (Paths, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user config dir: %w", err)
	}
	return PathsIn(filepath.Join(configDir, appSlug))
}

// PathsIn lays the app files out under baseDir, creating it if needed.
func PathsIn(baseDir string) (Paths, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	return Paths{
		BaseDir:    baseDir,
		DBPath:     filepath.Join(baseDir, "mediabridge.db"),
		ConfigPath: filepath.Join(baseDir, "config.yaml"),
	}, nil
}
