package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDirName = ".buildchat"

// DataDir returns the base data directory. BUILDCHAT_HOME overrides the
// default of ~/.buildchat.
func DataDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("BUILDCHAT_HOME")); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// ConfigPath returns the path to the TOML configuration file.
func ConfigPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.toml"), nil
}

// PreferencesDBPath returns the path to the preferences database.
func PreferencesDBPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "prefs.db"), nil
}

// LogPath returns the path used when the terminal UI owns stderr.
func LogPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "buildchat.log"), nil
}
