package util

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "pinflow"

// GetConfigDir returns the user's configuration directory following platform conventions
// Linux/BSD: $XDG_CONFIG_HOME/pinflow or ~/.config/pinflow
// macOS: ~/Library/Application Support/pinflow
// Windows: %APPDATA%/pinflow
func GetConfigDir() string {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		baseDir = filepath.Join(homeDir, "Library", "Application Support")
	default: // Linux, BSD, etc.
		baseDir = os.Getenv("XDG_CONFIG_HOME")
		if baseDir == "" {
			homeDir, _ := os.UserHomeDir()
			baseDir = filepath.Join(homeDir, ".config")
		}
	}

	return filepath.Join(baseDir, appDir)
}

// GetDataDir returns the user's data directory following platform conventions
// Linux/BSD: $XDG_DATA_HOME/pinflow or ~/.local/share/pinflow
// macOS: ~/Library/Application Support/pinflow
// Windows: %LOCALAPPDATA%/pinflow
func GetDataDir() string {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("LOCALAPPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		baseDir = filepath.Join(homeDir, "Library", "Application Support")
	default: // Linux, BSD, etc.
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, _ := os.UserHomeDir()
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	return filepath.Join(baseDir, appDir)
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// GetDefaultDataPath returns the default operation log directory
func GetDefaultDataPath() string {
	return filepath.Join(GetDataDir(), "oplog")
}
