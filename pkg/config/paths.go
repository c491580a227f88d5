package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "patentvae"

// windows: %APPDATA%\patentvae
// macOS: ~/Library/Application Support/patentvae
// linux: $XDG_CONFIG_HOME/patentvae or ~/.config/patentvae
func GetConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(envOrHome("APPDATA", "AppData", "Roaming"), appName)
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	default:
		return filepath.Join(envOrHome("XDG_CONFIG_HOME", ".config"), appName)
	}
}

// windows: %LOCALAPPDATA%\patentvae
// macOS: ~/Library/Caches/patentvae
// linux: $XDG_CACHE_HOME/patentvae or ~/.cache/patentvae
func GetCacheDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(envOrHome("LOCALAPPDATA", "AppData", "Local"), appName)
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches", appName)
	default:
		return filepath.Join(envOrHome("XDG_CACHE_HOME", ".cache"), appName)
	}
}

func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), DefaultFileName)
}

// GetExportDir is where "patentvae export" writes JSONL snapshots by default.
func GetExportDir() string {
	return filepath.Join(GetCacheDir(), "exports")
}

func envOrHome(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return filepath.Join(append([]string{homeDir()}, fallback...)...)
}

// homeDir falls back to the working directory when HOME cannot be resolved,
// so a missing home never prevents the built-in defaults from loading.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
