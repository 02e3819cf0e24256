// Package paths resolves where caretrack keeps its configuration and its
// offline store.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under platform config and data roots.
const AppName = "caretrack"

// DefaultDataDirName is the CWD-relative data directory used when nothing
// else is configured.
const DefaultDataDirName = ".caretrack-db"

// File names inside the config directory.
const (
	ConfigFileName = "config.yaml"
	EnvFileName    = ".env"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "CARETRACK_CONFIG_DIR"
	EnvDataDir   = "CARETRACK_DATA_DIR"
)

// platform holds OS lookups that tests replace.
var platform = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgRoot returns $env or ~/<fallback...> on Linux, and the OS user config
// directory elsewhere (~/Library/Application Support, %APPDATA%).
func xdgRoot(env string, fallback ...string) (string, error) {
	if platform.goos != "linux" {
		return platform.userConfigDir()
	}
	if dir := os.Getenv(env); dir != "" {
		return dir, nil
	}
	home, err := platform.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// DefaultConfigDir returns the platform configuration directory.
func DefaultConfigDir() (string, error) {
	root, err := xdgRoot("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(root, AppName), nil
}

// DefaultDataDir returns the platform data directory. The CLI only uses it
// when asked explicitly; its default store lives next to the working
// directory.
func DefaultDataDir() (string, error) {
	root, err := xdgRoot("XDG_DATA_HOME", ".local", "share")
	if err != nil {
		return "", err
	}
	return filepath.Join(root, AppName), nil
}

// ResolveConfigDir applies the precedence flag > CARETRACK_CONFIG_DIR >
// DefaultConfigDir. Explicit values are made absolute.
func ResolveConfigDir(flag string) (string, error) {
	for _, v := range []string{flag, os.Getenv(EnvConfigDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies the precedence flag > config value >
// CARETRACK_DATA_DIR > $(CWD)/.caretrack-db. The result is absolute.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the config.yaml path inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// EnvFile returns the .env path inside configDir.
func EnvFile(configDir string) string {
	return filepath.Join(configDir, EnvFileName)
}
