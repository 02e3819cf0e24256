package paths

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withPlatform swaps the OS lookups for the duration of t.
func withPlatform(t *testing.T, goos, home, userConfig string) {
	t.Helper()
	saved := platform
	platform.goos = goos
	platform.homeDir = func() (string, error) { return home, nil }
	platform.userConfigDir = func() (string, error) { return userConfig, nil }
	t.Cleanup(func() { platform = saved })
}

func TestDefaultDirs(t *testing.T) {
	tests := []struct {
		name       string
		goos       string
		xdgConfig  string
		xdgData    string
		wantConfig string
		wantData   string
	}{
		{
			name:       "linux with XDG",
			goos:       "linux",
			xdgConfig:  "/xdg/config",
			xdgData:    "/xdg/data",
			wantConfig: "/xdg/config/caretrack",
			wantData:   "/xdg/data/caretrack",
		},
		{
			name:       "linux without XDG",
			goos:       "linux",
			wantConfig: "/home/nurse/.config/caretrack",
			wantData:   "/home/nurse/.local/share/caretrack",
		},
		{
			name:       "darwin",
			goos:       "darwin",
			xdgConfig:  "/ignored",
			wantConfig: "/Users/nurse/Library/Application Support/caretrack",
			wantData:   "/Users/nurse/Library/Application Support/caretrack",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPlatform(t, tt.goos, "/home/nurse", "/Users/nurse/Library/Application Support")
			t.Setenv("XDG_CONFIG_HOME", tt.xdgConfig)
			t.Setenv("XDG_DATA_HOME", tt.xdgData)

			config, err := DefaultConfigDir()
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, config)

			data, err := DefaultDataDir()
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, data)
		})
	}
}

func TestDefaultConfigDir_HomeError(t *testing.T) {
	withPlatform(t, "linux", "", "")
	platform.homeDir = func() (string, error) { return "", errors.New("no home") }
	t.Setenv("XDG_CONFIG_HOME", "")

	_, err := DefaultConfigDir()
	assert.Error(t, err)
}

func TestResolveConfigDir(t *testing.T) {
	withPlatform(t, "linux", "/home/nurse", "")
	t.Setenv("XDG_CONFIG_HOME", "")

	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{name: "flag wins over env", flag: "/explicit/config", env: "/env/config", want: "/explicit/config"},
		{name: "env when flag empty", env: "/env/config", want: "/env/config"},
		{name: "platform default", want: "/home/nurse/.config/caretrack"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigDir, tt.env)
			got, err := ResolveConfigDir(tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name   string
		flag   string
		config string
		env    string
		want   string
	}{
		{name: "flag wins over all", flag: "/flag/data", config: "/config/data", env: "/env/data", want: "/flag/data"},
		{name: "config wins over env", config: "/config/data", env: "/env/data", want: "/config/data"},
		{name: "env when flag and config empty", env: "/env/data", want: "/env/data"},
		{name: "CWD default", want: filepath.Join(cwd, DefaultDataDirName)},
		{name: "relative flag made absolute", flag: "rel/data", want: filepath.Join(cwd, "rel", "data")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDataDir, tt.env)
			got, err := ResolveDataDir(tt.flag, tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFiles(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/ct", "config.yaml"), ConfigFile("/etc/ct"))
	assert.Equal(t, filepath.Join("/etc/ct", ".env"), EnvFile("/etc/ct"))
}
