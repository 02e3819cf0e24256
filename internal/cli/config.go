package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/caretrack/internal/delta"
	"github.com/mesh-intelligence/caretrack/internal/netmon"
	"github.com/mesh-intelligence/caretrack/internal/paths"
	"github.com/mesh-intelligence/caretrack/internal/remote"
	"github.com/mesh-intelligence/caretrack/internal/status"
	"github.com/mesh-intelligence/caretrack/internal/syncqueue"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// envPrefix namespaces environment overrides, e.g. CARETRACK_REMOTE_API_KEY.
const envPrefix = "CARETRACK"

// Config keys.
const (
	keyBackend       = "backend"
	keyDataDir       = "data_dir"
	keyPracticeID    = "practice_id"
	keyRemoteURL     = "remote.url"
	keyRemoteAPIKey  = "remote.api_key"
	keyRemoteTimeout = "remote.timeout"
	keyMaxRetries    = "sync.max_retries"
	keyProbeURL      = "netmon.probe_url"
	keyProbeInterval = "netmon.probe_interval"
	keyWindowDays    = "scoring.window_days"
	keyWeights       = "scoring.weights"
	keyLogLevel      = "log.level"
	keyLogFormat     = "log.format"
	keyServeAddr     = "serve.addr"
)

// envKeys are the keys environment variables may override. data_dir is
// absent because it follows its own precedence in paths.ResolveDataDir.
var envKeys = []string{
	keyBackend, keyPracticeID, keyRemoteURL, keyRemoteAPIKey, keyRemoteTimeout,
	keyMaxRetries, keyProbeURL, keyProbeInterval, keyWindowDays,
	keyLogLevel, keyLogFormat, keyServeAddr,
}

// Settings is the decoded and validated configuration.
type Settings struct {
	Backend    string          `mapstructure:"backend" validate:"required,oneof=sqlite badger"`
	DataDir    string          `mapstructure:"data_dir"`
	PracticeID string          `mapstructure:"practice_id"`
	Remote     RemoteSettings  `mapstructure:"remote"`
	Sync       SyncSettings    `mapstructure:"sync"`
	Netmon     NetmonSettings  `mapstructure:"netmon"`
	Scoring    ScoringSettings `mapstructure:"scoring"`
	Log        LogSettings     `mapstructure:"log"`
	Serve      ServeSettings   `mapstructure:"serve"`
}

// RemoteSettings configures the hosted backend client.
type RemoteSettings struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// SyncSettings configures the sync queue.
type SyncSettings struct {
	MaxRetries int `mapstructure:"max_retries" validate:"gte=1,lte=100"`
}

// NetmonSettings configures connectivity probing.
type NetmonSettings struct {
	ProbeURL      string        `mapstructure:"probe_url" validate:"omitempty,url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"gte=0"`
}

// ScoringSettings configures the scoring and delta engines.
type ScoringSettings struct {
	WindowDays int                `mapstructure:"window_days" validate:"gte=1,lte=3650"`
	Weights    map[string]float64 `mapstructure:"weights"`
}

// LogSettings configures logrus.
type LogSettings struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ServeSettings configures the status server.
type ServeSettings struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// StoreConfig returns the backend config for dataDir.
func (s Settings) StoreConfig(dataDir string) types.Config {
	return types.Config{Backend: s.Backend, DataDir: dataDir}
}

// ProbeURL returns the connectivity probe target, defaulting to the remote
// REST root.
func (s Settings) ProbeURL() string {
	if s.Netmon.ProbeURL != "" {
		return s.Netmon.ProbeURL
	}
	if s.Remote.URL != "" {
		return strings.TrimRight(s.Remote.URL, "/") + "/rest/v1/"
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyBackend, types.BackendSQLite)
	v.SetDefault(keyDataDir, "")
	v.SetDefault(keyPracticeID, "")
	v.SetDefault(keyRemoteURL, "")
	v.SetDefault(keyRemoteAPIKey, "")
	v.SetDefault(keyRemoteTimeout, remote.DefaultTimeout)
	v.SetDefault(keyMaxRetries, syncqueue.DefaultMaxRetries)
	v.SetDefault(keyProbeURL, "")
	v.SetDefault(keyProbeInterval, netmon.DefaultProbeInterval)
	v.SetDefault(keyWindowDays, delta.DefaultWindowDays)
	v.SetDefault(keyWeights, map[string]float64{})
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyServeAddr, status.DefaultAddr)
}

// newViper builds a viper instance for configDir with defaults, the optional
// config.yaml and environment overrides. A .env file in configDir or the
// working directory is loaded first; it never overrides variables that are
// already set.
func newViper(configDir string) (*viper.Viper, error) {
	for _, f := range []string{paths.EnvFile(configDir), paths.EnvFileName} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(paths.ConfigFile(configDir))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config.yaml is not an error.
		if !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

var validate = validator.New()

// decodeSettings unmarshals and validates v.
func decodeSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// loadSettings reads and validates the configuration in configDir.
func loadSettings(configDir string) (*viper.Viper, Settings, error) {
	v, err := newViper(configDir)
	if err != nil {
		return nil, Settings{}, err
	}
	s, err := decodeSettings(v)
	if err != nil {
		return nil, Settings{}, err
	}
	return v, s, nil
}

// configFile is the structure init writes to config.yaml.
type configFile struct {
	Backend    string `yaml:"backend"`
	DataDir    string `yaml:"data_dir,omitempty"`
	PracticeID string `yaml:"practice_id"`
	Remote     struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"remote"`
	Sync struct {
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"sync"`
	Scoring struct {
		WindowDays int `yaml:"window_days"`
	} `yaml:"scoring"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// writeConfigIfMissing creates config.yaml with default values. An existing
// file is left alone.
func writeConfigIfMissing(path string, s Settings, dataDir string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	var cfg configFile
	cfg.Backend = s.Backend
	cfg.DataDir = dataDir
	cfg.PracticeID = s.PracticeID
	cfg.Remote.URL = s.Remote.URL
	cfg.Sync.MaxRetries = s.Sync.MaxRetries
	cfg.Scoring.WindowDays = s.Scoring.WindowDays
	cfg.Log.Level = s.Log.Level

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# caretrack configuration\n# Secrets such as remote.api_key are better kept in .env as CARETRACK_REMOTE_API_KEY.\n")
	if err := os.WriteFile(path, append(header, data...), 0o600); err != nil {
		return false, err
	}
	return true, nil
}
