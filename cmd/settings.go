package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/tripnest/tripsync"
	"github.com/tripnest/tripsync/pkg/constants"
)

const (
	configDir  = ".tripsync"
	configName = "config"
	configType = "toml"
	configFile = configName + "." + configType
	envPrefix  = "TRIPSYNC"
)

// Settings is the content of ~/.tripsync/config.toml. Every key can be
// overridden with a TRIPSYNC_<KEY> environment variable.
type Settings struct {
	WSURL                string        `mapstructure:"ws_url"`
	APIURL               string        `mapstructure:"api_url"`
	Token                string        `mapstructure:"token"`
	UserID               string        `mapstructure:"user_id"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	SnapshotPath         string        `mapstructure:"snapshot_path"`
	PostgresDSN          string        `mapstructure:"postgres_dsn"`
	LogPath              string        `mapstructure:"log_path"`
	Verbose              bool          `mapstructure:"verbose"`
}

func defaultSettings(home string) Settings {
	return Settings{
		WSURL:                "ws://localhost:8080/ws",
		APIURL:               "http://localhost:8080/api",
		HeartbeatInterval:    constants.DefaultHeartbeatInterval,
		ReconnectBaseDelay:   constants.DefaultReconnectBaseDelay,
		MaxReconnectAttempts: constants.DefaultMaxReconnectAttempts,
		SnapshotPath:         filepath.Join(home, configDir, "snapshot.cbor"),
	}
}

func configPath(home string) string {
	return filepath.Join(home, configDir, configFile)
}

// loadSettings reads the config file, if any, and the environment.
func loadSettings(cfg *viper.Viper) (Settings, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Settings{}, fmt.Errorf("resolve home directory: %w", err)
	}

	defaults := defaultSettings(home)
	cfg.SetDefault("ws_url", defaults.WSURL)
	cfg.SetDefault("api_url", defaults.APIURL)
	cfg.SetDefault("token", "")
	cfg.SetDefault("user_id", "")
	cfg.SetDefault("heartbeat_interval", defaults.HeartbeatInterval)
	cfg.SetDefault("reconnect_base_delay", defaults.ReconnectBaseDelay)
	cfg.SetDefault("max_reconnect_attempts", defaults.MaxReconnectAttempts)
	cfg.SetDefault("snapshot_path", defaults.SnapshotPath)
	cfg.SetDefault("postgres_dsn", "")
	cfg.SetDefault("log_path", "")
	cfg.SetDefault("verbose", false)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(home, configDir))
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var s Settings
	if err := cfg.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// clientConfig maps the settings onto the library configuration.
func (s Settings) clientConfig() *tripsync.Config {
	cfg := tripsync.NewConfig(s.WSURL, s.APIURL)
	cfg.HeartbeatInterval = s.HeartbeatInterval
	cfg.ReconnectBaseDelay = s.ReconnectBaseDelay
	cfg.MaxReconnectAttempts = s.MaxReconnectAttempts
	return cfg
}

// redacted hides the token for display.
func (s Settings) redacted() Settings {
	if s.Token != "" {
		s.Token = "***"
	}
	if s.PostgresDSN != "" {
		s.PostgresDSN = "***"
	}
	return s
}

// fileSettings is the on-disk shape: durations are written as strings so
// the file stays readable.
type fileSettings struct {
	WSURL                string `toml:"ws_url"`
	APIURL               string `toml:"api_url"`
	Token                string `toml:"token"`
	UserID               string `toml:"user_id"`
	HeartbeatInterval    string `toml:"heartbeat_interval"`
	ReconnectBaseDelay   string `toml:"reconnect_base_delay"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
	SnapshotPath         string `toml:"snapshot_path"`
	PostgresDSN          string `toml:"postgres_dsn"`
	LogPath              string `toml:"log_path"`
	Verbose              bool   `toml:"verbose"`
}

func encodeSettings(s Settings) ([]byte, error) {
	return toml.Marshal(fileSettings{
		WSURL:                s.WSURL,
		APIURL:               s.APIURL,
		Token:                s.Token,
		UserID:               s.UserID,
		HeartbeatInterval:    s.HeartbeatInterval.String(),
		ReconnectBaseDelay:   s.ReconnectBaseDelay.String(),
		MaxReconnectAttempts: s.MaxReconnectAttempts,
		SnapshotPath:         s.SnapshotPath,
		PostgresDSN:          s.PostgresDSN,
		LogPath:              s.LogPath,
		Verbose:              s.Verbose,
	})
}

// writeDefaultSettings creates the config file. An existing file is kept
// unless force is set.
func writeDefaultSettings(home string, force bool) (string, error) {
	path := configPath(home)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	data, err := encodeSettings(defaultSettings(home))
	if err != nil {
		return path, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, data, 0o600)
}
