// file: config/config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Environment variables holding the Spotify credentials
const (
	EnvClientID     = "SPOTIFY_CLIENT_ID"
	EnvClientSecret = "SPOTIFY_CLIENT_SECRET"
	EnvRefreshToken = "SPOTIFY_REFRESH_TOKEN"
)

// ErrMissingCredentials is returned by Load when any Spotify credential is unset
var ErrMissingCredentials = errors.New("please set the necessary environment variables " +
	EnvClientID + ", " + EnvClientSecret + ", " + EnvRefreshToken)

type Config struct {
	Spotify SpotifyConfig `mapstructure:"spotify" yaml:"spotify"`
	Polling PollingConfig `mapstructure:"polling" yaml:"polling"`
	Artwork ArtworkConfig `mapstructure:"artwork" yaml:"artwork"`
	Logging LogConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
}

type SpotifyConfig struct {
	ClientID       string        `mapstructure:"clientId" yaml:"clientId"`
	ClientSecret   string        `mapstructure:"clientSecret" yaml:"clientSecret"`
	RefreshToken   string        `mapstructure:"refreshToken" yaml:"refreshToken"`
	TokenURL       string        `mapstructure:"tokenUrl" yaml:"tokenUrl"`
	NowPlayingURL  string        `mapstructure:"nowPlayingUrl" yaml:"nowPlayingUrl"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout" yaml:"requestTimeout"`
}

type PollingConfig struct {
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`             // delay after a normal tick
	TokenBackoff   time.Duration `mapstructure:"tokenBackoff" yaml:"tokenBackoff"`     // delay after a token failure
	PlayingBackoff time.Duration `mapstructure:"playingBackoff" yaml:"playingBackoff"` // delay after a now-playing failure
	StartupDelay   time.Duration `mapstructure:"startupDelay" yaml:"startupDelay"`     // wait before the first tick
}

type ArtworkConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	MaxWidth  int    `mapstructure:"maxWidth" yaml:"maxWidth"`   // 0 = keep original size
	MaxHeight int    `mapstructure:"maxHeight" yaml:"maxHeight"` // 0 = keep original size
	Command   string `mapstructure:"command" yaml:"command"`     // display command, {path} is substituted
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`       // debug, info, warn, error
	Encoding   string `mapstructure:"encoding" yaml:"encoding"` // json or console
	File       string `mapstructure:"file" yaml:"file"`         // rotating log file, empty disables it
	MaxSizeMB  int    `mapstructure:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type NATSConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	URLs      []string `mapstructure:"urls" yaml:"urls"`
	Subject   string   `mapstructure:"subject" yaml:"subject"`
	Bucket    string   `mapstructure:"bucket" yaml:"bucket"` // optional KV bucket for the latest cover
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`
	Token     string   `mapstructure:"token" yaml:"token"`
	NKeySeed  string   `mapstructure:"nkeySeed" yaml:"nkeySeed"`
	CredsFile string   `mapstructure:"credsFile" yaml:"credsFile"`

	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Enable   bool   `mapstructure:"enable" yaml:"enable"`
	CertFile string `mapstructure:"certFile" yaml:"certFile"`
	KeyFile  string `mapstructure:"keyFile" yaml:"keyFile"`
	CAFile   string `mapstructure:"caFile" yaml:"caFile"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"` // Skip certificate verification
}

// Load reads configuration from an optional YAML file, an optional .env file
// and the process environment. Empty paths are skipped.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := applyEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COVER_DISPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep the well-known Spotify variable names
	bindings := map[string]string{
		"spotify.clientId":     EnvClientID,
		"spotify.clientSecret": EnvClientSecret,
		"spotify.refreshToken": EnvRefreshToken,
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envFileKeys remembers which variables were set from the env file, so a
// reload can update them while variables from the process environment keep
// winning
var (
	envFileMu   sync.Mutex
	envFileKeys = map[string]bool{}
)

func applyEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	envFileMu.Lock()
	defer envFileMu.Unlock()

	for key := range envFileKeys {
		if _, ok := values[key]; !ok {
			os.Unsetenv(key)
			delete(envFileKeys, key)
		}
	}

	for key, value := range values {
		if _, set := os.LookupEnv(key); set && !envFileKeys[key] {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s from env file: %w", key, err)
		}
		envFileKeys[key] = true
	}

	return nil
}

// setDefaults registers every key so environment overrides are picked up by Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("spotify.clientId", "")
	v.SetDefault("spotify.clientSecret", "")
	v.SetDefault("spotify.refreshToken", "")
	v.SetDefault("spotify.tokenUrl", "https://accounts.spotify.com/api/token")
	v.SetDefault("spotify.nowPlayingUrl", "https://api.spotify.com/v1/me/player/currently-playing")
	v.SetDefault("spotify.requestTimeout", 30*time.Second)

	v.SetDefault("polling.interval", 10*time.Second)
	v.SetDefault("polling.tokenBackoff", 10*time.Minute)
	v.SetDefault("polling.playingBackoff", 1*time.Minute)
	v.SetDefault("polling.startupDelay", time.Duration(0))

	v.SetDefault("artwork.path", "cover.jpg")
	v.SetDefault("artwork.maxWidth", 0)
	v.SetDefault("artwork.maxHeight", 0)
	v.SetDefault("artwork.command", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.file", "cover_display.log")
	v.SetDefault("logging.maxSizeMB", 1)
	v.SetDefault("logging.maxBackups", 1)
	v.SetDefault("logging.maxAgeDays", 0)
	v.SetDefault("logging.compress", false)
	v.SetDefault("logging.console", true)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":2114")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.subject", "cover-display.cover.changed")
	v.SetDefault("nats.bucket", "")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.nkeySeed", "")
	v.SetDefault("nats.credsFile", "")
	v.SetDefault("nats.tls.enable", false)
	v.SetDefault("nats.tls.certFile", "")
	v.SetDefault("nats.tls.keyFile", "")
	v.SetDefault("nats.tls.caFile", "")
	v.SetDefault("nats.tls.insecure", false)
}

// validate ensures configuration is valid
func validate(cfg *Config) error {
	var missing []string
	if cfg.Spotify.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if cfg.Spotify.ClientSecret == "" {
		missing = append(missing, EnvClientSecret)
	}
	if cfg.Spotify.RefreshToken == "" {
		missing = append(missing, EnvRefreshToken)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w (missing: %s)", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if cfg.Spotify.TokenURL == "" {
		return fmt.Errorf("spotify tokenUrl cannot be empty")
	}
	if cfg.Spotify.NowPlayingURL == "" {
		return fmt.Errorf("spotify nowPlayingUrl cannot be empty")
	}
	if cfg.Spotify.RequestTimeout <= 0 {
		return fmt.Errorf("spotify requestTimeout must be positive")
	}

	if cfg.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if cfg.Polling.TokenBackoff <= 0 || cfg.Polling.PlayingBackoff <= 0 {
		return fmt.Errorf("polling backoffs must be positive")
	}
	if cfg.Polling.StartupDelay < 0 {
		return fmt.Errorf("polling startupDelay cannot be negative")
	}

	if cfg.Artwork.Path == "" {
		return fmt.Errorf("artwork path cannot be empty")
	}
	if cfg.Artwork.MaxWidth < 0 || cfg.Artwork.MaxHeight < 0 {
		return fmt.Errorf("artwork maxWidth/maxHeight cannot be negative")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	if cfg.Logging.File == "" && !cfg.Logging.Console {
		return fmt.Errorf("at least one log sink (file or console) is required")
	}

	if cfg.NATS.Enabled {
		if err := validateNATS(&cfg.NATS); err != nil {
			return err
		}
	}

	return nil
}

func validateNATS(cfg *NATSConfig) error {
	if len(cfg.URLs) == 0 {
		return fmt.Errorf("at least one NATS URL required")
	}
	if cfg.Subject == "" {
		return fmt.Errorf("NATS subject cannot be empty")
	}

	// Auth method validation (only one allowed)
	authCount := 0
	if cfg.Username != "" {
		authCount++
	}
	if cfg.Token != "" {
		authCount++
	}
	if cfg.NKeySeed != "" {
		authCount++
	}
	if cfg.CredsFile != "" {
		authCount++
	}
	if authCount > 1 {
		return fmt.Errorf("only one NATS auth method allowed")
	}

	if cfg.TLS.Enable {
		if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
			return fmt.Errorf("NATS TLS requires both certFile and keyFile to be specified together")
		}
	}

	if cfg.CredsFile != "" {
		if _, err := os.Stat(cfg.CredsFile); os.IsNotExist(err) {
			return fmt.Errorf("NATS creds file does not exist: %s", cfg.CredsFile)
		}
	}

	return nil
}

// Redacted returns a copy with every secret masked
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}

	c.Spotify.ClientSecret = mask(c.Spotify.ClientSecret)
	c.Spotify.RefreshToken = mask(c.Spotify.RefreshToken)
	c.NATS.Password = mask(c.NATS.Password)
	c.NATS.Token = mask(c.NATS.Token)
	c.NATS.NKeySeed = mask(c.NATS.NKeySeed)
	return c
}

// YAML renders the redacted configuration
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
