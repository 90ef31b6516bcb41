package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type TLSConfig struct {
	Mode     string `json:"mode"`     // "self-signed", "manual", or "" (disabled)
	CertFile string `json:"certFile"` // required for manual
	KeyFile  string `json:"keyFile"`  // required for manual
	CacheDir string `json:"cacheDir"` // for self-signed; defaults to ~/.jamoveo/certs
}

type AuthConfig struct {
	JWTSecret       string `json:"jwtSecret"`
	AccessTokenTTL  string `json:"accessTokenTTL"`
	RefreshTokenTTL string `json:"refreshTokenTTL"`
}

type WebserverConfig struct {
	Port           int        `json:"port"`
	Host           string     `json:"host"`
	AllowedOrigins []string   `json:"allowedOrigins"`
	TLS            TLSConfig  `json:"tls"`
	Auth           AuthConfig `json:"auth"`
}

type LiveConfig struct {
	// SendBuffer is the number of outbound frames queued per connection
	// before further broadcasts to it are dropped.
	SendBuffer      int    `json:"sendBuffer"`
	EndSessionDelay string `json:"endSessionDelay"`
}

type NotificationsConfig struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

type Config struct {
	Webserver     WebserverConfig     `json:"webserver"`
	Live          LiveConfig          `json:"live"`
	Notifications NotificationsConfig `json:"notifications"`
	DBPath        string              `json:"dbPath"`
	LogDir        string              `json:"logDir"`
	LogLevel      string              `json:"logLevel"`
}

func baseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".jamoveo")
}

func Defaults() Config {
	return Config{
		Webserver: WebserverConfig{
			Port: 3000,
			Host: "0.0.0.0",
			AllowedOrigins: []string{
				"http://localhost:443",
				"http://localhost:5173",
			},
			Auth: AuthConfig{
				AccessTokenTTL:  "15m",
				RefreshTokenTTL: "24h",
			},
		},
		Live: LiveConfig{
			SendBuffer:      64,
			EndSessionDelay: "100ms",
		},
		DBPath:   filepath.Join(baseDir(), "jamoveo.db"),
		LogDir:   filepath.Join(baseDir(), "logs"),
		LogLevel: "info",
	}
}

func DefaultPath() string {
	return filepath.Join(baseDir(), "config.json")
}

func CertCacheDir() string {
	return filepath.Join(baseDir(), "certs")
}

// Load reads path over Defaults. A missing file yields the defaults.
// JAMOVEO_PORT and JAMOVEO_DB override the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JAMOVEO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Webserver.Port = port
		}
	}
	if v := os.Getenv("JAMOVEO_DB"); v != "" {
		cfg.DBPath = v
	}
}

// Save writes cfg to path as indented JSON, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureJWTSecret generates a random signing secret if cfg has none and
// persists it to path so tokens survive restarts.
func EnsureJWTSecret(path string, cfg *Config) error {
	if cfg.Webserver.Auth.JWTSecret != "" {
		return nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	cfg.Webserver.Auth.JWTSecret = hex.EncodeToString(b)
	return Save(path, *cfg)
}

// Duration parses s, returning fallback when s is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
