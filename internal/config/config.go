// Package config builds the startup configuration for the portal server and
// its command line tools.
//
// Values are layered: defaults, then .env.local, then an optional YAML file
// named by CONFIG_FILE, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"

	MediaBackendLocal = "local"
	MediaBackendS3    = "s3"
)

var (
	ErrMissingSecretKey   = errors.New("SECRET_KEY is empty")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrMissingS3Bucket    = errors.New("S3_BUCKET is required when MEDIA_BACKEND is s3")
)

// Config holds every environment-driven setting of the portal.
type Config struct {
	Port        string `yaml:"port"`
	SecretKey   string `yaml:"secret_key"`
	Debug       bool   `yaml:"debug"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`

	SessionBackend string        `yaml:"session_backend"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`

	MediaBackend   string `yaml:"media_backend"`
	MediaRoot      string `yaml:"media_root"`
	MediaURL       string `yaml:"media_url"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	BcryptCost         int `yaml:"bcrypt_cost"`
	LoginRatePerMinute int `yaml:"login_rate_per_minute"`
}

// LoadDefaults populates c with development defaults. SecretKey and
// DatabaseURL have no default and must be supplied.
func (c *Config) LoadDefaults() {
	c.Port = "5050"
	c.LogLevel = "info"
	c.SessionBackend = SessionBackendPostgres
	c.SessionTTL = 14 * 24 * time.Hour
	c.RedisAddr = "localhost:6379"
	c.MediaBackend = MediaBackendLocal
	c.MediaRoot = "media"
	c.MediaURL = "/media/"
	c.S3Region = "us-east-1"
	c.MaxUploadBytes = 5 << 20
	c.BcryptCost = bcrypt.DefaultCost
	c.LoginRatePerMinute = 10
}

// Load builds a Config from defaults, .env.local, CONFIG_FILE and the
// environment. The result is not validated; call Validate.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")

	cfg := &Config{}
	cfg.LoadDefaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.SecretKey, "SECRET_KEY")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SessionBackend, "SESSION_BACKEND")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.MediaBackend, "MEDIA_BACKEND")
	setString(&c.MediaRoot, "MEDIA_ROOT")
	setString(&c.MediaURL, "MEDIA_URL")
	setString(&c.S3Bucket, "S3_BUCKET")
	setString(&c.S3Region, "S3_REGION")
	setString(&c.S3Endpoint, "S3_ENDPOINT")
	setString(&c.S3AccessKey, "S3_ACCESS_KEY")
	setString(&c.S3SecretKey, "S3_SECRET_KEY")

	if v, ok := lookup("DEBUG"); ok {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("DEBUG: %w", err)
		}
		c.Debug = b
	}
	if v, ok := lookup("SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"REDIS_DB", &c.RedisDB},
		{"BCRYPT_COST", &c.BcryptCost},
		{"LOGIN_RATE_PER_MINUTE", &c.LoginRatePerMinute},
	}
	for _, it := range ints {
		v, ok := lookup(it.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", it.key, err)
		}
		*it.dst = n
	}

	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	return nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return ErrMissingSecretKey
	}
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}

	switch c.SessionBackend {
	case SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	switch c.MediaBackend {
	case MediaBackendLocal:
	case MediaBackendS3:
		if c.S3Bucket == "" {
			return ErrMissingS3Bucket
		}
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND %q", c.MediaBackend)
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be within [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return !c.Debug
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on", "y", "t":
		return true, nil
	case "0", "false", "no", "off", "n", "f":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}
