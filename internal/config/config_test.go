package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func validConfig() *Config {
	c := &Config{}
	c.LoadDefaults()
	c.SecretKey = "test-secret"
	c.DatabaseURL = "postgres://localhost/portal"
	return c
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "5050", c.Port)
	assert.Equal(t, SessionBackendPostgres, c.SessionBackend)
	assert.Equal(t, 14*24*time.Hour, c.SessionTTL)
	assert.Equal(t, MediaBackendLocal, c.MediaBackend)
	assert.Equal(t, "/media/", c.MediaURL)
	assert.Equal(t, bcrypt.DefaultCost, c.BcryptCost)
	assert.Equal(t, 10, c.LoginRatePerMinute)
	assert.Empty(t, c.SecretKey)
	assert.False(t, c.Debug)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	yml := "port: \"8080\"\nsecret_key: from-file\nsession_backend: redis\nsession_ttl: 6h\nredis_db: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("DEBUG", "on")
	t.Setenv("DATABASE_URL", "postgres://db/portal")
	t.Setenv("BCRYPT_COST", "4")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "from-env", c.SecretKey)
	assert.Equal(t, SessionBackendRedis, c.SessionBackend)
	assert.Equal(t, 6*time.Hour, c.SessionTTL)
	assert.Equal(t, 2, c.RedisDB)
	assert.Equal(t, 4, c.BcryptCost)
	assert.True(t, c.Debug)
	assert.False(t, c.SecureCookies())
	require.NoError(t, c.Validate())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DEBUG", "maybe"},
		{"SESSION_TTL", "two weeks"},
		{"REDIS_DB", "zero"},
		{"MAX_UPLOAD_BYTES", "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		wantMsg string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "no secret", mutate: func(c *Config) { c.SecretKey = "" }, wantErr: ErrMissingSecretKey},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: ErrMissingDatabaseURL},
		{name: "bad session backend", mutate: func(c *Config) { c.SessionBackend = "memcached" }, wantMsg: "SESSION_BACKEND"},
		{name: "zero ttl", mutate: func(c *Config) { c.SessionTTL = 0 }, wantMsg: "SESSION_TTL"},
		{name: "bad media backend", mutate: func(c *Config) { c.MediaBackend = "ftp" }, wantMsg: "MEDIA_BACKEND"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.MediaBackend = MediaBackendS3 }, wantErr: ErrMissingS3Bucket},
		{name: "s3 with bucket", mutate: func(c *Config) { c.MediaBackend = MediaBackendS3; c.S3Bucket = "pics" }},
		{name: "cost too high", mutate: func(c *Config) { c.BcryptCost = 99 }, wantMsg: "BCRYPT_COST"},
		{name: "no upload budget", mutate: func(c *Config) { c.MaxUploadBytes = 0 }, wantMsg: "MAX_UPLOAD_BYTES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				assert.ErrorContains(t, err, tt.wantMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
