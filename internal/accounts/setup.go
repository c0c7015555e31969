package accounts

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/carelink/portal/internal/config"
	"github.com/carelink/portal/internal/logging"
	"github.com/carelink/portal/internal/media"
	"github.com/carelink/portal/internal/session"
)

// Init wires the account service to the configured backends. The returned
// cleanup releases connections the service opened; it is never nil.
func Init(ctx context.Context, cfg *config.Config, gdb *gorm.DB, log logging.Logger) (*Service, func() error, error) {
	sessions, closeSessions, err := NewSessionStore(ctx, cfg, gdb)
	if err != nil {
		return nil, noop, err
	}

	storage, err := NewMediaStorage(ctx, cfg)
	if err != nil {
		closeSessions()
		return nil, noop, err
	}

	svc, err := NewService(NewGormStore(gdb), sessions, NewBcryptHasher(cfg.BcryptCost), storage, log, Options{
		SessionTTL:     cfg.SessionTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		closeSessions()
		return nil, noop, err
	}

	log.Info(ctx, "accounts module initialized",
		"session_backend", cfg.SessionBackend,
		"media_backend", cfg.MediaBackend,
	)
	return svc, closeSessions, nil
}

func noop() error { return nil }

// NewSessionStore returns the session backend named by cfg.SessionBackend.
func NewSessionStore(ctx context.Context, cfg *config.Config, gdb *gorm.DB) (session.Store, func() error, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb, err := session.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return session.NewRedisStore(rdb), rdb.Close, nil
	case config.SessionBackendPostgres, "":
		return session.NewPostgresStore(gdb), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

// NewMediaStorage returns the picture backend named by cfg.MediaBackend.
func NewMediaStorage(ctx context.Context, cfg *config.Config) (media.Storage, error) {
	switch cfg.MediaBackend {
	case config.MediaBackendS3:
		client, err := media.NewS3Client(ctx, media.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			BaseURL:   cfg.MediaURL,
		})
		if err != nil {
			return nil, err
		}
		return media.NewS3Storage(client, cfg.S3Bucket, cfg.MediaURL), nil
	case config.MediaBackendLocal, "":
		return media.NewLocalStorage(cfg.MediaRoot, cfg.MediaURL), nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.MediaBackend)
	}
}
