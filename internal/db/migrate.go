package db

import (
	"context"
	"embed"
	"fmt"
	"io"
	"log"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrations embed.FS

func setupGoose() error {
	goose.SetBaseFS(migrations)
	goose.SetTableName(Schema + ".goose_db_version")
	return goose.SetDialect("postgres")
}

// Migrate creates the schema and applies every pending migration.
func Migrate(ctx context.Context, d *gorm.DB) error {
	if err := EnsureSchema(d, Schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", Schema, err)
	}
	if err := setupGoose(); err != nil {
		return err
	}

	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, d *gorm.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	return goose.DownContext(ctx, sqlDB, "migrations")
}

// Status prints the state of every migration to w.
func Status(ctx context.Context, d *gorm.DB, w io.Writer) error {
	if err := setupGoose(); err != nil {
		return err
	}
	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	goose.SetLogger(log.New(w, "", 0))
	return goose.StatusContext(ctx, sqlDB, "migrations")
}
