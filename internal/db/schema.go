package db

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Schema holds every table owned by the portal.
const Schema = "app_auth"

func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(schema)).Error
}
