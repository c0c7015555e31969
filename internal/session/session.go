// Package session stores authenticated sessions keyed by the opaque id held
// in the client's session_id cookie.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/carelink/portal/internal/utils"
)

// CookieName is the cookie that carries the session id.
const CookieName = "session_id"

var ErrNotFound = errors.New("session not found")

type Session struct {
	SessionID string    `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"not null;index" json:"-"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (Session) TableName() string { return "app_auth.sessions" }

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Data converts s into the shape the session gate consumes.
func (s Session) Data() utils.SessionData {
	return utils.SessionData{
		SessionID: s.SessionID,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt,
	}
}

// Store creates, resolves and destroys sessions.
//
// Find returns ErrNotFound for unknown ids. Expired sessions may still be
// returned; callers check ExpiresAt. Delete is idempotent.
type Store interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (Session, error)
	Find(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
