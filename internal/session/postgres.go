package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostgresStore keeps sessions in the app_auth.sessions table.
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, userID string, ttl time.Duration) (Session, error) {
	now := s.now()
	sess := Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Find(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).First(&sess, "session_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("session_id = ?", id).Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
