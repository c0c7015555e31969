package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists accounts and their profiles.
type Store interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	// CreateAccount inserts both rows or neither.
	CreateAccount(ctx context.Context, account *Account, profile *Profile) error
	FindAccountByUsername(ctx context.Context, username string) (Account, error)
	FindAccountByID(ctx context.Context, id string) (Account, error)
	FindProfile(ctx context.Context, accountID string) (Profile, error)
	UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error
	SetStaff(ctx context.Context, accountID string, staff bool) error
	DeleteAccount(ctx context.Context, accountID string) error
	ListProfiles(ctx context.Context) ([]Profile, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Account{}).
		Where("LOWER(username) = LOWER(?)", username).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) CreateAccount(ctx context.Context, account *Account, profile *Profile) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		profile.AccountID = account.ID
		return tx.Omit(clause.Associations).Create(profile).Error
	})
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *GormStore) FindAccountByUsername(ctx context.Context, username string) (Account, error) {
	var a Account
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?)", username).
		First(&a).Error
	return a, notFound(err, "find account")
}

func (s *GormStore) FindAccountByID(ctx context.Context, id string) (Account, error) {
	var a Account
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	return a, notFound(err, "find account")
}

func (s *GormStore) FindProfile(ctx context.Context, accountID string) (Profile, error) {
	var p Profile
	err := s.db.WithContext(ctx).First(&p, "account_id = ?", accountID).Error
	return p, notFound(err, "find profile")
}

func (s *GormStore) UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", accountID).
		Update("last_login", at).Error
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (s *GormStore) SetStaff(ctx context.Context, accountID string, staff bool) error {
	res := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", accountID).
		Update("is_staff", staff)
	if res.Error != nil {
		return fmt.Errorf("set staff: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount removes the account; the profile and sessions go with it
// through ON DELETE CASCADE.
func (s *GormStore) DeleteAccount(ctx context.Context, accountID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", accountID).Delete(&Account{})
	if res.Error != nil {
		return fmt.Errorf("delete account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	err := s.db.WithContext(ctx).
		Preload("Account").
		Order("created_at").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func notFound(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
