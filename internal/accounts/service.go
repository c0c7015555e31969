package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/portal/internal/logging"
	"github.com/carelink/portal/internal/media"
	"github.com/carelink/portal/internal/session"
)

type Options struct {
	SessionTTL     time.Duration
	MaxUploadBytes int64
	// Validators defaults to DefaultPasswordValidators.
	Validators []PasswordValidator
	Now        func() time.Time
}

// Service runs the registration, login and dashboard workflows.
type Service struct {
	store    Store
	sessions session.Store
	hasher   Hasher
	media    media.Storage
	log      logging.Logger
	opts     Options

	// dummyHash is verified against for unknown usernames so a miss costs
	// the same as a wrong password.
	dummyHash string
}

func NewService(store Store, sessions session.Store, hasher Hasher, storage media.Storage, log logging.Logger, opts Options) (*Service, error) {
	if opts.SessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if opts.Validators == nil {
		opts.Validators = DefaultPasswordValidators()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logging.Discard()
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &Service{
		store:     store,
		sessions:  sessions,
		hasher:    hasher,
		media:     storage,
		log:       log.With("component", "accounts"),
		opts:      opts,
		dummyHash: dummy,
	}, nil
}

// Sessions exposes the session backend for the session gate.
func (s *Service) Sessions() session.Store {
	return s.sessions
}

// PasswordHelp lists the password rules shown next to the signup form.
func (s *Service) PasswordHelp() []string {
	return PasswordHelp(s.opts.Validators)
}

// MediaURL resolves a stored picture path.
func (s *Service) MediaURL(p string) string {
	if p == "" || s.media == nil {
		return ""
	}
	return s.media.URL(p)
}

// Register validates form and creates the account with its profile. Any
// rejection is returned as a *ValidationError holding every field error.
func (s *Service) Register(ctx context.Context, form SignupForm) (Account, error) {
	fe := form.Clean()

	if !fe.Has("username") {
		taken, err := s.store.UsernameExists(ctx, form.Username)
		if err != nil {
			return Account{}, err
		}
		if taken {
			fe.Add("username", msgUsernameTaken)
		}
	}

	if !fe.Has("password1") && !fe.Has("password2") {
		attrs := form.attributes()
		for _, v := range s.opts.Validators {
			if err := v.Validate(form.Password2, attrs); err != nil {
				fe.Add("password2", err.Error())
			}
		}
	}

	var img *media.Image
	if form.ProfilePicture != nil {
		validated, err := media.ValidateImage(form.ProfilePicture.Data, s.opts.MaxUploadBytes)
		switch {
		case errors.Is(err, media.ErrTooLarge):
			fe.Add("profile_picture", msgImageTooLarge)
		case err != nil:
			fe.Add("profile_picture", msgInvalidImage)
		default:
			img = &validated
		}
	}

	if fe.Any() {
		s.log.Debug(ctx, "signup rejected", "fields", fe.Fields())
		return Account{}, &ValidationError{Fields: fe}
	}

	hash, err := s.hasher.Hash(form.Password1)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	var picture string
	if img != nil {
		picture, err = media.SaveProfilePicture(ctx, s.media, *img)
		if err != nil {
			return Account{}, err
		}
	}

	now := s.opts.Now()
	account := Account{
		ID:           uuid.NewString(),
		Username:     form.Username,
		PasswordHash: hash,
		Email:        form.Email,
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		IsActive:     true,
		CreatedAt:    now,
	}
	profile := Profile{
		ID:             uuid.NewString(),
		ProfilePicture: picture,
		IsDoctor:       form.IsDoctor,
		AddressLine1:   form.AddressLine1,
		City:           form.City,
		State:          form.State,
		Pincode:        form.Pincode,
		CreatedAt:      now,
	}

	if err := s.store.CreateAccount(ctx, &account, &profile); err != nil {
		s.discardPicture(ctx, picture)
		if errors.Is(err, ErrUsernameTaken) {
			return Account{}, newValidationError("username", msgUsernameTaken)
		}
		return Account{}, err
	}

	s.log.Info(ctx, "account registered", "account_id", account.ID, "role", RoleOf(profile))
	return account, nil
}

func (s *Service) discardPicture(ctx context.Context, p string) {
	if p == "" {
		return
	}
	if err := s.media.Delete(ctx, p); err != nil {
		s.log.Warn(ctx, "failed to remove orphaned picture", "path", p, "error", err)
	}
}

// Login checks the credentials and opens a new session. previousSessionID,
// when set, is destroyed first so a session id never survives a login.
func (s *Service) Login(ctx context.Context, form LoginForm, previousSessionID string) (session.Session, Account, error) {
	if fe := form.Clean(); fe.Any() {
		return session.Session{}, Account{}, &ValidationError{Fields: fe}
	}

	account, err := s.store.FindAccountByUsername(ctx, form.Username)
	if errors.Is(err, ErrNotFound) {
		s.hasher.Verify(s.dummyHash, form.Password)
		return session.Session{}, Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return session.Session{}, Account{}, err
	}

	if !s.hasher.Verify(account.PasswordHash, form.Password) || !account.IsActive {
		s.log.Info(ctx, "login failed", "account_id", account.ID)
		return session.Session{}, Account{}, ErrInvalidCredentials
	}

	if previousSessionID != "" {
		if err := s.sessions.Delete(ctx, previousSessionID); err != nil {
			s.log.Warn(ctx, "failed to drop previous session", "error", err)
		}
	}

	sess, err := s.sessions.Create(ctx, account.ID, s.opts.SessionTTL)
	if err != nil {
		return session.Session{}, Account{}, err
	}

	now := s.opts.Now()
	if err := s.store.UpdateLastLogin(ctx, account.ID, now); err != nil {
		s.log.Warn(ctx, "failed to record last login", "account_id", account.ID, "error", err)
	} else {
		account.LastLogin = &now
	}

	s.log.Info(ctx, "login succeeded", "account_id", account.ID)
	return sess, account, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// Dashboard loads what the dashboard page shows for accountID.
func (s *Service) Dashboard(ctx context.Context, accountID string) (Dashboard, error) {
	account, err := s.store.FindAccountByID(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return Dashboard{}, ErrAccountNotFound
	}
	if err != nil {
		return Dashboard{}, err
	}

	profile, err := s.store.FindProfile(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return Dashboard{}, fmt.Errorf("account %s: %w", accountID, ErrProfileMissing)
	}
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Account:    account,
		Profile:    profile,
		Role:       RoleOf(profile),
		PictureURL: s.MediaURL(profile.ProfilePicture),
	}, nil
}

// CurrentAccount returns the account behind a session, or ErrAccountNotFound.
func (s *Service) CurrentAccount(ctx context.Context, accountID string) (Account, error) {
	account, err := s.store.FindAccountByID(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return Account{}, ErrAccountNotFound
	}
	return account, err
}

// IsStaff reports whether the account may use the staff pages.
func (s *Service) IsStaff(ctx context.Context, accountID string) (bool, error) {
	account, err := s.CurrentAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return account.IsActive && account.IsStaff, nil
}

func (s *Service) ListProfiles(ctx context.Context) ([]Profile, error) {
	return s.store.ListProfiles(ctx)
}

// SetStaff grants or revokes staff access by username.
func (s *Service) SetStaff(ctx context.Context, username string, staff bool) error {
	account, err := s.store.FindAccountByUsername(ctx, NormalizeUsername(username))
	if errors.Is(err, ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	return s.store.SetStaff(ctx, account.ID, staff)
}

// DeleteAccount removes the account, its profile and its picture.
func (s *Service) DeleteAccount(ctx context.Context, username string) error {
	account, err := s.store.FindAccountByUsername(ctx, NormalizeUsername(username))
	if errors.Is(err, ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	var picture string
	if profile, err := s.store.FindProfile(ctx, account.ID); err == nil {
		picture = profile.ProfilePicture
	}

	if err := s.store.DeleteAccount(ctx, account.ID); err != nil {
		return err
	}
	s.discardPicture(ctx, picture)
	s.log.Info(ctx, "account deleted", "account_id", account.ID)
	return nil
}

// ClearExpiredSessions purges sessions past their expiry.
func (s *Service) ClearExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info(ctx, "expired sessions cleared", "count", n)
	return n, nil
}
