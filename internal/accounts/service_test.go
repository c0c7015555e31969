package accounts

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carelink/portal/internal/logging"
	"github.com/carelink/portal/internal/media"
	"github.com/carelink/portal/internal/session"
)

type testEnv struct {
	svc       *Service
	store     *MemoryStore
	sessions  *session.MemoryStore
	mediaRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		store:     NewMemoryStore(),
		sessions:  session.NewMemoryStore(),
		mediaRoot: root,
	}
	svc, err := NewService(env.store, env.sessions, NewBcryptHasher(bcrypt.MinCost),
		media.NewLocalStorage(root, "/media/"), logging.Discard(), Options{
			SessionTTL:     time.Hour,
			MaxUploadBytes: 1 << 20,
		})
	require.NoError(t, err)
	env.svc = svc
	return env
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func fieldErrors(t *testing.T, err error) FieldErrors {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	account, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	assert.Equal(t, "alice", account.Username)
	assert.True(t, account.IsActive)
	assert.False(t, account.IsStaff)
	assert.NotEqual(t, "Password123!", account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("Password123!")))

	accounts, profiles := env.store.Counts()
	assert.Equal(t, 1, accounts)
	assert.Equal(t, 1, profiles)

	profile, err := env.store.FindProfile(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, profile.IsDoctor)
	assert.Equal(t, "411001", profile.Pincode)
	assert.Empty(t, profile.ProfilePicture)
}

func TestRegister_StoresPicture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form := validSignup()
	form.IsDoctor = true
	form.ProfilePicture = &Upload{Filename: "me.png", Data: pngBytes(t)}

	account, err := env.svc.Register(ctx, form)
	require.NoError(t, err)

	profile, err := env.store.FindProfile(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, profile.IsDoctor)
	assert.Regexp(t, `^profile_pics/[0-9a-f-]+\.png$`, profile.ProfilePicture)
	assert.Equal(t, 1, countFiles(t, env.mediaRoot))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	dup := validSignup()
	dup.Username = "ALICE"
	_, err = env.svc.Register(ctx, dup)
	assert.Equal(t, []string{msgUsernameTaken}, fieldErrors(t, err)["username"])

	accounts, profiles := env.store.Counts()
	assert.Equal(t, 1, accounts)
	assert.Equal(t, 1, profiles)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	env := newTestEnv(t)

	form := validSignup()
	form.Password2 = "Password123?"
	_, err := env.svc.Register(context.Background(), form)

	fe := fieldErrors(t, err)
	assert.Equal(t, []string{msgPasswordMismatch}, fe["password2"])
	accounts, _ := env.store.Counts()
	assert.Zero(t, accounts)
}

func TestRegister_PasswordPolicy(t *testing.T) {
	env := newTestEnv(t)

	form := validSignup()
	form.Password1 = "12345678"
	form.Password2 = "12345678"
	_, err := env.svc.Register(context.Background(), form)

	fe := fieldErrors(t, err)
	assert.Contains(t, fe["password2"], "This password is too common.")
	assert.Contains(t, fe["password2"], "This password is entirely numeric.")
}

func TestRegister_InvalidPicture(t *testing.T) {
	env := newTestEnv(t)

	form := validSignup()
	form.ProfilePicture = &Upload{Filename: "notes.png", Data: []byte("definitely not an image")}
	_, err := env.svc.Register(context.Background(), form)

	assert.Equal(t, []string{msgInvalidImage}, fieldErrors(t, err)["profile_picture"])
	assert.Zero(t, countFiles(t, env.mediaRoot))
}

func TestRegister_AtomicOnProfileFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetProfileError(errors.New("profile insert failed"))

	form := validSignup()
	form.ProfilePicture = &Upload{Filename: "me.png", Data: pngBytes(t)}
	_, err := env.svc.Register(context.Background(), form)
	require.Error(t, err)

	accounts, profiles := env.store.Counts()
	assert.Zero(t, accounts)
	assert.Zero(t, profiles)
	assert.Zero(t, countFiles(t, env.mediaRoot), "uploaded picture should be removed")
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	sess, account, err := env.svc.Login(ctx, LoginForm{Username: "alice", Password: "Password123!"}, "")
	require.NoError(t, err)
	assert.Equal(t, account.ID, sess.UserID)
	assert.NotNil(t, account.LastLogin)

	stored, err := env.sessions.Find(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, stored.UserID)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	_, _, wrongPassword := env.svc.Login(ctx, LoginForm{Username: "alice", Password: "wrongpass"}, "")
	_, _, unknownUser := env.svc.Login(ctx, LoginForm{Username: "mallory", Password: "Password123!"}, "")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Zero(t, env.sessions.Len())
}

func TestLogin_ShortPasswordRejectedBeforeLookup(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.Login(context.Background(), LoginForm{Username: "alice", Password: "short"}, "")
	fe := fieldErrors(t, err)
	assert.Equal(t, []string{"Ensure this value has at least 8 characters (it has 5)."}, fe["password"])
}

func TestLogin_RotatesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	first, _, err := env.svc.Login(ctx, LoginForm{Username: "alice", Password: "Password123!"}, "")
	require.NoError(t, err)
	second, _, err := env.svc.Login(ctx, LoginForm{Username: "alice", Password: "Password123!"}, first.SessionID)
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	_, err = env.sessions.Find(ctx, first.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	sess, _, err := env.svc.Login(ctx, LoginForm{Username: "alice", Password: "Password123!"}, "")
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, sess.SessionID))
	_, err = env.sessions.Find(ctx, sess.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// already gone
	assert.NoError(t, env.svc.Logout(ctx, sess.SessionID))
}

func TestDashboard_Branches(t *testing.T) {
	for _, doctor := range []bool{false, true} {
		env := newTestEnv(t)
		ctx := context.Background()

		form := validSignup()
		form.IsDoctor = doctor
		account, err := env.svc.Register(ctx, form)
		require.NoError(t, err)

		d, err := env.svc.Dashboard(ctx, account.ID)
		require.NoError(t, err)
		if doctor {
			assert.Equal(t, RoleDoctor, d.Role)
		} else {
			assert.Equal(t, RolePatient, d.Role)
		}
		assert.Equal(t, "Alice Smith", d.Account.FullName())
	}
}

func TestDashboard_MissingProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	env.store.DropProfile(account.ID)
	_, err = env.svc.Dashboard(ctx, account.ID)
	assert.ErrorIs(t, err, ErrProfileMissing)
}

func TestDashboard_MissingAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Dashboard(context.Background(), "no-such-account")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDeleteAccount_Cascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form := validSignup()
	form.ProfilePicture = &Upload{Filename: "me.png", Data: pngBytes(t)}
	_, err := env.svc.Register(ctx, form)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteAccount(ctx, "Alice"))
	accounts, profiles := env.store.Counts()
	assert.Zero(t, accounts)
	assert.Zero(t, profiles)
	assert.Zero(t, countFiles(t, env.mediaRoot))

	assert.ErrorIs(t, env.svc.DeleteAccount(ctx, "alice"), ErrAccountNotFound)
}

func TestSetStaffAndIsStaff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, err := env.svc.Register(ctx, validSignup())
	require.NoError(t, err)

	staff, err := env.svc.IsStaff(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, staff)

	require.NoError(t, env.svc.SetStaff(ctx, "alice", true))
	staff, err = env.svc.IsStaff(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, staff)

	assert.ErrorIs(t, env.svc.SetStaff(ctx, "nobody", true), ErrAccountNotFound)
}

func TestClearExpiredSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	env.sessions.SetClock(func() time.Time { return now })

	_, err := env.sessions.Create(ctx, "u1", time.Minute)
	require.NoError(t, err)
	_, err = env.sessions.Create(ctx, "u2", 2*time.Hour)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	n, err := env.svc.ClearExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, env.sessions.Len())
}
