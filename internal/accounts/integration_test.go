package accounts_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/carelink/portal/internal/accounts"
	"github.com/carelink/portal/internal/db"
	"github.com/carelink/portal/internal/logging"
	"github.com/carelink/portal/internal/media"
	"github.com/carelink/portal/internal/session"
)

// TestPostgres_RegisterLoginDelete runs the workflows against a real database.
// It is skipped unless DATABASE_URL is set (directly or in .env.local).
func TestPostgres_RegisterLoginDelete(t *testing.T) {
	_ = godotenv.Load("../../.env.local")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}

	ctx := context.Background()
	gdb, err := db.Connect(dsn, logging.New(io.Discard, "error", false), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(gdb) })
	require.NoError(t, db.Migrate(ctx, gdb))

	store := accounts.NewGormStore(gdb)
	sessions := session.NewPostgresStore(gdb)
	svc, err := accounts.NewService(store, sessions, accounts.NewBcryptHasher(bcrypt.MinCost),
		media.NewLocalStorage(t.TempDir(), "/media/"), logging.Discard(), accounts.Options{SessionTTL: time.Hour})
	require.NoError(t, err)

	username := fmt.Sprintf("it_%s", uuid.NewString()[:8])
	account, err := svc.Register(ctx, accounts.SignupForm{
		Username:     username,
		Password1:    "Password123!",
		Password2:    "Password123!",
		Email:        username + "@example.com",
		FirstName:    "Ivy",
		LastName:     "Tester",
		IsDoctor:     true,
		AddressLine1: "1 Main St",
		City:         "Pune",
		State:        "MH",
		Pincode:      "411001",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.DeleteAccount(ctx, account.ID) })

	exists, err := store.UsernameExists(ctx, username)
	require.NoError(t, err)
	assert.True(t, exists)

	sess, _, err := svc.Login(ctx, accounts.LoginForm{Username: username, Password: "Password123!"}, "")
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleDoctor, d.Role)

	require.NoError(t, svc.DeleteAccount(ctx, username))
	_, err = sessions.Find(ctx, sess.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound, "sessions cascade with the account")
}
