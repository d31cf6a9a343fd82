package authcore_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/seclava/go-authcore"
)

type authFixture struct {
	auther *authcore.Auther
	store  *memAccountStore
	audits *memAuditStore
}

func newAuthFixture(t *testing.T, mutate ...func(*authcore.Config)) *authFixture {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	store := newMemAccountStore()
	audits := &memAuditStore{}

	auther, err := authcore.NewAuthenticator(store, authcore.NewAuditPipeline(audits), cfg)
	require.NoError(t, err)
	auther.WithLogger(discardLogger{})

	return &authFixture{auther: auther, store: store, audits: audits}
}

func (f *authFixture) register(t *testing.T, username, password string) *authcore.Account {
	t.Helper()

	account, err := f.auther.Register(context.Background(), authcore.RegisterPayload{
		Username:   username,
		Email:      username + "@example.com",
		Password:   password,
		SourceAddr: "203.0.113.9",
		UserAgent:  "cli/1.0",
	})
	require.NoError(t, err)

	return account
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active user account", func(t *testing.T) {
		f := newAuthFixture(t)

		account := f.register(t, "alice", "Secur3!Pass")
		assert.Equal(t, "alice", account.Username)
		assert.Equal(t, authcore.RoleUser, account.Role)
		assert.True(t, account.Active)
		assert.NotEmpty(t, account.PasswordHash)
		assert.NotEqual(t, "Secur3!Pass", account.PasswordHash)

		signups := f.audits.byAction(authcore.ActionSignup)
		require.Len(t, signups, 1)
		assert.Equal(t, authcore.OutcomeSuccess, signups[0].Outcome)
		assert.Equal(t, "alice", signups[0].Username)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		_, err := f.auther.Register(ctx, authcore.RegisterPayload{
			Username: "alice",
			Email:    "other@example.com",
			Password: "Secur3!Pass",
		})
		assert.ErrorIs(t, err, authcore.ErrDuplicateUsername)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		_, err := f.auther.Register(ctx, authcore.RegisterPayload{
			Username: "alice2",
			Email:    "alice@example.com",
			Password: "Secur3!Pass",
		})
		assert.ErrorIs(t, err, authcore.ErrDuplicateEmail)
	})

	t.Run("weak password rejected without auditing", func(t *testing.T) {
		f := newAuthFixture(t)

		_, err := f.auther.Register(ctx, authcore.RegisterPayload{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "weak",
		})
		require.Error(t, err)
		assert.Equal(t, authcore.TextCodeWeakPassword, authcore.TextCode(err))
		assert.Zero(t, f.audits.count(), "validation failures are not audited")
	})

	t.Run("malformed payload rejected", func(t *testing.T) {
		f := newAuthFixture(t)

		_, err := f.auther.Register(ctx, authcore.RegisterPayload{
			Username: "al",
			Email:    "not-an-email",
			Password: "Secur3!Pass",
		})
		assert.Error(t, err)
		assert.Zero(t, f.audits.count())
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials issue a verifiable pair", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		pair, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		require.NoError(t, err)
		require.NotNil(t, pair)

		claims, err := f.auther.VerifyAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, authcore.RoleUser, claims.Role())
		assert.Equal(t, authcore.TokenClassAccess, claims.Class())

		attempts := f.audits.byAction(authcore.ActionLoginAttempt)
		require.Len(t, attempts, 1)
		assert.Equal(t, authcore.OutcomeSuccess, attempts[0].Outcome)
		assert.Equal(t, "203.0.113.9", attempts[0].SourceAddr)

		fresh, err := f.store.GetByIdentifier(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.9", fresh.LastLoginIP)
		require.NotNil(t, fresh.LastLoginAt)
	})

	t.Run("email works as the login identifier", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		_, err := f.auther.Authenticate(ctx, "alice@example.com", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		assert.NoError(t, err)
	})

	t.Run("unknown account and wrong password are indistinguishable", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		_, unknownErr := f.auther.Authenticate(ctx, "mallory", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		_, wrongErr := f.auther.Authenticate(ctx, "alice", "Wrong1!Pass", "203.0.113.9", "cli/1.0")

		assert.ErrorIs(t, unknownErr, authcore.ErrInvalidCredentials)
		assert.ErrorIs(t, wrongErr, authcore.ErrInvalidCredentials)
		assert.Equal(t, unknownErr.Error(), wrongErr.Error())

		attempts := f.audits.byAction(authcore.ActionLoginAttempt)
		require.Len(t, attempts, 2)
		assert.Equal(t, "unknown_account", attempts[0].Details["reason"])
		assert.Nil(t, attempts[0].AccountID)
		assert.Equal(t, "invalid_password", attempts[1].Details["reason"])
		assert.NotNil(t, attempts[1].AccountID)
	})

	t.Run("inactive account rejected", func(t *testing.T) {
		f := newAuthFixture(t)
		account := f.register(t, "alice", "Secur3!Pass")
		f.store.setActive(account.ID, false)

		_, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		assert.ErrorIs(t, err, authcore.ErrAccountInactive)

		attempts := f.audits.byAction(authcore.ActionLoginAttempt)
		require.Len(t, attempts, 1)
		assert.Equal(t, "inactive_account", attempts[0].Details["reason"])
	})
}

func TestAuthenticateLockout(t *testing.T) {
	ctx := context.Background()

	maxAttempts := authcore.DefaultMaxLoginAttempts

	t.Run("repeated failures lock the account", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		hasher := &countingHasher{PasswordAuthenticator: authcore.NewBcryptHasher(4)}
		f.auther.WithHasher(hasher)

		for i := 0; i < maxAttempts; i++ {
			_, err := f.auther.Authenticate(ctx, "alice", "Wrong1!Pass", "203.0.113.9", "cli/1.0")
			assert.ErrorIs(t, err, authcore.ErrInvalidCredentials)
		}
		comparesBeforeLock := hasher.compares

		// the lock fires on the fifth failure and is reported on the next attempt,
		// even with the correct password
		_, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		require.Error(t, err)
		assert.Equal(t, authcore.TextCodeAccountLocked, authcore.TextCode(err))
		assert.Equal(t, comparesBeforeLock, hasher.compares, "a locked attempt never pays the hash cost")

		remaining, ok := authcore.LockedRemaining(err)
		require.True(t, ok, "lockout error must carry the remaining duration")
		assert.Greater(t, remaining, time.Duration(0))
		assert.LessOrEqual(t, remaining, authcore.DefaultLockoutDuration)

		suspicious := f.audits.byAction(authcore.ActionSuspicious)
		require.NotEmpty(t, suspicious, "the locking failure emits a suspicious activity entry")
		assert.Equal(t, "multiple_failed_logins", suspicious[0].Details["activity_type"])

		attempts := f.audits.byAction(authcore.ActionLoginAttempt)
		require.Len(t, attempts, maxAttempts+1)
		last := attempts[len(attempts)-1]
		assert.Equal(t, "account_locked", last.Details["reason"])
	})

	t.Run("expired lock reopens the account", func(t *testing.T) {
		f := newAuthFixture(t)
		account := f.register(t, "alice", "Secur3!Pass")

		for i := 0; i < maxAttempts; i++ {
			_, err := f.auther.Authenticate(ctx, "alice", "Wrong1!Pass", "203.0.113.9", "cli/1.0")
			assert.ErrorIs(t, err, authcore.ErrInvalidCredentials)
		}

		past := time.Now().Add(-time.Second)
		f.store.setLockedUntil(account.ID, &past)

		pair, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		require.NoError(t, err)
		assert.NotNil(t, pair)

		fresh, err := f.store.GetByIdentifier(ctx, "alice")
		require.NoError(t, err)
		assert.Zero(t, fresh.FailedAttempts)
		assert.Nil(t, fresh.LockedUntil)
	})

	t.Run("failure counter records attempts", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		_, err := f.auther.Authenticate(ctx, "alice", "Wrong1!Pass", "203.0.113.9", "cli/1.0")
		assert.ErrorIs(t, err, authcore.ErrInvalidCredentials)
		_, err = f.auther.Authenticate(ctx, "alice", "Wrong1!Pass", "203.0.113.9", "cli/1.0")
		assert.ErrorIs(t, err, authcore.ErrInvalidCredentials)

		attempts := f.audits.byAction(authcore.ActionLoginAttempt)
		require.Len(t, attempts, 2)
		assert.Equal(t, 1, attempts[0].Details["attempts"])
		assert.Equal(t, 2, attempts[1].Details["attempts"])
	})
}

func TestAuthenticateAuditFailClosed(t *testing.T) {
	ctx := context.Background()

	f := newAuthFixture(t)
	f.register(t, "alice", "Secur3!Pass")

	f.audits.failErr = assert.AnError

	pair, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
	require.Error(t, err, "an unwritable audit trail fails authentication closed")
	assert.Nil(t, pair, "no tokens are minted when the audit write fails")
}

func TestAuthenticateWithUnreachableCollector(t *testing.T) {
	ctx := context.Background()

	// reserve a port with nothing listening on it
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := testConfig()
	cfg.CollectorHost = "127.0.0.1"
	cfg.CollectorPort = port
	cfg.ForwardTimeout = time.Second
	cfg.FallbackLogPath = filepath.Join(t.TempDir(), "audit_events.log")

	store := newMemAccountStore()
	audits := &memAuditStore{}
	forwarder := authcore.NewSyslogForwarder(cfg, discardLogger{})
	defer forwarder.Close()

	auther, err := authcore.NewAuthenticator(store, authcore.NewAuditPipeline(audits).WithForwarder(forwarder), cfg)
	require.NoError(t, err)
	auther.WithLogger(discardLogger{})

	_, err = auther.Register(ctx, authcore.RegisterPayload{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Secur3!Pass",
	})
	require.NoError(t, err)

	pair, err := auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
	require.NoError(t, err, "an unreachable collector never fails authentication")
	require.NotNil(t, pair)

	attempts := audits.byAction(authcore.ActionLoginAttempt)
	require.Len(t, attempts, 1, "the local audit entry is still written")
	assert.Equal(t, authcore.OutcomeSuccess, attempts[0].Outcome)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh token yields a fresh pair", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		pair, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		require.NoError(t, err)

		renewed, err := f.auther.Refresh(ctx, pair.RefreshToken, "203.0.113.9", "cli/1.0")
		require.NoError(t, err)

		claims, err := f.auther.VerifyAccessToken(renewed.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, authcore.RoleUser, claims.Role())

		grants := f.audits.byAction(authcore.ActionLoginAttempt)
		last := grants[len(grants)-1]
		assert.Equal(t, "refresh_token", last.Details["grant"])
	})

	t.Run("access token cannot refresh", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		pair, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		require.NoError(t, err)

		_, err = f.auther.Refresh(ctx, pair.AccessToken, "203.0.113.9", "cli/1.0")
		assert.ErrorIs(t, err, authcore.ErrTokenWrongClass)
	})

	t.Run("deactivated account cannot refresh", func(t *testing.T) {
		f := newAuthFixture(t)
		account := f.register(t, "alice", "Secur3!Pass")

		pair, err := f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		require.NoError(t, err)

		f.store.setActive(account.ID, false)

		_, err = f.auther.Refresh(ctx, pair.RefreshToken, "203.0.113.9", "cli/1.0")
		assert.ErrorIs(t, err, authcore.ErrAccountInactive)
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	displayName := "Alice Liddell"
	newEmail := "alice.liddell@example.com"

	t.Run("profile fields updated", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		account, err := f.auther.UpdateProfile(ctx, "alice", authcore.ProfileUpdate{
			Email:       &newEmail,
			DisplayName: &displayName,
			SourceAddr:  "203.0.113.9",
		})
		require.NoError(t, err)
		assert.Equal(t, newEmail, account.Email)
		assert.Equal(t, displayName, account.DisplayName)

		updates := f.audits.byAction(authcore.ActionProfileUpdate)
		require.Len(t, updates, 1)
		assert.Equal(t, authcore.OutcomeSuccess, updates[0].Outcome)
		assert.Equal(t, false, updates[0].Details["password_changed"])
	})

	t.Run("password change requires the current password", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		_, err := f.auther.UpdateProfile(ctx, "alice", authcore.ProfileUpdate{
			CurrentPassword: "Wrong1!Pass",
			NewPassword:     "N3w!Secret",
			SourceAddr:      "203.0.113.9",
		})
		assert.ErrorIs(t, err, authcore.ErrWrongCurrentPassword)

		updates := f.audits.byAction(authcore.ActionProfileUpdate)
		require.Len(t, updates, 1)
		assert.Equal(t, authcore.OutcomeFailure, updates[0].Outcome)
		assert.Equal(t, "wrong_current_password", updates[0].Details["reason"])

		// old password still works
		_, err = f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		assert.NoError(t, err)
	})

	t.Run("password change takes effect", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")

		_, err := f.auther.UpdateProfile(ctx, "alice", authcore.ProfileUpdate{
			CurrentPassword: "Secur3!Pass",
			NewPassword:     "N3w!Secret",
			SourceAddr:      "203.0.113.9",
		})
		require.NoError(t, err)

		_, err = f.auther.Authenticate(ctx, "alice", "Secur3!Pass", "203.0.113.9", "cli/1.0")
		assert.ErrorIs(t, err, authcore.ErrInvalidCredentials)

		_, err = f.auther.Authenticate(ctx, "alice", "N3w!Secret", "203.0.113.9", "cli/1.0")
		assert.NoError(t, err)

		updates := f.audits.byAction(authcore.ActionProfileUpdate)
		require.Len(t, updates, 1)
		assert.Equal(t, true, updates[0].Details["password_changed"])
	})

	t.Run("weak replacement password rejected without auditing", func(t *testing.T) {
		f := newAuthFixture(t)
		f.register(t, "alice", "Secur3!Pass")
		before := f.audits.count()

		_, err := f.auther.UpdateProfile(ctx, "alice", authcore.ProfileUpdate{
			CurrentPassword: "Secur3!Pass",
			NewPassword:     "weak",
		})
		require.Error(t, err)
		assert.Equal(t, authcore.TextCodeWeakPassword, authcore.TextCode(err))
		assert.Equal(t, before, f.audits.count())
	})
}

func TestEnsureAdminAccount(t *testing.T) {
	ctx := context.Background()

	f := newAuthFixture(t)

	admin, err := f.auther.EnsureAdminAccount(ctx, "root", "root@example.com", "Sup3r!Secret")
	require.NoError(t, err)
	assert.Equal(t, authcore.RoleAdmin, admin.Role)
	assert.True(t, admin.Active)

	again, err := f.auther.EnsureAdminAccount(ctx, "root", "root@example.com", "Sup3r!Secret")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
}

func TestSuspicionAcrossAccounts(t *testing.T) {
	ctx := context.Background()

	f := newAuthFixture(t, func(cfg *authcore.Config) {
		cfg.SuspicionLimit = 3
	})
	f.register(t, "alice", "Secur3!Pass")
	f.register(t, "bob", "Secur3!Pass")

	// two failures against different accounts, one against an unknown
	// username, all from the same source
	_, _ = f.auther.Authenticate(ctx, "alice", "Wrong1!Pass", "198.51.100.7", "cli/1.0")
	_, _ = f.auther.Authenticate(ctx, "bob", "Wrong1!Pass", "198.51.100.7", "cli/1.0")

	require.Empty(t, f.audits.byAction(authcore.ActionSuspicious))

	_, _ = f.auther.Authenticate(ctx, "mallory", "Wrong1!Pass", "198.51.100.7", "cli/1.0")

	suspicious := f.audits.byAction(authcore.ActionSuspicious)
	require.Len(t, suspicious, 1)
	assert.Equal(t, "repeated_failures_from_source", suspicious[0].Details["activity_type"])
	assert.Equal(t, "198.51.100.7", suspicious[0].SourceAddr)
}
