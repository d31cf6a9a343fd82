package authcore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() UserRole
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// LockoutState is the account failure-counter state after an atomic
// store mutation.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// AccountStore is the storage surface the engine needs for account
// records. Counter mutations are single-statement updates so concurrent
// attempts against the same account cannot lose increments.
type AccountStore interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error)
	Register(ctx context.Context, account *Account) (*Account, error)

	// RecordFailure increments failed_attempts and sets locked_until to
	// lockUntil when the incremented counter reaches threshold, in a
	// single statement. Returns the post-update state.
	RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (*LockoutState, error)

	// RecordSuccess resets the failure counters, clears any lock, and
	// stamps last-login metadata.
	RecordSuccess(ctx context.Context, id uuid.UUID, sourceAddr string) error

	// ClearLock resets counters and locked_until once a lock has expired.
	ClearLock(ctx context.Context, id uuid.UUID) error

	UpdateProfile(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// AuditStore persists audit entries. Append-only: no update or delete
// operation is ever issued against it.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) (*AuditEntry, error)
}

// ProfileChanges carries the mutable profile fields for an update.
// Nil pointers leave the column untouched.
type ProfileChanges struct {
	Email       *string
	DisplayName *string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
