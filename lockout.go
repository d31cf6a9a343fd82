package authcore

import (
	"context"
	"time"
)

// LockState is the per-account lockout state machine state.
type LockState string

const (
	// LockStateOpen permits authentication attempts
	LockStateOpen LockState = "OPEN"
	// LockStateLocked rejects attempts outright
	LockStateLocked LockState = "LOCKED"
)

// LockDecision is the outcome of a lockout check.
type LockDecision struct {
	State LockState
	// Remaining is how long the lock still holds; zero when OPEN.
	Remaining time.Duration
}

// Permitted reports whether an authentication attempt may proceed.
func (d LockDecision) Permitted() bool {
	return d.State == LockStateOpen
}

// FailureOutcome describes the counter state after recording a failure.
type FailureOutcome struct {
	FailedAttempts int
	LockedUntil    *time.Time
	// JustLocked is true when this failure fired the OPEN -> LOCKED
	// transition.
	JustLocked bool
}

// LockoutGuard is the per-account lockout state machine. It consumes
// login outcomes and decides whether an attempt is permitted. Counter
// mutations go through the store's atomic operations so concurrent
// attempts serialize there.
type LockoutGuard struct {
	store        AccountStore
	maxAttempts  int
	lockDuration time.Duration
	logger       Logger
}

// NewLockoutGuard creates a guard with the configured threshold and
// lock duration.
func NewLockoutGuard(store AccountStore, cfg Config) *LockoutGuard {
	maxAttempts := cfg.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}

	lockDuration := cfg.LockoutDuration
	if lockDuration <= 0 {
		lockDuration = DefaultLockoutDuration
	}

	return &LockoutGuard{
		store:        store,
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
		logger:       defLogger{},
	}
}

func (g *LockoutGuard) WithLogger(logger Logger) *LockoutGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Check evaluates the account's lock state. It must run before password
// verification so a locked account never pays the hash cost. A lock
// whose window has elapsed is cleared lazily here, transitioning the
// account back to OPEN with zeroed counters before the new attempt is
// evaluated.
func (g *LockoutGuard) Check(ctx context.Context, account *Account) (LockDecision, error) {
	if account.LockedUntil == nil {
		return LockDecision{State: LockStateOpen}, nil
	}

	now := time.Now()
	if account.LockedUntil.After(now) {
		return LockDecision{
			State:     LockStateLocked,
			Remaining: account.LockedUntil.Sub(now),
		}, nil
	}

	if err := g.store.ClearLock(ctx, account.ID); err != nil {
		return LockDecision{}, err
	}

	account.FailedAttempts = 0
	account.LockedUntil = nil

	g.logger.Debug("lockout expired, account reopened", "account_id", account.ID.String())

	return LockDecision{State: LockStateOpen}, nil
}

// RecordFailure applies a failed attempt. The store increments the
// counter and, when it reaches the threshold, stamps locked_until in
// the same statement; the lock window runs from the triggering failure.
func (g *LockoutGuard) RecordFailure(ctx context.Context, account *Account) (FailureOutcome, error) {
	lockUntil := time.Now().Add(g.lockDuration)

	state, err := g.store.RecordFailure(ctx, account.ID, g.maxAttempts, lockUntil)
	if err != nil {
		return FailureOutcome{}, err
	}

	account.FailedAttempts = state.FailedAttempts
	account.LockedUntil = state.LockedUntil

	outcome := FailureOutcome{
		FailedAttempts: state.FailedAttempts,
		LockedUntil:    state.LockedUntil,
		JustLocked:     state.LockedUntil != nil && state.FailedAttempts == g.maxAttempts,
	}

	if outcome.JustLocked {
		g.logger.Warn("account locked after repeated failures",
			"account_id", account.ID.String(),
			"attempts", state.FailedAttempts,
		)
	}

	return outcome, nil
}

// RecordSuccess resets the failure counters unconditionally and stamps
// last-login metadata.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, account *Account, sourceAddr string) error {
	if err := g.store.RecordSuccess(ctx, account.ID, sourceAddr); err != nil {
		return err
	}

	now := time.Now()
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now
	account.LastLoginIP = sourceAddr

	return nil
}
