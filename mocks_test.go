package authcore_test

import (
	"context"
	"sync"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	authcore "github.com/seclava/go-authcore"
)

// MockLogger implements authcore.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

// memAccountStore is a stateful in-memory AccountStore whose counter
// mutations mirror the SQL semantics of the real repository.
type memAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*authcore.Account
}

var _ authcore.AccountStore = (*memAccountStore)(nil)

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{
		accounts: make(map[uuid.UUID]*authcore.Account),
	}
}

func (s *memAccountStore) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.Username == identifier || account.Email == identifier || account.ID.String() == identifier {
			clone := *account
			return &clone, nil
		}
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{"identifier": identifier})
}

func (s *memAccountStore) Register(ctx context.Context, account *authcore.Account) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Username == account.Username {
			return nil, authcore.ErrDuplicateUsername
		}
		if existing.Email == account.Email {
			return nil, authcore.ErrDuplicateEmail
		}
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Role == "" {
		account.Role = authcore.RoleUser
	}

	clone := *account
	s.accounts[account.ID] = &clone

	return account, nil
}

func (s *memAccountStore) RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (*authcore.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	account.FailedAttempts++
	if account.FailedAttempts >= threshold && account.LockedUntil == nil {
		until := lockUntil
		account.LockedUntil = &until
	}

	return &authcore.LockoutState{
		FailedAttempts: account.FailedAttempts,
		LockedUntil:    account.LockedUntil,
	}, nil
}

func (s *memAccountStore) RecordSuccess(ctx context.Context, id uuid.UUID, sourceAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	now := time.Now()
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now
	account.LastLoginIP = sourceAddr

	return nil
}

func (s *memAccountStore) ClearLock(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	account.FailedAttempts = 0
	account.LockedUntil = nil

	return nil
}

func (s *memAccountStore) UpdateProfile(ctx context.Context, id uuid.UUID, changes authcore.ProfileChanges) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	if changes.Email != nil {
		for otherID, other := range s.accounts {
			if otherID != id && other.Email == *changes.Email {
				return nil, authcore.ErrDuplicateEmail
			}
		}
		account.Email = *changes.Email
	}
	if changes.DisplayName != nil {
		account.DisplayName = *changes.DisplayName
	}

	clone := *account
	return &clone, nil
}

func (s *memAccountStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	account.PasswordHash = passwordHash

	return nil
}

// setActive flips the active flag directly, bypassing the store API.
func (s *memAccountStore) setActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		account.Active = active
	}
}

// setLockedUntil overrides the lock timestamp directly, bypassing the store API.
func (s *memAccountStore) setLockedUntil(id uuid.UUID, until *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		account.LockedUntil = until
	}
}

// memAuditStore captures appended entries and can be made to fail.
type memAuditStore struct {
	mu      sync.Mutex
	entries []*authcore.AuditEntry
	failErr error
}

var _ authcore.AuditStore = (*memAuditStore)(nil)

func (s *memAuditStore) Append(ctx context.Context, entry *authcore.AuditEntry) (*authcore.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return nil, s.failErr
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	s.entries = append(s.entries, entry)

	return entry, nil
}

func (s *memAuditStore) byAction(action authcore.AuditAction) []*authcore.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*authcore.AuditEntry
	for _, entry := range s.entries {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

func (s *memAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// countingHasher wraps a real hasher and counts verifications.
type countingHasher struct {
	authcore.PasswordAuthenticator
	compares int
}

func (h *countingHasher) ComparePasswordAndHash(password, hash string) error {
	h.compares++
	return h.PasswordAuthenticator.ComparePasswordAndHash(password, hash)
}

// capturingForwarder records enqueued entries.
type capturingForwarder struct {
	mu      sync.Mutex
	entries []*authcore.AuditEntry
}

var _ authcore.EventForwarder = (*capturingForwarder)(nil)

func (f *capturingForwarder) Enqueue(entry *authcore.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *capturingForwarder) captured() []*authcore.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*authcore.AuditEntry(nil), f.entries...)
}

func testConfig() authcore.Config {
	cfg := authcore.Config{
		SigningKey: "test-signing-key",
		Issuer:     "authcore-test",
		BcryptCost: 4,
	}
	return cfg.WithDefaults()
}
