package authcore

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// RegisterPayload is the registration request.
type RegisterPayload struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	SourceAddr  string `json:"-"`
	UserAgent   string `json:"-"`
}

// Validate checks the payload's shape. Password strength has its own
// check with per-class reasons.
func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&p.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&p.Password, validation.Required),
		validation.Field(&p.DisplayName, validation.Length(0, 100)),
	)
}

// ProfileUpdate carries profile mutations. A password change requires
// the current password alongside the new one.
type ProfileUpdate struct {
	Email           *string `json:"email"`
	DisplayName     *string `json:"display_name"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password"`
	SourceAddr      string  `json:"-"`
	UserAgent       string  `json:"-"`
}

func (p ProfileUpdate) Validate() error {
	fields := []*validation.FieldRules{
		validation.Field(&p.DisplayName, validation.Length(0, 100)),
	}

	if p.Email != nil {
		fields = append(fields, validation.Field(&p.Email, validation.Length(6, 100), is.Email))
	}

	if p.NewPassword != "" {
		fields = append(fields, validation.Field(&p.CurrentPassword, validation.Required))
	}

	return validation.ValidateStruct(&p, fields...)
}

// Auther is the authentication surface. A login flows through the
// lockout guard, the password check, the guard again to record the
// outcome, the audit pipeline, and only then the token service; no
// token is minted when the audit write fails.
type Auther struct {
	store    AccountStore
	hasher   PasswordAuthenticator
	tokens   *TokenService
	guard    *LockoutGuard
	audit    *AuditPipeline
	detector *SuspicionDetector
	logger   Logger
}

// NewAuthenticator wires the engine. The audit pipeline is mandatory:
// auditing is part of the authentication contract, not an observer.
func NewAuthenticator(store AccountStore, audit *AuditPipeline, cfg Config) (*Auther, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := NewTokenService(cfg, defLogger{})
	if err != nil {
		return nil, err
	}

	return &Auther{
		store:    store,
		hasher:   NewBcryptHasher(cfg.BcryptCost),
		tokens:   tokens,
		guard:    NewLockoutGuard(store, cfg),
		audit:    audit,
		detector: NewSuspicionDetector(cfg),
		logger:   defLogger{},
	}, nil
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
		s.tokens.logger = logger
		s.guard.WithLogger(logger)
	}
	return s
}

func (s *Auther) WithHasher(hasher PasswordAuthenticator) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// TokenService returns the TokenService instance used by this Auther
func (s *Auther) TokenService() *TokenService {
	return s.tokens
}

// Register creates a new account. Validation failures are reported to
// the caller and never audited; a created account produces one SIGNUP
// entry.
func (s *Auther) Register(ctx context.Context, payload RegisterPayload) (*Account, error) {
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if err := ValidateStrength(payload.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(payload.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Username:     payload.Username,
		Email:        payload.Email,
		DisplayName:  payload.DisplayName,
		PasswordHash: hash,
		Role:         RoleUser,
		Active:       true,
	}

	if id, err := hashid.NewUUID(payload.Email); err == nil {
		account.ID = id
	}

	account, err = s.store.Register(ctx, account)
	if err != nil {
		return nil, err
	}

	entry := newAuditEntry(&account.ID, account.Username, ActionSignup, OutcomeSuccess, payload.SourceAddr, payload.UserAgent)
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "username", account.Username)

	return account, nil
}

// Authenticate verifies the credentials and issues a token pair. The
// external error never distinguishes an unknown username from a wrong
// password.
func (s *Auther) Authenticate(ctx context.Context, username, password, sourceAddr, userAgent string) (*TokenPair, error) {
	account, err := s.store.GetByIdentifier(ctx, username)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
		}

		if err := s.noteSuspicion(ctx, nil, username, sourceAddr, userAgent); err != nil {
			return nil, err
		}

		entry := newAuditEntry(nil, username, ActionLoginAttempt, OutcomeFailure, sourceAddr, userAgent).
			AddDetail("reason", "unknown_account")
		if err := s.audit.Record(ctx, entry); err != nil {
			return nil, err
		}

		return nil, ErrInvalidCredentials
	}

	// the lock check runs before verification so a locked account never
	// pays the hash cost
	decision, err := s.guard.Check(ctx, account)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to evaluate lockout state")
	}

	if !decision.Permitted() {
		entry := newAuditEntry(&account.ID, account.Username, ActionLoginAttempt, OutcomeFailure, sourceAddr, userAgent).
			AddDetail("reason", "account_locked").
			AddDetail("retry_in_seconds", int(decision.Remaining.Seconds()+0.5))
		if err := s.audit.Record(ctx, entry); err != nil {
			return nil, err
		}

		return nil, NewLockedError(decision.Remaining)
	}

	if !account.Active {
		entry := newAuditEntry(&account.ID, account.Username, ActionLoginAttempt, OutcomeFailure, sourceAddr, userAgent).
			AddDetail("reason", "inactive_account")
		if err := s.audit.Record(ctx, entry); err != nil {
			return nil, err
		}

		return nil, ErrAccountInactive
	}

	if err := s.hasher.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if !goerrors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password verification failed")
		}

		outcome, err := s.guard.RecordFailure(ctx, account)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record login failure")
		}

		if outcome.JustLocked {
			entry := newAuditEntry(&account.ID, account.Username, ActionSuspicious, OutcomeFailure, sourceAddr, userAgent).
				AddDetail("activity_type", "multiple_failed_logins").
				AddDetail("attempts", outcome.FailedAttempts)
			if err := s.audit.Record(ctx, entry); err != nil {
				return nil, err
			}
		}

		if err := s.noteSuspicion(ctx, &account.ID, account.Username, sourceAddr, userAgent); err != nil {
			return nil, err
		}

		entry := newAuditEntry(&account.ID, account.Username, ActionLoginAttempt, OutcomeFailure, sourceAddr, userAgent).
			AddDetail("reason", "invalid_password").
			AddDetail("attempts", outcome.FailedAttempts)
		if err := s.audit.Record(ctx, entry); err != nil {
			return nil, err
		}

		return nil, ErrInvalidCredentials
	}

	if err := s.guard.RecordSuccess(ctx, account, sourceAddr); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record login success")
	}

	entry := newAuditEntry(&account.ID, account.Username, ActionLoginAttempt, OutcomeSuccess, sourceAddr, userAgent)
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(identityFromAccount(account))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue tokens")
	}

	return pair, nil
}

// VerifyAccessToken verifies a token presented for a protected request.
func (s *Auther) VerifyAccessToken(raw string) (*JWTClaims, error) {
	return s.tokens.Validate(raw, TokenClassAccess)
}

// Refresh exchanges a refresh token for a new pair. The subject's live
// account must still exist and be active.
func (s *Auther) Refresh(ctx context.Context, raw, sourceAddr, userAgent string) (*TokenPair, error) {
	claims, err := s.tokens.Validate(raw, TokenClassRefresh)
	if err != nil {
		return nil, err
	}

	account, err := s.store.GetByIdentifier(ctx, claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}

	if !account.Active {
		return nil, ErrAccountInactive
	}

	entry := newAuditEntry(&account.ID, account.Username, ActionLoginAttempt, OutcomeSuccess, sourceAddr, userAgent).
		AddDetail("grant", "refresh_token")
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(identityFromAccount(account))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue tokens")
	}

	return pair, nil
}

// UpdateProfile applies profile changes and, when requested, a password
// change gated on the current password.
func (s *Auther) UpdateProfile(ctx context.Context, identifier string, update ProfileUpdate) (*Account, error) {
	if err := update.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile update").
			WithCode(goerrors.CodeBadRequest)
	}

	account, err := s.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if update.NewPassword != "" {
		if err := s.hasher.ComparePasswordAndHash(update.CurrentPassword, account.PasswordHash); err != nil {
			entry := newAuditEntry(&account.ID, account.Username, ActionProfileUpdate, OutcomeFailure, update.SourceAddr, update.UserAgent).
				AddDetail("reason", "wrong_current_password")
			if err := s.audit.Record(ctx, entry); err != nil {
				return nil, err
			}
			return nil, ErrWrongCurrentPassword
		}

		if err := ValidateStrength(update.NewPassword); err != nil {
			return nil, err
		}

		hash, err := s.hasher.HashPassword(update.NewPassword)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if err := s.store.UpdatePassword(ctx, account.ID, hash); err != nil {
			return nil, err
		}
	}

	account, err = s.store.UpdateProfile(ctx, account.ID, ProfileChanges{
		Email:       update.Email,
		DisplayName: update.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	entry := newAuditEntry(&account.ID, account.Username, ActionProfileUpdate, OutcomeSuccess, update.SourceAddr, update.UserAgent).
		AddDetail("password_changed", update.NewPassword != "")
	if err := s.audit.Record(ctx, entry); err != nil {
		return nil, err
	}

	return account, nil
}

// EnsureAdminAccount creates the bootstrap admin when it does not
// already exist.
func (s *Auther) EnsureAdminAccount(ctx context.Context, username, email, password string) (*Account, error) {
	account, err := s.store.GetByIdentifier(ctx, username)
	if err == nil {
		return account, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	if err := ValidateStrength(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account = &Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		Active:       true,
	}

	return s.store.Register(ctx, account)
}

// noteSuspicion feeds the cross-account detector and emits the extra
// SUSPICIOUS_ACTIVITY event when a source crosses the rolling-window
// threshold.
func (s *Auther) noteSuspicion(ctx context.Context, accountID *uuid.UUID, username, sourceAddr, userAgent string) error {
	if !s.detector.RecordFailure(sourceAddr) {
		return nil
	}

	entry := newAuditEntry(accountID, username, ActionSuspicious, OutcomeFailure, sourceAddr, userAgent).
		AddDetail("activity_type", "repeated_failures_from_source")

	return s.audit.Record(ctx, entry)
}

type authIdentity struct {
	id       string
	username string
	email    string
	role     UserRole
}

func (a authIdentity) ID() string       { return a.id }
func (a authIdentity) Username() string { return a.username }
func (a authIdentity) Email() string    { return a.email }
func (a authIdentity) Role() UserRole   { return a.role }

var _ Identity = authIdentity{}

func identityFromAccount(account *Account) authIdentity {
	return authIdentity{
		id:       account.ID.String(),
		username: account.Username,
		email:    account.Email,
		role:     account.Role,
	}
}
