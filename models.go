package authcore

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the credential record. Security counters (FailedAttempts,
// LockedUntil) are mutated only through the AccountStore's atomic
// operations. Accounts are never physically deleted: deactivation flips
// the Active flag.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acct"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	DisplayName    string     `bun:"display_name" json:"display_name,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	Role           UserRole   `bun:"role,notnull" json:"role,omitempty"`
	Active         bool       `bun:"is_active,notnull" json:"is_active"`
	FailedAttempts int        `bun:"failed_attempts,notnull,default:0" json:"failed_attempts,omitempty"`
	LockedUntil    *time.Time `bun:"locked_until,nullzero" json:"locked_until,omitempty"`
	LastLoginAt    *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	LastLoginIP    string     `bun:"last_login_ip" json:"last_login_ip,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AuditAction tags the kind of security-relevant action an entry records.
type AuditAction = string

const (
	ActionSignup        AuditAction = "SIGNUP"
	ActionLoginAttempt  AuditAction = "LOGIN_ATTEMPT"
	ActionAdminAccess   AuditAction = "ADMIN_ACCESS"
	ActionSuspicious    AuditAction = "SUSPICIOUS_ACTIVITY"
	ActionProfileUpdate AuditAction = "PROFILE_UPDATE"
)

// AuditOutcome is the recorded result of the audited action.
type AuditOutcome = string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomeFailure AuditOutcome = "failure"
	OutcomeDenied  AuditOutcome = "denied"
)

// AuditEntry is an immutable record of a security-relevant action.
// AccountID is nil for pre-authentication failures where no account
// could be resolved.
type AuditEntry struct {
	bun.BaseModel `bun:"table:audit_entries,alias:aud"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     *uuid.UUID     `bun:"account_id,nullzero" json:"account_id,omitempty"`
	Username      string         `bun:"username" json:"username,omitempty"`
	Action        AuditAction    `bun:"action,notnull" json:"action,omitempty"`
	Outcome       AuditOutcome   `bun:"outcome,notnull" json:"outcome,omitempty"`
	SourceAddr    string         `bun:"source_addr" json:"source_addr,omitempty"`
	UserAgent     string         `bun:"user_agent" json:"user_agent,omitempty"`
	Details       map[string]any `bun:"details" json:"details,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AddDetail appends information to the entry's detail payload
func (e *AuditEntry) AddDetail(key string, val any) *AuditEntry {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = val
	return e
}
