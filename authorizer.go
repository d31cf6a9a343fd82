package authcore

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AccessRequest carries the context of a capability check for auditing.
type AccessRequest struct {
	Capability string
	SourceAddr string
	UserAgent  string
}

// Authorizer maps a verified token's role claim to an allow/deny
// decision. The role claim is a snapshot from mint time, but the
// subject's live account must still be active: deactivation takes
// effect on the next request, not at token expiry.
type Authorizer struct {
	store  AccountStore
	audit  *AuditPipeline
	logger Logger
}

func NewAuthorizer(store AccountStore, audit *AuditPipeline) *Authorizer {
	return &Authorizer{
		store:  store,
		audit:  audit,
		logger: defLogger{},
	}
}

func (a *Authorizer) WithLogger(logger Logger) *Authorizer {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// RequireRole decides whether the claims grant the required role. Every
// denial produces exactly one ADMIN_ACCESS audit entry carrying the
// attempted capability.
func (a *Authorizer) RequireRole(ctx context.Context, claims Claims, required UserRole, req AccessRequest) error {
	if claims == nil {
		return a.deny(ctx, nil, "", req, "missing_claims")
	}

	var accountID *uuid.UUID
	username := ""

	account, err := a.store.GetByIdentifier(ctx, claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return a.deny(ctx, nil, claims.Subject(), req, "unknown_account")
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for authorization")
	}

	accountID = &account.ID
	username = account.Username

	if !account.Active {
		return a.deny(ctx, accountID, username, req, "inactive_account")
	}

	if !RoleSatisfies(claims.Role(), required) {
		return a.deny(ctx, accountID, username, req, "insufficient_role")
	}

	return nil
}

func (a *Authorizer) deny(ctx context.Context, accountID *uuid.UUID, username string, req AccessRequest, reason string) error {
	entry := newAuditEntry(accountID, username, ActionAdminAccess, OutcomeDenied, req.SourceAddr, req.UserAgent).
		AddDetail("capability", req.Capability).
		AddDetail("reason", reason)

	if err := a.audit.Record(ctx, entry); err != nil {
		// the audit trail is a compliance requirement; fail closed
		return err
	}

	a.logger.Info("authorization denied",
		"capability", req.Capability,
		"reason", reason,
	)

	return ErrAccessDenied
}
