package authcore

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EventForwarder consumes recorded audit entries for best-effort
// delivery to an external collector. Enqueue must never block the
// caller.
type EventForwarder interface {
	Enqueue(entry *AuditEntry)
}

// EventForwarderFunc adapts a function to the EventForwarder interface.
type EventForwarderFunc func(entry *AuditEntry)

// Enqueue implements EventForwarder.
func (f EventForwarderFunc) Enqueue(entry *AuditEntry) {
	if f == nil {
		return
	}
	f(entry)
}

type noopForwarder struct{}

func (noopForwarder) Enqueue(*AuditEntry) {}

func normalizeForwarder(f EventForwarder) EventForwarder {
	if f == nil {
		return noopForwarder{}
	}
	return f
}

// AuditPipeline records security-relevant actions. The durable append
// is synchronous and its failure fails the triggering operation closed;
// the forward hop is handed off without waiting so a slow or
// unreachable collector never adds latency to the caller.
type AuditPipeline struct {
	store     AuditStore
	forwarder EventForwarder
	logger    Logger
}

// NewAuditPipeline returns a pipeline writing to the given store. With
// no forwarder configured only the network hop is disabled; local
// auditing is unaffected.
func NewAuditPipeline(store AuditStore) *AuditPipeline {
	return &AuditPipeline{
		store:     store,
		forwarder: noopForwarder{},
		logger:    defLogger{},
	}
}

func (p *AuditPipeline) WithForwarder(forwarder EventForwarder) *AuditPipeline {
	p.forwarder = normalizeForwarder(forwarder)
	return p
}

func (p *AuditPipeline) WithLogger(logger Logger) *AuditPipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Record appends the entry to the durable audit store and then hands it
// to the forwarder. The append must succeed: the audit trail is a
// compliance requirement, so a write failure is a systemic fault
// surfaced to the caller.
func (p *AuditPipeline) Record(ctx context.Context, entry *AuditEntry) error {
	if entry == nil {
		return goerrors.New("audit entry must not be nil", goerrors.CategoryBadInput)
	}

	stored, err := p.store.Append(ctx, entry)
	if err != nil {
		p.logger.Error("audit append failed", "action", entry.Action, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "audit write failed")
	}

	if shouldForward(stored.Action) {
		p.forwarder.Enqueue(stored)
	}

	return nil
}

// shouldForward selects the subset of actions mirrored to the external
// collector. Signups stay local.
func shouldForward(action AuditAction) bool {
	switch action {
	case ActionLoginAttempt, ActionAdminAccess, ActionSuspicious, ActionProfileUpdate:
		return true
	default:
		return false
	}
}

func newAuditEntry(accountID *uuid.UUID, username string, action AuditAction, outcome AuditOutcome, sourceAddr, userAgent string) *AuditEntry {
	return &AuditEntry{
		AccountID:  accountID,
		Username:   username,
		Action:     action,
		Outcome:    outcome,
		SourceAddr: sourceAddr,
		UserAgent:  userAgent,
	}
}
