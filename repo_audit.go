package authcore

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditEntries is the append-only audit repository. There is no update
// or delete surface: entries are immutable once written.
type AuditEntries interface {
	Append(ctx context.Context, entry *AuditEntry) (*AuditEntry, error)
	AppendTx(ctx context.Context, tx bun.IDB, entry *AuditEntry) (*AuditEntry, error)
	List(ctx context.Context, limit int) ([]*AuditEntry, error)
}

type auditEntries struct {
	repo repository.Repository[*AuditEntry]
	db   *bun.DB
}

var (
	_ AuditEntries = (*auditEntries)(nil)
	_ AuditStore   = (*auditEntries)(nil)
)

func NewAuditEntriesRepository(db *bun.DB) AuditEntries {
	repo := repository.NewRepository[*AuditEntry](db, repository.ModelHandlers[*AuditEntry]{
		NewRecord: func() *AuditEntry { return &AuditEntry{} },
		GetID: func(e *AuditEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *AuditEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &auditEntries{
		repo: repo,
		db:   db,
	}
}

func (a *auditEntries) Append(ctx context.Context, entry *AuditEntry) (*AuditEntry, error) {
	return a.AppendTx(ctx, a.db, entry)
}

func (a *auditEntries) AppendTx(ctx context.Context, tx bun.IDB, entry *AuditEntry) (*AuditEntry, error) {
	if entry == nil {
		return nil, goerrors.New("audit entry must not be nil", goerrors.CategoryBadInput)
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	created, err := a.repo.CreateTx(ctx, tx, entry)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to append audit entry")
	}

	return created, nil
}

// List returns the most recent entries, newest first.
func (a *auditEntries) List(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	var records []*AuditEntry
	err := a.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list audit entries")
	}

	return records, nil
}
