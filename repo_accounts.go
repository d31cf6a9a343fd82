package authcore

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var recordLoginFailureSQL = `UPDATE "accounts" AS "acct"
SET
	"failed_attempts" = "failed_attempts" + 1,
	"locked_until" = CASE
		WHEN "failed_attempts" + 1 >= ? THEN ?
		ELSE "locked_until"
	END,
	"updated_at" = ?
WHERE
	("acct"."id" = ?)
RETURNING "failed_attempts", "locked_until";`

var recordLoginSuccessSQL = `UPDATE "accounts" AS "acct"
SET
	"failed_attempts" = 0,
	"locked_until" = NULL,
	"last_login_at" = ?,
	"last_login_ip" = ?,
	"updated_at" = ?
WHERE
	("acct"."id" = ?);`

var clearLockSQL = `UPDATE "accounts" AS "acct"
SET
	"failed_attempts" = 0,
	"locked_until" = NULL,
	"updated_at" = ?
WHERE
	("acct"."id" = ?);`

// Accounts is the account repository. The security-counter mutations
// are single UPDATE statements so concurrent login attempts serialize
// at the row and cannot race past the lockout threshold.
type Accounts interface {
	repository.Repository[*Account]

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)

	RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (*LockoutState, error)
	RecordSuccess(ctx context.Context, id uuid.UUID, sourceAddr string) error
	ClearLock(ctx context.Context, id uuid.UUID) error

	UpdateProfile(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	ListAll(ctx context.Context) ([]*Account, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ AccountStore                    = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

// RegisterTx creates the account after checking the uniqueness
// constraints, so callers get a distinct conflict error per field.
func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)

	taken, err := tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.username = ?", account.Username).
		Exists(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username uniqueness")
	}
	if taken {
		return nil, ErrDuplicateUsername
	}

	taken, err = tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.email = ?", account.Email).
		Exists(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	return a.Repository.CreateTx(ctx, tx, account)
}

func (a *accounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *accounts) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	options := resolveAccountIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &Account{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

// RecordFailure applies the increment and the conditional lock in one
// statement and returns the resulting counter state.
func (a *accounts) RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (*LockoutState, error) {
	var failedAttempts int
	var lockedUntil *time.Time

	err := a.db.NewRaw(recordLoginFailureSQL, threshold, lockUntil, time.Now(), id).
		Scan(ctx, &failedAttempts, &lockedUntil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record login failure")
	}

	return &LockoutState{
		FailedAttempts: failedAttempts,
		LockedUntil:    lockedUntil,
	}, nil
}

func (a *accounts) RecordSuccess(ctx context.Context, id uuid.UUID, sourceAddr string) error {
	now := time.Now()
	_, err := a.db.NewRaw(recordLoginSuccessSQL, now, sourceAddr, now, id).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record login success")
	}
	return nil
}

func (a *accounts) ClearLock(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewRaw(clearLockSQL, time.Now(), id).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear expired lock")
	}
	return nil
}

func (a *accounts) UpdateProfile(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*Account, error) {
	columns := make([]string, 0, 3)
	record := &Account{ID: id}

	if changes.Email != nil {
		taken, err := a.db.NewSelect().
			Model((*Account)(nil)).
			Where("?TableAlias.email = ?", *changes.Email).
			Where("?TableAlias.id != ?", id).
			Exists(ctx)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}
		if taken {
			return nil, ErrDuplicateEmail
		}

		record.Email = *changes.Email
		columns = append(columns, "email")
	}
	if changes.DisplayName != nil {
		record.DisplayName = *changes.DisplayName
		columns = append(columns, "display_name")
	}

	if len(columns) == 0 {
		return a.GetByIdentifier(ctx, id.String())
	}

	now := time.Now()
	record.UpdatedAt = &now
	columns = append(columns, "updated_at")

	res, err := a.db.NewUpdate().
		Model(record).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return a.GetByIdentifier(ctx, id.String())
}

func (a *accounts) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	now := time.Now()
	res, err := a.db.NewUpdate().
		Model(&Account{ID: id, PasswordHash: passwordHash, UpdatedAt: &now}).
		Column("password_hash", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// SetActive flips the soft-deactivation flag. Accounts are never
// physically deleted.
func (a *accounts) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	now := time.Now()
	_, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update active flag")
	}
	return nil
}

// ListAll returns every account ordered by username, for the admin
// surface. Paged listing goes through the embedded repository's List.
func (a *accounts) ListAll(ctx context.Context) ([]*Account, error) {
	var records []*Account
	err := a.db.NewSelect().
		Model(&records).
		Order("username ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
	}
	return records, nil
}

// Create applies account defaults before delegating to the repository.
func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
