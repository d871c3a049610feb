package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// The counter mutations below are single UPDATE statements so two concurrent
// failed logins against the same account can never clobber each other's
// increment, and the lock flag is decided on the post-increment value inside
// the same statement.
var trackFailedLoginSQL = `UPDATE "accounts" AS "acc"
SET
	"failed_login_attempts" = "acc"."failed_login_attempts" + 1,
	"is_locked" = CASE
		WHEN "acc"."failed_login_attempts" + 1 >= ? THEN TRUE
		ELSE "acc"."is_locked"
	END,
	"login_attempt_at" = CURRENT_TIMESTAMP,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."id" = ?
RETURNING *;`

var trackSuccessfulLoginSQL = `UPDATE "accounts" AS "acc"
SET
	"failed_login_attempts" = 0,
	"login_attempt_at" = NULL,
	"loggedin_at" = CURRENT_TIMESTAMP,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."id" = ?
RETURNING *;`

// confirmEmailSQL is a compare-and-swap: the token match and the unverified
// guard live in the WHERE clause, so a stale or guessed token mutates nothing.
var confirmEmailSQL = `UPDATE "accounts" AS "acc"
SET
	"is_email_verified" = TRUE,
	"verification_token" = '',
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."id" = ?
AND "acc"."is_email_verified" = FALSE
AND "acc"."verification_token" = ?
RETURNING *;`

var unlockAccountSQL = `UPDATE "accounts" AS "acc"
SET
	"is_locked" = FALSE,
	"failed_login_attempts" = 0,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."id" = ?
RETURNING *;`

var resetPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acc"."id" = ?
RETURNING *;`

// Accounts is the persistence surface consumed by the lifecycle service. It
// exposes the generic repository surface with List and Count narrowed to the
// pagination signatures the service uses.
type Accounts interface {
	Raw(ctx context.Context, sql string, args ...any) ([]*Account, error)
	RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]*Account, error)
	Get(ctx context.Context, criteria ...repository.SelectCriteria) (*Account, error)
	GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (*Account, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*Account, error)
	ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]*Account, int, error)
	CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error)

	CreateMany(ctx context.Context, records []*Account, criteria ...repository.InsertCriteria) ([]*Account, error)
	CreateManyTx(ctx context.Context, tx bun.IDB, records []*Account, criteria ...repository.InsertCriteria) ([]*Account, error)

	GetOrCreate(ctx context.Context, record *Account) (*Account, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Account, error)

	Update(ctx context.Context, record *Account, criteria ...repository.UpdateCriteria) (*Account, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.UpdateCriteria) (*Account, error)
	UpdateMany(ctx context.Context, records []*Account, criteria ...repository.UpdateCriteria) ([]*Account, error)
	UpdateManyTx(ctx context.Context, tx bun.IDB, records []*Account, criteria ...repository.UpdateCriteria) ([]*Account, error)

	Upsert(ctx context.Context, record *Account, criteria ...repository.UpdateCriteria) (*Account, error)
	UpsertTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.UpdateCriteria) (*Account, error)
	UpsertMany(ctx context.Context, records []*Account, criteria ...repository.UpdateCriteria) ([]*Account, error)
	UpsertManyTx(ctx context.Context, tx bun.IDB, records []*Account, criteria ...repository.UpdateCriteria) ([]*Account, error)

	Delete(ctx context.Context, record *Account) error
	DeleteTx(ctx context.Context, tx bun.IDB, record *Account) error
	DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error
	DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error

	DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error
	DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error
	ForceDelete(ctx context.Context, record *Account) error
	ForceDeleteTx(ctx context.Context, tx bun.IDB, record *Account) error

	Handlers() repository.ModelHandlers[*Account]
	RegisterScope(name string, scope repository.ScopeDefinition)
	SetScopeDefaults(defaults repository.ScopeDefaults) error
	GetScopeDefaults() repository.ScopeDefaults

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	GetByNickname(ctx context.Context, nickname string) (*Account, error)
	GetByNicknameTx(ctx context.Context, tx bun.IDB, nickname string) (*Account, error)

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	List(ctx context.Context, skip, limit int) ([]*Account, error)
	Count(ctx context.Context) (int, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)

	TrackFailedLogin(ctx context.Context, id uuid.UUID, threshold int) (*Account, error)
	TrackFailedLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, threshold int) (*Account, error)
	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) (*Account, error)
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)

	ConfirmEmail(ctx context.Context, id uuid.UUID, token string) (bool, error)
	Unlock(ctx context.Context, id uuid.UUID) (bool, error)
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) (bool, error)
}

type accountsRepo struct {
	repository.Repository[*Account]
	db *bun.DB
}

var _ Accounts = (*accountsRepo)(nil)

// NewAccountsRepository builds the bun-backed Accounts store.
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
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accountsRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *accountsRepo) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accountsRepo) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = lower(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

func (a *accountsRepo) GetByNickname(ctx context.Context, nickname string) (*Account, error) {
	return a.GetByNicknameTx(ctx, a.db, nickname)
}

func (a *accountsRepo) GetByNicknameTx(ctx context.Context, tx bun.IDB, nickname string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.nickname = ?", strings.TrimSpace(nickname)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"nickname": nickname})
		}
		return nil, err
	}

	return record, nil
}

func (a *accountsRepo) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accountsRepo) List(ctx context.Context, skip, limit int) ([]*Account, error) {
	var records []*Account

	q := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Order("id ASC")

	if skip > 0 {
		q = q.Offset(skip)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	if records == nil {
		records = []*Account{}
	}

	return records, nil
}

func (a *accountsRepo) Count(ctx context.Context) (int, error) {
	return a.db.NewSelect().Model((*Account)(nil)).Count(ctx)
}

func (a *accountsRepo) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := a.db.NewDelete().
		Model((*Account)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (a *accountsRepo) TrackFailedLogin(ctx context.Context, id uuid.UUID, threshold int) (*Account, error) {
	return a.TrackFailedLoginTx(ctx, a.db, id, threshold)
}

func (a *accountsRepo) TrackFailedLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, threshold int) (*Account, error) {
	record := &Account{}
	err := tx.NewRaw(trackFailedLoginSQL, threshold, id).Scan(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *accountsRepo) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.TrackSuccessfulLoginTx(ctx, a.db, id)
}

func (a *accountsRepo) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewRaw(trackSuccessfulLoginSQL, id).Scan(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *accountsRepo) ConfirmEmail(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	record := &Account{}
	err := a.db.NewRaw(confirmEmailSQL, id, token).Scan(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (a *accountsRepo) Unlock(ctx context.Context, id uuid.UUID) (bool, error) {
	record := &Account{}
	err := a.db.NewRaw(unlockAccountSQL, id).Scan(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (a *accountsRepo) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) (bool, error) {
	record := &Account{}
	err := a.db.NewRaw(resetPasswordSQL, passwordHash, id).Scan(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.EnsureRole()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// IsUniqueViolation classifies driver-level unique constraint failures so the
// service can report them as conflicts instead of store faults.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
