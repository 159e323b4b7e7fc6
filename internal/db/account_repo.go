package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"brokerly/internal/types"
)

// AccountRepo reads the CRM account directory. This service never writes
// accounts; it only resolves webhook events to their owners.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

const findAccountByIDSQL = `SELECT id, billing_email FROM accounts WHERE id = $1`

// FindByID resolves an account by its internal ID, the value checkout flows
// stamp into the provider's custom data.
func (r *AccountRepo) FindByID(ctx context.Context, id string) (*types.Account, error) {
	var acct types.Account
	err := r.db.QueryRow(ctx, findAccountByIDSQL, id).Scan(&acct.ID, &acct.BillingEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up account", err)
	}
	return &acct, nil
}

const findAccountByEmailSQL = `SELECT id, billing_email FROM accounts WHERE LOWER(billing_email) = $1`

// FindByEmail is the fallback lookup for events without a correlation ID.
// Matching is case-insensitive.
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*types.Account, error) {
	var acct types.Account
	err := r.db.QueryRow(ctx, findAccountByEmailSQL, strings.ToLower(email)).Scan(&acct.ID, &acct.BillingEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "no account with billing email", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up account by email", err)
	}
	return &acct, nil
}
