// Package repository provides persistence implementations for gallery accounts
// and the active-account preference.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/GalleryKeeper/internal/models"
)

// SQLAccountRepository stores accounts in a SQL database. The queries use
// $n placeholders and ON CONFLICT clauses understood by both PostgreSQL
// and SQLite.
type SQLAccountRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewSQLAccountRepository creates a repository on top of an opened and
// migrated database (see db.Open).
func NewSQLAccountRepository(db *sql.DB) *SQLAccountRepository {
	return &SQLAccountRepository{DB: db}
}

// List returns all accounts in insertion order.
func (r *SQLAccountRepository) List(ctx context.Context) ([]models.Account, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT account_key, site_url, username, is_guest, session_cookie, auth_token, secret
		  FROM accounts ORDER BY position, account_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var acc models.Account
		if err := rows.Scan(&acc.Key, &acc.SiteURL, &acc.Username, &acc.IsGuest,
			&acc.SessionCookie, &acc.AuthToken, &acc.Secret); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// Get returns the account stored under key or models.ErrUnknownAccount.
func (r *SQLAccountRepository) Get(ctx context.Context, key string) (*models.Account, error) {
	var acc models.Account
	err := r.DB.QueryRowContext(ctx, `
		SELECT account_key, site_url, username, is_guest, session_cookie, auth_token, secret
		  FROM accounts WHERE account_key = $1
	`, key).Scan(&acc.Key, &acc.SiteURL, &acc.Username, &acc.IsGuest,
		&acc.SessionCookie, &acc.AuthToken, &acc.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

// Insert adds acc at the end of the enumeration order. It returns
// models.ErrDuplicateAccount when the key is already taken.
func (r *SQLAccountRepository) Insert(ctx context.Context, acc models.Account) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM accounts`).Scan(&position); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (account_key, position, site_url, username, is_guest, session_cookie, auth_token, secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_key) DO NOTHING
	`, acc.Key, position, acc.SiteURL, acc.Username, acc.IsGuest, acc.SessionCookie, acc.AuthToken, acc.Secret)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrDuplicateAccount, acc.Key)
	}
	return tx.Commit()
}

// UpdateSession replaces the cookie and token of an account in one statement.
func (r *SQLAccountRepository) UpdateSession(ctx context.Context, key, cookie, token string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE accounts SET session_cookie = $2, auth_token = $3 WHERE account_key = $1
	`, key, cookie, token)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return requireRow(res, key)
}

// UpdateSecret replaces the sealed password of an account.
func (r *SQLAccountRepository) UpdateSecret(ctx context.Context, key string, secret []byte) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE accounts SET secret = $2 WHERE account_key = $1`, key, secret)
	if err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	return requireRow(res, key)
}

// Delete removes an account.
func (r *SQLAccountRepository) Delete(ctx context.Context, key string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM accounts WHERE account_key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireRow(res, key)
}

// GetPreference returns the stored value or "" when the preference is unset.
func (r *SQLAccountRepository) GetPreference(ctx context.Context, name string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM preferences WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", name, err)
	}
	return value, nil
}

// SetPreference upserts a preference.
func (r *SQLAccountRepository) SetPreference(ctx context.Context, name, value string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO preferences (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", name, err)
	}
	return nil
}

func requireRow(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrUnknownAccount, key)
	}
	return nil
}
