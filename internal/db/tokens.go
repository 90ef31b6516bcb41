package db

import (
	"database/sql"
	"errors"
	"time"
)

func (d *DB) SaveRefreshToken(t RefreshToken) error {
	_, err := d.sql.Exec(
		`INSERT INTO refresh_tokens (token, account_id, expires_at, created_at) VALUES (?,?,?,?)`,
		t.Token, t.AccountID, t.ExpiresAt.UnixMilli(), t.CreatedAt.UnixMilli(),
	)
	return err
}

// GetRefreshToken returns the stored token regardless of expiry; callers
// compare ExpiresAt themselves.
func (d *DB) GetRefreshToken(token string) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt int64
	err := d.sql.QueryRow(
		`SELECT token, account_id, expires_at, created_at FROM refresh_tokens WHERE token = ?`, token,
	).Scan(&t.Token, &t.AccountID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ExpiresAt = time.UnixMilli(expiresAt)
	t.CreatedAt = time.UnixMilli(createdAt)
	return &t, nil
}

func (d *DB) DeleteRefreshToken(token string) error {
	_, err := d.sql.Exec(`DELETE FROM refresh_tokens WHERE token = ?`, token)
	return err
}

// DeleteExpiredRefreshTokens purges tokens that expired before now and
// reports how many were removed.
func (d *DB) DeleteExpiredRefreshTokens(now time.Time) (int64, error) {
	res, err := d.sql.Exec(`DELETE FROM refresh_tokens WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
