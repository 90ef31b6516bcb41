package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const accountColumns = `id, username, password_hash, instrument, is_admin, created_at`

// HashPassword returns the bcrypt hash stored in Account.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *Account) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// CreateAccount stores a new account. The username is trimmed; an empty
// username, an unknown instrument or a duplicate username is rejected.
func (d *DB) CreateAccount(username, passwordHash string, instrument Instrument, isAdmin bool) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return nil, errors.New("username and password are required")
	}
	if !instrument.Valid() {
		return nil, ErrInvalidInstrument
	}
	acc := &Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Instrument:   instrument,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().Truncate(time.Millisecond),
	}
	_, err := d.sql.Exec(
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?,?,?,?,?,?)`,
		acc.ID, acc.Username, acc.PasswordHash, string(acc.Instrument),
		boolToInt(acc.IsAdmin), acc.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

func (d *DB) GetAccount(id string) (*Account, error) {
	row := d.sql.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (d *DB) GetAccountByUsername(username string) (*Account, error) {
	row := d.sql.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, strings.TrimSpace(username))
	return scanAccount(row)
}

// FindAccountByCredentials returns the account only when the password
// matches. Unknown usernames and wrong passwords both yield ErrNotFound.
func (d *DB) FindAccountByCredentials(username, password string) (*Account, error) {
	acc, err := d.GetAccountByUsername(username)
	if err != nil {
		return nil, err
	}
	if !acc.CheckPassword(password) {
		return nil, ErrNotFound
	}
	return acc, nil
}

// ListAccounts returns every account, newest first.
func (d *DB) ListAccounts() ([]*Account, error) {
	rows, err := d.sql.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []*Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// UpdateAccount persists the instrument and admin flag of acc. A non-empty
// passwordHash also replaces the password and revokes every refresh token of
// the account, all in one transaction.
func (d *DB) UpdateAccount(acc *Account, passwordHash string) error {
	if !acc.Instrument.Valid() {
		return ErrInvalidInstrument
	}
	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE accounts SET instrument = ?, is_admin = ? WHERE id = ?`,
		string(acc.Instrument), boolToInt(acc.IsAdmin), acc.ID,
	)
	if err != nil {
		return err
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	if passwordHash != "" {
		if _, err := tx.Exec(`UPDATE accounts SET password_hash = ? WHERE id = ?`, passwordHash, acc.ID); err != nil {
			return fmt.Errorf("set password: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM refresh_tokens WHERE account_id = ?`, acc.ID); err != nil {
			return fmt.Errorf("revoke refresh tokens: %w", err)
		}
		acc.PasswordHash = passwordHash
	}
	return tx.Commit()
}

// DeleteAccount removes the account and, by cascade, its refresh tokens.
func (d *DB) DeleteAccount(id string) error {
	res, err := d.sql.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var instrument string
	var isAdmin int
	var createdAt int64
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &instrument, &isAdmin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Instrument = Instrument(instrument)
	a.IsAdmin = isAdmin == 1
	a.CreatedAt = time.UnixMilli(createdAt)
	return &a, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
