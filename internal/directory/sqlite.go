package directory

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"sharerelay/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	password   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invitation_codes (
	code       TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invitation_codes_username ON invitation_codes(username);
`

// SQLiteStore keeps users and invitation codes in a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and
// applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; sqlite serialises them anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return stderrors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func (s *SQLiteStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var (
		u    = User{Username: username}
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &hash, &u.Created)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err := checkPassword(hash, password); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) Register(ctx context.Context, username, password string) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password) VALUES (?, ?)`, username, hash)
	if isUniqueViolation(err) {
		return nil, errors.ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	u := &User{ID: id, Username: username}
	if err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM users WHERE id = ?`, id).Scan(&u.Created); err != nil {
		return nil, fmt.Errorf("read back user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) count(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username)
}

func (s *SQLiteStore) ValidateInvitationCode(ctx context.Context, code, username string) (bool, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM invitation_codes WHERE code = ? AND username = ?`, code, username)
}

func (s *SQLiteStore) IsInvitationCodeUsed(ctx context.Context, code string) (bool, error) {
	return s.count(ctx, `
		SELECT COUNT(*) FROM users u
		JOIN invitation_codes ic ON u.username = ic.username
		WHERE ic.code = ?`, code)
}

func (s *SQLiteStore) AddInvitationCode(ctx context.Context, code, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invitation_codes (code, username) VALUES (?, ?)`, code, username)
	if isUniqueViolation(err) {
		return errors.ErrInvitationExists
	}
	if err != nil {
		return fmt.Errorf("insert invitation code: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
