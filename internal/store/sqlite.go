// Package store persists campus accounts in SQLite for the campusauth
// engine.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
`

const userColumns = `id, email, display_name, role, password_hash, created_at`

// Store is a [campusauth.CredentialStore] backed by a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ campusauth.CredentialStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (campusauth.UserRecord, error) {
	var (
		u       campusauth.UserRecord
		role    string
		created int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.PasswordHash, &created); err != nil {
		return campusauth.UserRecord{}, err
	}
	u.Role = campusauth.Role(role)
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}

func (s *Store) getOne(ctx context.Context, query string, arg string) (campusauth.UserRecord, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return campusauth.UserRecord{}, campusauth.ErrUserNotFound
	}
	if err != nil {
		return campusauth.UserRecord{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks an account up by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (campusauth.UserRecord, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
}

// GetUserByID looks an account up by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (campusauth.UserRecord, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// CreateUser inserts a new account with a fresh UUID.
func (s *Store) CreateUser(ctx context.Context, input campusauth.CreateUserInput) (campusauth.UserRecord, error) {
	u := campusauth.UserRecord{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(input.Email),
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Role:         input.Role,
		PasswordHash: input.PasswordHash,
		CreatedAt:    s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, string(u.Role), u.PasswordHash, u.CreatedAt.UnixNano(),
	)
	if isUniqueViolation(err) {
		return campusauth.UserRecord{}, campusauth.ErrDuplicateEmail
	}
	if err != nil {
		return campusauth.UserRecord{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UpdatePasswordHash replaces the stored hash for id.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n == 0 {
		return campusauth.ErrUserNotFound
	}
	return nil
}

// ListUsersByRole returns accounts ordered by creation time. An empty role
// lists everyone.
func (s *Store) ListUsersByRole(ctx context.Context, role campusauth.Role) ([]campusauth.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at, email`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []campusauth.UserRecord{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
