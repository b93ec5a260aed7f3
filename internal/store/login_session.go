package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/rollcall/internal/model"
)

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

type LoginSessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewLoginSessionStore(db *sql.DB, ttl time.Duration) *LoginSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &LoginSessionStore{db: db, ttl: ttl}
}

const loginSessionCols = `id, token, user_id, expires_at, created_at`

func scanLoginSession(s scanner) (*model.LoginSession, error) {
	var ls model.LoginSession
	if err := s.Scan(&ls.ID, &ls.Token, &ls.UserID, &ls.ExpiresAt, &ls.CreatedAt); err != nil {
		return nil, err
	}
	return &ls, nil
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create starts a login session for a user with a 32-byte random token.
func (s *LoginSessionStore) Create(ctx context.Context, userID int64) (*model.LoginSession, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO login_sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token, userID, now.Add(s.ttl), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert login session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+loginSessionCols+` FROM login_sessions WHERE id = ?`, id)
	return scanLoginSession(row)
}

// GetByToken returns the unexpired session for token, or nil.
func (s *LoginSessionStore) GetByToken(ctx context.Context, token string) (*model.LoginSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+loginSessionCols+` FROM login_sessions WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC(),
	)
	ls, err := scanLoginSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get login session: %w", err)
	}
	return ls, nil
}

func (s *LoginSessionStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete login session: %w", err)
	}
	return nil
}

func (s *LoginSessionStore) DeleteByUserID(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete login sessions by user: %w", err)
	}
	return nil
}

// DeleteExpired removes expired sessions and returns how many were removed.
func (s *LoginSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired login sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
