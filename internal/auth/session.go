package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/TickerVal-io/tickerval/internal/database"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
)

type Session struct {
	Token     string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateSession creates a new session for a user
func CreateSession(email string) (*Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(tokenBytes)

	expiresAt := time.Now().Add(24 * time.Hour)

	_, err := database.GetDB().Exec(
		database.Rebind("INSERT INTO sessions (token, email, expires_at) VALUES (?, ?, ?)"),
		token, email, expiresAt,
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:     token,
		Email:     email,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateSession checks if a session is valid and returns the associated email
func ValidateSession(token string) (string, error) {
	var email string
	var expiresAt time.Time
	err := database.GetDB().QueryRow(
		database.Rebind("SELECT email, expires_at FROM sessions WHERE token = ?"),
		token,
	).Scan(&email, &expiresAt)
	if err == sql.ErrNoRows {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}

	if expiresAt.Before(time.Now()) {
		return "", ErrSessionExpired
	}

	return email, nil
}

// DeleteSession removes a session
func DeleteSession(token string) error {
	result, err := database.GetDB().Exec(
		database.Rebind("DELETE FROM sessions WHERE token = ?"), token,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// CleanupExpiredSessions removes all expired sessions
func CleanupExpiredSessions() error {
	_, err := database.GetDB().Exec(
		database.Rebind("DELETE FROM sessions WHERE expires_at < ?"), time.Now(),
	)
	return err
}
