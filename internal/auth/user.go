package auth

import (
	"database/sql"
	"errors"
	"time"

	"github.com/TickerVal-io/tickerval/internal/database"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrEmailAlreadyTaken = errors.New("email already taken")
)

// User is an account. Email is the primary key; there are no internal IDs.
type User struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Register creates a new user with the given email and password
func Register(email, password string) (*User, error) {
	var exists bool
	err := database.GetDB().QueryRow(
		database.Rebind("SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)"), email,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	_, err = database.GetDB().Exec(
		database.Rebind("INSERT INTO users (email, password_hash) VALUES (?, ?)"),
		email, string(hashedPassword),
	)
	if err != nil {
		return nil, err
	}

	return GetUserByEmail(email)
}

// GetUserByEmail retrieves a user by their email
func GetUserByEmail(email string) (*User, error) {
	var user User
	err := database.GetDB().QueryRow(
		database.Rebind("SELECT email, password_hash, created_at, updated_at FROM users WHERE email = ?"),
		email,
	).Scan(&user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies the user's credentials
func Authenticate(email, password string) (*User, error) {
	user, err := GetUserByEmail(email)
	if err != nil {
		return nil, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, ErrInvalidPassword
	}

	return user, nil
}
