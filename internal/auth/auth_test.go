package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/TickerVal-io/tickerval/internal/config"
	"github.com/TickerVal-io/tickerval/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestDB(t *testing.T) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite3"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Database.MaxRetries = 1

	require.NoError(t, database.Init(cfg))
	t.Cleanup(func() { database.Close() })
}

func TestRegisterAndAuthenticate(t *testing.T) {
	initTestDB(t)

	user, err := Register("user@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	_, err = Register("user@example.com", "another password")
	assert.ErrorIs(t, err, ErrEmailAlreadyTaken)

	authed, err := Authenticate("user@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", authed.Email)

	_, err = Authenticate("user@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = Authenticate("nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	initTestDB(t)

	session, err := CreateSession("user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)

	email, err := ValidateSession(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)

	require.NoError(t, DeleteSession(session.Token))
	_, err = ValidateSession(session.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, DeleteSession(session.Token), ErrSessionNotFound)
}

func TestExpiredSessionRejectedAndCleaned(t *testing.T) {
	initTestDB(t)

	_, err := database.GetDB().Exec(
		database.Rebind("INSERT INTO sessions (token, email, expires_at) VALUES (?, ?, ?)"),
		"stale-token", "user@example.com", time.Now().Add(-time.Hour),
	)
	require.NoError(t, err)

	_, err = ValidateSession("stale-token")
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, CleanupExpiredSessions())
	_, err = ValidateSession("stale-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegisterLoginLogoutHandlers(t *testing.T) {
	initTestDB(t)

	body := bytes.NewBufferString(`{"email":"user@example.com","password":"correct horse"}`)
	rec := httptest.NewRecorder()
	RegisterHandler(rec, httptest.NewRequest(http.MethodPost, "/auth/register", body))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, SessionCookieName, rec.Result().Cookies()[0].Name)

	body = bytes.NewBufferString(`{"email":"user@example.com","password":"correct horse"}`)
	rec = httptest.NewRecorder()
	LoginHandler(rec, httptest.NewRequest(http.MethodPost, "/auth/login", body))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	sessionToken := cookies[0].Value

	body = bytes.NewBufferString(`{"email":"user@example.com","password":"wrong"}`)
	rec = httptest.NewRecorder()
	LoginHandler(rec, httptest.NewRequest(http.MethodPost, "/auth/login", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionToken})
	rec = httptest.NewRecorder()
	LogoutHandler(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := ValidateSession(sessionToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func identityRecorder(tm *TokenManager) (http.Handler, *string) {
	var seen string
	handler := ResolveIdentity(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = EmailFromContext(r.Context())
	}))
	return handler, &seen
}

func TestResolveIdentityFromSessionCookie(t *testing.T) {
	initTestDB(t)

	session, err := CreateSession("user@example.com")
	require.NoError(t, err)

	handler, seen := identityRecorder(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session.Token})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "user@example.com", *seen)

	// An invalid session resolves to anonymous, never an error.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "bogus"})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, *seen)
}

func TestResolveIdentityFromBearerToken(t *testing.T) {
	initTestDB(t)

	tm := NewTokenManager("token-secret")
	token, err := tm.GenerateToken(&User{Email: "user@example.com"}, time.Hour)
	require.NoError(t, err)

	handler, seen := identityRecorder(tm)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "user@example.com", *seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, *seen)
}

func TestTokenManagerRoundTrip(t *testing.T) {
	tm := NewTokenManager("token-secret")

	token, err := tm.GenerateToken(&User{Email: "user@example.com"}, time.Hour)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)

	_, err = NewTokenManager("other-secret").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := tm.GenerateToken(&User{Email: "user@example.com"}, -time.Minute)
	require.NoError(t, err)
	_, err = tm.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenHandlerMintsUsableToken(t *testing.T) {
	initTestDB(t)

	_, err := Register("user@example.com", "correct horse")
	require.NoError(t, err)

	tm := NewTokenManager("token-secret")
	handler := TokenHandler(tm)

	// Anonymous callers get nothing.
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/auth/token", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req = req.WithContext(context.WithValue(req.Context(), EmailContextKey, "user@example.com"))
	rec = httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	// The minted token flows back through the Bearer resolution path.
	resolver, seen := identityRecorder(tm)
	bearerReq := httptest.NewRequest(http.MethodGet, "/", nil)
	bearerReq.Header.Set("Authorization", "Bearer "+resp.Token)
	resolver.ServeHTTP(httptest.NewRecorder(), bearerReq)
	assert.Equal(t, "user@example.com", *seen)
}
