package usage

import (
	"net/http"
	"time"
)

// CookieName holds the signed view counter on the client.
const CookieName = "tv_views"

// Expiry runs well past one period so a token minted late in a month is
// still readable when the next month starts.
const cookieLifetime = 40 * 24 * time.Hour

// ReadCookie returns the raw counter token, or "" when absent.
func ReadCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetCookie writes the counter token. HttpOnly keeps it out of reach of
// page script; only the server may mint or read it.
func SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(cookieLifetime),
	})
}
