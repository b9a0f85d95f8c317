// Package usage encodes the per-month report-view counter into a
// tamper-evident client-held token. The server keeps no counter state of
// its own; the token is the only ledger, so it must be self-certifying.
package usage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Counter is a decoded view counter: how many report views were consumed
// in the calendar month identified by PeriodKey ("YYYY-MM").
type Counter struct {
	PeriodKey string
	Count     int
}

// Codec signs and verifies counter tokens with a server-held secret.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// PeriodKey returns the calendar-month key for t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Encode serializes the counter and appends an HMAC-SHA256 tag.
func (c *Codec) Encode(periodKey string, count int) string {
	if count < 0 {
		count = 0
	}
	payload := fmt.Sprintf("%s:%d", periodKey, count)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(c.sign(payload))
}

// Decode verifies the tag and parses the counter. ok is false on any
// mismatch, parse failure, or empty token; callers must treat that the
// same as "zero usage, fresh period", never as a denial.
func (c *Codec) Decode(token string) (Counter, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Counter{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Counter{}, false
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Counter{}, false
	}
	if !hmac.Equal(tag, c.sign(string(payload))) {
		return Counter{}, false
	}

	idx := strings.LastIndexByte(string(payload), ':')
	if idx < 0 {
		return Counter{}, false
	}
	periodKey := string(payload[:idx])
	count, err := strconv.Atoi(string(payload[idx+1:]))
	if err != nil || count < 0 || periodKey == "" {
		return Counter{}, false
	}

	return Counter{PeriodKey: periodKey, Count: count}, true
}

// CurrentCount returns the usage consumed in the month containing now.
// A token from an earlier month is the lazy monthly reset: it reads as 0.
func (c *Codec) CurrentCount(token string, now time.Time) int {
	ctr, ok := c.Decode(token)
	if !ok || ctr.PeriodKey != PeriodKey(now) {
		return 0
	}
	return ctr.Count
}

func (c *Codec) sign(payload string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
