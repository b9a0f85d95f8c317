package usage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec("test-secret")

	token := c.Encode("2026-09", 3)
	ctr, ok := c.Decode(token)
	require.True(t, ok)
	assert.Equal(t, "2026-09", ctr.PeriodKey)
	assert.Equal(t, 3, ctr.Count)
}

func TestDecodeRejectsWrongSecret(t *testing.T) {
	token := NewCodec("secret-a").Encode("2026-09", 3)
	_, ok := NewCodec("secret-b").Decode(token)
	assert.False(t, ok)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	c := NewCodec("test-secret")

	for _, token := range []string{
		"",
		"not-a-token",
		"a.b.c",
		"!!!.???",
		c.Encode("2026-09", 1) + "x",
	} {
		_, ok := c.Decode(token)
		assert.False(t, ok, "token %q should not decode", token)
	}
}

func TestCurrentCountLazyMonthlyReset(t *testing.T) {
	c := NewCodec("test-secret")
	now := time.Date(2026, time.September, 15, 12, 0, 0, 0, time.UTC)

	// A counter from the current month reads back as-is.
	token := c.Encode(PeriodKey(now), 4)
	assert.Equal(t, 4, c.CurrentCount(token, now))

	// The same token read in the next month resets to zero. No cron job
	// rewrites cookies; the stale period key is the reset.
	october := now.AddDate(0, 1, 0)
	assert.Equal(t, 0, c.CurrentCount(token, october))

	// And across a year boundary.
	december := time.Date(2026, time.December, 31, 23, 59, 0, 0, time.UTC)
	january := time.Date(2027, time.January, 1, 0, 1, 0, 0, time.UTC)
	token = c.Encode(PeriodKey(december), 2)
	assert.Equal(t, 2, c.CurrentCount(token, december))
	assert.Equal(t, 0, c.CurrentCount(token, january))
}

func TestCurrentCountInvalidTokenReadsAsZero(t *testing.T) {
	c := NewCodec("test-secret")
	now := time.Now()

	assert.Equal(t, 0, c.CurrentCount("", now))
	assert.Equal(t, 0, c.CurrentCount("tampered", now))
}

func TestPeriodKeyUsesUTC(t *testing.T) {
	// 23:30 Dec 31 in UTC-5 is already January in UTC; the period key must
	// not depend on the server's local zone.
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2026, time.December, 31, 23, 30, 0, 0, est)
	assert.Equal(t, "2027-01", PeriodKey(local))
}

func TestTamperedTokenNeverDecodes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewCodec("test-secret")
		count := rapid.IntRange(0, 100).Draw(t, "count")
		token := c.Encode("2026-09", count)

		pos := rapid.IntRange(0, len(token)-1).Draw(t, "pos")
		replacement := rapid.RuneFrom([]rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.")).Draw(t, "replacement")
		mutated := token[:pos] + string(replacement) + token[pos+1:]
		if mutated == token {
			t.Skip("mutation was a no-op")
		}

		ctr, ok := c.Decode(mutated)
		if ok {
			// The only acceptable decode of a mutated token is one that
			// still carries the original signed payload.
			if ctr.Count != count || ctr.PeriodKey != "2026-09" {
				t.Fatalf("tampered token decoded to %+v", ctr)
			}
		}
	})
}

func TestArbitraryCountersRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewCodec(rapid.StringN(1, 64, 64).Draw(t, "secret"))
		periodKey := PeriodKey(time.Unix(rapid.Int64Range(0, 4102444800).Draw(t, "ts"), 0))
		count := rapid.IntRange(0, 1<<20).Draw(t, "count")

		token := c.Encode(periodKey, count)
		assert.False(t, strings.ContainsAny(token, " \t\n;,"), "token must be cookie-safe")

		ctr, ok := c.Decode(token)
		require.True(t, ok)
		assert.Equal(t, periodKey, ctr.PeriodKey)
		assert.Equal(t, count, ctr.Count)
	})
}
