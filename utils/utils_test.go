package utils

import (
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_dashboard/models"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret-of-sufficient-length")
	req := models.Requester{Role: models.RoleTeamLeader, UserID: "u7", TeamID: "t1"}

	token, err := GenerateToken(secret, req, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, req, claims.Requester())

	_, err = ParseToken([]byte("another-secret-of-some-length"), token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	secret := []byte("test-secret-of-sufficient-length")
	token, err := GenerateToken(secret, models.Requester{Role: models.RoleManager, UserID: "m1"}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(secret, token)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer "))
}

func TestAuthLimiterLocksAfterMaxAttempts(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	l := NewAuthLimiter(clk, 3, 10*time.Minute, 0)
	defer l.Close()

	assert.False(t, l.RecordFailure("10.0.0.1"))
	assert.False(t, l.RecordFailure("10.0.0.1"))
	assert.True(t, l.RecordFailure("10.0.0.1"))

	locked, remaining := l.IsLocked("10.0.0.1")
	assert.True(t, locked)
	assert.Equal(t, 10*time.Minute, remaining)

	locked, _ = l.IsLocked("10.0.0.2")
	assert.False(t, locked)

	clk.Advance(10 * time.Minute)
	locked, _ = l.IsLocked("10.0.0.1")
	assert.False(t, locked)
}

func TestAuthLimiterReset(t *testing.T) {
	l := NewAuthLimiter(nil, 2, time.Minute, time.Hour)
	defer l.Close()

	l.RecordFailure("k")
	l.Reset("k")
	assert.False(t, l.RecordFailure("k"))
}
