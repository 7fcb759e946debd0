package auth_test

import (
	"testing"
	"time"

	"github.com/controlinterno/casos-api/internal/auth"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestManager(now time.Time) *auth.TokenManager {
	return auth.NewTokenManager(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour, auth.WithClock(fixedClock(now)))
}

func TestTokenManager_AccessRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 500, time.UTC)
	tm := newTestManager(now)

	issued, err := tm.GenerateAccessToken(42)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	assert.NotEmpty(t, issued.JTI)
	assert.Equal(t, now.Truncate(time.Second).Add(15*time.Minute), issued.ExpiresAt)

	claims, err := tm.ParseAccessToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, models.TokenKindAccess, claims.Type)
	assert.Equal(t, issued.JTI, claims.ID)
	assert.True(t, issued.ExpiresAt.Equal(claims.ExpiresAt.Time))
}

func TestTokenManager_UniqueTokensWithinSameSecond(t *testing.T) {
	tm := newTestManager(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	first, err := tm.GenerateRefreshToken(7)
	require.NoError(t, err)
	second, err := tm.GenerateRefreshToken(7)
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.NotEqual(t, auth.HashToken(first.Token), auth.HashToken(second.Token))
}

func TestTokenManager_ExpiredAccessToken(t *testing.T) {
	issuedAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	issued, err := newTestManager(issuedAt).GenerateAccessToken(42)
	require.NoError(t, err)

	later := newTestManager(issuedAt.Add(15 * time.Minute))
	_, err = later.ParseAccessToken(issued.Token)
	assert.ErrorIs(t, err, models.ErrTokenExpired)

	stillValid := newTestManager(issuedAt.Add(15*time.Minute - time.Second))
	_, err = stillValid.ParseAccessToken(issued.Token)
	assert.NoError(t, err)
}

func TestTokenManager_ExpiredButForgedIsInvalid(t *testing.T) {
	issuedAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	forger := auth.NewTokenManager("some-other-secret-0123456789abcdefgh", testRefreshSecret, time.Minute, time.Hour, auth.WithClock(fixedClock(issuedAt)))
	issued, err := forger.GenerateAccessToken(42)
	require.NoError(t, err)

	_, err = newTestManager(issuedAt.Add(time.Hour)).ParseAccessToken(issued.Token)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestTokenManager_RejectsWrongKind(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tm := newTestManager(now)

	refresh, err := tm.GenerateRefreshToken(42)
	require.NoError(t, err)
	_, err = tm.ParseAccessToken(refresh.Token)
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	access, err := tm.GenerateAccessToken(42)
	require.NoError(t, err)
	_, err = tm.ParseRefreshToken(access.Token)
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	// a shared secret must still not let the type discriminator be ignored
	shared := auth.NewTokenManager(testAccessSecret, testAccessSecret, time.Minute, time.Hour, auth.WithClock(fixedClock(now)))
	sharedRefresh, err := shared.GenerateRefreshToken(42)
	require.NoError(t, err)
	_, err = shared.ParseAccessToken(sharedRefresh.Token)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestTokenManager_RejectsMalformedAndUnsigned(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tm := newTestManager(now)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := tm.ParseAccessToken(raw)
		assert.ErrorIs(t, err, models.ErrInvalidToken, "token %q", raw)
	}

	claims := &models.TokenClaims{
		Type:      models.TokenKindAccess,
		AccountID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.ParseAccessToken(unsigned)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestHashToken(t *testing.T) {
	h := auth.HashToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, auth.HashToken("abc"))
	assert.NotEqual(t, h, auth.HashToken("abd"))
}
