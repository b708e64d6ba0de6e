package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weijianlim/go-mes-dashboard/config"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "test-issuer",
		Audience:        "test-audience",
	}
}

func testTokenService(now time.Time) *JWTTokenService {
	svc := NewJWTTokenService(testJWTConfig())
	svc.now = func() time.Time { return now }
	return svc
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := testTokenService(now)

	user := &api.User{
		ID:       uuid.New(),
		Username: "alice",
		Role:     api.RoleAdmin,
	}

	token, err := svc.IssueAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, api.RoleAdmin, claims.Role)
	assert.Equal(t, "test-issuer", claims.Issuer)
}

func TestAccessTokenExpiry(t *testing.T) {
	issued := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := testTokenService(issued)

	token, err := svc.IssueAccessToken(&api.User{ID: uuid.New(), Username: "alice", Role: api.RoleUser})
	require.NoError(t, err)

	// Still valid one minute before expiry.
	svc.now = func() time.Time { return issued.Add(59 * time.Minute) }
	_, err = svc.VerifyAccess(token)
	assert.NoError(t, err)

	// Rejected one minute after, with no grace window.
	svc.now = func() time.Time { return issued.Add(61 * time.Minute) }
	_, err = svc.VerifyAccess(token)
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
}

func TestRefreshTokenCarriesOnlyUserID(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := testTokenService(now)
	userID := uuid.New()

	token, err := svc.IssueRefreshToken(userID)
	require.NoError(t, err)

	claims, err := svc.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Empty(t, claims.Username)
	assert.Empty(t, claims.Role)
}

func TestTamperedTokenRejected(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := testTokenService(now)

	token, err := svc.IssueAccessToken(&api.User{ID: uuid.New(), Username: "alice", Role: api.RoleUser})
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = svc.VerifyAccess(tampered)
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
}

func TestTokenFromDifferentSecretRejected(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := testTokenService(now)

	otherCfg := testJWTConfig()
	otherCfg.SecretKey = "other-secret"
	other := NewJWTTokenService(otherCfg)
	other.now = svc.now

	token, err := other.IssueAccessToken(&api.User{ID: uuid.New(), Username: "alice", Role: api.RoleUser})
	require.NoError(t, err)

	_, err = svc.VerifyAccess(token)
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
}

func TestWrongIssuerRejected(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := testTokenService(now)

	otherCfg := testJWTConfig()
	otherCfg.Issuer = "someone-else"
	other := NewJWTTokenService(otherCfg)
	other.now = svc.now

	token, err := other.IssueAccessToken(&api.User{ID: uuid.New(), Username: "alice", Role: api.RoleUser})
	require.NoError(t, err)

	_, err = svc.VerifyAccess(token)
	assert.ErrorIs(t, err, api.ErrUnauthenticated)

	refresh, err := other.IssueRefreshToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.VerifyRefresh(refresh)
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
}

func TestGarbageTokenRejected(t *testing.T) {
	svc := testTokenService(time.Now())

	_, err := svc.VerifyAccess("not.a.token")
	assert.ErrorIs(t, err, api.ErrUnauthenticated)

	_, err = svc.VerifyRefresh("")
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
}
