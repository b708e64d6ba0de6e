package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/weijianlim/go-mes-dashboard/config"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

var _ TokenService = (*JWTTokenService)(nil)

// TokenService issues and verifies the two bearer credentials. Issuance is
// pure signing: no database writes, no server-side session state.
type TokenService interface {
	// IssueAccessToken encodes {userId, username, role} with a short expiry.
	IssueAccessToken(user *api.User) (string, error)
	// IssueRefreshToken encodes only the user ID, with a long expiry.
	IssueRefreshToken(userID uuid.UUID) (string, error)
	// VerifyAccess validates signature, expiry, issuer and audience.
	VerifyAccess(tokenString string) (*api.AccessClaims, error)
	// VerifyRefresh validates signature and expiry. Callers must only trust
	// the UserID claim; everything else is re-read from the store.
	VerifyRefresh(tokenString string) (*api.AccessClaims, error)
}

// JWTTokenService signs both token kinds with one shared HMAC secret.
type JWTTokenService struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewJWTTokenService(cfg config.JWTConfig) *JWTTokenService {
	return &JWTTokenService{
		cfg: cfg,
		now: time.Now,
	}
}

func (s *JWTTokenService) IssueAccessToken(user *api.User) (string, error) {
	now := s.now()
	claims := &api.AccessClaims{
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			Subject:   user.ID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (s *JWTTokenService) IssueRefreshToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := &api.AccessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenTTL)),
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

func (s *JWTTokenService) VerifyAccess(tokenString string) (*api.AccessClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Issuer != s.cfg.Issuer {
		return nil, fmt.Errorf("%w: invalid token issuer", api.ErrUnauthenticated)
	}
	if s.cfg.Audience != "" && !verifyAudience(claims.Audience, s.cfg.Audience) {
		return nil, fmt.Errorf("%w: invalid token audience", api.ErrUnauthenticated)
	}
	return claims, nil
}

func (s *JWTTokenService) VerifyRefresh(tokenString string) (*api.AccessClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Issuer != s.cfg.Issuer {
		return nil, fmt.Errorf("%w: invalid token issuer", api.ErrUnauthenticated)
	}
	return claims, nil
}

// parse rejects signature mismatch, expiry and malformed payloads uniformly.
// There is no grace window.
func (s *JWTTokenService) parse(tokenString string) (*api.AccessClaims, error) {
	claims := &api.AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.SecretKey), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", api.ErrUnauthenticated)
	}
	return claims, nil
}

func verifyAudience(claimsAudience jwt.ClaimStrings, expectedAudience string) bool {
	for _, aud := range claimsAudience {
		if aud == expectedAudience {
			return true
		}
	}
	return false
}
