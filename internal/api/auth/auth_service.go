package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/weijianlim/go-mes-dashboard/app/observability/metrics"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

const (
	maxLoginFailures = 5
	lockoutWindow    = 15 * time.Minute
)

var _ AuthService = (*AuthServiceImpl)(nil)

type AuthService interface {
	// Register creates a user with the default role. Duplicate username or
	// email yields ErrConflict.
	Register(ctx context.Context, username, email, password string) (*api.User, error)
	// Login checks credentials and returns the user plus a fresh token pair.
	// Bad credentials yield ErrUnauthenticated; repeated failures for the
	// same username yield ErrTooManyAttempts for the lockout window.
	Login(ctx context.Context, username, password string) (*api.User, string, string, error)
	// RefreshAccessToken verifies a refresh token and mints a new access
	// token from the user's CURRENT store record, so role or username
	// changes take effect immediately. Only the userId claim is trusted.
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	// GetUserByID re-reads the caller's record for /auth/me.
	GetUserByID(ctx context.Context, id uuid.UUID) (*api.User, error)
}

type AuthServiceImpl struct {
	logger        *slog.Logger
	repo          AuthRepo
	tokens        TokenService
	loginFailures *gocache.Cache
}

func NewAuthService(repo AuthRepo, tokens TokenService, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:        logger,
		repo:          repo,
		tokens:        tokens,
		loginFailures: gocache.New(lockoutWindow, 2*lockoutWindow),
	}
}

func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (*api.User, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register", trace.WithAttributes(
		attribute.String("user.name", username),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Register"), slog.String("username", username))
	metrics.Get().AuthRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "register")))

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Password hashing failed")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, username, email, string(hashed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "User creation failed")
		return nil, err
	}

	l.InfoContext(ctx, "User registered", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "User registered")
	return user, nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (*api.User, string, string, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login", trace.WithAttributes(
		attribute.String("user.name", username),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Login"), slog.String("username", username))
	metrics.Get().AuthRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "login")))

	if s.isLockedOut(username) {
		l.WarnContext(ctx, "Login throttled after repeated failures")
		span.SetStatus(codes.Error, "Throttled")
		return nil, "", "", api.ErrTooManyAttempts
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		// Same failure shape whether the user is unknown or the password is
		// wrong, so usernames cannot be probed.
		if errors.Is(err, api.ErrNotFound) {
			s.recordFailure(ctx, username)
			span.SetStatus(codes.Error, "Unknown user")
			return nil, "", "", api.ErrUnauthenticated
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "User lookup failed")
		return nil, "", "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, username)
		l.WarnContext(ctx, "Invalid password")
		span.SetStatus(codes.Error, "Invalid password")
		return nil, "", "", api.ErrUnauthenticated
	}
	s.loginFailures.Delete(username)

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Access token issuance failed")
		return nil, "", "", err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Refresh token issuance failed")
		return nil, "", "", err
	}

	l.InfoContext(ctx, "Login successful", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Login successful")
	return user, accessToken, refreshToken, nil
}

func (s *AuthServiceImpl) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "RefreshAccessToken")
	defer span.End()

	l := s.logger.With(slog.String("method", "RefreshAccessToken"))
	metrics.Get().AuthRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "refresh")))

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		l.WarnContext(ctx, "Refresh token rejected", slog.Any("error", err))
		span.SetStatus(codes.Error, "Refresh token rejected")
		return "", err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		span.SetStatus(codes.Error, "Malformed userId claim")
		return "", fmt.Errorf("%w: malformed userId claim", api.ErrUnauthenticated)
	}

	// Re-read the user so the new access token reflects the current role and
	// username rather than whatever was true when the refresh token was cut.
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			span.SetStatus(codes.Error, "User gone")
			return "", api.ErrUnauthenticated
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "User lookup failed")
		return "", err
	}

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Access token issuance failed")
		return "", err
	}

	l.DebugContext(ctx, "Access token rotated", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Access token rotated")
	return accessToken, nil
}

func (s *AuthServiceImpl) GetUserByID(ctx context.Context, id uuid.UUID) (*api.User, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "GetUserByID", trace.WithAttributes(
		attribute.String("user.id", id.String()),
	))
	defer span.End()

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "User lookup failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "User fetched")
	return user, nil
}

func (s *AuthServiceImpl) isLockedOut(username string) bool {
	if v, ok := s.loginFailures.Get(username); ok {
		if count, ok := v.(int); ok && count >= maxLoginFailures {
			return true
		}
	}
	return false
}

func (s *AuthServiceImpl) recordFailure(ctx context.Context, username string) {
	metrics.Get().AuthFailuresTotal.Add(ctx, 1)
	if _, err := s.loginFailures.IncrementInt(username, 1); err != nil {
		s.loginFailures.Set(username, 1, lockoutWindow)
	}
}
