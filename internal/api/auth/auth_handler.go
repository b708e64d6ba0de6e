package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/weijianlim/go-mes-dashboard/config"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

type HandlerImpl struct {
	AuthService AuthService
	cookieCfg   config.CookieConfig
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewAuthHandlerImpl(authService AuthService, cookieCfg config.CookieConfig, validate *validator.Validate, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		AuthService: authService,
		cookieCfg:   cookieCfg,
		validate:    validate,
		logger:      logger,
	}
}

// Register godoc
// @Summary      Register User
// @Description  Creates a new user account with the default role.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        user body RegisterRequest true "Registration Parameters"
// @Success      201 {object} api.Response "User Registered"
// @Failure      400 {object} api.Response "Validation Failed"
// @Failure      409 {object} api.Response "Username Or Email Taken"
// @Router       /auth/register [post]
func (h *HandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AuthHandler").Start(r.Context(), "Register", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/auth/register"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Register"))

	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request body", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request format: %s", err.Error()))
		return
	}

	if fields := api.ValidateStruct(h.validate, req); fields != nil {
		l.WarnContext(ctx, "Registration validation failed")
		span.SetStatus(codes.Error, "Validation failed")
		api.ValidationErrorResponse(w, r, fields)
		return
	}

	user, err := h.AuthService.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			span.SetStatus(codes.Error, "Duplicate user")
			api.ErrorResponse(w, r, http.StatusConflict, "Username or email already exists")
			return
		}
		l.ErrorContext(ctx, "Registration failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Registration failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to register user")
		return
	}

	span.SetStatus(codes.Ok, "User registered")
	api.WriteJSONResponse(w, r, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Login godoc
// @Summary      Login
// @Description  Authenticates by username and password, sets the refresh-token cookie and returns an access token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        credentials body LoginRequest true "Login Parameters"
// @Success      200 {object} LoginResponse "Login Successful"
// @Failure      401 {object} api.Response "Invalid Credentials"
// @Failure      429 {object} api.Response "Too Many Attempts"
// @Router       /auth/login [post]
func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AuthHandler").Start(r.Context(), "Login", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/auth/login"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Login"))

	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request body", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request format: %s", err.Error()))
		return
	}

	if fields := api.ValidateStruct(h.validate, req); fields != nil {
		span.SetStatus(codes.Error, "Validation failed")
		api.ValidationErrorResponse(w, r, fields)
		return
	}

	user, accessToken, refreshToken, err := h.AuthService.Login(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrTooManyAttempts):
			span.SetStatus(codes.Error, "Throttled")
			api.ErrorResponse(w, r, http.StatusTooManyRequests, "Too many failed login attempts, try again later")
		case errors.Is(err, api.ErrUnauthenticated):
			span.SetStatus(codes.Error, "Invalid credentials")
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid username or password")
		default:
			l.ErrorContext(ctx, "Login failed", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Login failed")
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to login")
		}
		return
	}

	h.setRefreshCookie(w, refreshToken)

	span.SetStatus(codes.Ok, "Login successful")
	api.WriteJSONResponse(w, r, http.StatusOK, LoginResponse{
		Message:     "Login successful",
		User:        user,
		AccessToken: accessToken,
	})
}

// RefreshToken godoc
// @Summary      Refresh Access Token
// @Description  Reads the refresh-token cookie and returns a new access token minted from the current user record.
// @Tags         Auth
// @Produce      json
// @Success      200 {object} TokenResponse "New Access Token"
// @Failure      401 {object} api.Response "Invalid Refresh Token"
// @Router       /auth/refresh-token [post]
func (h *HandlerImpl) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AuthHandler").Start(r.Context(), "RefreshToken", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/auth/refresh-token"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "RefreshToken"))

	cookie, err := r.Cookie(h.cookieCfg.Name)
	if err != nil {
		l.WarnContext(ctx, "Refresh token cookie missing")
		span.SetStatus(codes.Error, "Cookie missing")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Refresh token not found")
		return
	}

	accessToken, err := h.AuthService.RefreshAccessToken(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, api.ErrUnauthenticated) {
			span.SetStatus(codes.Error, "Refresh token rejected")
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		l.ErrorContext(ctx, "Token refresh failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Refresh failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to refresh token")
		return
	}

	span.SetStatus(codes.Ok, "Access token refreshed")
	api.WriteJSONResponse(w, r, http.StatusOK, TokenResponse{AccessToken: accessToken})
}

// Logout godoc
// @Summary      Logout
// @Description  Clears the refresh-token cookie. Tokens are stateless, so nothing is invalidated server-side.
// @Tags         Auth
// @Produce      json
// @Success      200 {object} api.Response "Logged Out"
// @Router       /auth/logout [post]
func (h *HandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("AuthHandler").Start(r.Context(), "Logout")
	defer span.End()

	h.clearRefreshCookie(w)
	span.SetStatus(codes.Ok, "Logged out")
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Logged out successfully",
	})
}

// Me godoc
// @Summary      Current User
// @Description  Returns the authenticated user's record, re-read from the store.
// @Tags         Auth
// @Produce      json
// @Success      200 {object} api.User "Current User"
// @Failure      401 {object} api.Response "Unauthorized"
// @Failure      404 {object} api.Response "User Not Found"
// @Security     BearerAuth
// @Router       /auth/me [get]
func (h *HandlerImpl) Me(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AuthHandler").Start(r.Context(), "Me", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/auth/me"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Me"))

	identity, ok := GetIdentityFromContext(ctx)
	if !ok {
		l.ErrorContext(ctx, "Identity not found in context")
		span.SetStatus(codes.Error, "Identity missing")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.AuthService.GetUserByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			span.SetStatus(codes.Error, "User not found")
			api.ErrorResponse(w, r, http.StatusNotFound, "User not found")
			return
		}
		l.ErrorContext(ctx, "Failed to fetch current user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "User lookup failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to get user")
		return
	}

	span.SetStatus(codes.Ok, "Current user fetched")
	api.WriteJSONResponse(w, r, http.StatusOK, user)
}

func (h *HandlerImpl) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieCfg.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieCfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieCfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *HandlerImpl) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieCfg.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieCfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
