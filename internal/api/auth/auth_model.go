package auth

import "github.com/weijianlim/go-mes-dashboard/internal/api"

// RegisterRequest represents the expected JSON body for user registration.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=4,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest represents the expected JSON body for user login.
// Login is by username, not email.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the successful JSON response after login. The
// refresh token is not part of the body; it travels only in the cookie.
type LoginResponse struct {
	Message     string    `json:"message"`
	User        *api.User `json:"user"`
	AccessToken string    `json:"accessToken"`
}

// TokenResponse represents the successful JSON response after refreshing.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
}
