package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors shared by every service and repository. Handlers map these
// onto HTTP statuses; anything unwrapped falls through as a 500.
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrValidation      = errors.New("validation failed")
	ErrTooManyAttempts = errors.New("too many failed attempts")
)

// Roles recognised by the access-control policy.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the authenticated caller, as decoded from an access token.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     string
}

// IsAdmin reports whether the identity carries the admin override.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess is the single-record policy predicate: admins may touch anything,
// everyone else only records they own. Records without an owner are admin-only.
func CanAccess(identity Identity, ownerID *uuid.UUID) bool {
	if identity.IsAdmin() {
		return true
	}
	return ownerID != nil && *ownerID == identity.UserID
}

// User is the persisted credential record. Password hash never serialises.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AccessClaims are the custom claims carried by access tokens. The refresh
// token reuses the same struct but only UserID is ever trusted from it.
type AccessClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Response represents a generic API response for success or error messages.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
