package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

func TestAuthenticate(t *testing.T) {
	tokens := testTokenService(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	mw := Authenticate(tokens, slog.Default())

	user := &api.User{ID: uuid.New(), Username: "alice", Role: api.RoleUser}
	validToken, err := tokens.IssueAccessToken(user)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentityFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, user.ID, identity.UserID)
		assert.Equal(t, "alice", identity.Username)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("ValidBearerToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/production", nil)
		req.Header.Set("Authorization", "Bearer "+validToken)
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/production", nil)
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("NotBearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/production", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		stale := testTokenService(time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC))
		expired, err := stale.IssueAccessToken(user)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/production", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestEnforceDataScope(t *testing.T) {
	tokens := testTokenService(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	authn := Authenticate(tokens, slog.Default())
	scope := EnforceDataScope(slog.Default())

	regular := &api.User{ID: uuid.New(), Username: "alice", Role: api.RoleUser}
	admin := &api.User{ID: uuid.New(), Username: "boss", Role: api.RoleAdmin}

	regularToken, err := tokens.IssueAccessToken(regular)
	require.NoError(t, err)
	adminToken, err := tokens.IssueAccessToken(admin)
	require.NoError(t, err)

	serve := func(token, target, method string) *uuid.UUID {
		var filter *uuid.UUID
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			filter, err = ScopedOwnerFilter(r)
			require.NoError(t, err)
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		authn(scope(next)).ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		return filter
	}

	t.Run("NonAdminGetForcedToSelf", func(t *testing.T) {
		filter := serve(regularToken, "/production", http.MethodGet)
		require.NotNil(t, filter)
		assert.Equal(t, regular.ID, *filter)
	})

	t.Run("NonAdminCannotSpoofFilter", func(t *testing.T) {
		other := uuid.New()
		filter := serve(regularToken, "/production?userId="+other.String(), http.MethodGet)
		require.NotNil(t, filter)
		assert.Equal(t, regular.ID, *filter)
	})

	t.Run("AdminUnfilteredByDefault", func(t *testing.T) {
		filter := serve(adminToken, "/production", http.MethodGet)
		assert.Nil(t, filter)
	})

	t.Run("AdminMayFilterExplicitly", func(t *testing.T) {
		target := uuid.New()
		filter := serve(adminToken, "/production?userId="+target.String(), http.MethodGet)
		require.NotNil(t, filter)
		assert.Equal(t, target, *filter)
	})

	t.Run("WritesPassThrough", func(t *testing.T) {
		filter := serve(regularToken, "/production", http.MethodPost)
		assert.Nil(t, filter)
	})

	t.Run("AdminMalformedFilterIsAnError", func(t *testing.T) {
		var filterErr error
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, filterErr = ScopedOwnerFilter(r)
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/production?userId=not-a-uuid", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rr := httptest.NewRecorder()
		authn(scope(next)).ServeHTTP(rr, req)
		assert.Error(t, filterErr)
	})

	t.Run("NonAdminMalformedFilterOverwritten", func(t *testing.T) {
		// The scope middleware replaces whatever a non-admin sent, so the
		// garbage never reaches the parser.
		filter := serve(regularToken, "/production?userId=not-a-uuid", http.MethodGet)
		require.NotNil(t, filter)
		assert.Equal(t, regular.ID, *filter)
	})
}
