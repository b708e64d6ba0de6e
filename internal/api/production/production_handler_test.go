package production

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"log/slog"

	"github.com/weijianlim/go-mes-dashboard/app/observability/metrics"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
	"github.com/weijianlim/go-mes-dashboard/internal/api/auth"
)

// MockProductionService is a mock implementation of the ProductionService interface
type MockProductionService struct {
	mock.Mock
}

func (m *MockProductionService) List(ctx context.Context, ownerFilter *uuid.UUID) ([]*ProductionWithUser, error) {
	args := m.Called(ctx, ownerFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ProductionWithUser), args.Error(1)
}

func (m *MockProductionService) Get(ctx context.Context, identity api.Identity, id int64) (*ProductionWithInspections, error) {
	args := m.Called(ctx, identity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProductionWithInspections), args.Error(1)
}

func (m *MockProductionService) Create(ctx context.Context, identity api.Identity, req CreateProductionRequest) (*Production, error) {
	args := m.Called(ctx, identity, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Production), args.Error(1)
}

func (m *MockProductionService) Update(ctx context.Context, identity api.Identity, id int64, req UpdateProductionRequest) (*Production, error) {
	args := m.Called(ctx, identity, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Production), args.Error(1)
}

func (m *MockProductionService) Delete(ctx context.Context, identity api.Identity, id int64) error {
	args := m.Called(ctx, identity, id)
	return args.Error(0)
}

func (m *MockProductionService) ExportCSV(ctx context.Context, ownerFilter *uuid.UUID) (string, []string, [][]string, error) {
	args := m.Called(ctx, ownerFilter)
	return args.String(0), args.Get(1).([]string), args.Get(2).([][]string), args.Error(3)
}

func newTestHandler(service ProductionService) *HandlerImpl {
	metrics.InitAppMetrics()
	return NewProductionHandlerImpl(service, api.NewValidator(), slog.Default(), false)
}

func withIdentity(r *http.Request, identity api.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.IdentityKey, identity))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlerList(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "maker", Role: api.RoleUser}

	t.Run("EmptyResultIsEmptyArray", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		mockService.On("List", mock.Anything, (*uuid.UUID)(nil)).Return([]*ProductionWithUser{}, nil).Once()

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/production", nil), identity)
		rr := httptest.NewRecorder()
		handler.List(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
		mockService.AssertExpectations(t)
	})

	t.Run("ScopedFilterReachesService", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		mockService.On("List", mock.Anything, mock.MatchedBy(func(f *uuid.UUID) bool {
			return f != nil && *f == identity.UserID
		})).Return([]*ProductionWithUser{}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/production?userId="+identity.UserID.String(), nil)
		req = withIdentity(req, identity)
		rr := httptest.NewRecorder()
		handler.List(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("MalformedFilterIsBadRequest", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		admin := api.Identity{UserID: uuid.New(), Username: "boss", Role: api.RoleAdmin}
		req := withIdentity(httptest.NewRequest(http.MethodGet, "/production?userId=not-a-uuid", nil), admin)
		rr := httptest.NewRecorder()
		handler.List(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}

func TestHandlerGet(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "maker", Role: api.RoleUser}

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		mockService.On("Get", mock.Anything, identity, int64(99)).Return(nil, api.ErrNotFound).Once()

		req := withURLParam(withIdentity(httptest.NewRequest(http.MethodGet, "/production/99", nil), identity), "id", "99")
		rr := httptest.NewRecorder()
		handler.Get(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Forbidden", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		mockService.On("Get", mock.Anything, identity, int64(42)).Return(nil, api.ErrForbidden).Once()

		req := withURLParam(withIdentity(httptest.NewRequest(http.MethodGet, "/production/42", nil), identity), "id", "42")
		rr := httptest.NewRecorder()
		handler.Get(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("BadIDIsBadRequest", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		req := withURLParam(withIdentity(httptest.NewRequest(http.MethodGet, "/production/abc", nil), identity), "id", "abc")
		rr := httptest.NewRecorder()
		handler.Get(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandlerCreate(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "maker", Role: api.RoleUser}

	t.Run("Created", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		ownerID := identity.UserID
		mockService.On("Create", mock.Anything, identity, CreateProductionRequest{
			Name:   "Gear housing",
			Status: StatusInProgress,
		}).Return(&Production{ID: 1, DisplayID: 1, Name: "Gear housing", Status: StatusInProgress, UserID: &ownerID}, nil).Once()

		body := `{"name":"Gear housing","status":"In Progress"}`
		req := withIdentity(httptest.NewRequest(http.MethodPost, "/production", strings.NewReader(body)), identity)
		rr := httptest.NewRecorder()
		handler.Create(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var got Production
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 1, got.DisplayID)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidStatusRejected", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		body := `{"name":"Gear housing","status":"Paused"}`
		req := withIdentity(httptest.NewRequest(http.MethodPost, "/production", strings.NewReader(body)), identity)
		rr := httptest.NewRecorder()
		handler.Create(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		fields, ok := resp["fields"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, fields, "status")
		mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ShortNameRejected", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		body := `{"name":"X","status":"Completed"}`
		req := withIdentity(httptest.NewRequest(http.MethodPost, "/production", strings.NewReader(body)), identity)
		rr := httptest.NewRecorder()
		handler.Create(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandlerExportCSV(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "maker", Role: api.RoleUser}

	t.Run("AttachmentHeaders", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		mockService.On("ExportCSV", mock.Anything, (*uuid.UUID)(nil)).Return(
			"Production_report_2025-03-14 17-30-00.csv",
			[]string{"id", "displayId", "name", "material", "status", "createdAt"},
			[][]string{{"1", "1", "Casing", "", "Completed", "2025-03-01T12:00:00Z"}},
			nil,
		).Once()

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/production/export/csv", nil), identity)
		rr := httptest.NewRecorder()
		handler.ExportCSV(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "Production_report_")
		assert.True(t, strings.HasPrefix(rr.Body.String(), "id,displayId,name,material,status,createdAt\n"))
		mockService.AssertExpectations(t)
	})

	t.Run("EmptyDataset", func(t *testing.T) {
		mockService := new(MockProductionService)
		handler := newTestHandler(mockService)

		mockService.On("ExportCSV", mock.Anything, (*uuid.UUID)(nil)).Return(
			"", []string(nil), [][]string(nil), api.ErrNotFound,
		).Once()

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/production/export/csv", nil), identity)
		rr := httptest.NewRecorder()
		handler.ExportCSV(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestHandlerDelete(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "maker", Role: api.RoleUser}

	mockService := new(MockProductionService)
	handler := newTestHandler(mockService)

	mockService.On("Delete", mock.Anything, identity, int64(42)).Return(nil).Once()

	req := withURLParam(withIdentity(httptest.NewRequest(http.MethodDelete, "/production/42", nil), identity), "id", "42")
	rr := httptest.NewRecorder()
	handler.Delete(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mockService.AssertExpectations(t)
}
