package qualitycontrol

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weijianlim/go-mes-dashboard/app/observability/metrics"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
	"github.com/weijianlim/go-mes-dashboard/internal/api/auth"
)

// MockQualityControlService is a mock implementation of the QualityControlService interface
type MockQualityControlService struct {
	mock.Mock
}

func (m *MockQualityControlService) List(ctx context.Context, ownerFilter *uuid.UUID) ([]*QualityControlWithUser, error) {
	args := m.Called(ctx, ownerFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*QualityControlWithUser), args.Error(1)
}

func (m *MockQualityControlService) Get(ctx context.Context, identity api.Identity, id int64) (*QualityControlWithProduct, error) {
	args := m.Called(ctx, identity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*QualityControlWithProduct), args.Error(1)
}

func (m *MockQualityControlService) Create(ctx context.Context, identity api.Identity, req CreateQualityControlRequest) (*QualityControl, error) {
	args := m.Called(ctx, identity, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*QualityControl), args.Error(1)
}

func (m *MockQualityControlService) Update(ctx context.Context, identity api.Identity, id int64, req UpdateQualityControlRequest) (*QualityControl, error) {
	args := m.Called(ctx, identity, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*QualityControl), args.Error(1)
}

func (m *MockQualityControlService) Delete(ctx context.Context, identity api.Identity, id int64) error {
	args := m.Called(ctx, identity, id)
	return args.Error(0)
}

func (m *MockQualityControlService) ExportCSV(ctx context.Context, ownerFilter *uuid.UUID) (string, []string, [][]string, error) {
	args := m.Called(ctx, ownerFilter)
	return args.String(0), args.Get(1).([]string), args.Get(2).([][]string), args.Error(3)
}

func newTestHandler(service QualityControlService) *HandlerImpl {
	metrics.InitAppMetrics()
	return NewQualityControlHandlerImpl(service, api.NewValidator(), slog.Default(), false)
}

func withIdentity(r *http.Request, identity api.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.IdentityKey, identity))
}

func TestQCHandlerCreateValidation(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "inspector", Role: api.RoleUser}

	cases := []struct {
		name string
		body string
	}{
		{"MissingProductID", `{"inspectionDate":"2025-03-01","scheduledDate":"2025-03-05","result":"Passed"}`},
		{"BadDateFormat", `{"productId":7,"inspectionDate":"01-03-2025","scheduledDate":"2025-03-05","result":"Passed"}`},
		{"UnknownResult", `{"productId":7,"inspectionDate":"2025-03-01","scheduledDate":"2025-03-05","result":"Maybe"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockQualityControlService)
			handler := newTestHandler(mockService)

			req := withIdentity(httptest.NewRequest(http.MethodPost, "/quality-control", strings.NewReader(tc.body)), identity)
			rr := httptest.NewRecorder()
			handler.Create(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestQCHandlerCreate(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "inspector", Role: api.RoleUser}

	mockService := new(MockQualityControlService)
	handler := newTestHandler(mockService)

	ownerID := identity.UserID
	mockService.On("Create", mock.Anything, identity, mock.MatchedBy(func(r CreateQualityControlRequest) bool {
		return r.ProductID == 7 && r.Result == ResultPassed
	})).Return(&QualityControl{ID: 1, DisplayID: 1, ProductID: 7, Result: ResultPassed, UserID: &ownerID}, nil).Once()

	body := `{"productId":7,"inspectionDate":"2025-03-01","scheduledDate":"2025-03-05","result":"Passed"}`
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/quality-control", strings.NewReader(body)), identity)
	rr := httptest.NewRecorder()
	handler.Create(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var got QualityControl
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.ProductID)
	mockService.AssertExpectations(t)
}

func TestQCHandlerExportEmpty(t *testing.T) {
	identity := api.Identity{UserID: uuid.New(), Username: "inspector", Role: api.RoleUser}

	mockService := new(MockQualityControlService)
	handler := newTestHandler(mockService)

	mockService.On("ExportCSV", mock.Anything, (*uuid.UUID)(nil)).Return(
		"", []string(nil), [][]string(nil), api.ErrNotFound,
	).Once()

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/quality-control/export/csv", nil), identity)
	rr := httptest.NewRecorder()
	handler.ExportCSV(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "No quality control data available to export", resp["error"])
	mockService.AssertExpectations(t)
}

func TestQCHandlerListMalformedFilter(t *testing.T) {
	admin := api.Identity{UserID: uuid.New(), Username: "boss", Role: api.RoleAdmin}

	mockService := new(MockQualityControlService)
	handler := newTestHandler(mockService)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/quality-control?userId=not-a-uuid", nil), admin)
	rr := httptest.NewRecorder()
	handler.List(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}
