package production

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/weijianlim/go-mes-dashboard/internal/api"
	"github.com/weijianlim/go-mes-dashboard/internal/api/auth"
)

type HandlerImpl struct {
	productionService ProductionService
	validate          *validator.Validate
	logger            *slog.Logger
	dev               bool
}

func NewProductionHandlerImpl(productionService ProductionService, validate *validator.Validate, logger *slog.Logger, dev bool) *HandlerImpl {
	return &HandlerImpl{
		productionService: productionService,
		validate:          validate,
		logger:            logger,
		dev:               dev,
	}
}

// List godoc
// @Summary      List Productions
// @Description  Returns production records newest first. Non-admins only ever see their own.
// @Tags         Production
// @Produce      json
// @Param        userId query string false "Owner filter (admins only)"
// @Success      200 {array} ProductionWithUser "Productions"
// @Failure      401 {object} api.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /production [get]
func (h *HandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ProductionHandler").Start(r.Context(), "List", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/production"),
	))
	defer span.End()

	ownerFilter, err := auth.ScopedOwnerFilter(r)
	if err != nil {
		span.SetStatus(codes.Error, "Bad owner filter")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid userId filter")
		return
	}

	productions, err := h.productionService.List(ctx, ownerFilter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "List failed")
		api.StoreErrorResponse(w, r, h.dev, "Failed to fetch production data", err)
		return
	}
	if productions == nil {
		productions = []*ProductionWithUser{}
	}

	span.SetStatus(codes.Ok, "Productions listed")
	api.WriteJSONResponse(w, r, http.StatusOK, productions)
}

// ExportCSV godoc
// @Summary      Export Productions CSV
// @Description  Downloads the scoped production records as a CSV report.
// @Tags         Production
// @Produce      text/csv
// @Success      200 {string} string "CSV File"
// @Failure      404 {object} api.Response "No Data To Export"
// @Security     BearerAuth
// @Router       /production/export/csv [get]
func (h *HandlerImpl) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ProductionHandler").Start(r.Context(), "ExportCSV", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/production/export/csv"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "ExportCSV"))

	ownerFilter, err := auth.ScopedOwnerFilter(r)
	if err != nil {
		span.SetStatus(codes.Error, "Bad owner filter")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid userId filter")
		return
	}

	filename, header, rows, err := h.productionService.ExportCSV(ctx, ownerFilter)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			span.SetStatus(codes.Error, "Nothing to export")
			api.ErrorResponse(w, r, http.StatusNotFound, "No production data available to export")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Export failed")
		api.StoreErrorResponse(w, r, h.dev, "Failed to export production data", err)
		return
	}

	if err := api.WriteCSVAttachment(w, filename, header, rows); err != nil {
		l.ErrorContext(ctx, "Failed to write CSV response", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "CSV write failed")
		return
	}

	span.SetStatus(codes.Ok, "Export downloaded")
}

// Get godoc
// @Summary      Get Production
// @Description  Returns one production record with its inspections.
// @Tags         Production
// @Produce      json
// @Param        id path int true "Production ID"
// @Success      200 {object} ProductionWithInspections "Production"
// @Failure      403 {object} api.Response "Forbidden"
// @Failure      404 {object} api.Response "Not Found"
// @Security     BearerAuth
// @Router       /production/{id} [get]
func (h *HandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ProductionHandler").Start(r.Context(), "Get", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/production/{id}"),
	))
	defer span.End()

	identity, id, ok := h.identityAndID(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Bad request")
		return
	}

	production, err := h.productionService.Get(ctx, identity, id)
	if err != nil {
		h.respondRecordError(w, r, span, err, "Failed to fetch production")
		return
	}

	span.SetStatus(codes.Ok, "Production fetched")
	api.WriteJSONResponse(w, r, http.StatusOK, production)
}

// Create godoc
// @Summary      Create Production
// @Description  Creates a production record owned by the caller. Display IDs are sequential per owner.
// @Tags         Production
// @Accept       json
// @Produce      json
// @Param        production body CreateProductionRequest true "Production Parameters"
// @Success      201 {object} Production "Production Created"
// @Failure      400 {object} api.Response "Validation Failed"
// @Security     BearerAuth
// @Router       /production [post]
func (h *HandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ProductionHandler").Start(r.Context(), "Create", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/production"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Create"))

	identity, ok := auth.GetIdentityFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "Identity missing")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateProductionRequest
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

	production, err := h.productionService.Create(ctx, identity, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		api.StoreErrorResponse(w, r, h.dev, "Failed to create production record", err)
		return
	}

	span.SetStatus(codes.Ok, "Production created")
	api.WriteJSONResponse(w, r, http.StatusCreated, production)
}

// Update godoc
// @Summary      Update Production
// @Description  Partially updates a production record. Only the record owner or an admin may update it.
// @Tags         Production
// @Accept       json
// @Produce      json
// @Param        id path int true "Production ID"
// @Param        production body UpdateProductionRequest true "Fields To Update"
// @Success      200 {object} Production "Production Updated"
// @Failure      400 {object} api.Response "Validation Failed"
// @Failure      403 {object} api.Response "Forbidden"
// @Failure      404 {object} api.Response "Not Found"
// @Security     BearerAuth
// @Router       /production/{id} [put]
func (h *HandlerImpl) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ProductionHandler").Start(r.Context(), "Update", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/production/{id}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Update"))

	identity, id, ok := h.identityAndID(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Bad request")
		return
	}

	var req UpdateProductionRequest
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

	production, err := h.productionService.Update(ctx, identity, id, req)
	if err != nil {
		h.respondRecordError(w, r, span, err, "Failed to update production record")
		return
	}

	span.SetStatus(codes.Ok, "Production updated")
	api.WriteJSONResponse(w, r, http.StatusOK, production)
}

// Delete godoc
// @Summary      Delete Production
// @Description  Deletes a production record. Only the record owner or an admin may delete it.
// @Tags         Production
// @Produce      json
// @Param        id path int true "Production ID"
// @Success      200 {object} api.Response "Production Deleted"
// @Failure      403 {object} api.Response "Forbidden"
// @Failure      404 {object} api.Response "Not Found"
// @Security     BearerAuth
// @Router       /production/{id} [delete]
func (h *HandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ProductionHandler").Start(r.Context(), "Delete", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/production/{id}"),
	))
	defer span.End()

	identity, id, ok := h.identityAndID(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Bad request")
		return
	}

	if err := h.productionService.Delete(ctx, identity, id); err != nil {
		h.respondRecordError(w, r, span, err, "Failed to delete production record")
		return
	}

	span.SetStatus(codes.Ok, "Production deleted")
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Production record deleted successfully",
	})
}

// identityAndID pulls the caller identity and the path ID, writing the error
// response itself when either is missing.
func (h *HandlerImpl) identityAndID(w http.ResponseWriter, r *http.Request) (api.Identity, int64, bool) {
	identity, ok := auth.GetIdentityFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return api.Identity{}, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid production ID")
		return api.Identity{}, 0, false
	}
	return identity, id, true
}

// respondRecordError maps service errors for single-record operations. The
// not-found check runs before the ownership check upstream, so the two stay
// distinguishable here.
func (h *HandlerImpl) respondRecordError(w http.ResponseWriter, r *http.Request, span trace.Span, err error, fallback string) {
	switch {
	case errors.Is(err, api.ErrNotFound):
		span.SetStatus(codes.Error, "Production not found")
		api.ErrorResponse(w, r, http.StatusNotFound, "Production record not found")
	case errors.Is(err, api.ErrForbidden):
		span.SetStatus(codes.Error, "Access denied")
		api.ErrorResponse(w, r, http.StatusForbidden, "Access denied: You can only access your own records")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, fallback)
		api.StoreErrorResponse(w, r, h.dev, fallback, err)
	}
}
