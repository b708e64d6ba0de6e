package qualitycontrol

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
	qcService QualityControlService
	validate  *validator.Validate
	logger    *slog.Logger
	dev       bool
}

func NewQualityControlHandlerImpl(qcService QualityControlService, validate *validator.Validate, logger *slog.Logger, dev bool) *HandlerImpl {
	return &HandlerImpl{
		qcService: qcService,
		validate:  validate,
		logger:    logger,
		dev:       dev,
	}
}

// List godoc
// @Summary      List Quality Controls
// @Description  Returns inspection records newest first. Non-admins only ever see their own.
// @Tags         QualityControl
// @Produce      json
// @Param        userId query string false "Owner filter (admins only)"
// @Success      200 {array} QualityControlWithUser "Quality Controls"
// @Failure      401 {object} api.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /quality-control [get]
func (h *HandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("QualityControlHandler").Start(r.Context(), "List", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/quality-control"),
	))
	defer span.End()

	ownerFilter, err := auth.ScopedOwnerFilter(r)
	if err != nil {
		span.SetStatus(codes.Error, "Bad owner filter")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid userId filter")
		return
	}

	records, err := h.qcService.List(ctx, ownerFilter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "List failed")
		api.StoreErrorResponse(w, r, h.dev, "Failed to fetch quality control data", err)
		return
	}
	if records == nil {
		records = []*QualityControlWithUser{}
	}

	span.SetStatus(codes.Ok, "Quality controls listed")
	api.WriteJSONResponse(w, r, http.StatusOK, records)
}

// ExportCSV godoc
// @Summary      Export Quality Controls CSV
// @Description  Downloads the scoped inspection records as a CSV report.
// @Tags         QualityControl
// @Produce      text/csv
// @Success      200 {string} string "CSV File"
// @Failure      404 {object} api.Response "No Data To Export"
// @Security     BearerAuth
// @Router       /quality-control/export/csv [get]
func (h *HandlerImpl) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("QualityControlHandler").Start(r.Context(), "ExportCSV", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/quality-control/export/csv"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "ExportCSV"))

	ownerFilter, err := auth.ScopedOwnerFilter(r)
	if err != nil {
		span.SetStatus(codes.Error, "Bad owner filter")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid userId filter")
		return
	}

	filename, header, rows, err := h.qcService.ExportCSV(ctx, ownerFilter)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			span.SetStatus(codes.Error, "Nothing to export")
			api.ErrorResponse(w, r, http.StatusNotFound, "No quality control data available to export")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Export failed")
		api.StoreErrorResponse(w, r, h.dev, "Failed to export quality control data", err)
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
// @Summary      Get Quality Control
// @Description  Returns one inspection with its product, or a placeholder product when the production was deleted.
// @Tags         QualityControl
// @Produce      json
// @Param        id path int true "Quality Control ID"
// @Success      200 {object} QualityControlWithProduct "Quality Control"
// @Failure      403 {object} api.Response "Forbidden"
// @Failure      404 {object} api.Response "Not Found"
// @Security     BearerAuth
// @Router       /quality-control/{id} [get]
func (h *HandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("QualityControlHandler").Start(r.Context(), "Get", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/quality-control/{id}"),
	))
	defer span.End()

	identity, id, ok := h.identityAndID(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Bad request")
		return
	}

	record, err := h.qcService.Get(ctx, identity, id)
	if err != nil {
		h.respondRecordError(w, r, span, err, "Failed to fetch quality control")
		return
	}

	span.SetStatus(codes.Ok, "Quality control fetched")
	api.WriteJSONResponse(w, r, http.StatusOK, record)
}

// Create godoc
// @Summary      Create Quality Control
// @Description  Creates an inspection record owned by the caller. Display IDs are sequential per owner.
// @Tags         QualityControl
// @Accept       json
// @Produce      json
// @Param        qualityControl body CreateQualityControlRequest true "Quality Control Parameters"
// @Success      201 {object} QualityControl "Quality Control Created"
// @Failure      400 {object} api.Response "Validation Failed"
// @Security     BearerAuth
// @Router       /quality-control [post]
func (h *HandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("QualityControlHandler").Start(r.Context(), "Create", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/quality-control"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Create"))

	identity, ok := auth.GetIdentityFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "Identity missing")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateQualityControlRequest
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

	record, err := h.qcService.Create(ctx, identity, req)
	if err != nil {
		if errors.Is(err, api.ErrValidation) {
			span.SetStatus(codes.Error, "Validation failed")
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		api.StoreErrorResponse(w, r, h.dev, "Failed to create quality control record", err)
		return
	}

	span.SetStatus(codes.Ok, "Quality control created")
	api.WriteJSONResponse(w, r, http.StatusCreated, record)
}

// Update godoc
// @Summary      Update Quality Control
// @Description  Partially updates an inspection record. Only the record owner or an admin may update it.
// @Tags         QualityControl
// @Accept       json
// @Produce      json
// @Param        id path int true "Quality Control ID"
// @Param        qualityControl body UpdateQualityControlRequest true "Fields To Update"
// @Success      200 {object} QualityControl "Quality Control Updated"
// @Failure      400 {object} api.Response "Validation Failed"
// @Failure      403 {object} api.Response "Forbidden"
// @Failure      404 {object} api.Response "Not Found"
// @Security     BearerAuth
// @Router       /quality-control/{id} [put]
func (h *HandlerImpl) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("QualityControlHandler").Start(r.Context(), "Update", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/quality-control/{id}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "Update"))

	identity, id, ok := h.identityAndID(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Bad request")
		return
	}

	var req UpdateQualityControlRequest
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

	record, err := h.qcService.Update(ctx, identity, id, req)
	if err != nil {
		if errors.Is(err, api.ErrValidation) {
			span.SetStatus(codes.Error, "Validation failed")
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.respondRecordError(w, r, span, err, "Failed to update quality control record")
		return
	}

	span.SetStatus(codes.Ok, "Quality control updated")
	api.WriteJSONResponse(w, r, http.StatusOK, record)
}

// Delete godoc
// @Summary      Delete Quality Control
// @Description  Deletes an inspection record. Only the record owner or an admin may delete it.
// @Tags         QualityControl
// @Produce      json
// @Param        id path int true "Quality Control ID"
// @Success      200 {object} api.Response "Quality Control Deleted"
// @Failure      403 {object} api.Response "Forbidden"
// @Failure      404 {object} api.Response "Not Found"
// @Security     BearerAuth
// @Router       /quality-control/{id} [delete]
func (h *HandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("QualityControlHandler").Start(r.Context(), "Delete", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/quality-control/{id}"),
	))
	defer span.End()

	identity, id, ok := h.identityAndID(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Bad request")
		return
	}

	if err := h.qcService.Delete(ctx, identity, id); err != nil {
		h.respondRecordError(w, r, span, err, "Failed to delete quality control record")
		return
	}

	span.SetStatus(codes.Ok, "Quality control deleted")
	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Quality control record deleted successfully",
	})
}

func (h *HandlerImpl) identityAndID(w http.ResponseWriter, r *http.Request) (api.Identity, int64, bool) {
	identity, ok := auth.GetIdentityFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return api.Identity{}, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid quality control ID")
		return api.Identity{}, 0, false
	}
	return identity, id, true
}

func (h *HandlerImpl) respondRecordError(w http.ResponseWriter, r *http.Request, span trace.Span, err error, fallback string) {
	switch {
	case errors.Is(err, api.ErrNotFound):
		span.SetStatus(codes.Error, "Quality control not found")
		api.ErrorResponse(w, r, http.StatusNotFound, "Quality control record not found")
	case errors.Is(err, api.ErrForbidden):
		span.SetStatus(codes.Error, "Access denied")
		api.ErrorResponse(w, r, http.StatusForbidden, "Access denied: You can only access your own records")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, fallback)
		api.StoreErrorResponse(w, r, h.dev, fallback, err)
	}
}
