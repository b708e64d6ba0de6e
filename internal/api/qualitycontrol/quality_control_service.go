package qualitycontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weijianlim/go-mes-dashboard/app/observability/metrics"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

var _ QualityControlService = (*QualityControlServiceImpl)(nil)

// QualityControlService owns the per-record access policy for inspections,
// mirroring the production service: resolve first, then check ownership.
type QualityControlService interface {
	List(ctx context.Context, ownerFilter *uuid.UUID) ([]*QualityControlWithUser, error)
	Get(ctx context.Context, identity api.Identity, id int64) (*QualityControlWithProduct, error)
	Create(ctx context.Context, identity api.Identity, req CreateQualityControlRequest) (*QualityControl, error)
	Update(ctx context.Context, identity api.Identity, id int64, req UpdateQualityControlRequest) (*QualityControl, error)
	Delete(ctx context.Context, identity api.Identity, id int64) error
	ExportCSV(ctx context.Context, ownerFilter *uuid.UUID) (filename string, header []string, rows [][]string, err error)
}

type QualityControlServiceImpl struct {
	logger *slog.Logger
	repo   QualityControlRepository
	now    func() time.Time
}

func NewQualityControlService(repo QualityControlRepository, logger *slog.Logger) *QualityControlServiceImpl {
	return &QualityControlServiceImpl{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

func (s *QualityControlServiceImpl) List(ctx context.Context, ownerFilter *uuid.UUID) ([]*QualityControlWithUser, error) {
	ctx, span := otel.Tracer("QualityControlService").Start(ctx, "List")
	defer span.End()

	records, err := s.repo.List(ctx, ownerFilter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "List failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("quality_controls.count", len(records)))
	span.SetStatus(codes.Ok, "Quality controls listed")
	return records, nil
}

// Get resolves the inspection and its product. A deleted production does not
// break the detail view; a placeholder product takes its place.
func (s *QualityControlServiceImpl) Get(ctx context.Context, identity api.Identity, id int64) (*QualityControlWithProduct, error) {
	ctx, span := otel.Tracer("QualityControlService").Start(ctx, "Get", trace.WithAttributes(
		attribute.Int64("quality_control.id", id),
	))
	defer span.End()

	qc, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Get failed")
		return nil, err
	}

	if !api.CanAccess(identity, qc.UserID) {
		s.logger.WarnContext(ctx, "Denied quality control read",
			slog.String("method", "Get"),
			slog.Int64("qualityControlID", id),
			slog.String("userID", identity.UserID.String()))
		metrics.Get().ForbiddenAccessTotal.Add(ctx, 1)
		span.SetStatus(codes.Error, "Access denied")
		return nil, fmt.Errorf("quality control %d: %w", id, api.ErrForbidden)
	}

	detail := &QualityControlWithProduct{QualityControl: *qc}
	product, err := s.repo.GetProductSummary(ctx, qc.ProductID)
	switch {
	case err == nil:
		detail.Product = *product
	case errors.Is(err, api.ErrNotFound):
		detail.Product = ProductSummary{
			ID:        qc.ProductID,
			Name:      "Unknown Product",
			Status:    "Unknown",
			CreatedAt: s.now(),
		}
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product lookup failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Quality control fetched")
	return detail, nil
}

func (s *QualityControlServiceImpl) Create(ctx context.Context, identity api.Identity, req CreateQualityControlRequest) (*QualityControl, error) {
	ctx, span := otel.Tracer("QualityControlService").Start(ctx, "Create")
	defer span.End()

	inspectionDate, scheduledDate, err := parseDates(req.InspectionDate, req.ScheduledDate)
	if err != nil {
		span.SetStatus(codes.Error, "Bad date")
		return nil, err
	}

	ownerID := identity.UserID
	qc, err := s.repo.Create(ctx, CreateQualityControlParams{
		ProductID:      req.ProductID,
		InspectionDate: inspectionDate,
		ScheduledDate:  scheduledDate,
		Result:         req.Result,
		Severity:       normalizeOptional(req.Severity),
		Notes:          normalizeOptional(req.Notes),
		UserID:         &ownerID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		return nil, err
	}

	s.logger.InfoContext(ctx, "Quality control created",
		slog.String("method", "Create"),
		slog.Int64("qualityControlID", qc.ID),
		slog.Int("displayID", qc.DisplayID),
		slog.String("userID", identity.UserID.String()))
	span.SetStatus(codes.Ok, "Quality control created")
	return qc, nil
}

func (s *QualityControlServiceImpl) Update(ctx context.Context, identity api.Identity, id int64, req UpdateQualityControlRequest) (*QualityControl, error) {
	ctx, span := otel.Tracer("QualityControlService").Start(ctx, "Update", trace.WithAttributes(
		attribute.Int64("quality_control.id", id),
	))
	defer span.End()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, err
	}

	if !api.CanAccess(identity, existing.UserID) {
		s.logger.WarnContext(ctx, "Denied quality control update",
			slog.String("method", "Update"),
			slog.Int64("qualityControlID", id),
			slog.String("userID", identity.UserID.String()))
		metrics.Get().ForbiddenAccessTotal.Add(ctx, 1)
		span.SetStatus(codes.Error, "Access denied")
		return nil, fmt.Errorf("quality control %d: %w", id, api.ErrForbidden)
	}

	params := UpdateQualityControlParams{
		ProductID: req.ProductID,
		Result:    req.Result,
	}
	if req.InspectionDate != nil {
		d, err := time.Parse(dateLayout, *req.InspectionDate)
		if err != nil {
			span.SetStatus(codes.Error, "Bad date")
			return nil, fmt.Errorf("inspection date: %w", api.ErrValidation)
		}
		params.InspectionDate = &d
	}
	if req.ScheduledDate != nil {
		d, err := time.Parse(dateLayout, *req.ScheduledDate)
		if err != nil {
			span.SetStatus(codes.Error, "Bad date")
			return nil, fmt.Errorf("scheduled date: %w", api.ErrValidation)
		}
		params.ScheduledDate = &d
	}
	// Severity only attaches to failed inspections.
	if req.Result != nil && *req.Result == ResultFailed && req.Severity != nil {
		params.SeveritySet = true
		params.Severity = normalizeOptional(req.Severity)
	}
	if req.Notes != nil {
		params.NotesSet = true
		params.Notes = normalizeOptional(req.Notes)
	}

	qc, err := s.repo.Update(ctx, id, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Update failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Quality control updated")
	return qc, nil
}

func (s *QualityControlServiceImpl) Delete(ctx context.Context, identity api.Identity, id int64) error {
	ctx, span := otel.Tracer("QualityControlService").Start(ctx, "Delete", trace.WithAttributes(
		attribute.Int64("quality_control.id", id),
	))
	defer span.End()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return err
	}

	if !api.CanAccess(identity, existing.UserID) {
		s.logger.WarnContext(ctx, "Denied quality control delete",
			slog.String("method", "Delete"),
			slog.Int64("qualityControlID", id),
			slog.String("userID", identity.UserID.String()))
		metrics.Get().ForbiddenAccessTotal.Add(ctx, 1)
		span.SetStatus(codes.Error, "Access denied")
		return fmt.Errorf("quality control %d: %w", id, api.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return err
	}

	s.logger.InfoContext(ctx, "Quality control deleted",
		slog.String("method", "Delete"),
		slog.Int64("qualityControlID", id),
		slog.String("userID", identity.UserID.String()))
	span.SetStatus(codes.Ok, "Quality control deleted")
	return nil
}

func (s *QualityControlServiceImpl) ExportCSV(ctx context.Context, ownerFilter *uuid.UUID) (string, []string, [][]string, error) {
	ctx, span := otel.Tracer("QualityControlService").Start(ctx, "ExportCSV")
	defer span.End()

	records, err := s.repo.List(ctx, ownerFilter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Export query failed")
		return "", nil, nil, err
	}
	if len(records) == 0 {
		span.SetStatus(codes.Error, "Nothing to export")
		return "", nil, nil, fmt.Errorf("quality controls export: %w", api.ErrNotFound)
	}

	header := []string{"inspection_id", "display_id", "product_id", "inspector", "inspection_date", "scheduled_date", "result", "severity"}
	rows := make([][]string, 0, len(records))
	for _, qc := range records {
		inspector := "Unknown User"
		if qc.User != nil {
			inspector = qc.User.Username
		}
		severity := "N/A"
		if qc.Severity != nil {
			severity = *qc.Severity
		}
		rows = append(rows, []string{
			strconv.FormatInt(qc.ID, 10),
			strconv.Itoa(qc.DisplayID),
			strconv.FormatInt(qc.ProductID, 10),
			inspector,
			qc.InspectionDate.Format(dateLayout),
			qc.ScheduledDate.Format(dateLayout),
			qc.Result,
			severity,
		})
	}

	filename := fmt.Sprintf("QualityControl_report_%s.csv", api.ReportTimestamp(s.now()))
	metrics.Get().CSVExportsTotal.Add(ctx, 1)
	span.SetAttributes(attribute.Int("export.rows", len(rows)))
	span.SetStatus(codes.Ok, "Export generated")
	return filename, header, rows, nil
}

func parseDates(inspection, scheduled string) (time.Time, time.Time, error) {
	inspectionDate, err := time.Parse(dateLayout, inspection)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("inspection date: %w", api.ErrValidation)
	}
	scheduledDate, err := time.Parse(dateLayout, scheduled)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("scheduled date: %w", api.ErrValidation)
	}
	return inspectionDate, scheduledDate, nil
}

func normalizeOptional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
