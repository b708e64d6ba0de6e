package production

import (
	"context"
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

var _ ProductionService = (*ProductionServiceImpl)(nil)

// ProductionService owns the per-record access policy: reads of a single
// record, updates and deletes all resolve the record first (so a missing
// record is a clean not-found) and then check the caller against its owner.
type ProductionService interface {
	List(ctx context.Context, ownerFilter *uuid.UUID) ([]*ProductionWithUser, error)
	Get(ctx context.Context, identity api.Identity, id int64) (*ProductionWithInspections, error)
	Create(ctx context.Context, identity api.Identity, req CreateProductionRequest) (*Production, error)
	Update(ctx context.Context, identity api.Identity, id int64, req UpdateProductionRequest) (*Production, error)
	Delete(ctx context.Context, identity api.Identity, id int64) error
	// ExportCSV renders the scoped records as a CSV report. The returned
	// filename carries the generation timestamp.
	ExportCSV(ctx context.Context, ownerFilter *uuid.UUID) (filename string, header []string, rows [][]string, err error)
}

type ProductionServiceImpl struct {
	logger *slog.Logger
	repo   ProductionRepository
	now    func() time.Time
}

func NewProductionService(repo ProductionRepository, logger *slog.Logger) *ProductionServiceImpl {
	return &ProductionServiceImpl{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

func (s *ProductionServiceImpl) List(ctx context.Context, ownerFilter *uuid.UUID) ([]*ProductionWithUser, error) {
	ctx, span := otel.Tracer("ProductionService").Start(ctx, "List")
	defer span.End()

	productions, err := s.repo.List(ctx, ownerFilter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "List failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("productions.count", len(productions)))
	span.SetStatus(codes.Ok, "Productions listed")
	return productions, nil
}

func (s *ProductionServiceImpl) Get(ctx context.Context, identity api.Identity, id int64) (*ProductionWithInspections, error) {
	ctx, span := otel.Tracer("ProductionService").Start(ctx, "Get", trace.WithAttributes(
		attribute.Int64("production.id", id),
	))
	defer span.End()

	production, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Get failed")
		return nil, err
	}

	if !api.CanAccess(identity, production.UserID) {
		s.logger.WarnContext(ctx, "Denied production read",
			slog.String("method", "Get"),
			slog.Int64("productionID", id),
			slog.String("userID", identity.UserID.String()))
		metrics.Get().ForbiddenAccessTotal.Add(ctx, 1)
		span.SetStatus(codes.Error, "Access denied")
		return nil, fmt.Errorf("production %d: %w", id, api.ErrForbidden)
	}

	span.SetStatus(codes.Ok, "Production fetched")
	return production, nil
}

func (s *ProductionServiceImpl) Create(ctx context.Context, identity api.Identity, req CreateProductionRequest) (*Production, error) {
	ctx, span := otel.Tracer("ProductionService").Start(ctx, "Create")
	defer span.End()

	ownerID := identity.UserID
	production, err := s.repo.Create(ctx, CreateProductionParams{
		Name:     req.Name,
		Status:   req.Status,
		Material: normalizeOptional(req.Material),
		UserID:   &ownerID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		return nil, err
	}

	s.logger.InfoContext(ctx, "Production created",
		slog.String("method", "Create"),
		slog.Int64("productionID", production.ID),
		slog.Int("displayID", production.DisplayID),
		slog.String("userID", identity.UserID.String()))
	span.SetStatus(codes.Ok, "Production created")
	return production, nil
}

func (s *ProductionServiceImpl) Update(ctx context.Context, identity api.Identity, id int64, req UpdateProductionRequest) (*Production, error) {
	ctx, span := otel.Tracer("ProductionService").Start(ctx, "Update", trace.WithAttributes(
		attribute.Int64("production.id", id),
	))
	defer span.End()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, err
	}

	if !api.CanAccess(identity, existing.UserID) {
		s.logger.WarnContext(ctx, "Denied production update",
			slog.String("method", "Update"),
			slog.Int64("productionID", id),
			slog.String("userID", identity.UserID.String()))
		metrics.Get().ForbiddenAccessTotal.Add(ctx, 1)
		span.SetStatus(codes.Error, "Access denied")
		return nil, fmt.Errorf("production %d: %w", id, api.ErrForbidden)
	}

	params := UpdateProductionParams{
		Name:   req.Name,
		Status: req.Status,
	}
	if req.Material != nil {
		params.MaterialSet = true
		params.Material = normalizeOptional(req.Material)
	}

	production, err := s.repo.Update(ctx, id, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Update failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Production updated")
	return production, nil
}

func (s *ProductionServiceImpl) Delete(ctx context.Context, identity api.Identity, id int64) error {
	ctx, span := otel.Tracer("ProductionService").Start(ctx, "Delete", trace.WithAttributes(
		attribute.Int64("production.id", id),
	))
	defer span.End()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return err
	}

	if !api.CanAccess(identity, existing.UserID) {
		s.logger.WarnContext(ctx, "Denied production delete",
			slog.String("method", "Delete"),
			slog.Int64("productionID", id),
			slog.String("userID", identity.UserID.String()))
		metrics.Get().ForbiddenAccessTotal.Add(ctx, 1)
		span.SetStatus(codes.Error, "Access denied")
		return fmt.Errorf("production %d: %w", id, api.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return err
	}

	s.logger.InfoContext(ctx, "Production deleted",
		slog.String("method", "Delete"),
		slog.Int64("productionID", id),
		slog.String("userID", identity.UserID.String()))
	span.SetStatus(codes.Ok, "Production deleted")
	return nil
}

func (s *ProductionServiceImpl) ExportCSV(ctx context.Context, ownerFilter *uuid.UUID) (string, []string, [][]string, error) {
	ctx, span := otel.Tracer("ProductionService").Start(ctx, "ExportCSV")
	defer span.End()

	productions, err := s.repo.List(ctx, ownerFilter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Export query failed")
		return "", nil, nil, err
	}
	if len(productions) == 0 {
		span.SetStatus(codes.Error, "Nothing to export")
		return "", nil, nil, fmt.Errorf("productions export: %w", api.ErrNotFound)
	}

	header := []string{"id", "displayId", "name", "material", "status", "createdAt"}
	rows := make([][]string, 0, len(productions))
	for _, p := range productions {
		material := ""
		if p.Material != nil {
			material = *p.Material
		}
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			strconv.Itoa(p.DisplayID),
			p.Name,
			material,
			p.Status,
			p.CreatedAt.Format(time.RFC3339),
		})
	}

	filename := fmt.Sprintf("Production_report_%s.csv", api.ReportTimestamp(s.now()))
	metrics.Get().CSVExportsTotal.Add(ctx, 1)
	span.SetAttributes(attribute.Int("export.rows", len(rows)))
	span.SetStatus(codes.Ok, "Export generated")
	return filename, header, rows, nil
}

// normalizeOptional maps an empty string to NULL, so clearing a field and
// omitting it stay distinct at the request layer.
func normalizeOptional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
