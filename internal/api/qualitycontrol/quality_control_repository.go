package qualitycontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/weijianlim/go-mes-dashboard/app/observability/metrics"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

const displayIDMaxRetries = 3

var _ QualityControlRepository = (*PostgresQualityControlRepo)(nil)

type QualityControlRepository interface {
	// List returns inspections newest first, optionally narrowed to one owner.
	List(ctx context.Context, ownerFilter *uuid.UUID) ([]*QualityControlWithUser, error)
	// Get returns one inspection, or ErrNotFound. The product join happens in
	// GetProductSummary so the missing-product fallback stays in the service.
	Get(ctx context.Context, id int64) (*QualityControl, error)
	// GetProductSummary returns the inspected production, or ErrNotFound when
	// it has since been deleted.
	GetProductSummary(ctx context.Context, productID int64) (*ProductSummary, error)
	// Create persists a new inspection, allocating the next per-owner display ID.
	Create(ctx context.Context, params CreateQualityControlParams) (*QualityControl, error)
	// Update overwrites only the provided fields, or ErrNotFound.
	Update(ctx context.Context, id int64, params UpdateQualityControlParams) (*QualityControl, error)
	// Delete removes the record, or ErrNotFound.
	Delete(ctx context.Context, id int64) error
}

type PostgresQualityControlRepo struct {
	logger *slog.Logger
	pgpool api.PGXPool
}

func NewPostgresQualityControlRepo(pgpool api.PGXPool, logger *slog.Logger) *PostgresQualityControlRepo {
	return &PostgresQualityControlRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresQualityControlRepo) List(ctx context.Context, ownerFilter *uuid.UUID) ([]*QualityControlWithUser, error) {
	ctx, span := otel.Tracer("QualityControlRepo").Start(ctx, "List", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "quality_controls"),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "quality_controls", "list", start)

	l := r.logger.With(slog.String("method", "List"))

	query := `
        SELECT qc.id, qc.display_id, qc.product_id, qc.inspection_date, qc.scheduled_date,
               qc.result, qc.severity, qc.notes, qc.user_id, qc.created_at, u.username
        FROM quality_controls qc
        LEFT JOIN users u ON u.id = qc.user_id
        WHERE $1::uuid IS NULL OR qc.user_id = $1
        ORDER BY qc.created_at DESC`

	rows, err := r.pgpool.Query(ctx, query, ownerFilter)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query quality controls", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching quality controls: %w", err)
	}
	defer rows.Close()

	var records []*QualityControlWithUser
	for rows.Next() {
		var qc QualityControlWithUser
		var username *string
		err := rows.Scan(
			&qc.ID, &qc.DisplayID, &qc.ProductID, &qc.InspectionDate, &qc.ScheduledDate,
			&qc.Result, &qc.Severity, &qc.Notes, &qc.UserID, &qc.CreatedAt, &username,
		)
		if err != nil {
			l.ErrorContext(ctx, "Failed to scan quality control row", slog.Any("error", err))
			span.RecordError(err)
			return nil, fmt.Errorf("database error scanning quality control: %w", err)
		}
		if username != nil {
			qc.User = &RecordOwner{Username: *username}
		}
		records = append(records, &qc)
	}

	if err = rows.Err(); err != nil {
		l.ErrorContext(ctx, "Error iterating quality control rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("database error reading quality controls: %w", err)
	}

	span.SetStatus(codes.Ok, "Quality controls fetched")
	return records, nil
}

func (r *PostgresQualityControlRepo) Get(ctx context.Context, id int64) (*QualityControl, error) {
	ctx, span := otel.Tracer("QualityControlRepo").Start(ctx, "Get", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "quality_controls"),
		attribute.Int64("db.record.id", id),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "quality_controls", "get", start)

	var qc QualityControl
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, display_id, product_id, inspection_date, scheduled_date,
                result, severity, notes, user_id, created_at
         FROM quality_controls WHERE id = $1`, id).Scan(
		&qc.ID, &qc.DisplayID, &qc.ProductID, &qc.InspectionDate, &qc.ScheduledDate,
		&qc.Result, &qc.Severity, &qc.Notes, &qc.UserID, &qc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Quality control not found")
			return nil, fmt.Errorf("quality control %d: %w", id, api.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to query quality control", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching quality control: %w", err)
	}

	span.SetStatus(codes.Ok, "Quality control fetched")
	return &qc, nil
}

func (r *PostgresQualityControlRepo) GetProductSummary(ctx context.Context, productID int64) (*ProductSummary, error) {
	ctx, span := otel.Tracer("QualityControlRepo").Start(ctx, "GetProductSummary", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "productions"),
		attribute.Int64("db.record.id", productID),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "productions", "get", start)

	var p ProductSummary
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, name, status, created_at FROM productions WHERE id = $1`,
		productID).Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Product not found")
			return nil, fmt.Errorf("production %d: %w", productID, api.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to query product summary", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching product: %w", err)
	}

	span.SetStatus(codes.Ok, "Product fetched")
	return &p, nil
}

// Create allocates the next per-owner display ID the same way the production
// repository does: max+1 inside the INSERT, retried on a unique-constraint
// collision.
func (r *PostgresQualityControlRepo) Create(ctx context.Context, params CreateQualityControlParams) (*QualityControl, error) {
	ctx, span := otel.Tracer("QualityControlRepo").Start(ctx, "Create", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "quality_controls"),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "quality_controls", "insert", start)

	l := r.logger.With(slog.String("method", "Create"))

	query := `
        INSERT INTO quality_controls (display_id, product_id, inspection_date, scheduled_date, result, severity, notes, user_id)
        SELECT COALESCE(MAX(qc.display_id), 0) + 1, $2, $3, $4, $5, $6, $7, $1
        FROM quality_controls qc
        WHERE qc.user_id = $1
        RETURNING id, display_id, product_id, inspection_date, scheduled_date, result, severity, notes, user_id, created_at`

	var lastErr error
	for attempt := 1; attempt <= displayIDMaxRetries; attempt++ {
		var qc QualityControl
		err := r.pgpool.QueryRow(ctx, query,
			params.UserID, params.ProductID, params.InspectionDate, params.ScheduledDate,
			params.Result, params.Severity, params.Notes).Scan(
			&qc.ID, &qc.DisplayID, &qc.ProductID, &qc.InspectionDate, &qc.ScheduledDate,
			&qc.Result, &qc.Severity, &qc.Notes, &qc.UserID, &qc.CreatedAt)
		if err == nil {
			metrics.Get().RecordsCreatedTotal.Add(ctx, 1)
			span.SetStatus(codes.Ok, "Quality control created")
			return &qc, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			metrics.Get().DisplayIDConflictsTotal.Add(ctx, 1)
			l.WarnContext(ctx, "Display ID collision, retrying insert",
				slog.Int("attempt", attempt))
			lastErr = err
			continue
		}

		l.ErrorContext(ctx, "Failed to insert quality control", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("database error creating quality control: %w", err)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "Display ID allocation exhausted retries")
	return nil, fmt.Errorf("display id allocation failed after %d attempts: %w", displayIDMaxRetries, lastErr)
}

func (r *PostgresQualityControlRepo) Update(ctx context.Context, id int64, params UpdateQualityControlParams) (*QualityControl, error) {
	ctx, span := otel.Tracer("QualityControlRepo").Start(ctx, "Update", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "quality_controls"),
		attribute.Int64("db.record.id", id),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "quality_controls", "update", start)

	query := `
        UPDATE quality_controls SET
            product_id = COALESCE($2, product_id),
            inspection_date = COALESCE($3, inspection_date),
            scheduled_date = COALESCE($4, scheduled_date),
            result = COALESCE($5, result),
            severity = CASE WHEN $6 THEN $7 ELSE severity END,
            notes = CASE WHEN $8 THEN $9 ELSE notes END
        WHERE id = $1
        RETURNING id, display_id, product_id, inspection_date, scheduled_date, result, severity, notes, user_id, created_at`

	var qc QualityControl
	err := r.pgpool.QueryRow(ctx, query,
		id, params.ProductID, params.InspectionDate, params.ScheduledDate, params.Result,
		params.SeveritySet, params.Severity, params.NotesSet, params.Notes).Scan(
		&qc.ID, &qc.DisplayID, &qc.ProductID, &qc.InspectionDate, &qc.ScheduledDate,
		&qc.Result, &qc.Severity, &qc.Notes, &qc.UserID, &qc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Quality control not found")
			return nil, fmt.Errorf("quality control %d: %w", id, api.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to update quality control", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return nil, fmt.Errorf("database error updating quality control: %w", err)
	}

	span.SetStatus(codes.Ok, "Quality control updated")
	return &qc, nil
}

func (r *PostgresQualityControlRepo) Delete(ctx context.Context, id int64) error {
	ctx, span := otel.Tracer("QualityControlRepo").Start(ctx, "Delete", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "quality_controls"),
		attribute.Int64("db.record.id", id),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "quality_controls", "delete", start)

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM quality_controls WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete quality control", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB delete failed")
		return fmt.Errorf("database error deleting quality control: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Quality control not found")
		return fmt.Errorf("quality control %d: %w", id, api.ErrNotFound)
	}

	span.SetStatus(codes.Ok, "Quality control deleted")
	return nil
}
