package production

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

// How often a create retries after losing the display-id race to a
// concurrent insert for the same owner.
const displayIDMaxRetries = 3

var _ ProductionRepository = (*PostgresProductionRepo)(nil)

type ProductionRepository interface {
	// List returns productions newest first, optionally narrowed to one owner.
	List(ctx context.Context, ownerFilter *uuid.UUID) ([]*ProductionWithUser, error)
	// Get returns one production with its inspections, or ErrNotFound.
	Get(ctx context.Context, id int64) (*ProductionWithInspections, error)
	// Create persists a new production, allocating the next per-owner
	// display ID inside the insert itself.
	Create(ctx context.Context, params CreateProductionParams) (*Production, error)
	// Update overwrites only the provided fields, or ErrNotFound.
	Update(ctx context.Context, id int64, params UpdateProductionParams) (*Production, error)
	// Delete removes the record, or ErrNotFound.
	Delete(ctx context.Context, id int64) error
}

type PostgresProductionRepo struct {
	logger *slog.Logger
	pgpool api.PGXPool
}

func NewPostgresProductionRepo(pgpool api.PGXPool, logger *slog.Logger) *PostgresProductionRepo {
	return &PostgresProductionRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresProductionRepo) List(ctx context.Context, ownerFilter *uuid.UUID) ([]*ProductionWithUser, error) {
	ctx, span := otel.Tracer("ProductionRepo").Start(ctx, "List", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "productions"),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "productions", "list", start)

	l := r.logger.With(slog.String("method", "List"))

	query := `
        SELECT p.id, p.display_id, p.name, p.status, p.material, p.user_id, p.created_at, u.username
        FROM productions p
        LEFT JOIN users u ON u.id = p.user_id
        WHERE $1::uuid IS NULL OR p.user_id = $1
        ORDER BY p.created_at DESC`

	rows, err := r.pgpool.Query(ctx, query, ownerFilter)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query productions", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching productions: %w", err)
	}
	defer rows.Close()

	var productions []*ProductionWithUser
	for rows.Next() {
		var p ProductionWithUser
		var username *string
		err := rows.Scan(
			&p.ID, &p.DisplayID, &p.Name, &p.Status, &p.Material, &p.UserID, &p.CreatedAt, &username,
		)
		if err != nil {
			l.ErrorContext(ctx, "Failed to scan production row", slog.Any("error", err))
			span.RecordError(err)
			return nil, fmt.Errorf("database error scanning production: %w", err)
		}
		if username != nil {
			p.User = &RecordOwner{Username: *username}
		}
		productions = append(productions, &p)
	}

	if err = rows.Err(); err != nil {
		l.ErrorContext(ctx, "Error iterating production rows", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("database error reading productions: %w", err)
	}

	span.SetStatus(codes.Ok, "Productions fetched")
	return productions, nil
}

func (r *PostgresProductionRepo) Get(ctx context.Context, id int64) (*ProductionWithInspections, error) {
	ctx, span := otel.Tracer("ProductionRepo").Start(ctx, "Get", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "productions"),
		attribute.Int64("db.record.id", id),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "productions", "get", start)

	var p ProductionWithInspections
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, display_id, name, status, material, user_id, created_at
         FROM productions WHERE id = $1`, id).Scan(
		&p.ID, &p.DisplayID, &p.Name, &p.Status, &p.Material, &p.UserID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Production not found")
			return nil, fmt.Errorf("production %d: %w", id, api.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to query production", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching production: %w", err)
	}

	rows, err := r.pgpool.Query(ctx,
		`SELECT id, display_id, inspection_date, scheduled_date, result, severity, notes, created_at
         FROM quality_controls WHERE product_id = $1
         ORDER BY created_at DESC`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query inspections", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		return nil, fmt.Errorf("database error fetching inspections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ins Inspection
		err := rows.Scan(&ins.ID, &ins.DisplayID, &ins.InspectionDate, &ins.ScheduledDate,
			&ins.Result, &ins.Severity, &ins.Notes, &ins.CreatedAt)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("database error scanning inspection: %w", err)
		}
		p.Inspections = append(p.Inspections, ins)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("database error reading inspections: %w", err)
	}

	span.SetStatus(codes.Ok, "Production fetched")
	return &p, nil
}

// Create computes the next display ID for the owner inside the INSERT, so
// the read-max and the write are one statement. Two concurrent creates for
// the same owner can still both see the same max; the unique constraint on
// (user_id, display_id) rejects the loser, which retries with a fresh max.
// Unowned records always get display ID 1 and never contend (NULLs are
// distinct under the constraint).
func (r *PostgresProductionRepo) Create(ctx context.Context, params CreateProductionParams) (*Production, error) {
	ctx, span := otel.Tracer("ProductionRepo").Start(ctx, "Create", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "productions"),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "productions", "insert", start)

	l := r.logger.With(slog.String("method", "Create"))

	query := `
        INSERT INTO productions (display_id, name, status, material, user_id)
        SELECT COALESCE(MAX(p.display_id), 0) + 1, $2, $3, $4, $1
        FROM productions p
        WHERE p.user_id = $1
        RETURNING id, display_id, name, status, material, user_id, created_at`

	var lastErr error
	for attempt := 1; attempt <= displayIDMaxRetries; attempt++ {
		var p Production
		err := r.pgpool.QueryRow(ctx, query,
			params.UserID, params.Name, params.Status, params.Material).Scan(
			&p.ID, &p.DisplayID, &p.Name, &p.Status, &p.Material, &p.UserID, &p.CreatedAt)
		if err == nil {
			metrics.Get().RecordsCreatedTotal.Add(ctx, 1)
			span.SetStatus(codes.Ok, "Production created")
			return &p, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			metrics.Get().DisplayIDConflictsTotal.Add(ctx, 1)
			l.WarnContext(ctx, "Display ID collision, retrying insert",
				slog.Int("attempt", attempt))
			lastErr = err
			continue
		}

		l.ErrorContext(ctx, "Failed to insert production", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("database error creating production: %w", err)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "Display ID allocation exhausted retries")
	return nil, fmt.Errorf("display id allocation failed after %d attempts: %w", displayIDMaxRetries, lastErr)
}

func (r *PostgresProductionRepo) Update(ctx context.Context, id int64, params UpdateProductionParams) (*Production, error) {
	ctx, span := otel.Tracer("ProductionRepo").Start(ctx, "Update", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "productions"),
		attribute.Int64("db.record.id", id),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "productions", "update", start)

	query := `
        UPDATE productions SET
            name = COALESCE($2, name),
            status = COALESCE($3, status),
            material = CASE WHEN $4 THEN $5 ELSE material END
        WHERE id = $1
        RETURNING id, display_id, name, status, material, user_id, created_at`

	var p Production
	err := r.pgpool.QueryRow(ctx, query,
		id, params.Name, params.Status, params.MaterialSet, params.Material).Scan(
		&p.ID, &p.DisplayID, &p.Name, &p.Status, &p.Material, &p.UserID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Production not found")
			return nil, fmt.Errorf("production %d: %w", id, api.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to update production", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return nil, fmt.Errorf("database error updating production: %w", err)
	}

	span.SetStatus(codes.Ok, "Production updated")
	return &p, nil
}

func (r *PostgresProductionRepo) Delete(ctx context.Context, id int64) error {
	ctx, span := otel.Tracer("ProductionRepo").Start(ctx, "Delete", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "productions"),
		attribute.Int64("db.record.id", id),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "productions", "delete", start)

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM productions WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete production", slog.Any("error", err))
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB delete failed")
		return fmt.Errorf("database error deleting production: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Production not found")
		return fmt.Errorf("production %d: %w", id, api.ErrNotFound)
	}

	span.SetStatus(codes.Ok, "Production deleted")
	return nil
}
