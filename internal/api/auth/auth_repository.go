package auth

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

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo is the credential store: persisted user records keyed by username
// and id. Passwords are stored as bcrypt hashes only.
type AuthRepo interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*api.User, error)
	GetUserByUsername(ctx context.Context, username string) (*api.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*api.User, error)
}

type PostgresAuthRepo struct {
	logger *slog.Logger
	pgpool api.PGXPool
}

func NewPostgresAuthRepo(pgpool api.PGXPool, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

// CreateUser inserts a new user with the default role. A duplicate username
// or email surfaces as ErrConflict via the unique constraints, so the check
// and the insert cannot race.
func (r *PostgresAuthRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (*api.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "users", "insert", start)

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("username", username))

	var user api.User
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role)
         VALUES ($1, $2, $3, 'user')
         RETURNING id, username, email, password_hash, role, created_at`,
		username, email, passwordHash).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			l.WarnContext(ctx, "Username or email already taken")
			span.SetStatus(codes.Error, "Duplicate user")
			return nil, fmt.Errorf("username or email already exists: %w", api.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("database error creating user: %w", err)
	}

	l.InfoContext(ctx, "User created", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "User created")
	return &user, nil
}

func (r *PostgresAuthRepo) GetUserByUsername(ctx context.Context, username string) (*api.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByUsername", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "users", "get", start)

	var user api.User
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, role, created_at
         FROM users WHERE username = $1`,
		username).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "User not found")
			return nil, fmt.Errorf("user %q: %w", username, api.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to query user by username", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return &user, nil
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*api.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", id.String()),
	))
	defer span.End()

	start := time.Now()
	defer metrics.Get().ObserveDBQuery(ctx, "users", "get", start)

	var user api.User
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, role, created_at
         FROM users WHERE id = $1`,
		id).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "User not found")
			return nil, fmt.Errorf("user %s: %w", id, api.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to query user by id", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return &user, nil
}
