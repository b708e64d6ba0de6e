package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	AuthRequestsTotal          metric.Int64Counter
	AuthFailuresTotal          metric.Int64Counter
	DbQueryDurationSeconds     metric.Float64Histogram
	DbQueryErrorsTotal         metric.Int64Counter
	DisplayIDConflictsTotal    metric.Int64Counter
	CSVExportsTotal            metric.Int64Counter
	RecordsCreatedTotal        metric.Int64Counter
	ForbiddenAccessTotal       metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("mes-dashboard")
		var err error
		m := &AppMetrics{}

		m.AuthRequestsTotal, err = meter.Int64Counter(
			"auth_requests_total",
			metric.WithDescription("Total number of authentication requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create auth_requests_total: %v", err)
		}

		m.AuthFailuresTotal, err = meter.Int64Counter(
			"auth_failures_total",
			metric.WithDescription("Total number of failed authentication attempts"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create auth_failures_total: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		m.DbQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		m.DisplayIDConflictsTotal, err = meter.Int64Counter(
			"display_id_conflicts_total",
			metric.WithDescription("Unique-constraint collisions hit while allocating per-owner display IDs"),
			metric.WithUnit("{conflict}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create display_id_conflicts_total: %v", err)
		}

		m.CSVExportsTotal, err = meter.Int64Counter(
			"csv_exports_total",
			metric.WithDescription("Total number of CSV report downloads"),
			metric.WithUnit("{export}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create csv_exports_total: %v", err)
		}

		m.RecordsCreatedTotal, err = meter.Int64Counter(
			"records_created_total",
			metric.WithDescription("Total number of domain records created"),
			metric.WithUnit("{record}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create records_created_total: %v", err)
		}

		m.ForbiddenAccessTotal, err = meter.Int64Counter(
			"forbidden_access_total",
			metric.WithDescription("Requests rejected by the ownership policy"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create forbidden_access_total: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// ObserveDBQuery records one query's duration against the table and operation
// that issued it.
func (m *AppMetrics) ObserveDBQuery(ctx context.Context, table, operation string, start time.Time) {
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("db.sql.table", table),
			attribute.String("db.operation", operation),
		))
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
