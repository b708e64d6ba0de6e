package qualitycontrol

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weijianlim/go-mes-dashboard/app/observability/metrics"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresQualityControlRepo) {
	t.Helper()
	metrics.InitAppMetrics()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, NewPostgresQualityControlRepo(mockPool, slog.Default())
}

func qualityControlColumns() []string {
	return []string{"id", "display_id", "product_id", "inspection_date", "scheduled_date", "result", "severity", "notes", "user_id", "created_at"}
}

func TestRepoCreateAllocatesDisplayID(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()
	ownerID := uuid.New()
	inspected := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	scheduled := time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(`INSERT INTO quality_controls`).
		WithArgs(&ownerID, int64(7), inspected, scheduled, ResultPassed, (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(qualityControlColumns()).
			AddRow(int64(11), 4, int64(7), inspected, scheduled, ResultPassed, (*string)(nil), (*string)(nil), &ownerID, time.Now()))

	got, err := repo.Create(ctx, CreateQualityControlParams{
		ProductID:      7,
		InspectionDate: inspected,
		ScheduledDate:  scheduled,
		Result:         ResultPassed,
		UserID:         &ownerID,
	})

	assert.NoError(t, err)
	assert.Equal(t, 4, got.DisplayID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoCreateRetriesOnDisplayIDCollision(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()
	ownerID := uuid.New()
	inspected := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	scheduled := time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "quality_controls_owner_display_id_key"}

	mockPool.ExpectQuery(`INSERT INTO quality_controls`).
		WithArgs(&ownerID, int64(7), inspected, scheduled, ResultPassed, (*string)(nil), (*string)(nil)).
		WillReturnError(dup)
	mockPool.ExpectQuery(`INSERT INTO quality_controls`).
		WithArgs(&ownerID, int64(7), inspected, scheduled, ResultPassed, (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(qualityControlColumns()).
			AddRow(int64(12), 5, int64(7), inspected, scheduled, ResultPassed, (*string)(nil), (*string)(nil), &ownerID, time.Now()))

	got, err := repo.Create(ctx, CreateQualityControlParams{
		ProductID:      7,
		InspectionDate: inspected,
		ScheduledDate:  scheduled,
		Result:         ResultPassed,
		UserID:         &ownerID,
	})

	assert.NoError(t, err)
	assert.Equal(t, 5, got.DisplayID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoCreateGivesUpAfterRetries(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()
	ownerID := uuid.New()
	inspected := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	scheduled := time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "quality_controls_owner_display_id_key"}
	for i := 0; i < displayIDMaxRetries; i++ {
		mockPool.ExpectQuery(`INSERT INTO quality_controls`).
			WithArgs(&ownerID, int64(7), inspected, scheduled, ResultPassed, (*string)(nil), (*string)(nil)).
			WillReturnError(dup)
	}

	_, err := repo.Create(ctx, CreateQualityControlParams{
		ProductID:      7,
		InspectionDate: inspected,
		ScheduledDate:  scheduled,
		Result:         ResultPassed,
		UserID:         &ownerID,
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, dup)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoUpdateSetsSeverityAndNotes(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()
	ownerID := uuid.New()
	inspected := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	scheduled := time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC)

	result := ResultFailed
	severity := "High"
	notes := "Crack along the weld seam"
	mockPool.ExpectQuery(`UPDATE quality_controls SET`).
		WithArgs(int64(11), (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil), &result, true, &severity, true, &notes).
		WillReturnRows(pgxmock.NewRows(qualityControlColumns()).
			AddRow(int64(11), 4, int64(7), inspected, scheduled, ResultFailed, &severity, &notes, &ownerID, time.Now()))

	got, err := repo.Update(ctx, 11, UpdateQualityControlParams{
		Result:      &result,
		Severity:    &severity,
		SeveritySet: true,
		Notes:       &notes,
		NotesSet:    true,
	})

	assert.NoError(t, err)
	require.NotNil(t, got.Severity)
	assert.Equal(t, "High", *got.Severity)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoUpdateLeavesSeverityAndNotesAlone(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()
	ownerID := uuid.New()
	inspected := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	scheduled := time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC)

	result := ResultPassed
	existing := "Low"
	mockPool.ExpectQuery(`UPDATE quality_controls SET`).
		WithArgs(int64(11), (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil), &result, false, (*string)(nil), false, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(qualityControlColumns()).
			AddRow(int64(11), 4, int64(7), inspected, scheduled, ResultPassed, &existing, (*string)(nil), &ownerID, time.Now()))

	got, err := repo.Update(ctx, 11, UpdateQualityControlParams{Result: &result})

	assert.NoError(t, err)
	require.NotNil(t, got.Severity)
	assert.Equal(t, "Low", *got.Severity)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoUpdateNotFound(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()

	mockPool.ExpectQuery(`UPDATE quality_controls SET`).
		WithArgs(int64(99), (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), false, (*string)(nil), false, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(qualityControlColumns()))

	got, err := repo.Update(ctx, 99, UpdateQualityControlParams{})

	assert.Nil(t, got)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoGetNotFound(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()

	mockPool.ExpectQuery(`FROM quality_controls WHERE id`).
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows(qualityControlColumns()))

	got, err := repo.Get(ctx, 99)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoGetProductSummaryGone(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()

	mockPool.ExpectQuery(`SELECT id, name, status, created_at FROM productions`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "status", "created_at"}))

	got, err := repo.GetProductSummary(ctx, 7)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoDeleteNotFound(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()

	mockPool.ExpectExec(`DELETE FROM quality_controls`).
		WithArgs(int64(123)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(ctx, 123)

	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepoListScopedToOwner(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	ctx := context.Background()
	ownerID := uuid.New()
	inspector := "inspector"
	inspected := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	scheduled := time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(`LEFT JOIN users u ON u.id = qc.user_id`).
		WithArgs(&ownerID).
		WillReturnRows(pgxmock.NewRows(append(qualityControlColumns(), "username")).
			AddRow(int64(1), 1, int64(7), inspected, scheduled, ResultPending, (*string)(nil), (*string)(nil), &ownerID, time.Now(), &inspector))

	got, err := repo.List(ctx, &ownerID)

	assert.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].User)
	assert.Equal(t, "inspector", got[0].User.Username)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
