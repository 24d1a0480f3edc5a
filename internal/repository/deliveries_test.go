package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return sqlx.NewDb(db, "mysql"), mock
}

func TestSelectClaimerPrefersSkipLocked(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := NewDeliveriesRepository(context.Background(), db, zap.NewNop())

	assert.Equal(t, "skip_locked", r.claimer.name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectClaimerFallsBackWithoutSkipLocked(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnError(errors.New("syntax error near SKIP"))

	r := NewDeliveriesRepository(context.Background(), db, zap.NewNop())

	assert.Equal(t, "optimistic", r.claimer.name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// failingClaimer always loses its claim, standing in for a transient
// deadlock on the primary strategy.
type failingClaimer struct {
	calls int
}

func (c *failingClaimer) name() string { return "failing" }

func (c *failingClaimer) claim(context.Context, *sqlx.DB, int, int, string) error {
	c.calls++
	return errors.New("deadlock found when trying to get lock")
}

func TestClaimBatchRetriesWithOptimisticFallback(t *testing.T) {
	db, mock := newMockDB(t)

	// fallback claim finds nothing due, then the owned-rows fetch is empty
	mock.ExpectQuery("SELECT id").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	fc := &failingClaimer{}
	r := &DeliveriesRepositoryImpl{db: db, log: zap.NewNop(), claimer: fc}

	rows, err := r.ClaimBatch(context.Background(), 10, 60, "w1:deadbeef")
	require.NoError(t, err)

	assert.Empty(t, rows)
	assert.Equal(t, 1, fc.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatchSurfacesSecondClaimFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id").WillReturnError(errors.New("server has gone away"))

	fc := &failingClaimer{}
	r := &DeliveriesRepositoryImpl{db: db, log: zap.NewNop(), claimer: fc}

	_, err := r.ClaimBatch(context.Background(), 10, 60, "w1:deadbeef")
	require.ErrorContains(t, err, "claim deliveries")
	assert.Equal(t, 1, fc.calls)
}

func TestMarkPublishedLeavesAttemptsUntouched(t *testing.T) {
	matcher := sqlmock.QueryMatcherFunc(func(_, actualSQL string) error {
		if strings.Contains(actualSQL, "attempts") {
			return fmt.Errorf("attempts must only move on failure, got: %s", actualSQL)
		}
		return nil
	})

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))

	r := &DeliveriesRepositoryImpl{db: sqlx.NewDb(db, "mysql"), log: zap.NewNop()}
	require.NoError(t, r.MarkPublished(context.Background(), "d-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueDeadClampsLimitAndOrdersNewestFirst(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`ORDER BY d.updated_at DESC, e.occurred_at DESC, d.id DESC`).
		WithArgs("dead", 1000).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id"}))

	r := &DeliveriesRepositoryImpl{db: db, log: zap.NewNop()}

	n, eventIDs, err := r.RequeueDead(context.Background(), 5000, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, eventIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
