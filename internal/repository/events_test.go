package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOldestPendingAgeSecondsAnchorsOnOccurredAt(t *testing.T) {
	db, mock := newMockDB(t)

	occurred := time.Now().UTC().Add(-90 * time.Second)
	mock.ExpectQuery(`MIN\(occurred_at\)`).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(occurred))

	r := NewEventsRepository(db)

	lag, err := r.OldestPendingAgeSeconds(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lag)
	assert.InDelta(t, 90, float64(*lag), 5)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOldestPendingAgeSecondsEmptyBacklog(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`MIN\(occurred_at\)`).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	r := NewEventsRepository(db)

	lag, err := r.OldestPendingAgeSeconds(context.Background())
	require.NoError(t, err)
	assert.Nil(t, lag)
}
