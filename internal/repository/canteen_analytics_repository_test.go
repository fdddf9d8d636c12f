package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanteenAnalyticsRepository(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCanteenAnalyticsRepository(db)

	from := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "revenue"}).AddRow("confirmed", 3, 240.0).AddRow("ready", 1, 40.0))
	mock.ExpectQuery(regexp.QuoteMeta("SUM(oi.quantity) AS quantity")).WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"name", "quantity"}).AddRow("Masala Dosa", 5).AddRow("Chai", 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM time_slots")).WithArgs("2026-10-19").
		WillReturnRows(sqlmock.NewRows([]string{"slot_id", "slot_time", "orders", "capacity"}).AddRow("s-1", "12:30", 3, 4))

	counts, err := repo.StatusCounts(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, counts, 2)

	demand, err := repo.ItemDemand(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, "Masala Dosa", demand[0].Name)
	assert.Equal(t, 5, demand[0].Quantity)

	slots, err := repo.SlotOccupancy(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, 3, slots[0].Orders)
	require.NoError(t, mock.ExpectationsWereMet())
}
