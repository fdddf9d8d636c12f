package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-hub-api/internal/models"
)

func sampleOrder() *models.CanteenOrder {
	return &models.CanteenOrder{
		OrderNumber: "ORD-MGX2K1-AB12",
		StudentID:   "stu-1",
		TimeSlotID:  "slot-1",
		TotalPrice:  95,
		Status:      models.OrderStatusConfirmed,
		Items: []models.OrderItem{
			{MenuItemID: "dosa", Quantity: 2, UnitPrice: 40},
			{MenuItemID: "chai", Quantity: 1, UnitPrice: 15},
		},
	}
}

func TestOrderRepositoryCreateCommitsAtomically(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE time_slots SET current_orders = current_orders + 1")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO canteen_orders")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	order := sampleOrder()
	require.NoError(t, repo.Create(context.Background(), order))
	assert.NotEmpty(t, order.ID)
	for _, item := range order.Items {
		assert.Equal(t, order.ID, item.OrderID)
		assert.NotEmpty(t, item.ID)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCreateSlotFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("current_orders < capacity")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCreateRollsBackOnItemFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE time_slots")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO canteen_orders")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleOrder())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCreateDuplicateNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE time_slots")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO canteen_orders")).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, ErrDuplicateOrderNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryGetByNumberLoadsItems(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE UPPER(o.order_number) = UPPER($1)")).
		WithArgs("ord-mgx2k1-ab12").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "student_id", "time_slot_id", "total_price", "status", "qr_code", "notes", "created_at", "updated_at", "collected_at", "slot_time", "student_name"}).
			AddRow("o-1", "ORD-MGX2K1-AB12", "stu-1", "slot-1", 95.0, "ready", "{}", nil, now, now, nil, "12:30", "Asha"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items oi")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "menu_item_id", "name", "quantity", "unit_price"}).
			AddRow("i-1", "o-1", "dosa", "Masala Dosa", 2, 40.0))

	order, err := repo.GetByNumber(context.Background(), " ord-mgx2k1-ab12 ")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReady, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Masala Dosa", order.Items[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryUpdateStatusCAS(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	now := time.Now()
	change := models.OrderStatusChange{OrderID: "o-1", From: models.OrderStatusReady, To: models.OrderStatusCollected, ChangedBy: "staff-1", CollectedAt: &now, ChangedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE canteen_orders SET status = $3")).
		WithArgs("o-1", models.OrderStatusReady, models.OrderStatusCollected, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_logs")).
		WithArgs(sqlmock.AnyArg(), "o-1", models.OrderStatusReady, models.OrderStatusCollected, "staff-1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.UpdateStatus(context.Background(), change))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE canteen_orders SET status = $3")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), change), ErrStaleState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryUpdateStatusRollsBackWithoutLog(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	now := time.Now()
	change := models.OrderStatusChange{OrderID: "o-1", From: models.OrderStatusConfirmed, To: models.OrderStatusPreparing, ChangedBy: "staff-1", ChangedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE canteen_orders SET status = $3")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_logs")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), change)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryLogs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "order_id", "from_status", "to_status", "changed_by", "created_at"}).
		AddRow("log-1", "o-1", "confirmed", "preparing", "staff-1", now).
		AddRow("log-2", "o-1", "preparing", "ready", "staff-1", now.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_logs WHERE order_id = $1")).WithArgs("o-1").WillReturnRows(rows)

	logs, err := repo.Logs(context.Background(), "o-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.OrderStatusPreparing, logs[0].ToStatus)
	assert.Equal(t, models.OrderStatusReady, logs[1].ToStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCountUsesListFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOrderRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Nanosecond)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM canteen_orders o WHERE o.status = ANY($1) AND o.created_at >= $2 AND o.created_at <= $3")).
		WithArgs(pq.StringArray{"ready"}, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.Count(context.Background(), models.OrderFilter{Statuses: []models.OrderStatus{models.OrderStatusReady}, From: &from, To: &to, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
