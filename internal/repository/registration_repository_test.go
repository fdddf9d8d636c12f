package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-hub-api/internal/models"
)

func TestRegistrationRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "registrations_event_id_user_id_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Registration{EventID: "evt-1", UserID: "stu-1", RegisteredAt: time.Now()}, 0)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateWithCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM events WHERE id = $1 FOR UPDATE")).WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("evt-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations")).WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reg := &models.Registration{EventID: "evt-1", UserID: "stu-1", RegisteredAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), reg, 2))
	assert.NotEmpty(t, reg.ID)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("evt-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations")).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Registration{EventID: "evt-1", UserID: "stu-2"}, 2)
	assert.ErrorIs(t, err, ErrEventFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryFindByEventAndUserMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM registrations WHERE event_id = $1 AND user_id = $2")).
		WithArgs("evt-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	reg, err := repo.FindByEventAndUser(context.Background(), "evt-1", "stu-1")
	require.NoError(t, err)
	assert.Nil(t, reg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListByEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "event_id", "user_id", "qr_code", "ticket_token", "registered_at", "event_title", "event_date", "event_venue", "attendee_name", "attendee_email", "checked_in_at"}).
		AddRow("reg-1", "evt-1", "stu-1", "{}", "tok", now, "Hackathon", now, "Lab 3", "Asha", "asha@campus.test", nil).
		AddRow("reg-2", "evt-1", "stu-2", "{}", "tok", now, "Hackathon", now, "Lab 3", "Ravi", "ravi@campus.test", now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.event_id = $1")).WithArgs("evt-1").WillReturnRows(rows)

	list, err := repo.ListByEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Asha", list[0].AttendeeName)
	assert.Equal(t, "reg-1", list[0].ID)
	assert.Nil(t, list[0].CheckedInAt)
	require.NotNil(t, list[1].CheckedInAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCheckInOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(`INSERT INTO attendance .* ON CONFLICT \(registration_id\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "reg-1", "evt-1", "stu-1", "org-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	a := &models.Attendance{RegistrationID: "reg-1", EventID: "evt-1", UserID: "stu-1", CheckedInBy: "org-1"}
	require.NoError(t, repo.CheckIn(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CheckedInAt.IsZero())

	again := &models.Attendance{RegistrationID: "reg-1", EventID: "evt-1", UserID: "stu-1", CheckedInBy: "org-1"}
	assert.ErrorIs(t, repo.CheckIn(context.Background(), again), ErrAlreadyCheckedIn)
	require.NoError(t, mock.ExpectationsWereMet())
}
