package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/internal/repository"
	appErrors "github.com/noah-isme/campus-hub-api/pkg/errors"
	"github.com/noah-isme/campus-hub-api/pkg/ticket"
)

type memoryRegistrationStore struct {
	mu       sync.Mutex
	rows     []models.Registration
	attended map[string]models.Attendance
}

func (m *memoryRegistrationStore) Create(ctx context.Context, reg *models.Registration, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := 0
	for _, r := range m.rows {
		if r.EventID != reg.EventID {
			continue
		}
		if r.UserID == reg.UserID {
			return repository.ErrDuplicateRegistration
		}
		taken++
	}
	if capacity > 0 && taken >= capacity {
		return repository.ErrEventFull
	}
	m.rows = append(m.rows, *reg)
	return nil
}

func (m *memoryRegistrationStore) GetByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			detail := &models.RegistrationDetail{Registration: r}
			if a, ok := m.attended[id]; ok {
				at := a.CheckedInAt
				detail.CheckedInAt = &at
			}
			return detail, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryRegistrationStore) CheckIn(ctx context.Context, a *models.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attended == nil {
		m.attended = map[string]models.Attendance{}
	}
	if _, ok := m.attended[a.RegistrationID]; ok {
		return repository.ErrAlreadyCheckedIn
	}
	m.attended[a.RegistrationID] = *a
	return nil
}

func (m *memoryRegistrationStore) FindByEventAndUser(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.EventID == eventID && r.UserID == userID {
			reg := r
			return &reg, nil
		}
	}
	return nil, nil
}

func (m *memoryRegistrationStore) ListByUser(ctx context.Context, userID string) ([]models.RegistrationDetail, error) {
	return m.filter(func(r models.Registration) bool { return r.UserID == userID }), nil
}

func (m *memoryRegistrationStore) ListByEvent(ctx context.Context, eventID string) ([]models.RegistrationDetail, error) {
	return m.filter(func(r models.Registration) bool { return r.EventID == eventID }), nil
}

func (m *memoryRegistrationStore) filter(keep func(models.Registration) bool) []models.RegistrationDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegistrationDetail
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, models.RegistrationDetail{Registration: r, AttendeeName: r.UserID})
		}
	}
	return out
}

func (m *memoryRegistrationStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type registrationFixture struct {
	svc      *RegistrationService
	events   *memoryEventStore
	store    *memoryRegistrationStore
	notifier *recordingNotifier
	signer   *ticket.Signer
}

func newRegistrationFixture(t *testing.T) registrationFixture {
	t.Helper()
	events := newMemoryEventStore()
	store := &memoryRegistrationStore{}
	notifier := &recordingNotifier{}
	signer := ticket.NewSigner("test-secret", time.Hour)
	svc := NewRegistrationService(store, events, signer, RegistrationServiceConfig{
		Profiles: stubProfiles{profiles: map[string]models.UserProfile{"stu-1": {ID: "stu-1", FullName: "Asha", Email: "asha@campus.test"}}},
		Roles:    testRoles(),
		Notifier: notifier,
		Metrics:  NewMetricsService(),
	})
	return registrationFixture{svc: svc, events: events, store: store, notifier: notifier, signer: signer}
}

func (f registrationFixture) seedEvent(status models.EventStatus, open bool, capacity int) string {
	event := &models.Event{
		Title:            "Robotics Workshop",
		EventDate:        time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		OrganizerID:      organizer.UserID,
		Status:           status,
		ApprovalLevel:    models.LevelApproved,
		RegistrationOpen: open,
		MaxParticipants:  capacity,
	}
	_ = f.events.CreateWithHistory(context.Background(), event, &models.ApprovalHistoryEntry{})
	return event.ID
}

func TestRegisterIssuesSignedTicket(t *testing.T) {
	f := newRegistrationFixture(t)
	eventID := f.seedEvent(models.EventStatusApproved, true, 0)

	res, err := f.svc.Register(context.Background(), eventID, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", res.Ticket.Attendee.Name)
	assert.Equal(t, eventID, res.Ticket.Event.ID)

	var decoded models.RegistrationTicket
	require.NoError(t, json.Unmarshal([]byte(res.Registration.QRCode), &decoded))
	assert.Equal(t, res.Registration.ID, decoded.RegistrationID)

	claims, err := f.signer.Verify(res.Registration.TicketToken)
	require.NoError(t, err)
	assert.Equal(t, res.Registration.ID, claims.Subject)

	detail, err := f.svc.VerifyTicket(context.Background(), res.Registration.TicketToken)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", detail.UserID)

	assert.Equal(t, []models.NotificationKind{models.NotifyRegistrationConfirmed}, f.notifier.kinds())

	registered, err := f.svc.IsRegistered(context.Background(), eventID, "stu-1")
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestRegisterDuplicateIsAlreadyRegistered(t *testing.T) {
	f := newRegistrationFixture(t)
	eventID := f.seedEvent(models.EventStatusApproved, true, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), eventID, "stu-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, appErrors.Is(err, appErrors.ErrAlreadyRegistered), err.Error())
		dup++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)
	assert.Equal(t, 1, f.store.count())
}

func TestRegisterRejectsUnavailableEvents(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "missing", "stu-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	pending := f.seedEvent(models.EventStatusPending, false, 0)
	_, err = f.svc.Register(ctx, pending, "stu-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	closed := f.seedEvent(models.EventStatusApproved, false, 0)
	_, err = f.svc.Register(ctx, closed, "stu-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	full := f.seedEvent(models.EventStatusApproved, true, 1)
	_, err = f.svc.Register(ctx, full, "stu-1")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, full, "stu-2")
	require.Error(t, err)
	assert.Equal(t, "event is full", appErrors.FromError(err).Message)
}

func TestVerifyTicketRejectsForgeries(t *testing.T) {
	f := newRegistrationFixture(t)

	_, err := f.svc.VerifyTicket(context.Background(), "garbage")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	other, _, err := ticket.NewSigner("other-secret", time.Hour).Sign(registrationTicketKind, "r1", nil)
	require.NoError(t, err)
	_, err = f.svc.VerifyTicket(context.Background(), other)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	wrongKind, _, err := f.signer.Sign("order", "r1", nil)
	require.NoError(t, err)
	_, err = f.svc.VerifyTicket(context.Background(), wrongKind)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	unknown, _, err := f.signer.Sign(registrationTicketKind, "r-missing", nil)
	require.NoError(t, err)
	_, err = f.svc.VerifyTicket(context.Background(), unknown)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestListForEventRequiresOrganizer(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	eventID := f.seedEvent(models.EventStatusApproved, true, 0)
	_, err := f.svc.Register(ctx, eventID, "stu-1")
	require.NoError(t, err)

	_, _, err = f.svc.ListForEvent(ctx, eventID, student)
	assert.True(t, appErrors.Is(err, appErrors.ErrPermissionDenied))

	_, list, err := f.svc.ListForEvent(ctx, eventID, organizer)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, list, err = f.svc.ListForEvent(ctx, eventID, director)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	file, err := f.svc.ExportForEvent(ctx, eventID, organizer, "csv")
	require.NoError(t, err)
	assert.Equal(t, "registrations-robotics-workshop.csv", file.Filename)

	mine, err := f.svc.ListMine(ctx, "stu-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	none, err := f.svc.ListMine(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
}

func TestCheckInRecordsAttendanceOnce(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	eventID := f.seedEvent(models.EventStatusApproved, true, 0)
	res, err := f.svc.Register(ctx, eventID, "stu-1")
	require.NoError(t, err)
	token := res.Registration.TicketToken

	_, err = f.svc.CheckIn(ctx, token, student)
	assert.True(t, appErrors.Is(err, appErrors.ErrPermissionDenied))

	detail, err := f.svc.CheckIn(ctx, token, organizer)
	require.NoError(t, err)
	require.NotNil(t, detail.CheckedInAt)
	recorded := f.store.attended[res.Registration.ID]
	assert.Equal(t, organizer.UserID, recorded.CheckedInBy)
	assert.Equal(t, "stu-1", recorded.UserID)

	_, err = f.svc.CheckIn(ctx, token, faculty)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyCheckedIn))

	verified, err := f.svc.VerifyTicket(ctx, token)
	require.NoError(t, err)
	assert.NotNil(t, verified.CheckedInAt)
}

func TestCheckInRefusesCancelledEvent(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	eventID := f.seedEvent(models.EventStatusApproved, true, 0)
	res, err := f.svc.Register(ctx, eventID, "stu-1")
	require.NoError(t, err)
	require.NoError(t, f.events.UpdateStatus(ctx, eventID, []models.EventStatus{models.EventStatusApproved}, models.EventStatusCancelled))

	_, err = f.svc.CheckIn(ctx, res.Registration.TicketToken, organizer)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Empty(t, f.store.attended)
}
