package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-hub-api/internal/models"
	"github.com/noah-isme/campus-hub-api/pkg/database"
)

const registrationDetailQuery = `SELECT r.id, r.event_id, r.user_id, r.qr_code, r.ticket_token, r.registered_at,
	e.title AS event_title, e.event_date, e.venue AS event_venue,
	u.full_name AS attendee_name, u.email AS attendee_email, a.checked_in_at
FROM registrations r
JOIN events e ON e.id = r.event_id
JOIN users u ON u.id = r.user_id
LEFT JOIN attendance a ON a.registration_id = r.id`

// RegistrationRepository persists event registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create inserts a registration. When capacity is positive the event row is
// locked and the seat count checked in the same transaction. The
// (event_id, user_id) unique constraint surfaces as ErrDuplicateRegistration.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration, capacity int) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if capacity > 0 {
			var locked string
			if err := tx.GetContext(ctx, &locked, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, reg.EventID); err != nil {
				return fmt.Errorf("lock event: %w", err)
			}
			var taken int
			if err := tx.GetContext(ctx, &taken, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, reg.EventID); err != nil {
				return fmt.Errorf("count registrations: %w", err)
			}
			if taken >= capacity {
				return ErrEventFull
			}
		}

		const insert = `INSERT INTO registrations (id, event_id, user_id, qr_code, ticket_token, registered_at)
		VALUES (:id, :event_id, :user_id, :qr_code, :ticket_token, :registered_at)`
		if _, err := tx.NamedExecContext(ctx, insert, reg); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateRegistration
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

// GetByID returns a registration with event and attendee details.
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail, registrationDetailQuery+` WHERE r.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByEventAndUser returns nil when the user is not registered.
func (r *RegistrationRepository) FindByEventAndUser(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	const query = `SELECT id, event_id, user_id, qr_code, ticket_token, registered_at FROM registrations WHERE event_id = $1 AND user_id = $2`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, eventID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// ListByUser returns a user's registrations, upcoming events first.
func (r *RegistrationRepository) ListByUser(ctx context.Context, userID string) ([]models.RegistrationDetail, error) {
	var list []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &list, registrationDetailQuery+` WHERE r.user_id = $1 ORDER BY e.event_date ASC, r.registered_at ASC`, userID); err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	return list, nil
}

// ListByEvent returns an event's attendees in registration order.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]models.RegistrationDetail, error) {
	var list []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &list, registrationDetailQuery+` WHERE r.event_id = $1 ORDER BY r.registered_at ASC`, eventID); err != nil {
		return nil, fmt.Errorf("list registrations by event: %w", err)
	}
	return list, nil
}

// CheckIn records attendance for a registration. A second scan of the same
// ticket returns ErrAlreadyCheckedIn.
func (r *RegistrationRepository) CheckIn(ctx context.Context, a *models.Attendance) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CheckedInAt.IsZero() {
		a.CheckedInAt = time.Now().UTC()
	}
	const insert = `INSERT INTO attendance (id, registration_id, event_id, user_id, checked_in_by, checked_in_at)
	VALUES (:id, :registration_id, :event_id, :user_id, :checked_in_by, :checked_in_at)
	ON CONFLICT (registration_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, insert, a)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return checkAffected(res, ErrAlreadyCheckedIn)
}
