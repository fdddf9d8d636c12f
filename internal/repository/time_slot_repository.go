package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-hub-api/internal/models"
)

const slotColumns = `id, slot_date, slot_time, capacity, current_orders, is_active, created_at`

// TimeSlotRepository persists canteen pickup slots.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// GetByID re-reads a slot.
func (r *TimeSlotRepository) GetByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, `SELECT `+slotColumns+` FROM time_slots WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListForDay returns slots on the given date ordered by time.
func (r *TimeSlotRepository) ListForDay(ctx context.Context, day time.Time, activeOnly bool) ([]models.TimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots WHERE slot_date = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY slot_time ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, day.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// Create inserts a slot with zero reservations.
func (r *TimeSlotRepository) Create(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CurrentOrders = 0
	slot.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO time_slots (` + slotColumns + `)
	VALUES (:id, :slot_date, :slot_time, :capacity, :current_orders, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

// SetActive toggles a slot.
func (r *TimeSlotRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE time_slots SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set slot active: %w", err)
	}
	return checkAffected(res, errNotFound)
}

// reserveSlot takes one seat with an atomic increment-with-ceiling. It must run
// inside the order transaction so a failed insert releases the seat.
func reserveSlot(ctx context.Context, tx *sqlx.Tx, slotID string) error {
	const query = `UPDATE time_slots SET current_orders = current_orders + 1
	WHERE id = $1 AND is_active = TRUE AND current_orders < capacity`
	res, err := tx.ExecContext(ctx, query, slotID)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	return checkAffected(res, ErrSlotUnavailable)
}
