package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-hub-api/internal/models"
)

const eventColumns = `e.id, e.title, e.description, e.event_date, e.event_time, e.venue, e.department, e.category,
	e.max_participants, e.organizer_id, e.status, e.approval_level, e.registration_open,
	e.faculty_approver_id, e.faculty_approved_at, e.hod_approver_id, e.hod_approved_at,
	e.director_approver_id, e.director_approved_at, e.rejection_reason, e.created_at, e.updated_at,
	(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id) AS registration_count`

// EventRepository persists events and their approval history.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateWithHistory inserts the event and its submitted entry atomically.
func (r *EventRepository) CreateWithHistory(ctx context.Context, event *models.Event, entry *models.ApprovalHistoryEntry) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = event.CreatedAt
	entry.EventID = event.ID

	const insertEvent = `INSERT INTO events
	(id, title, description, event_date, event_time, venue, department, category, max_participants,
	 organizer_id, status, approval_level, registration_open, created_at, updated_at)
	VALUES (:id, :title, :description, :event_date, :event_time, :venue, :department, :category, :max_participants,
	 :organizer_id, :status, :approval_level, :registration_open, :created_at, :updated_at)`

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertEvent, event); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return insertHistory(ctx, tx, entry)
	})
}

// GetByID fetches an event with its registration count.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// List returns events matching the filter, newest submission first.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	where, args := eventWhere(filter)

	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + eventColumns + ` FROM events e`)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY e.created_at DESC, e.id")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	fmt.Fprintf(&builder, " LIMIT %d OFFSET %d", limit, offset)

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching the filter, ignoring paging.
func (r *EventRepository) Count(ctx context.Context, filter models.EventFilter) (int, error) {
	where, args := eventWhere(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM events e`+where, args...); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return total, nil
}

func eventWhere(filter models.EventFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 5)
	if len(filter.Levels) > 0 {
		levels := make([]string, len(filter.Levels))
		for i, l := range filter.Levels {
			levels[i] = string(l)
		}
		args = append(args, pq.StringArray(levels))
		conditions = append(conditions, fmt.Sprintf("e.approval_level = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.StringArray(statuses))
		conditions = append(conditions, fmt.Sprintf("e.status = ANY($%d)", len(args)))
	}
	if filter.OrganizerID != "" {
		args = append(args, filter.OrganizerID)
		conditions = append(conditions, fmt.Sprintf("e.organizer_id = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("e.department = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("e.category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(e.title ILIKE $%d OR e.description ILIKE $%d)", len(args), len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ApplyTransition moves approval_level with a compare-and-set on the
// expected level and appends the history entry in the same transaction.
// Only pending events move. ErrStaleState is returned when the level or
// status changed underneath the caller.
func (r *EventRepository) ApplyTransition(ctx context.Context, t models.EventTransition) error {
	e := t.Event
	e.UpdatedAt = time.Now().UTC()

	const update = `UPDATE events SET
		approval_level = :approval_level,
		status = :status,
		registration_open = :registration_open,
		faculty_approver_id = :faculty_approver_id,
		faculty_approved_at = :faculty_approved_at,
		hod_approver_id = :hod_approver_id,
		hod_approved_at = :hod_approved_at,
		director_approver_id = :director_approver_id,
		director_approved_at = :director_approved_at,
		rejection_reason = :rejection_reason,
		updated_at = :updated_at
	WHERE id = :id AND approval_level = :expected_level AND status = 'pending'`

	params := map[string]interface{}{
		"id":                   t.EventID,
		"expected_level":       t.ExpectedLevel,
		"approval_level":       e.ApprovalLevel,
		"status":               e.Status,
		"registration_open":    e.RegistrationOpen,
		"faculty_approver_id":  e.FacultyApproverID,
		"faculty_approved_at":  e.FacultyApprovedAt,
		"hod_approver_id":      e.HODApproverID,
		"hod_approved_at":      e.HODApprovedAt,
		"director_approver_id": e.DirectorApproverID,
		"director_approved_at": e.DirectorApprovedAt,
		"rejection_reason":     e.RejectionReason,
		"updated_at":           e.UpdatedAt,
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, update, params)
		if err != nil {
			return fmt.Errorf("update approval level: %w", err)
		}
		if err := checkAffected(res, ErrStaleState); err != nil {
			return err
		}
		return insertHistory(ctx, tx, t.History)
	})
}

// UpdateStatus sets status when the current status is one of from.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, from []models.EventStatus, to models.EventStatus) error {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	const query = `UPDATE events SET status = $2, registration_open = CASE WHEN $2 = 'cancelled' THEN FALSE ELSE registration_open END, updated_at = $3
	WHERE id = $1 AND status = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, id, to, time.Now().UTC(), pq.StringArray(statuses))
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return checkAffected(res, ErrStaleState)
}

// SetRegistrationOpen toggles registration for an approved event.
func (r *EventRepository) SetRegistrationOpen(ctx context.Context, id string, open bool) error {
	const query = `UPDATE events SET registration_open = $2, updated_at = $3 WHERE id = $1 AND status = 'approved'`
	res, err := r.db.ExecContext(ctx, query, id, open, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set registration open: %w", err)
	}
	return checkAffected(res, ErrStaleState)
}

// History returns the append-only log for an event, oldest first.
func (r *EventRepository) History(ctx context.Context, eventID string) ([]models.ApprovalHistoryEntry, error) {
	const query = `SELECT id, event_id, action, from_level, to_level, performed_by, comments, created_at
	FROM approval_history WHERE event_id = $1 ORDER BY created_at ASC, id ASC`
	var entries []models.ApprovalHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, eventID); err != nil {
		return nil, fmt.Errorf("list approval history: %w", err)
	}
	return entries, nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, entry *models.ApprovalHistoryEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_history
	(id, event_id, action, from_level, to_level, performed_by, comments, created_at)
	VALUES (:id, :event_id, :action, :from_level, :to_level, :performed_by, :comments, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert approval history: %w", err)
	}
	return nil
}
