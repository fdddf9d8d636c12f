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
	"github.com/noah-isme/campus-hub-api/pkg/database"
)

const orderSelect = `SELECT o.id, o.order_number, o.student_id, o.time_slot_id, o.total_price, o.status, o.qr_code, o.notes,
	o.created_at, o.updated_at, o.collected_at,
	COALESCE(ts.slot_time, '') AS slot_time, COALESCE(u.full_name, '') AS student_name
FROM canteen_orders o
LEFT JOIN time_slots ts ON ts.id = o.time_slot_id
LEFT JOIN users u ON u.id = o.student_id`

// OrderRepository persists canteen orders and their items.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository constructs the repository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create reserves a seat in the order's slot and inserts the order with its
// items in one transaction. Nothing is written unless all three succeed.
func (r *OrderRepository) Create(ctx context.Context, order *models.CanteenOrder) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
		order.Items[i].OrderID = order.ID
	}

	const insertOrder = `INSERT INTO canteen_orders
	(id, order_number, student_id, time_slot_id, total_price, status, qr_code, notes, created_at, updated_at)
	VALUES (:id, :order_number, :student_id, :time_slot_id, :total_price, :status, :qr_code, :notes, :created_at, :updated_at)`
	const insertItems = `INSERT INTO order_items (id, order_id, menu_item_id, quantity, unit_price)
	VALUES (:id, :order_id, :menu_item_id, :quantity, :unit_price)`

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := reserveSlot(ctx, tx, order.TimeSlotID); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertOrder, order); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateOrderNumber
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if len(order.Items) > 0 {
			if _, err := tx.NamedExecContext(ctx, insertItems, order.Items); err != nil {
				return fmt.Errorf("insert order items: %w", err)
			}
		}
		return nil
	})
}

// GetByID fetches an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.CanteenOrder, error) {
	return r.getOne(ctx, orderSelect+` WHERE o.id::text = $1`, id)
}

// GetByNumber fetches an order by its human-readable number, ignoring case.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*models.CanteenOrder, error) {
	return r.getOne(ctx, orderSelect+` WHERE UPPER(o.order_number) = UPPER($1)`, strings.TrimSpace(number))
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.CanteenOrder, error) {
	var order models.CanteenOrder
	if err := r.db.GetContext(ctx, &order, query, arg); err != nil {
		return nil, err
	}
	items, err := r.itemsFor(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

// List returns orders matching the filter, newest first, with items.
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.CanteenOrder, error) {
	where, args := orderWhere(filter)

	builder := strings.Builder{}
	builder.WriteString(orderSelect)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY o.created_at DESC, o.id")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	fmt.Fprintf(&builder, " LIMIT %d OFFSET %d", limit, offset)

	var orders []models.CanteenOrder
	if err := r.db.SelectContext(ctx, &orders, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// Count returns the number of orders matching the filter, ignoring paging.
func (r *OrderRepository) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	where, args := orderWhere(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM canteen_orders o`+where, args...); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}

func orderWhere(filter models.OrderFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 5)
	conditions := make([]string, 0, 5)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("o.student_id = $%d", len(args)))
	}
	if filter.TimeSlotID != "" {
		args = append(args, filter.TimeSlotID)
		conditions = append(conditions, fmt.Sprintf("o.time_slot_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.StringArray(statuses))
		conditions = append(conditions, fmt.Sprintf("o.status = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("o.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("o.created_at <= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// UpdateStatus applies a compare-and-set on the current status and appends
// the order_logs row in the same transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, change models.OrderStatusChange) error {
	const update = `UPDATE canteen_orders SET status = $3, collected_at = COALESCE($4, collected_at), updated_at = $5
	WHERE id = $1 AND status = $2`
	const insertLog = `INSERT INTO order_logs (id, order_id, from_status, to_status, changed_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, update, change.OrderID, change.From, change.To, change.CollectedAt, change.ChangedAt)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if err := checkAffected(res, ErrStaleState); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertLog, uuid.NewString(), change.OrderID, change.From, change.To, change.ChangedBy, change.ChangedAt); err != nil {
			return fmt.Errorf("insert order log: %w", err)
		}
		return nil
	})
}

// Logs returns an order's status changes, oldest first.
func (r *OrderRepository) Logs(ctx context.Context, orderID string) ([]models.OrderLog, error) {
	const query = `SELECT id, order_id, from_status, to_status, changed_by, created_at
	FROM order_logs WHERE order_id = $1 ORDER BY created_at ASC, id ASC`
	var logs []models.OrderLog
	if err := r.db.SelectContext(ctx, &logs, query, orderID); err != nil {
		return nil, fmt.Errorf("list order logs: %w", err)
	}
	return logs, nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	const query = `SELECT oi.id, oi.order_id, oi.menu_item_id, COALESCE(mi.name, '') AS name, oi.quantity, oi.unit_price
	FROM order_items oi
	LEFT JOIN menu_items mi ON mi.id = oi.menu_item_id
	WHERE oi.order_id = ANY($1)
	ORDER BY oi.order_id, mi.name`
	var rows []models.OrderItem
	if err := r.db.SelectContext(ctx, &rows, query, pq.StringArray(orderIDs)); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	grouped := make(map[string][]models.OrderItem, len(orderIDs))
	for _, item := range rows {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}
	return grouped, nil
}
