package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-hub-api/internal/models"
)

// CanteenAnalyticsRepository runs read-side aggregations over orders.
type CanteenAnalyticsRepository struct {
	db *sqlx.DB
}

// NewCanteenAnalyticsRepository constructs the repository.
func NewCanteenAnalyticsRepository(db *sqlx.DB) *CanteenAnalyticsRepository {
	return &CanteenAnalyticsRepository{db: db}
}

// StatusCounts groups orders created in [from, to) by status.
func (r *CanteenAnalyticsRepository) StatusCounts(ctx context.Context, from, to time.Time) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count, COALESCE(SUM(total_price), 0) AS revenue
	FROM canteen_orders
	WHERE created_at >= $1 AND created_at < $2
	GROUP BY status`
	var rows []models.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("order status counts: %w", err)
	}
	return rows, nil
}

// ItemDemand sums ordered quantities per menu item name, highest first.
func (r *CanteenAnalyticsRepository) ItemDemand(ctx context.Context, from, to time.Time) ([]models.ItemDemand, error) {
	const query = `SELECT COALESCE(mi.name, 'Unknown') AS name, SUM(oi.quantity) AS quantity
	FROM order_items oi
	JOIN canteen_orders o ON o.id = oi.order_id
	LEFT JOIN menu_items mi ON mi.id = oi.menu_item_id
	WHERE o.created_at >= $1 AND o.created_at < $2
	GROUP BY COALESCE(mi.name, 'Unknown')
	ORDER BY quantity DESC, name ASC`
	var rows []models.ItemDemand
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("item demand: %w", err)
	}
	return rows, nil
}

// SlotOccupancy returns reservation counters for slots on day.
func (r *CanteenAnalyticsRepository) SlotOccupancy(ctx context.Context, day time.Time) ([]models.SlotDistribution, error) {
	const query = `SELECT id AS slot_id, slot_time, current_orders AS orders, capacity
	FROM time_slots
	WHERE slot_date = $1
	ORDER BY slot_time ASC`
	var rows []models.SlotDistribution
	if err := r.db.SelectContext(ctx, &rows, query, day.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("slot occupancy: %w", err)
	}
	return rows, nil
}
