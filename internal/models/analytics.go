package models

import "time"

// OrderStats counts a day's orders per status.
type OrderStats struct {
	Date     string              `json:"date"`
	Total    int                 `json:"total"`
	Revenue  float64             `json:"revenue"`
	ByStatus map[OrderStatus]int `json:"by_status"`
}

// StatusCount is one row of a per-status aggregation.
type StatusCount struct {
	Status  OrderStatus `db:"status" json:"status"`
	Count   int         `db:"count" json:"count"`
	Revenue float64     `db:"revenue" json:"revenue"`
}

// ItemDemand is the total quantity ordered for one menu item.
type ItemDemand struct {
	Name     string `db:"name" json:"name"`
	Quantity int    `db:"quantity" json:"quantity"`
}

// SlotDistribution is the occupancy of one pickup slot.
type SlotDistribution struct {
	SlotID     string `db:"slot_id" json:"slot_id"`
	Slot       string `db:"slot_time" json:"slot"`
	Orders     int    `db:"orders" json:"orders"`
	Capacity   int    `db:"capacity" json:"capacity"`
	Percentage int    `db:"-" json:"percentage"`
}

// SystemMetrics is a lightweight snapshot of process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ApprovalTransitions      uint64    `json:"approval_transitions"`
	OrdersPlaced             uint64    `json:"orders_placed"`
	SlotFullRejections       uint64    `json:"slot_full_rejections"`
	NotificationsDropped     uint64    `json:"notifications_dropped"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
