package models

import (
	"strings"
	"time"
)

// MenuItem is a dish offered by the canteen.
type MenuItem struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Price       float64   `db:"price" json:"price"`
	Category    string    `db:"category" json:"category"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	PrepTime    int       `db:"prep_time" json:"prep_time"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MenuFilter scopes menu listings.
type MenuFilter struct {
	Category      string
	AvailableOnly bool
	Search        string
}

// TimeSlot is a bounded-capacity pickup window. 0 <= CurrentOrders <= Capacity.
type TimeSlot struct {
	ID            string    `db:"id" json:"id"`
	SlotDate      time.Time `db:"slot_date" json:"slot_date"`
	SlotTime      string    `db:"slot_time" json:"slot_time"`
	Capacity      int       `db:"capacity" json:"capacity"`
	CurrentOrders int       `db:"current_orders" json:"current_orders"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// IsFull reports whether no reservation remains.
func (s *TimeSlot) IsFull() bool {
	return s.CurrentOrders >= s.Capacity
}

// Remaining returns free reservations, never negative.
func (s *TimeSlot) Remaining() int {
	if s.CurrentOrders >= s.Capacity {
		return 0
	}
	return s.Capacity - s.CurrentOrders
}

// OrderStatus is the lifecycle state of a canteen order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCollected OrderStatus = "collected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCollected,
	OrderStatusCancelled,
}

var orderAdvancement = map[OrderStatus]OrderStatus{
	OrderStatusPending:   OrderStatusConfirmed,
	OrderStatusConfirmed: OrderStatusPreparing,
	OrderStatusPreparing: OrderStatusReady,
	OrderStatusReady:     OrderStatusCollected,
}

// ParseOrderStatus normalises raw input into a known status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range OrderStatuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether the order can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCollected || s == OrderStatusCancelled
}

// Next returns the single forward step from s.
func (s OrderStatus) Next() (OrderStatus, bool) {
	next, ok := orderAdvancement[s]
	return next, ok
}

// CanTransition reports whether from -> to is exactly one legal step.
func CanTransition(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// CanteenOrder is a student's pre-order for a pickup slot.
type CanteenOrder struct {
	ID          string      `db:"id" json:"id"`
	OrderNumber string      `db:"order_number" json:"order_number"`
	StudentID   string      `db:"student_id" json:"student_id"`
	TimeSlotID  string      `db:"time_slot_id" json:"time_slot_id"`
	TotalPrice  float64     `db:"total_price" json:"total_price"`
	Status      OrderStatus `db:"status" json:"status"`
	QRCode      string      `db:"qr_code" json:"qr_code"`
	Notes       *string     `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
	CollectedAt *time.Time  `db:"collected_at" json:"collected_at,omitempty"`
	Items       []OrderItem `db:"-" json:"items,omitempty"`
	SlotTime    string      `db:"slot_time" json:"slot_time,omitempty"`
	StudentName string      `db:"student_name" json:"student_name,omitempty"`
}

// OrderItem is an immutable order line; UnitPrice is the price at placement.
type OrderItem struct {
	ID         string  `db:"id" json:"id"`
	OrderID    string  `db:"order_id" json:"order_id"`
	MenuItemID string  `db:"menu_item_id" json:"menu_item_id"`
	Name       string  `db:"name" json:"name"`
	Quantity   int     `db:"quantity" json:"quantity"`
	UnitPrice  float64 `db:"unit_price" json:"unit_price"`
}

// OrderTicket is the JSON encoded into an order QR code.
type OrderTicket struct {
	OrderNumber string            `json:"orderNumber"`
	StudentID   string            `json:"studentId"`
	TotalPrice  float64           `json:"totalPrice"`
	TimeSlotID  string            `json:"timeSlotId"`
	Items       []OrderTicketItem `json:"items"`
}

// OrderTicketItem is a line inside an order QR code.
type OrderTicketItem struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// OrderFilter scopes order listings.
type OrderFilter struct {
	StudentID  string
	TimeSlotID string
	Statuses   []OrderStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// OrderStatusChange is a compare-and-set status update.
type OrderStatusChange struct {
	OrderID     string
	From        OrderStatus
	To          OrderStatus
	ChangedBy   string
	CollectedAt *time.Time
	ChangedAt   time.Time
}

// OrderLog is one applied status change, written with the change itself.
type OrderLog struct {
	ID         string      `db:"id" json:"id"`
	OrderID    string      `db:"order_id" json:"order_id"`
	FromStatus OrderStatus `db:"from_status" json:"from_status"`
	ToStatus   OrderStatus `db:"to_status" json:"to_status"`
	ChangedBy  string      `db:"changed_by" json:"changed_by"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
