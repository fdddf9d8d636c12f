package models

import "time"

// NotificationKind names a best-effort message sent after a state change.
type NotificationKind string

const (
	NotifyEventForwarded        NotificationKind = "event_forwarded"
	NotifyEventApproved         NotificationKind = "event_approved"
	NotifyEventRejected         NotificationKind = "event_rejected"
	NotifyEventCancelled        NotificationKind = "event_cancelled"
	NotifyRegistrationConfirmed NotificationKind = "registration_confirmed"
	NotifyOrderPlaced           NotificationKind = "order_placed"
	NotifyOrderStatusChanged    NotificationKind = "order_status_changed"
)

// Notification is the envelope delivered to a notification sender.
type Notification struct {
	ID        string                 `json:"id"`
	Kind      NotificationKind       `json:"kind"`
	Recipient string                 `json:"recipient"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ChangeType is the kind of row change carried on the realtime feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
)

// Change feed tables.
const (
	FeedEvents        = "events"
	FeedCanteenOrders = "canteen_orders"
)

// ChangeEvent is a row-change notice published after a committed transition.
type ChangeEvent struct {
	Table     string     `json:"table"`
	Type      ChangeType `json:"type"`
	ID        string     `json:"id"`
	OldStatus string     `json:"old_status,omitempty"`
	NewStatus string     `json:"new_status"`
	UserID    string     `json:"user_id,omitempty"`
	At        time.Time  `json:"at"`
}
