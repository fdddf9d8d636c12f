package models

import "time"

// Audit actions written to audit_logs.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionMenuCreate       = "MENU_CREATE"
	AuditActionMenuUpdate       = "MENU_UPDATE"
	AuditActionMenuAvailability = "MENU_AVAILABILITY"
	AuditActionMenuDelete       = "MENU_DELETE"
	AuditActionSlotCreate       = "SLOT_CREATE"
	AuditActionSlotToggle       = "SLOT_TOGGLE"
	AuditActionOrderStatus      = "ORDER_STATUS"
	AuditActionOrderCollect     = "ORDER_COLLECT"
	AuditActionEventApprove     = "EVENT_APPROVE"
	AuditActionEventReject      = "EVENT_REJECT"
	AuditActionEventCancel      = "EVENT_CANCEL"
)

// Resources named in audit_logs.
const (
	AuditResourceAuth      = "auth"
	AuditResourceEvents    = "events"
	AuditResourceMenuItems = "menu_items"
	AuditResourceTimeSlots = "time_slots"
	AuditResourceOrders    = "canteen_orders"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
