package dto

import "github.com/noah-isme/campus-hub-api/internal/models"

// PlaceOrderRequest is a student's cart submitted for a pickup slot.
type PlaceOrderRequest struct {
	TimeSlotID string            `json:"time_slot_id" validate:"required"`
	Items      []models.CartLine `json:"items" binding:"dive"`
	Notes      string            `json:"notes" validate:"max=500"`
}

// UpdateOrderStatusRequest moves an order one step.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// CollectOrderRequest carries a typed order number or a scanned QR payload.
type CollectOrderRequest struct {
	Code string `json:"code" validate:"required"`
}

// MenuItemRequest creates or replaces a menu item.
type MenuItemRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description" validate:"max=1000"`
	Price       float64 `json:"price" validate:"gt=0"`
	Category    string  `json:"category" validate:"required,max=50"`
	IsAvailable *bool   `json:"is_available"`
	PrepTime    int     `json:"prep_time" validate:"min=0,max=240"`
}

// AvailabilityRequest toggles a menu item.
type AvailabilityRequest struct {
	IsAvailable bool `json:"is_available"`
}

// TimeSlotRequest creates a pickup slot.
type TimeSlotRequest struct {
	SlotDate string `json:"slot_date" validate:"required,datetime=2006-01-02"`
	SlotTime string `json:"slot_time" validate:"required,datetime=15:04"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=1000"`
}

// OrderListQuery filters staff and student order listings.
type OrderListQuery struct {
	Date     string `form:"date"`
	Status   string `form:"status"`
	SlotID   string `form:"slot_id"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// CanteenDashboard is the staff overview for one day.
type CanteenDashboard struct {
	Stats        models.OrderStats         `json:"stats"`
	Demand       []models.ItemDemand       `json:"demand"`
	Distribution []models.SlotDistribution `json:"distribution"`
}
