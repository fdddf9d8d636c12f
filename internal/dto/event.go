package dto

import "github.com/noah-isme/campus-hub-api/internal/models"

// SubmitEventRequest proposes a new event for approval.
type SubmitEventRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=5000"`
	EventDate       string `json:"event_date" validate:"required,datetime=2006-01-02"`
	EventTime       string `json:"event_time" validate:"omitempty,datetime=15:04"`
	Venue           string `json:"venue" validate:"max=200"`
	Department      string `json:"department" validate:"max=100"`
	Category        string `json:"category" validate:"max=50"`
	MaxParticipants int    `json:"max_participants" validate:"min=0"`
}

// ApproveEventRequest carries optional reviewer comments.
type ApproveEventRequest struct {
	Comments string `json:"comments" validate:"max=2000"`
}

// RejectEventRequest carries the mandatory rejection reason.
type RejectEventRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// EventListQuery filters browse listings.
type EventListQuery struct {
	Department string `form:"department"`
	Category   string `form:"category"`
	Search     string `form:"q"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// EventDetail is an event with its approval history.
type EventDetail struct {
	models.Event
	History []models.ApprovalHistoryEntry `json:"history,omitempty"`
}

// RegistrationResponse is returned after a successful registration.
type RegistrationResponse struct {
	Registration models.Registration       `json:"registration"`
	Ticket       models.RegistrationTicket `json:"ticket"`
}

// VerifyTicketRequest carries a scanned registration token.
type VerifyTicketRequest struct {
	Token string `json:"token" validate:"required"`
}
