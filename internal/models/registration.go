package models

import "time"

// Registration is a user's seat at an approved event. (event_id, user_id) is unique.
type Registration struct {
	ID           string    `db:"id" json:"id"`
	EventID      string    `db:"event_id" json:"event_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	QRCode       string    `db:"qr_code" json:"qr_code"`
	TicketToken  string    `db:"ticket_token" json:"ticket_token"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

// RegistrationDetail joins a registration with event and attendee display fields.
type RegistrationDetail struct {
	Registration
	EventTitle    string     `db:"event_title" json:"event_title"`
	EventDate     time.Time  `db:"event_date" json:"event_date"`
	EventVenue    string     `db:"event_venue" json:"event_venue"`
	AttendeeName  string     `db:"attendee_name" json:"attendee_name"`
	AttendeeEmail string     `db:"attendee_email" json:"attendee_email"`
	CheckedInAt   *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
}

// Attendance records a scanned ticket at the venue. One row per registration.
type Attendance struct {
	ID             string    `db:"id" json:"id"`
	RegistrationID string    `db:"registration_id" json:"registration_id"`
	EventID        string    `db:"event_id" json:"event_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	CheckedInBy    string    `db:"checked_in_by" json:"checked_in_by"`
	CheckedInAt    time.Time `db:"checked_in_at" json:"checked_in_at"`
}

// RegistrationTicket is the JSON encoded into a registration QR code.
type RegistrationTicket struct {
	RegistrationID string         `json:"registrationId"`
	Event          TicketEvent    `json:"event"`
	Attendee       TicketAttendee `json:"attendee"`
	RegisteredAt   time.Time      `json:"registeredAt"`
}

// TicketEvent is the event section of a registration ticket.
type TicketEvent struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
	Time  string    `json:"time"`
	Venue string    `json:"venue"`
}

// TicketAttendee is the attendee section of a registration ticket.
type TicketAttendee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
