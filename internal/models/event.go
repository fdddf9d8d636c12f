package models

import "time"

// ApprovalLevel is the position of an event in the review chain.
type ApprovalLevel string

const (
	LevelPendingFaculty  ApprovalLevel = "pending_faculty"
	LevelPendingHOD      ApprovalLevel = "pending_hod"
	LevelPendingDirector ApprovalLevel = "pending_director"
	LevelApproved        ApprovalLevel = "approved"
	LevelRejected        ApprovalLevel = "rejected"
)

var levelAdvancement = map[ApprovalLevel]ApprovalLevel{
	LevelPendingFaculty:  LevelPendingHOD,
	LevelPendingHOD:      LevelPendingDirector,
	LevelPendingDirector: LevelApproved,
}

// PendingLevels lists the reviewable levels in chain order.
var PendingLevels = []ApprovalLevel{LevelPendingFaculty, LevelPendingHOD, LevelPendingDirector}

// Next returns the level reached by one approval. ok is false for terminal levels.
func (l ApprovalLevel) Next() (ApprovalLevel, bool) {
	next, ok := levelAdvancement[l]
	return next, ok
}

// IsPending reports whether the level awaits a reviewer.
func (l ApprovalLevel) IsPending() bool {
	_, ok := levelAdvancement[l]
	return ok
}

// IsTerminal reports whether no further approval transition exists.
func (l ApprovalLevel) IsTerminal() bool {
	return l == LevelApproved || l == LevelRejected
}

// Valid reports whether l is a known level.
func (l ApprovalLevel) Valid() bool {
	return l.IsPending() || l.IsTerminal()
}

var roleCapabilities = map[UserRole][]ApprovalLevel{
	RoleFaculty: {LevelPendingFaculty},
	RoleHOD:     {LevelPendingFaculty, LevelPendingHOD},
	RoleAdmin:   {LevelPendingFaculty, LevelPendingHOD, LevelPendingDirector},
}

// ActionableLevels returns the union of levels the roles may act on, in chain order.
func ActionableLevels(roles ...UserRole) []ApprovalLevel {
	allowed := make(map[ApprovalLevel]struct{})
	for _, role := range roles {
		for _, level := range roleCapabilities[role] {
			allowed[level] = struct{}{}
		}
	}
	out := make([]ApprovalLevel, 0, len(allowed))
	for _, level := range PendingLevels {
		if _, ok := allowed[level]; ok {
			out = append(out, level)
		}
	}
	return out
}

// CanActOn reports whether any of roles may approve or reject at level.
func CanActOn(level ApprovalLevel, roles ...UserRole) bool {
	for _, l := range ActionableLevels(roles...) {
		if l == level {
			return true
		}
	}
	return false
}

// EventStatus is the user-facing lifecycle of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPending   EventStatus = "pending"
	EventStatusApproved  EventStatus = "approved"
	EventStatusRejected  EventStatus = "rejected"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event is a proposed campus event travelling through the approval chain.
type Event struct {
	ID                 string        `db:"id" json:"id"`
	Title              string        `db:"title" json:"title"`
	Description        string        `db:"description" json:"description"`
	EventDate          time.Time     `db:"event_date" json:"event_date"`
	EventTime          string        `db:"event_time" json:"event_time"`
	Venue              string        `db:"venue" json:"venue"`
	Department         string        `db:"department" json:"department"`
	Category           string        `db:"category" json:"category"`
	MaxParticipants    int           `db:"max_participants" json:"max_participants"`
	OrganizerID        string        `db:"organizer_id" json:"organizer_id"`
	Status             EventStatus   `db:"status" json:"status"`
	ApprovalLevel      ApprovalLevel `db:"approval_level" json:"approval_level"`
	RegistrationOpen   bool          `db:"registration_open" json:"registration_open"`
	FacultyApproverID  *string       `db:"faculty_approver_id" json:"faculty_approver_id,omitempty"`
	FacultyApprovedAt  *time.Time    `db:"faculty_approved_at" json:"faculty_approved_at,omitempty"`
	HODApproverID      *string       `db:"hod_approver_id" json:"hod_approver_id,omitempty"`
	HODApprovedAt      *time.Time    `db:"hod_approved_at" json:"hod_approved_at,omitempty"`
	DirectorApproverID *string       `db:"director_approver_id" json:"director_approver_id,omitempty"`
	DirectorApprovedAt *time.Time    `db:"director_approved_at" json:"director_approved_at,omitempty"`
	RejectionReason    *string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RegistrationCount  int           `db:"registration_count" json:"registration_count"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// StampApproval records approver and time for the level being vacated.
func (e *Event) StampApproval(level ApprovalLevel, approverID string, at time.Time) {
	id, ts := approverID, at
	switch level {
	case LevelPendingFaculty:
		e.FacultyApproverID, e.FacultyApprovedAt = &id, &ts
	case LevelPendingHOD:
		e.HODApproverID, e.HODApprovedAt = &id, &ts
	case LevelPendingDirector:
		e.DirectorApproverID, e.DirectorApprovedAt = &id, &ts
	}
}

// EventFilter scopes event listings.
type EventFilter struct {
	Levels      []ApprovalLevel
	Statuses    []EventStatus
	OrganizerID string
	Department  string
	Category    string
	Search      string
	Limit       int
	Offset      int
}

// HistoryAction enumerates approval history actions.
type HistoryAction string

const (
	HistorySubmitted HistoryAction = "submitted"
	HistoryApproved  HistoryAction = "approved"
	HistoryRejected  HistoryAction = "rejected"
	HistoryEscalated HistoryAction = "escalated"
)

// ApprovalHistoryEntry is one append-only record of an approval transition.
type ApprovalHistoryEntry struct {
	ID              string         `db:"id" json:"id"`
	EventID         string         `db:"event_id" json:"event_id"`
	Action          HistoryAction  `db:"action" json:"action"`
	FromLevel       *ApprovalLevel `db:"from_level" json:"from_level,omitempty"`
	ToLevel         ApprovalLevel  `db:"to_level" json:"to_level"`
	PerformedBy     string         `db:"performed_by" json:"performed_by"`
	PerformedByName string         `db:"performed_by_name" json:"performed_by_name,omitempty"`
	Comments        *string        `db:"comments" json:"comments,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// EventTransition describes a compare-and-set update of approval_level.
type EventTransition struct {
	EventID       string
	ExpectedLevel ApprovalLevel
	Event         *Event
	History       *ApprovalHistoryEntry
}
