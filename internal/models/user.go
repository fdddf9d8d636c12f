package models

import (
	"sort"
	"time"
)

// UserRole is one entry of a user's role set.
type UserRole string

const (
	RoleStudent      UserRole = "student"
	RoleOrganizer    UserRole = "organizer"
	RoleFaculty      UserRole = "faculty"
	RoleHOD          UserRole = "hod"
	RoleAdmin        UserRole = "admin"
	RoleCanteenAdmin UserRole = "canteen_admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleOrganizer, RoleFaculty, RoleHOD, RoleAdmin, RoleCanteenAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table. Roles are
// loaded from user_roles.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Department   *string    `db:"department" json:"department,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	Roles        []UserRole `db:"-" json:"roles"`
}

// HasRole reports whether the user holds any of roles.
func (u *User) HasRole(roles ...UserRole) bool {
	return HasAnyRole(u.Roles, roles...)
}

// HasAnyRole reports whether held intersects wanted.
func HasAnyRole(held []UserRole, wanted ...UserRole) bool {
	for _, h := range held {
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}

// NormalizeRoles drops unknown and duplicate roles and sorts the rest.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]struct{}, len(roles))
	out := make([]UserRole, 0, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserProfile is the display projection used for history annotation.
type UserProfile struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
