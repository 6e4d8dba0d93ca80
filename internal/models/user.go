package models

import "time"

// AdminGroup is the group claim that unlocks cross-owner operations.
const AdminGroup = "admin"

// User represents a registered account holder.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Groups returns the group memberships encoded into issued tokens.
func (u User) Groups() []string {
	if u.IsAdmin {
		return []string{AdminGroup}
	}
	return nil
}

// Identity is the validated projection of an authenticated request's
// token claims. Flows receive this instead of a raw claims map.
type Identity struct {
	Subject  string   `json:"subject"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// IsAdmin reports whether the identity carries the admin group.
func (i Identity) IsAdmin() bool {
	for _, g := range i.Groups {
		if g == AdminGroup {
			return true
		}
	}
	return false
}
