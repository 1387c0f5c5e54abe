package models

import (
	"strings"
	"time"
)

// Role of an actor
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleUser   Role = "USER"
)

// ParseRole normalizes a stored role. Unknown values map to USER.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	}
	return RoleUser
}

// Actor is the caller an authorization decision is made for.
// The zero value is an anonymous visitor.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Anonymous is the actor of unauthenticated requests.
var Anonymous = Actor{}

func (a Actor) IsAuthenticated() bool { return a.ID != "" }

// IsAdmin reports whether the actor may reorder posts and manage banners and categories.
func (a Actor) IsAdmin() bool { return a.IsAuthenticated() && a.Role == RoleAdmin }

// User is a row of the user directory.
type User struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ImageURL  string    `json:"image_url"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor converts the directory row into an actor.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Email: u.Email, Role: u.Role}
}
