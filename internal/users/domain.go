package users

import "time"

// User is the principal a permission decision is made for. Role is a single
// static string; OWNER short-circuits every check.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
