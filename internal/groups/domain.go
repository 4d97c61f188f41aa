package groups

import "time"

// Group is a named collection of users sharing permission grants. Inactive
// groups contribute no permissions to any decision.
type Group struct {
	ID          int64
	Name        string
	Description string
	Active      bool
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership ties a user to a group.
type Membership struct {
	GroupID    int64
	UserID     int64
	AssignedBy int64
	CreatedAt  time.Time
}

// Member is a membership joined with user identity for listings.
type Member struct {
	UserID     int64
	Email      string
	Role       string
	AssignedBy int64
	AssignedAt time.Time
}
