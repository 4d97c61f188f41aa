package registry

import "time"

// Module is a catalog entry describing a feature namespace. An empty
// AvailableToRoles list means the module is visible to every role.
type Module struct {
	ID               int64
	Key              string
	Name             string
	Description      string
	AvailableToRoles []string
	SortOrder        int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Page is a catalog entry under a module. Key is the full "module.page"
// composite identifier.
type Page struct {
	ID        int64
	ModuleKey string
	Key       string
	Name      string
	SortOrder int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Component is a catalog entry under a page. Key is the full
// "module.page.component" composite identifier.
type Component struct {
	ID        int64
	PageKey   string
	Key       string
	Name      string
	SortOrder int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reorder assigns a sort order to one catalog key.
type Reorder struct {
	Key       string `json:"key"`
	SortOrder int    `json:"sort_order"`
}
