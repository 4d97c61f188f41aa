package permissions

import (
	"fmt"
	"strings"
	"time"

	"github.com/warden-authz/warden/internal/shared"
)

// RoleOwner bypasses every permission check, compared case-insensitively.
const RoleOwner = "OWNER"

// PermissionType identifies the hierarchy level a grant applies to,
// coarsest to finest.
type PermissionType string

const (
	TypeModule    PermissionType = "MODULE"
	TypePage      PermissionType = "PAGE"
	TypeComponent PermissionType = "COMPONENT"
)

// ParsePermissionType validates a raw permission type string.
func ParsePermissionType(raw string) (PermissionType, error) {
	switch PermissionType(strings.ToUpper(strings.TrimSpace(raw))) {
	case TypeModule:
		return TypeModule, nil
	case TypePage:
		return TypePage, nil
	case TypeComponent:
		return TypeComponent, nil
	}
	return "", shared.NewValidation("permissionType", fmt.Sprintf("unknown type %q", raw))
}

// Action is the operation a grant allows or denies.
type Action string

const (
	ActionRead    Action = "READ"
	ActionWrite   Action = "WRITE"
	ActionDelete  Action = "DELETE"
	ActionExecute Action = "EXECUTE"
)

// ParseAction validates a raw action string.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(raw))) {
	case ActionRead:
		return ActionRead, nil
	case ActionWrite:
		return ActionWrite, nil
	case ActionDelete:
		return ActionDelete, nil
	case ActionExecute:
		return ActionExecute, nil
	}
	return "", shared.NewValidation("action", fmt.Sprintf("unknown action %q", raw))
}

var actionRank = map[Action]int{
	ActionRead:   1,
	ActionWrite:  2,
	ActionDelete: 3,
}

// Covers reports whether a grant carrying action a satisfies a request for
// requested. Equality always matches. EXECUTE is orthogonal: it satisfies
// only EXECUTE, and nothing else satisfies an EXECUTE request. Otherwise
// DELETE covers WRITE and READ, WRITE covers READ.
func (a Action) Covers(requested Action) bool {
	if a == requested {
		return true
	}
	if a == ActionExecute || requested == ActionExecute {
		return false
	}
	return actionRank[a] > actionRank[requested]
}

// Grant is a single allow/deny rule held by a group.
type Grant struct {
	ID                 int64
	GroupID            int64
	Type               PermissionType
	ResourceType       string
	ResourceIdentifier string
	Action             Action
	Granted            bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ResourceKey is the typed form of a dotted resource identifier. Page and
// Component are empty for coarser levels.
type ResourceKey struct {
	Module    string
	Page      string
	Component string
}

// ParseResourceKey validates a dotted identifier against the expected level.
func ParseResourceKey(level PermissionType, raw string) (ResourceKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ResourceKey{}, shared.NewValidation("resourceIdentifier", "empty key")
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return ResourceKey{}, shared.NewValidation("resourceIdentifier", fmt.Sprintf("empty segment in %q", raw))
		}
	}
	want := map[PermissionType]int{TypeModule: 1, TypePage: 2, TypeComponent: 3}[level]
	if len(parts) != want {
		return ResourceKey{}, shared.NewValidation("resourceIdentifier",
			fmt.Sprintf("%s key %q must have %d segment(s), got %d", level, raw, want, len(parts)))
	}
	key := ResourceKey{Module: parts[0]}
	if len(parts) > 1 {
		key.Page = parts[1]
	}
	if len(parts) > 2 {
		key.Component = parts[2]
	}
	return key, nil
}

// String renders the dotted form.
func (k ResourceKey) String() string {
	parts := []string{k.Module}
	if k.Page != "" {
		parts = append(parts, k.Page)
	}
	if k.Component != "" {
		parts = append(parts, k.Component)
	}
	return strings.Join(parts, ".")
}

// PageKey returns the enclosing "module.page" identifier of a component key.
// Identifiers with fewer than three segments have no derivable page and are
// treated as non-matching by inheritance lookups, never as an error.
func PageKey(resourceIdentifier string) (string, bool) {
	parts := strings.Split(resourceIdentifier, ".")
	if len(parts) < 3 {
		return "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}

// GroupRef is the slice of group state the engine needs.
type GroupRef struct {
	ID     int64
	Name   string
	Active bool
}

// Snapshot is the cached aggregate of a user's permissions across active
// groups. Keys take the form "TYPE:resourceType:resourceIdentifier".
type Snapshot struct {
	UserID        int64                   `json:"user_id"`
	Role          string                  `json:"role"`
	Permissions   map[string]ActionGrants `json:"permissions"`
	GroupCount    int                     `json:"group_count"`
	GrantCount    int                     `json:"grant_count"`
	ResourceCount int                     `json:"resource_count"`
	GeneratedAt   time.Time               `json:"generated_at"`
}

// ActionGrants maps an action to its effective granted flag.
type ActionGrants map[Action]bool

// SnapshotKey composes the aggregation key for one grant.
func SnapshotKey(t PermissionType, resourceType, resourceIdentifier string) string {
	return fmt.Sprintf("%s:%s:%s", t, resourceType, resourceIdentifier)
}
