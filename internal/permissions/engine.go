package permissions

import (
	"context"
	"strings"
)

// Store is the read surface the engine evaluates against.
type Store interface {
	// GetUserRole returns the user's static role, or a NotFoundError.
	GetUserRole(ctx context.Context, userID int64) (string, error)
	// ListUserGroups returns every group the user belongs to, active or not.
	ListUserGroups(ctx context.Context, userID int64) ([]GroupRef, error)
	// ListGrantsForGroups returns all grants held by the given groups.
	ListGrantsForGroups(ctx context.Context, groupIDs []int64) ([]Grant, error)
}

// ModuleGate exposes the registry's role restriction for a module.
// An empty role list means the module is unrestricted.
type ModuleGate interface {
	ModuleRoles(ctx context.Context, moduleKey string) ([]string, error)
}

// Engine decides grant/deny for a principal and a requested resource tuple.
// It is stateless; all shared state lives in the store.
type Engine struct {
	store Store
	gate  ModuleGate
}

// NewEngine constructs an Engine. gate may be nil when no registry
// restriction applies.
func NewEngine(store Store, gate ModuleGate) *Engine {
	return &Engine{store: store, gate: gate}
}

// HasPermission runs the core decision: role shortcut, deny-override,
// explicit allow, then hierarchy inheritance. Store failures propagate;
// the decision never silently defaults to granted.
func (e *Engine) HasPermission(ctx context.Context, userID int64, permType PermissionType, resourceType, resourceIdentifier string, action Action) (bool, error) {
	role, err := e.store.GetUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if strings.EqualFold(role, RoleOwner) {
		return true, nil
	}

	grants, err := e.activeGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(grants) == 0 {
		return false, nil
	}

	return evaluate(grants, permType, resourceType, resourceIdentifier, action), nil
}

// activeGrants collects grants from the user's active groups only. Grants
// held by inactive groups are excluded entirely.
func (e *Engine) activeGrants(ctx context.Context, userID int64) ([]Grant, error) {
	groups, err := e.store.ListUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	activeIDs := make([]int64, 0, len(groups))
	for _, g := range groups {
		if g.Active {
			activeIDs = append(activeIDs, g.ID)
		}
	}
	if len(activeIDs) == 0 {
		return nil, nil
	}
	return e.store.ListGrantsForGroups(ctx, activeIDs)
}

// evaluate applies the fixed rule order over a flat grant list.
func evaluate(grants []Grant, permType PermissionType, resourceType, resourceIdentifier string, action Action) bool {
	// Deny-override: an explicit deny on the exact tuple defeats any allow,
	// at any level, before allows are considered.
	for _, g := range grants {
		if matchesExact(g, permType, resourceType, resourceIdentifier, action) && !g.Granted {
			return false
		}
	}

	// Explicit allow: any one group granting access is sufficient.
	for _, g := range grants {
		if matchesExact(g, permType, resourceType, resourceIdentifier, action) && g.Granted {
			return true
		}
	}

	// Module-level grants cascade to pages and components of the same
	// resource namespace.
	if permType == TypePage || permType == TypeComponent {
		for _, g := range grants {
			if g.Type == TypeModule && g.ResourceType == resourceType && g.Granted && g.Action.Covers(action) {
				return true
			}
		}
	}

	// Page-level grants cascade to components. Identifiers without a
	// component segment have no derivable page and never match.
	if permType == TypeComponent {
		if pageKey, ok := PageKey(resourceIdentifier); ok {
			for _, g := range grants {
				if g.Type == TypePage && g.ResourceType == resourceType && g.ResourceIdentifier == pageKey && g.Granted && g.Action.Covers(action) {
					return true
				}
			}
		}
	}

	return false
}

// matchesExact reports whether the grant addresses the exact requested tuple
// with an action covering the requested one.
func matchesExact(g Grant, permType PermissionType, resourceType, resourceIdentifier string, action Action) bool {
	return g.Type == permType &&
		g.ResourceType == resourceType &&
		g.ResourceIdentifier == resourceIdentifier &&
		g.Action.Covers(action)
}

// HasModuleAccess gates visibility of a module: the registry role
// restriction applies first, then the core READ decision, then the looser
// presence check that treats any granted rule inside the module namespace
// as access.
func (e *Engine) HasModuleAccess(ctx context.Context, userID int64, moduleKey string) (bool, error) {
	role, err := e.store.GetUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if strings.EqualFold(role, RoleOwner) {
		return true, nil
	}

	if e.gate != nil {
		roles, err := e.gate.ModuleRoles(ctx, moduleKey)
		if err != nil {
			return false, err
		}
		if len(roles) > 0 && !containsFold(roles, role) {
			return false, nil
		}
	}

	grants, err := e.activeGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	if evaluate(grants, TypeModule, moduleKey, moduleKey, ActionRead) {
		return true, nil
	}
	return hasAnyGrantInScope(grants, moduleKey, moduleKey), nil
}

// HasPageAccess gates visibility of a page within a module.
func (e *Engine) HasPageAccess(ctx context.Context, userID int64, moduleKey, pageKey string) (bool, error) {
	role, err := e.store.GetUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if strings.EqualFold(role, RoleOwner) {
		return true, nil
	}

	grants, err := e.activeGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	identifier := moduleKey + "." + pageKey
	if evaluate(grants, TypePage, moduleKey, identifier, ActionRead) {
		return true, nil
	}
	return hasAnyGrantInScope(grants, moduleKey, identifier), nil
}

// HasComponentAccess gates visibility of a component within a page.
func (e *Engine) HasComponentAccess(ctx context.Context, userID int64, moduleKey, pageKey, componentKey string) (bool, error) {
	role, err := e.store.GetUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if strings.EqualFold(role, RoleOwner) {
		return true, nil
	}

	grants, err := e.activeGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	identifier := moduleKey + "." + pageKey + "." + componentKey
	if evaluate(grants, TypeComponent, moduleKey, identifier, ActionRead) {
		return true, nil
	}
	// Presence falls back to the enclosing page scope.
	return hasAnyGrantInScope(grants, moduleKey, moduleKey+"."+pageKey), nil
}

// hasAnyGrantInScope is the deliberately looser presence check used by the
// access-gating wrappers: any granted rule on the resource type whose
// identifier equals the scope key or nests under it counts, regardless of
// action. It intentionally does not share the core evaluator's inheritance
// rules; callers rely on the distinction.
func hasAnyGrantInScope(grants []Grant, resourceType, scopeKey string) bool {
	prefix := scopeKey + "."
	for _, g := range grants {
		if !g.Granted || g.ResourceType != resourceType {
			continue
		}
		if g.ResourceIdentifier == scopeKey || strings.HasPrefix(g.ResourceIdentifier, prefix) {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
