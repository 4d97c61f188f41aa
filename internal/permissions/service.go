package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/warden-authz/warden/internal/shared"
)

// RepositoryPort defines data access for grants and group lookups.
type RepositoryPort interface {
	Store

	GetGrant(ctx context.Context, grantID int64) (Grant, error)
	FindGrant(ctx context.Context, groupID int64, t PermissionType, resourceType, resourceIdentifier string, action Action) (*Grant, error)
	InsertGrant(ctx context.Context, grant Grant) (Grant, error)
	UpdateGrant(ctx context.Context, grantID int64, action Action, granted bool) (Grant, error)
	DeleteGrant(ctx context.Context, grantID int64) (Grant, error)
	ListGroupGrants(ctx context.Context, groupID int64) ([]Grant, error)
	GetGroupRef(ctx context.Context, groupID int64) (GroupRef, error)
	ListGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

// DecisionMetrics records decision outcomes and cache activity.
type DecisionMetrics interface {
	ObserveDecision(granted bool)
	ObserveSnapshot(cacheHit bool)
}

// Service orchestrates grant mutations, snapshot caching, and the decision
// engine. It is safe for concurrent use.
type Service struct {
	repo    RepositoryPort
	engine  *Engine
	cache   *Cache
	audit   shared.AuditRecorder
	metrics DecisionMetrics
	logger  *slog.Logger
	sf      singleflight.Group
}

// NewService builds a Service. audit and metrics may be nil.
func NewService(repo RepositoryPort, engine *Engine, cache *Cache, audit shared.AuditRecorder, metrics DecisionMetrics, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, cache: cache, audit: audit, metrics: metrics, logger: logger}
}

// HasPermission answers the core decision question.
func (s *Service) HasPermission(ctx context.Context, userID int64, permType PermissionType, resourceType, resourceIdentifier string, action Action) (bool, error) {
	granted, err := s.engine.HasPermission(ctx, userID, permType, resourceType, resourceIdentifier, action)
	if err == nil && s.metrics != nil {
		s.metrics.ObserveDecision(granted)
	}
	return granted, err
}

// HasModuleAccess reports whether the module should be offered to the user.
func (s *Service) HasModuleAccess(ctx context.Context, userID int64, moduleKey string) (bool, error) {
	return s.engine.HasModuleAccess(ctx, userID, moduleKey)
}

// HasPageAccess reports whether the page should be offered to the user.
func (s *Service) HasPageAccess(ctx context.Context, userID int64, moduleKey, pageKey string) (bool, error) {
	return s.engine.HasPageAccess(ctx, userID, moduleKey, pageKey)
}

// HasComponentAccess reports whether the component should be offered to the user.
func (s *Service) HasComponentAccess(ctx context.Context, userID int64, moduleKey, pageKey, componentKey string) (bool, error) {
	return s.engine.HasComponentAccess(ctx, userID, moduleKey, pageKey, componentKey)
}

// GetUserPermissions returns the cached snapshot when present. A stale
// snapshot is served as-is until its TTL or an explicit invalidation; on a
// miss the recompute is singleflight-protected so concurrent callers share
// one store read.
func (s *Service) GetUserPermissions(ctx context.Context, userID int64) (*Snapshot, error) {
	snap, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("snapshot cache read", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if snap != nil {
		if s.metrics != nil {
			s.metrics.ObserveSnapshot(true)
		}
		return snap, nil
	}

	v, err, _ := s.sf.Do(fmt.Sprintf("snapshot:%d", userID), func() (any, error) {
		computed, err := s.computeSnapshot(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, computed); err != nil {
			s.logger.Warn("snapshot cache write", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveSnapshot(false)
	}
	return v.(*Snapshot), nil
}

// computeSnapshot aggregates grants across the user's active groups.
// Duplicate grants OR-combine per (resource, action).
func (s *Service) computeSnapshot(ctx context.Context, userID int64) (*Snapshot, error) {
	role, err := s.repo.GetUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.ListUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	activeIDs := make([]int64, 0, len(groups))
	for _, g := range groups {
		if g.Active {
			activeIDs = append(activeIDs, g.ID)
		}
	}

	snap := &Snapshot{
		UserID:      userID,
		Role:        role,
		Permissions: make(map[string]ActionGrants),
		GroupCount:  len(activeIDs),
		GeneratedAt: time.Now().UTC(),
	}
	if len(activeIDs) == 0 {
		return snap, nil
	}

	grants, err := s.repo.ListGrantsForGroups(ctx, activeIDs)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		key := SnapshotKey(g.Type, g.ResourceType, g.ResourceIdentifier)
		actions, ok := snap.Permissions[key]
		if !ok {
			actions = make(ActionGrants)
			snap.Permissions[key] = actions
		}
		actions[g.Action] = actions[g.Action] || g.Granted
	}
	snap.GrantCount = len(grants)
	snap.ResourceCount = len(snap.Permissions)
	return snap, nil
}

// InvalidateUserPermissions drops one user's cached snapshot.
func (s *Service) InvalidateUserPermissions(ctx context.Context, userID int64) error {
	return s.cache.Delete(ctx, userID)
}

// InvalidateGroupPermissions drops cached snapshots of every member of the
// group. Calling it twice is a no-op the second time.
func (s *Service) InvalidateGroupPermissions(ctx context.Context, groupID int64) error {
	memberIDs, err := s.repo.ListGroupMemberIDs(ctx, groupID)
	if err != nil {
		return err
	}
	return s.cache.DeleteMany(ctx, memberIDs)
}

// InvalidateAll flushes every cached snapshot.
func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteAll(ctx)
}

// GrantInput carries the attributes of a new grant.
type GrantInput struct {
	GroupID            int64
	Type               PermissionType
	ResourceType       string
	ResourceIdentifier string
	Action             Action
	Granted            bool
}

// AddGrant creates a grant for a group. Duplicate (type, resourceType,
// resourceIdentifier, action) within the group is a conflict. The affected
// members' snapshots are invalidated after commit.
func (s *Service) AddGrant(ctx context.Context, actorID int64, input GrantInput) (Grant, error) {
	if _, err := ParseResourceKey(input.Type, input.ResourceIdentifier); err != nil {
		return Grant{}, err
	}
	if input.ResourceType == "" {
		return Grant{}, shared.NewValidation("resourceType", "required")
	}
	if _, err := s.repo.GetGroupRef(ctx, input.GroupID); err != nil {
		return Grant{}, err
	}
	existing, err := s.repo.FindGrant(ctx, input.GroupID, input.Type, input.ResourceType, input.ResourceIdentifier, input.Action)
	if err != nil {
		return Grant{}, err
	}
	if existing != nil {
		return Grant{}, shared.NewConflict("grant", fmt.Sprintf("%s %s %s %s already exists in group %d",
			input.Type, input.ResourceType, input.ResourceIdentifier, input.Action, input.GroupID))
	}

	grant, err := s.repo.InsertGrant(ctx, Grant{
		GroupID:            input.GroupID,
		Type:               input.Type,
		ResourceType:       input.ResourceType,
		ResourceIdentifier: input.ResourceIdentifier,
		Action:             input.Action,
		Granted:            input.Granted,
	})
	if err != nil {
		return Grant{}, err
	}

	s.afterGroupMutation(ctx, actorID, "permission.grant.created", grant)
	return grant, nil
}

// UpdateGrant changes a grant's action or granted flag.
func (s *Service) UpdateGrant(ctx context.Context, actorID, grantID int64, action Action, granted bool) (Grant, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return Grant{}, err
	}
	grant, err := s.repo.UpdateGrant(ctx, grantID, action, granted)
	if err != nil {
		return Grant{}, err
	}
	s.afterGroupMutation(ctx, actorID, "permission.grant.updated", grant)
	return grant, nil
}

// RemoveGrant deletes a grant.
func (s *Service) RemoveGrant(ctx context.Context, actorID, grantID int64) error {
	grant, err := s.repo.DeleteGrant(ctx, grantID)
	if err != nil {
		return err
	}
	s.afterGroupMutation(ctx, actorID, "permission.grant.removed", grant)
	return nil
}

// ListGroupGrants returns all grants held by a group.
func (s *Service) ListGroupGrants(ctx context.Context, groupID int64) ([]Grant, error) {
	if _, err := s.repo.GetGroupRef(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListGroupGrants(ctx, groupID)
}

// afterGroupMutation invalidates affected snapshots and records the audit
// event. Both are best-effort: invalidation failures are logged (the TTL
// bounds staleness) and audit recording never fails the caller.
func (s *Service) afterGroupMutation(ctx context.Context, actorID int64, action string, grant Grant) {
	if err := s.InvalidateGroupPermissions(ctx, grant.GroupID); err != nil {
		s.logger.Warn("invalidate group snapshots", slog.Int64("group_id", grant.GroupID), slog.Any("error", err))
	}
	s.audit.Record(ctx, shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   "grant",
		EntityID: fmt.Sprint(grant.ID),
		Meta: map[string]any{
			"group_id":            grant.GroupID,
			"permission_type":     string(grant.Type),
			"resource_type":       grant.ResourceType,
			"resource_identifier": grant.ResourceIdentifier,
			"action":              string(grant.Action),
			"granted":             grant.Granted,
		},
		At: time.Now().UTC(),
	})
}
