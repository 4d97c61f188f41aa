package groups

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warden-authz/warden/internal/shared"
)

// RepositoryPort defines data access methods for groups and memberships.
type RepositoryPort interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	InsertGroup(ctx context.Context, group Group) (Group, error)
	UpdateGroup(ctx context.Context, id int64, name, description string, active bool) (Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	InsertMembership(ctx context.Context, m Membership) error
	DeleteMembership(ctx context.Context, groupID, userID int64) error
	ListMembers(ctx context.Context, groupID int64) ([]Member, error)
	ListMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	ListUserGroups(ctx context.Context, userID int64) ([]Group, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Invalidator drops cached permission snapshots after mutations.
type Invalidator interface {
	InvalidateUserPermissions(ctx context.Context, userID int64) error
	InvalidateGroupPermissions(ctx context.Context, groupID int64) error
}

// Service handles group and membership business logic. Every mutation
// invalidates affected snapshots post-commit and records an audit event;
// neither side effect can fail the caller.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
	audit       shared.AuditRecorder
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, audit: audit, logger: logger}
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// GetGroup fetches a group by id.
func (s *Service) GetGroup(ctx context.Context, id int64) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// CreateGroup inserts a new active group. Names are globally unique.
func (s *Service) CreateGroup(ctx context.Context, actorID int64, name, description string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, shared.NewValidation("name", "required")
	}
	group, err := s.repo.InsertGroup(ctx, Group{
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
		CreatedBy:   actorID,
	})
	if err != nil {
		return Group{}, err
	}
	s.recordEvent(ctx, actorID, "group.created", group.ID, map[string]any{"name": group.Name})
	return group, nil
}

// UpdateGroup updates name, description, and active flag. Deactivating a
// group removes its grants from every member's decisions, so member
// snapshots are invalidated.
func (s *Service) UpdateGroup(ctx context.Context, actorID, id int64, name, description string, active bool) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, shared.NewValidation("name", "required")
	}
	group, err := s.repo.UpdateGroup(ctx, id, name, strings.TrimSpace(description), active)
	if err != nil {
		return Group{}, err
	}
	s.invalidateGroup(ctx, id)
	s.recordEvent(ctx, actorID, "group.updated", id, map[string]any{"name": name, "active": active})
	return group, nil
}

// DeleteGroup removes a group; memberships and grants cascade. Member
// snapshots are invalidated before the delete so the member list is still
// resolvable.
func (s *Service) DeleteGroup(ctx context.Context, actorID, id int64) error {
	if _, err := s.repo.GetGroup(ctx, id); err != nil {
		return err
	}
	s.invalidateGroup(ctx, id)
	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.recordEvent(ctx, actorID, "group.deleted", id, nil)
	return nil
}

// AssignUser adds a user to a group.
func (s *Service) AssignUser(ctx context.Context, actorID, groupID, userID int64) error {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return shared.NewNotFound("user", userID)
	}
	if err := s.repo.InsertMembership(ctx, Membership{GroupID: groupID, UserID: userID, AssignedBy: actorID}); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.recordEvent(ctx, actorID, "membership.assigned", groupID, map[string]any{"user_id": userID})
	return nil
}

// RemoveUser removes a user from a group.
func (s *Service) RemoveUser(ctx context.Context, actorID, groupID, userID int64) error {
	if err := s.repo.DeleteMembership(ctx, groupID, userID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	s.recordEvent(ctx, actorID, "membership.removed", groupID, map[string]any{"user_id": userID})
	return nil
}

// ListGroupMembers returns members of a group.
func (s *Service) ListGroupMembers(ctx context.Context, groupID int64) ([]Member, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, groupID)
}

// ListUserGroups returns every group a user belongs to.
func (s *Service) ListUserGroups(ctx context.Context, userID int64) ([]Group, error) {
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.NewNotFound("user", userID)
	}
	return s.repo.ListUserGroups(ctx, userID)
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateUserPermissions(ctx, userID); err != nil {
		s.logger.Warn("invalidate user snapshot", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) invalidateGroup(ctx context.Context, groupID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateGroupPermissions(ctx, groupID); err != nil {
		s.logger.Warn("invalidate group snapshots", slog.Int64("group_id", groupID), slog.Any("error", err))
	}
}

func (s *Service) recordEvent(ctx context.Context, actorID int64, action string, groupID int64, meta map[string]any) {
	s.audit.Record(ctx, shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   "group",
		EntityID: fmt.Sprint(groupID),
		Meta:     meta,
		At:       time.Now().UTC(),
	})
}
