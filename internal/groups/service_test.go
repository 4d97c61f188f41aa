package groups

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-authz/warden/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	groups      map[int64]Group
	byName      map[string]int64
	memberships map[int64]map[int64]Membership
	users       map[int64]bool
	nextGroupID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		groups:      make(map[int64]Group),
		byName:      make(map[string]int64),
		memberships: make(map[int64]map[int64]Membership),
		users:       make(map[int64]bool),
		nextGroupID: 1,
	}
}

func (m *mockRepository) ListGroups(ctx context.Context) ([]Group, error) {
	out := make([]Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockRepository) GetGroup(ctx context.Context, id int64) (Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return Group{}, shared.NewNotFound("group", id)
	}
	return g, nil
}

func (m *mockRepository) InsertGroup(ctx context.Context, group Group) (Group, error) {
	if _, exists := m.byName[group.Name]; exists {
		return Group{}, shared.NewConflict("group", group.Name)
	}
	group.ID = m.nextGroupID
	m.nextGroupID++
	group.CreatedAt = time.Now()
	group.UpdatedAt = group.CreatedAt
	m.groups[group.ID] = group
	m.byName[group.Name] = group.ID
	return group, nil
}

func (m *mockRepository) UpdateGroup(ctx context.Context, id int64, name, description string, active bool) (Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return Group{}, shared.NewNotFound("group", id)
	}
	delete(m.byName, g.Name)
	g.Name = name
	g.Description = description
	g.Active = active
	g.UpdatedAt = time.Now()
	m.groups[id] = g
	m.byName[name] = id
	return g, nil
}

func (m *mockRepository) DeleteGroup(ctx context.Context, id int64) error {
	g, ok := m.groups[id]
	if !ok {
		return shared.NewNotFound("group", id)
	}
	delete(m.byName, g.Name)
	delete(m.groups, id)
	delete(m.memberships, id)
	return nil
}

func (m *mockRepository) InsertMembership(ctx context.Context, mem Membership) error {
	if m.memberships[mem.GroupID] == nil {
		m.memberships[mem.GroupID] = make(map[int64]Membership)
	}
	if _, exists := m.memberships[mem.GroupID][mem.UserID]; exists {
		return shared.NewConflict("membership", "already assigned")
	}
	mem.CreatedAt = time.Now()
	m.memberships[mem.GroupID][mem.UserID] = mem
	return nil
}

func (m *mockRepository) DeleteMembership(ctx context.Context, groupID, userID int64) error {
	members, ok := m.memberships[groupID]
	if !ok {
		return shared.NewNotFound("membership", userID)
	}
	if _, ok := members[userID]; !ok {
		return shared.NewNotFound("membership", userID)
	}
	delete(members, userID)
	return nil
}

func (m *mockRepository) ListMembers(ctx context.Context, groupID int64) ([]Member, error) {
	var out []Member
	for userID, mem := range m.memberships[groupID] {
		out = append(out, Member{UserID: userID, AssignedBy: mem.AssignedBy, AssignedAt: mem.CreatedAt})
	}
	return out, nil
}

func (m *mockRepository) ListMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	var out []int64
	for userID := range m.memberships[groupID] {
		out = append(out, userID)
	}
	return out, nil
}

func (m *mockRepository) ListUserGroups(ctx context.Context, userID int64) ([]Group, error) {
	var out []Group
	for groupID, members := range m.memberships {
		if _, ok := members[userID]; ok {
			out = append(out, m.groups[groupID])
		}
	}
	return out, nil
}

func (m *mockRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	return m.users[userID], nil
}

type mockInvalidator struct {
	mu     sync.Mutex
	users  []int64
	groups []int64
}

func (m *mockInvalidator) InvalidateUserPermissions(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	return nil
}

func (m *mockInvalidator) InvalidateGroupPermissions(ctx context.Context, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = append(m.groups, groupID)
	return nil
}

type captureRecorder struct {
	events []shared.AuditEvent
}

func (c *captureRecorder) Record(ctx context.Context, event shared.AuditEvent) {
	c.events = append(c.events, event)
}

func newTestService() (*Service, *mockRepository, *mockInvalidator, *captureRecorder) {
	repo := newMockRepository()
	inv := &mockInvalidator{}
	recorder := &captureRecorder{}
	return NewService(repo, inv, recorder, nil), repo, inv, recorder
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateGroup(t *testing.T) {
	service, _, _, recorder := newTestService()
	ctx := context.Background()

	group, err := service.CreateGroup(ctx, 99, "  editors  ", " can edit posts ")
	require.NoError(t, err)
	assert.Equal(t, "editors", group.Name)
	assert.Equal(t, "can edit posts", group.Description)
	assert.True(t, group.Active)
	assert.Equal(t, int64(99), group.CreatedBy)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "group.created", recorder.events[0].Action)

	_, err = service.CreateGroup(ctx, 99, "editors", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = service.CreateGroup(ctx, 99, "   ", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateGroupInvalidatesMembers(t *testing.T) {
	service, _, inv, _ := newTestService()
	ctx := context.Background()

	group, err := service.CreateGroup(ctx, 99, "editors", "")
	require.NoError(t, err)

	updated, err := service.UpdateGroup(ctx, 99, group.ID, "editors", "", false)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, []int64{group.ID}, inv.groups, "deactivation must drop member snapshots")
}

func TestDeleteGroupInvalidatesBeforeDelete(t *testing.T) {
	service, repo, inv, _ := newTestService()
	ctx := context.Background()

	group, err := service.CreateGroup(ctx, 99, "editors", "")
	require.NoError(t, err)

	require.NoError(t, service.DeleteGroup(ctx, 99, group.ID))
	assert.Equal(t, []int64{group.ID}, inv.groups)
	_, ok := repo.groups[group.ID]
	assert.False(t, ok)

	err = service.DeleteGroup(ctx, 99, group.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignAndRemoveUser(t *testing.T) {
	service, repo, inv, recorder := newTestService()
	ctx := context.Background()
	repo.users[7] = true

	group, err := service.CreateGroup(ctx, 99, "editors", "")
	require.NoError(t, err)

	require.NoError(t, service.AssignUser(ctx, 99, group.ID, 7))
	assert.Equal(t, []int64{7}, inv.users)

	err = service.AssignUser(ctx, 99, group.ID, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)

	err = service.AssignUser(ctx, 99, group.ID, 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = service.AssignUser(ctx, 99, 404, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, service.RemoveUser(ctx, 99, group.ID, 7))
	assert.Equal(t, []int64{7, 7}, inv.users)

	var actions []string
	for _, e := range recorder.events {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "membership.assigned")
	assert.Contains(t, actions, "membership.removed")
}

func TestListUserGroups(t *testing.T) {
	service, repo, _, _ := newTestService()
	ctx := context.Background()
	repo.users[7] = true

	group, err := service.CreateGroup(ctx, 99, "editors", "")
	require.NoError(t, err)
	require.NoError(t, service.AssignUser(ctx, 99, group.ID, 7))

	got, err := service.ListUserGroups(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, group.ID, got[0].ID)

	_, err = service.ListUserGroups(ctx, 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListGroupMembersUnknownGroup(t *testing.T) {
	service, _, _, _ := newTestService()

	_, err := service.ListGroupMembers(context.Background(), 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
