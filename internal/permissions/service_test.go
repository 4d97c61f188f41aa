package permissions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-authz/warden/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	*mockStore

	grantsByID   map[int64]Grant
	groupRefs    map[int64]GroupRef
	memberIDs    map[int64][]int64
	nextGrantID  int64
	roleReads    int
	memberIDCall int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		mockStore:   newMockStore(),
		grantsByID:  make(map[int64]Grant),
		groupRefs:   make(map[int64]GroupRef),
		memberIDs:   make(map[int64][]int64),
		nextGrantID: 1,
	}
}

func (m *mockRepository) GetUserRole(ctx context.Context, userID int64) (string, error) {
	m.roleReads++
	return m.mockStore.GetUserRole(ctx, userID)
}

func (m *mockRepository) GetGrant(ctx context.Context, grantID int64) (Grant, error) {
	g, ok := m.grantsByID[grantID]
	if !ok {
		return Grant{}, shared.NewNotFound("grant", grantID)
	}
	return g, nil
}

func (m *mockRepository) FindGrant(ctx context.Context, groupID int64, t PermissionType, resourceType, resourceIdentifier string, action Action) (*Grant, error) {
	for _, g := range m.grantsByID {
		if g.GroupID == groupID && g.Type == t && g.ResourceType == resourceType && g.ResourceIdentifier == resourceIdentifier && g.Action == action {
			found := g
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) InsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	grant.ID = m.nextGrantID
	m.nextGrantID++
	grant.CreatedAt = time.Now()
	grant.UpdatedAt = grant.CreatedAt
	m.grantsByID[grant.ID] = grant
	m.grants[grant.GroupID] = append(m.grants[grant.GroupID], grant)
	return grant, nil
}

func (m *mockRepository) UpdateGrant(ctx context.Context, grantID int64, action Action, granted bool) (Grant, error) {
	g, ok := m.grantsByID[grantID]
	if !ok {
		return Grant{}, shared.NewNotFound("grant", grantID)
	}
	g.Action = action
	g.Granted = granted
	g.UpdatedAt = time.Now()
	m.grantsByID[grantID] = g
	return g, nil
}

func (m *mockRepository) DeleteGrant(ctx context.Context, grantID int64) (Grant, error) {
	g, ok := m.grantsByID[grantID]
	if !ok {
		return Grant{}, shared.NewNotFound("grant", grantID)
	}
	delete(m.grantsByID, grantID)
	return g, nil
}

func (m *mockRepository) ListGroupGrants(ctx context.Context, groupID int64) ([]Grant, error) {
	var out []Grant
	for _, g := range m.grantsByID {
		if g.GroupID == groupID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockRepository) GetGroupRef(ctx context.Context, groupID int64) (GroupRef, error) {
	ref, ok := m.groupRefs[groupID]
	if !ok {
		return GroupRef{}, shared.NewNotFound("group", groupID)
	}
	return ref, nil
}

func (m *mockRepository) ListGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	m.memberIDCall++
	return m.memberIDs[groupID], nil
}

type captureRecorder struct {
	mu     sync.Mutex
	events []shared.AuditEvent
}

func (c *captureRecorder) Record(ctx context.Context, event shared.AuditEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func newTestService(t *testing.T, repo *mockRepository) (*Service, *captureRecorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, CacheConfig{TTL: time.Hour, Enabled: true})
	recorder := &captureRecorder{}
	engine := NewEngine(repo, nil)
	return NewService(repo, engine, cache, recorder, nil, nil), recorder, mr
}

// ============================================================================
// SNAPSHOTS
// ============================================================================

func TestGetUserPermissionsComputesAndCaches(t *testing.T) {
	repo := newMockRepository()
	repo.roles[1] = "member"
	repo.groups[1] = []GroupRef{
		{ID: 10, Active: true},
		{ID: 11, Active: false},
	}
	repo.grants[10] = []Grant{
		grant(10, TypePage, "blog", "blog.post", ActionRead, true),
		grant(10, TypePage, "blog", "blog.post", ActionWrite, false),
		grant(10, TypeModule, "blog", "blog", ActionRead, true),
	}
	service, _, _ := newTestService(t, repo)
	ctx := context.Background()

	snap, err := service.GetUserPermissions(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.UserID)
	assert.Equal(t, "member", snap.Role)
	assert.Equal(t, 1, snap.GroupCount, "only active groups counted")
	assert.Equal(t, 3, snap.GrantCount)
	assert.Equal(t, 2, snap.ResourceCount)
	assert.Equal(t, ActionGrants{ActionRead: true, ActionWrite: false}, snap.Permissions["PAGE:blog:blog.post"])

	reads := repo.roleReads
	again, err := service.GetUserPermissions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snap.Permissions, again.Permissions)
	assert.Equal(t, reads, repo.roleReads, "second call must be served from cache")
}

func TestGetUserPermissionsOrCombinesDuplicates(t *testing.T) {
	repo := newMockRepository()
	repo.roles[1] = "member"
	repo.groups[1] = []GroupRef{
		{ID: 10, Active: true},
		{ID: 11, Active: true},
	}
	repo.grants[10] = []Grant{grant(10, TypePage, "blog", "blog.post", ActionRead, false)}
	repo.grants[11] = []Grant{grant(11, TypePage, "blog", "blog.post", ActionRead, true)}
	service, _, _ := newTestService(t, repo)

	snap, err := service.GetUserPermissions(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, snap.Permissions["PAGE:blog:blog.post"][ActionRead], "duplicates OR-combine")
}

func TestGetUserPermissionsStoreFailure(t *testing.T) {
	repo := newMockRepository()
	service, _, _ := newTestService(t, repo)

	_, err := service.GetUserPermissions(context.Background(), 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInvalidationDropsSnapshot(t *testing.T) {
	repo := newMockRepository()
	repo.roles[1] = "member"
	repo.groups[1] = []GroupRef{{ID: 10, Active: true}}
	repo.grants[10] = []Grant{grant(10, TypeModule, "blog", "blog", ActionRead, true)}
	repo.memberIDs[10] = []int64{1}
	service, _, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := service.GetUserPermissions(ctx, 1)
	require.NoError(t, err)
	reads := repo.roleReads

	require.NoError(t, service.InvalidateUserPermissions(ctx, 1))
	_, err = service.GetUserPermissions(ctx, 1)
	require.NoError(t, err)
	assert.Greater(t, repo.roleReads, reads, "invalidation must force a recompute")

	require.NoError(t, service.InvalidateGroupPermissions(ctx, 10))
	require.NoError(t, service.InvalidateGroupPermissions(ctx, 10), "second invalidation is a no-op")
	require.NoError(t, service.InvalidateAll(ctx))
}

// ============================================================================
// GRANT MUTATIONS
// ============================================================================

func TestAddGrant(t *testing.T) {
	repo := newMockRepository()
	repo.groupRefs[10] = GroupRef{ID: 10, Name: "editors", Active: true}
	repo.memberIDs[10] = []int64{1, 2}
	service, recorder, _ := newTestService(t, repo)
	ctx := context.Background()

	input := GrantInput{
		GroupID:            10,
		Type:               TypePage,
		ResourceType:       "blog",
		ResourceIdentifier: "blog.post",
		Action:             ActionWrite,
		Granted:            true,
	}
	created, err := service.AddGrant(ctx, 99, input)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.Granted)

	require.Len(t, recorder.events, 1)
	assert.Equal(t, "permission.grant.created", recorder.events[0].Action)
	assert.Equal(t, int64(99), recorder.events[0].ActorID)

	_, err = service.AddGrant(ctx, 99, input)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestAddGrantValidation(t *testing.T) {
	repo := newMockRepository()
	repo.groupRefs[10] = GroupRef{ID: 10, Active: true}
	service, _, _ := newTestService(t, repo)
	ctx := context.Background()

	// Identifier depth must match the permission type.
	_, err := service.AddGrant(ctx, 99, GrantInput{
		GroupID: 10, Type: TypeComponent, ResourceType: "blog",
		ResourceIdentifier: "blog.post", Action: ActionRead, Granted: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.AddGrant(ctx, 99, GrantInput{
		GroupID: 10, Type: TypeModule, ResourceType: "",
		ResourceIdentifier: "blog", Action: ActionRead, Granted: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	// Unknown group.
	_, err = service.AddGrant(ctx, 99, GrantInput{
		GroupID: 404, Type: TypeModule, ResourceType: "blog",
		ResourceIdentifier: "blog", Action: ActionRead, Granted: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateAndRemoveGrant(t *testing.T) {
	repo := newMockRepository()
	repo.groupRefs[10] = GroupRef{ID: 10, Active: true}
	service, recorder, _ := newTestService(t, repo)
	ctx := context.Background()

	created, err := service.AddGrant(ctx, 99, GrantInput{
		GroupID: 10, Type: TypePage, ResourceType: "blog",
		ResourceIdentifier: "blog.post", Action: ActionRead, Granted: true,
	})
	require.NoError(t, err)

	updated, err := service.UpdateGrant(ctx, 99, created.ID, ActionDelete, false)
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, updated.Action)
	assert.False(t, updated.Granted)

	_, err = service.UpdateGrant(ctx, 99, created.ID, Action("APPEND"), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, service.RemoveGrant(ctx, 99, created.ID))
	err = service.RemoveGrant(ctx, 99, created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	var actions []string
	for _, e := range recorder.events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"permission.grant.created", "permission.grant.updated", "permission.grant.removed"}, actions)
}

func TestListGroupGrantsUnknownGroup(t *testing.T) {
	repo := newMockRepository()
	service, _, _ := newTestService(t, repo)

	_, err := service.ListGroupGrants(context.Background(), 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAuditRecorderNeverFailsMutation(t *testing.T) {
	repo := newMockRepository()
	repo.groupRefs[10] = GroupRef{ID: 10, Active: true}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, CacheConfig{TTL: time.Hour, Enabled: true})
	// Recorder with no backing queue: Record is a no-op by contract.
	service := NewService(repo, NewEngine(repo, nil), cache, shared.NopAuditRecorder{}, nil, nil)

	_, err := service.AddGrant(context.Background(), 99, GrantInput{
		GroupID: 10, Type: TypeModule, ResourceType: "blog",
		ResourceIdentifier: "blog", Action: ActionRead, Granted: true,
	})
	require.NoError(t, err)
}
