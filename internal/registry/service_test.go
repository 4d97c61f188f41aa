package registry

import (
	"context"
	"sort"
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
	modules    map[string]Module
	pages      map[string]Page
	components map[string]Component
	nextID     int64
	reorders   int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		modules:    make(map[string]Module),
		pages:      make(map[string]Page),
		components: make(map[string]Component),
		nextID:     1,
	}
}

func (m *mockRepository) ListModules(ctx context.Context) ([]Module, error) {
	out := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *mockRepository) GetModule(ctx context.Context, key string) (Module, error) {
	mod, ok := m.modules[key]
	if !ok {
		return Module{}, shared.NewNotFound("module", key)
	}
	return mod, nil
}

func (m *mockRepository) InsertModule(ctx context.Context, mod Module) (Module, error) {
	if _, exists := m.modules[mod.Key]; exists {
		return Module{}, shared.NewConflict("module", mod.Key)
	}
	mod.ID = m.nextID
	m.nextID++
	mod.CreatedAt = time.Now()
	m.modules[mod.Key] = mod
	return mod, nil
}

func (m *mockRepository) UpdateModule(ctx context.Context, mod Module) (Module, error) {
	existing, ok := m.modules[mod.Key]
	if !ok {
		return Module{}, shared.NewNotFound("module", mod.Key)
	}
	mod.ID = existing.ID
	mod.UpdatedAt = time.Now()
	m.modules[mod.Key] = mod
	return mod, nil
}

func (m *mockRepository) DeleteModule(ctx context.Context, key string) error {
	if _, ok := m.modules[key]; !ok {
		return shared.NewNotFound("module", key)
	}
	delete(m.modules, key)
	return nil
}

func (m *mockRepository) ReorderModules(ctx context.Context, orders []Reorder) error {
	m.reorders++
	for _, o := range orders {
		mod, ok := m.modules[o.Key]
		if !ok {
			return shared.NewNotFound("module", o.Key)
		}
		mod.SortOrder = o.SortOrder
		m.modules[o.Key] = mod
	}
	return nil
}

func (m *mockRepository) ListPages(ctx context.Context, moduleKey string) ([]Page, error) {
	var out []Page
	for _, p := range m.pages {
		if p.ModuleKey == moduleKey {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertPage(ctx context.Context, p Page) (Page, error) {
	if _, exists := m.pages[p.Key]; exists {
		return Page{}, shared.NewConflict("page", p.Key)
	}
	p.ID = m.nextID
	m.nextID++
	m.pages[p.Key] = p
	return p, nil
}

func (m *mockRepository) DeletePage(ctx context.Context, key string) error {
	if _, ok := m.pages[key]; !ok {
		return shared.NewNotFound("page", key)
	}
	delete(m.pages, key)
	return nil
}

func (m *mockRepository) ListComponents(ctx context.Context, pageKey string) ([]Component, error) {
	var out []Component
	for _, c := range m.components {
		if c.PageKey == pageKey {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertComponent(ctx context.Context, c Component) (Component, error) {
	if _, exists := m.components[c.Key]; exists {
		return Component{}, shared.NewConflict("component", c.Key)
	}
	c.ID = m.nextID
	m.nextID++
	m.components[c.Key] = c
	return c, nil
}

func (m *mockRepository) DeleteComponent(ctx context.Context, key string) error {
	if _, ok := m.components[key]; !ok {
		return shared.NewNotFound("component", key)
	}
	delete(m.components, key)
	return nil
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	return NewService(repo, nil, nil), repo
}

// ============================================================================
// TESTS
// ============================================================================

func TestModuleRoles(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()
	repo.modules["billing"] = Module{Key: "billing", Name: "Billing", AvailableToRoles: []string{"ADMIN"}, Active: true}
	repo.modules["blog"] = Module{Key: "blog", Name: "Blog", Active: true}

	roles, err := service.ModuleRoles(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, roles)

	roles, err = service.ModuleRoles(ctx, "blog")
	require.NoError(t, err)
	assert.Empty(t, roles)

	// Unknown modules are unrestricted, not an error.
	roles, err = service.ModuleRoles(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, roles)
}

func TestListModulesForRole(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()
	repo.modules["blog"] = Module{Key: "blog", Name: "Blog", Active: true, SortOrder: 1}
	repo.modules["billing"] = Module{Key: "billing", Name: "Billing", AvailableToRoles: []string{"ADMIN"}, Active: true, SortOrder: 2}
	repo.modules["legacy"] = Module{Key: "legacy", Name: "Legacy", Active: false, SortOrder: 3}

	keysFor := func(role string) []string {
		modules, err := service.ListModulesForRole(ctx, role)
		require.NoError(t, err)
		keys := make([]string, 0, len(modules))
		for _, m := range modules {
			keys = append(keys, m.Key)
		}
		return keys
	}

	assert.Equal(t, []string{"blog"}, keysFor("member"))
	assert.Equal(t, []string{"blog", "billing"}, keysFor("admin"), "role match is case-insensitive")
	assert.Equal(t, []string{"blog", "billing"}, keysFor("OWNER"), "owner sees every active module")
}

func TestCreateModuleValidation(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	created, err := service.CreateModule(ctx, 99, Module{Key: "blog", Name: "Blog", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "blog", created.Key)

	_, err = service.CreateModule(ctx, 99, Module{Key: "blog.post", Name: "Bad", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.CreateModule(ctx, 99, Module{Key: "shop", Name: "  ", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.CreateModule(ctx, 99, Module{Key: "blog", Name: "Blog", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestReorderModulesIsIdempotent(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()
	repo.modules["blog"] = Module{Key: "blog", Name: "Blog", Active: true, SortOrder: 1}
	repo.modules["shop"] = Module{Key: "shop", Name: "Shop", Active: true, SortOrder: 2}

	orders := []Reorder{{Key: "shop", SortOrder: 1}, {Key: "blog", SortOrder: 2}}
	require.NoError(t, service.ReorderModules(ctx, 99, orders))
	require.NoError(t, service.ReorderModules(ctx, 99, orders), "reapplying the same ordering succeeds")
	assert.Equal(t, 1, repo.modules["shop"].SortOrder)
	assert.Equal(t, 2, repo.modules["blog"].SortOrder)

	err := service.ReorderModules(ctx, 99, []Reorder{{Key: "blog", SortOrder: 1}, {Key: "blog", SortOrder: 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = service.ReorderModules(ctx, 99, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreatePageKeyMustMatchModule(t *testing.T) {
	service, repo := newTestService()
	ctx := context.Background()
	repo.modules["blog"] = Module{Key: "blog", Name: "Blog", Active: true}

	created, err := service.CreatePage(ctx, 99, Page{ModuleKey: "blog", Key: "blog.post", Name: "Posts", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "blog.post", created.Key)

	_, err = service.CreatePage(ctx, 99, Page{ModuleKey: "blog", Key: "shop.cart", Name: "Cart", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.CreatePage(ctx, 99, Page{ModuleKey: "blog", Key: "blog", Name: "Bad", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.CreatePage(ctx, 99, Page{ModuleKey: "ghost", Key: "ghost.home", Name: "Home", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateComponentKeyMustMatchPage(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	created, err := service.CreateComponent(ctx, 99, Component{PageKey: "blog.post", Key: "blog.post.editor", Name: "Editor", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "blog.post.editor", created.Key)

	_, err = service.CreateComponent(ctx, 99, Component{PageKey: "blog.archive", Key: "blog.post.editor", Name: "Editor", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = service.CreateComponent(ctx, 99, Component{PageKey: "blog.post", Key: "blog.post", Name: "Bad", Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestListComponentsValidatesPageKey(t *testing.T) {
	service, _ := newTestService()

	_, err := service.ListComponents(context.Background(), "blog")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
