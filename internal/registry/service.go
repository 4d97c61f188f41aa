package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warden-authz/warden/internal/permissions"
	"github.com/warden-authz/warden/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	ListModules(ctx context.Context) ([]Module, error)
	GetModule(ctx context.Context, key string) (Module, error)
	InsertModule(ctx context.Context, m Module) (Module, error)
	UpdateModule(ctx context.Context, m Module) (Module, error)
	DeleteModule(ctx context.Context, key string) error
	ReorderModules(ctx context.Context, orders []Reorder) error
	ListPages(ctx context.Context, moduleKey string) ([]Page, error)
	InsertPage(ctx context.Context, p Page) (Page, error)
	DeletePage(ctx context.Context, key string) error
	ListComponents(ctx context.Context, pageKey string) ([]Component, error)
	InsertComponent(ctx context.Context, c Component) (Component, error)
	DeleteComponent(ctx context.Context, key string) error
}

// Service handles catalog business logic and composite key validation.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ModuleRoles implements the decision engine's registry gate: the roles a
// module is restricted to, empty meaning unrestricted. An unknown module is
// unrestricted rather than an error so grants can precede catalog entries.
func (s *Service) ModuleRoles(ctx context.Context, moduleKey string) ([]string, error) {
	module, err := s.repo.GetModule(ctx, moduleKey)
	if err != nil {
		var nf *shared.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return module.AvailableToRoles, nil
}

// ListModules returns the full catalog.
func (s *Service) ListModules(ctx context.Context) ([]Module, error) {
	return s.repo.ListModules(ctx)
}

// ListModulesForRole filters active modules down to those the role may see.
func (s *Service) ListModulesForRole(ctx context.Context, role string) ([]Module, error) {
	modules, err := s.repo.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	owner := strings.EqualFold(role, permissions.RoleOwner)
	visible := make([]Module, 0, len(modules))
	for _, m := range modules {
		if !m.Active {
			continue
		}
		if owner || len(m.AvailableToRoles) == 0 || containsFold(m.AvailableToRoles, role) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// GetModule fetches a module by key.
func (s *Service) GetModule(ctx context.Context, key string) (Module, error) {
	return s.repo.GetModule(ctx, key)
}

// CreateModule validates the key and stores the module.
func (s *Service) CreateModule(ctx context.Context, actorID int64, m Module) (Module, error) {
	if _, err := permissions.ParseResourceKey(permissions.TypeModule, m.Key); err != nil {
		return Module{}, err
	}
	if strings.TrimSpace(m.Name) == "" {
		return Module{}, shared.NewValidation("name", "required")
	}
	created, err := s.repo.InsertModule(ctx, m)
	if err != nil {
		return Module{}, err
	}
	s.recordEvent(ctx, actorID, "registry.module.created", "module", created.Key)
	return created, nil
}

// UpdateModule updates mutable module attributes.
func (s *Service) UpdateModule(ctx context.Context, actorID int64, m Module) (Module, error) {
	if strings.TrimSpace(m.Name) == "" {
		return Module{}, shared.NewValidation("name", "required")
	}
	updated, err := s.repo.UpdateModule(ctx, m)
	if err != nil {
		return Module{}, err
	}
	s.recordEvent(ctx, actorID, "registry.module.updated", "module", updated.Key)
	return updated, nil
}

// DeleteModule removes a module and its descendants.
func (s *Service) DeleteModule(ctx context.Context, actorID int64, key string) error {
	if err := s.repo.DeleteModule(ctx, key); err != nil {
		return err
	}
	s.recordEvent(ctx, actorID, "registry.module.deleted", "module", key)
	return nil
}

// ReorderModules applies a new ordering; reapplying the same ordering is a
// no-op.
func (s *Service) ReorderModules(ctx context.Context, actorID int64, orders []Reorder) error {
	if len(orders) == 0 {
		return shared.NewValidation("orders", "required")
	}
	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if _, dup := seen[o.Key]; dup {
			return shared.NewValidation("orders", fmt.Sprintf("duplicate key %q", o.Key))
		}
		seen[o.Key] = struct{}{}
	}
	if err := s.repo.ReorderModules(ctx, orders); err != nil {
		return err
	}
	s.recordEvent(ctx, actorID, "registry.modules.reordered", "module", fmt.Sprintf("%d keys", len(orders)))
	return nil
}

// ListPages returns pages of a module.
func (s *Service) ListPages(ctx context.Context, moduleKey string) ([]Page, error) {
	if _, err := s.repo.GetModule(ctx, moduleKey); err != nil {
		return nil, err
	}
	return s.repo.ListPages(ctx, moduleKey)
}

// CreatePage validates the composite key and stores the page. The page key
// must be "module.page" under an existing module.
func (s *Service) CreatePage(ctx context.Context, actorID int64, p Page) (Page, error) {
	key, err := permissions.ParseResourceKey(permissions.TypePage, p.Key)
	if err != nil {
		return Page{}, err
	}
	if key.Module != p.ModuleKey {
		return Page{}, shared.NewValidation("key", fmt.Sprintf("%q does not belong to module %q", p.Key, p.ModuleKey))
	}
	if _, err := s.repo.GetModule(ctx, p.ModuleKey); err != nil {
		return Page{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return Page{}, shared.NewValidation("name", "required")
	}
	created, err := s.repo.InsertPage(ctx, p)
	if err != nil {
		return Page{}, err
	}
	s.recordEvent(ctx, actorID, "registry.page.created", "page", created.Key)
	return created, nil
}

// DeletePage removes a page and its components.
func (s *Service) DeletePage(ctx context.Context, actorID int64, key string) error {
	if err := s.repo.DeletePage(ctx, key); err != nil {
		return err
	}
	s.recordEvent(ctx, actorID, "registry.page.deleted", "page", key)
	return nil
}

// ListComponents returns components of a page identified by "module.page".
func (s *Service) ListComponents(ctx context.Context, pageKey string) ([]Component, error) {
	if _, err := permissions.ParseResourceKey(permissions.TypePage, pageKey); err != nil {
		return nil, err
	}
	return s.repo.ListComponents(ctx, pageKey)
}

// CreateComponent validates the composite key and stores the component.
func (s *Service) CreateComponent(ctx context.Context, actorID int64, c Component) (Component, error) {
	key, err := permissions.ParseResourceKey(permissions.TypeComponent, c.Key)
	if err != nil {
		return Component{}, err
	}
	if _, err := permissions.ParseResourceKey(permissions.TypePage, c.PageKey); err != nil {
		return Component{}, err
	}
	if key.Module+"."+key.Page != c.PageKey {
		return Component{}, shared.NewValidation("key", fmt.Sprintf("%q does not belong to page %q", c.Key, c.PageKey))
	}
	if strings.TrimSpace(c.Name) == "" {
		return Component{}, shared.NewValidation("name", "required")
	}
	created, err := s.repo.InsertComponent(ctx, c)
	if err != nil {
		return Component{}, err
	}
	s.recordEvent(ctx, actorID, "registry.component.created", "component", created.Key)
	return created, nil
}

// DeleteComponent removes a component.
func (s *Service) DeleteComponent(ctx context.Context, actorID int64, key string) error {
	if err := s.repo.DeleteComponent(ctx, key); err != nil {
		return err
	}
	s.recordEvent(ctx, actorID, "registry.component.deleted", "component", key)
	return nil
}

func (s *Service) recordEvent(ctx context.Context, actorID int64, action, entity, entityID string) {
	s.audit.Record(ctx, shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		At:       time.Now().UTC(),
	})
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
