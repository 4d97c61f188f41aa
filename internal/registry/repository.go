package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-authz/warden/internal/platform/db"
	"github.com/warden-authz/warden/internal/shared"
)

// Repository persists the module/page/component catalog in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const moduleColumns = `id, key, name, description, available_to_roles, sort_order, active, created_at, updated_at`

// ListModules returns all modules ordered by sort order, then key.
func (r *Repository) ListModules(ctx context.Context) ([]Module, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+moduleColumns+` FROM registry_modules ORDER BY sort_order, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		module, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

// GetModule fetches a module by key.
func (r *Repository) GetModule(ctx context.Context, key string) (Module, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+moduleColumns+` FROM registry_modules WHERE key = $1`, key)
	module, err := scanModule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Module{}, shared.NewNotFound("module", key)
	}
	return module, err
}

// InsertModule stores a new module.
func (r *Repository) InsertModule(ctx context.Context, m Module) (Module, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO registry_modules (key, name, description, available_to_roles, sort_order, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+moduleColumns, m.Key, m.Name, m.Description, m.AvailableToRoles, m.SortOrder, m.Active)
	inserted, err := scanModule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Module{}, shared.NewConflict("module", "key "+m.Key+" already exists")
		}
		return Module{}, err
	}
	return inserted, nil
}

// UpdateModule updates mutable module attributes.
func (r *Repository) UpdateModule(ctx context.Context, m Module) (Module, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE registry_modules
		SET name = $2, description = $3, available_to_roles = $4, sort_order = $5, active = $6, updated_at = NOW()
		WHERE key = $1
		RETURNING `+moduleColumns, m.Key, m.Name, m.Description, m.AvailableToRoles, m.SortOrder, m.Active)
	module, err := scanModule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Module{}, shared.NewNotFound("module", m.Key)
	}
	return module, err
}

// DeleteModule removes a module; its pages and components cascade.
func (r *Repository) DeleteModule(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registry_modules WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("module", key)
	}
	return nil
}

// ReorderModules applies sort orders inside one transaction. Applying the
// same ordering twice leaves the catalog unchanged.
func (r *Repository) ReorderModules(ctx context.Context, orders []Reorder) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, o := range orders {
			tag, err := tx.Exec(ctx, `UPDATE registry_modules SET sort_order = $2, updated_at = NOW() WHERE key = $1`, o.Key, o.SortOrder)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return shared.NewNotFound("module", o.Key)
			}
		}
		return nil
	})
}

const pageColumns = `id, module_key, key, name, sort_order, active, created_at, updated_at`

// ListPages returns pages of a module.
func (r *Repository) ListPages(ctx context.Context, moduleKey string) ([]Page, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pageColumns+` FROM registry_pages WHERE module_key = $1 ORDER BY sort_order, key`, moduleKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.ModuleKey, &p.Key, &p.Name, &p.SortOrder, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// InsertPage stores a new page.
func (r *Repository) InsertPage(ctx context.Context, p Page) (Page, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO registry_pages (module_key, key, name, sort_order, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+pageColumns, p.ModuleKey, p.Key, p.Name, p.SortOrder, p.Active)
	var inserted Page
	err := row.Scan(&inserted.ID, &inserted.ModuleKey, &inserted.Key, &inserted.Name, &inserted.SortOrder, &inserted.Active, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Page{}, shared.NewConflict("page", "key "+p.Key+" already exists")
		}
		return Page{}, err
	}
	return inserted, nil
}

// DeletePage removes a page by its composite key.
func (r *Repository) DeletePage(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registry_pages WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("page", key)
	}
	return nil
}

const componentColumns = `id, page_key, key, name, sort_order, active, created_at, updated_at`

// ListComponents returns components of a page.
func (r *Repository) ListComponents(ctx context.Context, pageKey string) ([]Component, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+componentColumns+` FROM registry_components WHERE page_key = $1 ORDER BY sort_order, key`, pageKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ID, &c.PageKey, &c.Key, &c.Name, &c.SortOrder, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// InsertComponent stores a new component.
func (r *Repository) InsertComponent(ctx context.Context, c Component) (Component, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO registry_components (page_key, key, name, sort_order, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+componentColumns, c.PageKey, c.Key, c.Name, c.SortOrder, c.Active)
	var inserted Component
	err := row.Scan(&inserted.ID, &inserted.PageKey, &inserted.Key, &inserted.Name, &inserted.SortOrder, &inserted.Active, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Component{}, shared.NewConflict("component", "key "+c.Key+" already exists")
		}
		return Component{}, err
	}
	return inserted, nil
}

// DeleteComponent removes a component by its composite key.
func (r *Repository) DeleteComponent(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registry_components WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("component", key)
	}
	return nil
}

type moduleScanner interface {
	Scan(dest ...any) error
}

func scanModule(row moduleScanner) (Module, error) {
	var m Module
	err := row.Scan(&m.ID, &m.Key, &m.Name, &m.Description, &m.AvailableToRoles, &m.SortOrder, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
