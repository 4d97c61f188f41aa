package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-authz/warden/internal/shared"
)

// Repository persists grants in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUserRole returns the role column for a user.
func (r *Repository) GetUserRole(ctx context.Context, userID int64) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.NewNotFound("user", userID)
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// ListUserGroups returns every group the user belongs to.
func (r *Repository) ListUserGroups(ctx context.Context, userID int64) ([]GroupRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.name, g.active
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []GroupRef
	for rows.Next() {
		var ref GroupRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Active); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListGrantsForGroups returns all grants held by the given groups.
func (r *Repository) ListGrantsForGroups(ctx context.Context, groupIDs []int64) ([]Grant, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, group_id, permission_type, resource_type, resource_identifier, action, granted, created_at, updated_at
		FROM group_permissions
		WHERE group_id = ANY($1)
		ORDER BY id`, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

// GetGrant fetches one grant by id.
func (r *Repository) GetGrant(ctx context.Context, grantID int64) (Grant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, group_id, permission_type, resource_type, resource_identifier, action, granted, created_at, updated_at
		FROM group_permissions WHERE id = $1`, grantID)
	grant, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, shared.NewNotFound("grant", grantID)
	}
	return grant, err
}

// FindGrant looks up a grant by its uniqueness tuple. Returns nil when absent.
func (r *Repository) FindGrant(ctx context.Context, groupID int64, t PermissionType, resourceType, resourceIdentifier string, action Action) (*Grant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, group_id, permission_type, resource_type, resource_identifier, action, granted, created_at, updated_at
		FROM group_permissions
		WHERE group_id = $1 AND permission_type = $2 AND resource_type = $3 AND resource_identifier = $4 AND action = $5`,
		groupID, t, resourceType, resourceIdentifier, action)
	grant, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// InsertGrant stores a new grant.
func (r *Repository) InsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO group_permissions (group_id, permission_type, resource_type, resource_identifier, action, granted)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, group_id, permission_type, resource_type, resource_identifier, action, granted, created_at, updated_at`,
		grant.GroupID, grant.Type, grant.ResourceType, grant.ResourceIdentifier, grant.Action, grant.Granted)
	inserted, err := scanGrant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Grant{}, shared.NewConflict("grant", "duplicate grant in group")
		}
		return Grant{}, err
	}
	return inserted, nil
}

// UpdateGrant changes action and granted flag.
func (r *Repository) UpdateGrant(ctx context.Context, grantID int64, action Action, granted bool) (Grant, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE group_permissions SET action = $2, granted = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, group_id, permission_type, resource_type, resource_identifier, action, granted, created_at, updated_at`,
		grantID, action, granted)
	grant, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, shared.NewNotFound("grant", grantID)
	}
	if err != nil && isUniqueViolation(err) {
		return Grant{}, shared.NewConflict("grant", "duplicate grant in group")
	}
	return grant, err
}

// DeleteGrant removes a grant and returns the deleted row.
func (r *Repository) DeleteGrant(ctx context.Context, grantID int64) (Grant, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM group_permissions WHERE id = $1
		RETURNING id, group_id, permission_type, resource_type, resource_identifier, action, granted, created_at, updated_at`,
		grantID)
	grant, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, shared.NewNotFound("grant", grantID)
	}
	return grant, err
}

// ListGroupGrants returns all grants of one group ordered by id.
func (r *Repository) ListGroupGrants(ctx context.Context, groupID int64) ([]Grant, error) {
	return r.ListGrantsForGroups(ctx, []int64{groupID})
}

// GetGroupRef fetches group id/name/active for validation.
func (r *Repository) GetGroupRef(ctx context.Context, groupID int64) (GroupRef, error) {
	var ref GroupRef
	err := r.pool.QueryRow(ctx, `SELECT id, name, active FROM groups WHERE id = $1`, groupID).
		Scan(&ref.ID, &ref.Name, &ref.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return GroupRef{}, shared.NewNotFound("group", groupID)
	}
	return ref, err
}

// ListGroupMemberIDs returns the user ids of all members of a group.
func (r *Repository) ListGroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type grantScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row grantScanner) (Grant, error) {
	var g Grant
	err := row.Scan(&g.ID, &g.GroupID, &g.Type, &g.ResourceType, &g.ResourceIdentifier, &g.Action, &g.Granted, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func scanGrants(rows pgx.Rows) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
