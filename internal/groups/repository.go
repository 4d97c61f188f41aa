package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-authz/warden/internal/shared"
)

// Repository persists groups and memberships in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const groupColumns = `id, name, description, active, created_by, created_at, updated_at`

// ListGroups returns all groups ordered by name.
func (r *Repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, group)
	}
	return result, rows.Err()
}

// GetGroup fetches a group by id.
func (r *Repository) GetGroup(ctx context.Context, id int64) (Group, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id)
	group, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, shared.NewNotFound("group", id)
	}
	return group, err
}

// InsertGroup stores a new group. A duplicate name maps to a conflict.
func (r *Repository) InsertGroup(ctx context.Context, group Group) (Group, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO groups (name, description, active, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+groupColumns, group.Name, group.Description, group.Active, group.CreatedBy)
	inserted, err := scanGroup(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Group{}, shared.NewConflict("group", "name "+group.Name+" already exists")
		}
		return Group{}, err
	}
	return inserted, nil
}

// UpdateGroup updates name, description, and active flag.
func (r *Repository) UpdateGroup(ctx context.Context, id int64, name, description string, active bool) (Group, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE groups SET name = $2, description = $3, active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+groupColumns, id, name, description, active)
	group, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, shared.NewNotFound("group", id)
	}
	if err != nil && isUniqueViolation(err) {
		return Group{}, shared.NewConflict("group", "name "+name+" already exists")
	}
	return group, err
}

// DeleteGroup removes a group. Memberships and grants cascade at the schema
// level.
func (r *Repository) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("group", id)
	}
	return nil
}

// InsertMembership assigns a user to a group. Re-assigning is a conflict.
func (r *Repository) InsertMembership(ctx context.Context, m Membership) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, assigned_by)
		VALUES ($1, $2, $3)`, m.GroupID, m.UserID, m.AssignedBy)
	if err != nil && isUniqueViolation(err) {
		return shared.NewConflict("membership", "user already in group")
	}
	return err
}

// DeleteMembership removes a user from a group.
func (r *Repository) DeleteMembership(ctx context.Context, groupID, userID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("membership", userID)
	}
	return nil
}

// ListMembers returns members of a group with user identity.
func (r *Repository) ListMembers(ctx context.Context, groupID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.role, m.assigned_by, m.created_at
		FROM group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY u.id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Role, &m.AssignedBy, &m.AssignedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListMemberIDs returns member user ids of a group.
func (r *Repository) ListMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
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

// ListUserGroups returns every group a user belongs to.
func (r *Repository) ListUserGroups(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.name, g.description, g.active, g.created_by, g.created_at, g.updated_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, group)
	}
	return result, rows.Err()
}

// UserExists reports whether the user id resolves.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

type groupScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row groupScanner) (Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Active, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
