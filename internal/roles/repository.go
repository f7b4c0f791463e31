package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/platform/db"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

const roleColumns = `id, name, description, is_system, is_default, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn against a repository bound to a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx})
	})
}

// Insert stores a new role. A duplicate name maps to shared.ErrConflict.
func (r *Repository) Insert(ctx context.Context, role Role) (Role, error) {
	stored, err := scanRole(r.db.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, is_system, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.IsSystem, role.IsDefault))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("roles: name %q taken: %w", role.Name, shared.ErrConflict)
		}
		return Role{}, fmt.Errorf("roles: insert: %w", err)
	}
	return stored, nil
}

// GetByID loads a role and its permissions.
func (r *Repository) GetByID(ctx context.Context, id string) (Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
}

// GetByName loads a role and its permissions.
func (r *Repository) GetByName(ctx context.Context, name string) (Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
}

// GetDefault loads the first role flagged as default.
func (r *Repository) GetDefault(ctx context.Context) (Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_default ORDER BY created_at, id LIMIT 1`)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: %w", shared.ErrNotFound)
		}
		return Role{}, fmt.Errorf("roles: get: %w", err)
	}
	perms, err := r.loadPermissions(ctx, []string{role.ID})
	if err != nil {
		return Role{}, err
	}
	if assigned, ok := perms[role.ID]; ok {
		role.Permissions = assigned
	}
	return role, nil
}

// List returns all roles ordered by name, permissions attached.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var out []Role
	var ids []string
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		out = append(out, role)
		ids = append(ids, role.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list rows: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}
	perms, err := r.loadPermissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if assigned, ok := perms[out[i].ID]; ok {
			out[i].Permissions = assigned
		}
	}
	return out, nil
}

// Update writes name, description and default flag.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	stored, err := scanRole(r.db.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, is_default = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.IsDefault))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: %w", shared.ErrNotFound)
		}
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("roles: name %q taken: %w", role.Name, shared.ErrConflict)
		}
		return Role{}, fmt.Errorf("roles: update: %w", err)
	}
	return stored, nil
}

// Delete removes a role; its assignments and policies cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("roles: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("roles: %w", shared.ErrNotFound)
	}
	return nil
}

// ReplacePermissions makes the role's assignment exactly the existing
// permissions among ids. Ids that match no permission are dropped.
func (r *Repository) ReplacePermissions(ctx context.Context, roleID string, ids []string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("roles: clear permissions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, p.id FROM permissions p WHERE p.id = ANY($2::uuid[])
		ON CONFLICT DO NOTHING`, roleID, ids); err != nil {
		return fmt.Errorf("roles: assign permissions: %w", err)
	}
	return nil
}

// RemovePermissions detaches ids from this role only.
func (r *Repository) RemovePermissions(ctx context.Context, roleID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2::uuid[])`, roleID, ids); err != nil {
		return fmt.Errorf("roles: remove permissions: %w", err)
	}
	return nil
}

func (r *Repository) loadPermissions(ctx context.Context, roleIDs []string) (map[string][]permissions.Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT rp.role_id, p.id, p.action, p.resource_type, p.name, p.description, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1::uuid[])
		ORDER BY p.name`, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("roles: load permissions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]permissions.Permission, len(roleIDs))
	for rows.Next() {
		var roleID, action, resource string
		var p permissions.Permission
		if err := rows.Scan(&roleID, &p.ID, &action, &resource, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("roles: scan permission: %w", err)
		}
		p.Action = permissions.Action(action)
		p.ResourceType = permissions.ResourceType(resource)
		out[roleID] = append(out[roleID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: permission rows: %w", err)
	}
	return out, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.Permissions = []permissions.Permission{}
	return role, nil
}
