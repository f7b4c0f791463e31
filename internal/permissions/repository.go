package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ovr-admin/ovr-admin/internal/platform/db"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

const permissionColumns = `id, action, resource_type, name, description, created_at, updated_at`

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Action       Action
	ResourceType ResourceType
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Insert stores p unless a permission with the same name exists. created is
// false when the row already existed, in which case the stored row is returned.
func (r *Repository) Insert(ctx context.Context, p Permission) (Permission, bool, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO permissions (id, action, resource_type, name, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
		RETURNING `+permissionColumns,
		p.ID, string(p.Action), string(p.ResourceType), p.Name, p.Description)
	stored, err := scanPermission(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, false, fmt.Errorf("permissions: insert: %w", err)
	}
	existing, err := r.GetByName(ctx, p.Name)
	if err != nil {
		return Permission{}, false, err
	}
	return existing, false, nil
}

// GetByID fetches a permission by id.
func (r *Repository) GetByID(ctx context.Context, id string) (Permission, error) {
	return r.getOne(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
}

// GetByName fetches a permission by its canonical name.
func (r *Repository) GetByName(ctx context.Context, name string) (Permission, error) {
	return r.getOne(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE name = $1`, name)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (Permission, error) {
	p, err := scanPermission(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("permissions: %w", shared.ErrNotFound)
		}
		return Permission{}, fmt.Errorf("permissions: get: %w", err)
	}
	return p, nil
}

// List returns permissions ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Permission, error) {
	var conditions []string
	var args []any
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, string(filter.ResourceType))
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	query := `SELECT ` + permissionColumns + ` FROM permissions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("permissions: list: %w", err)
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("permissions: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permissions: list rows: %w", err)
	}
	return out, nil
}

// UpdateDescription changes only the description column.
func (r *Repository) UpdateDescription(ctx context.Context, id, description string) (Permission, error) {
	p, err := scanPermission(r.db.QueryRow(ctx, `
		UPDATE permissions SET description = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+permissionColumns, id, description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("permissions: %w", shared.ErrNotFound)
		}
		return Permission{}, fmt.Errorf("permissions: update: %w", err)
	}
	return p, nil
}

// Delete removes a permission. Role assignments cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("permissions: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permissions: %w", shared.ErrNotFound)
	}
	return nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	var action, resource string
	if err := row.Scan(&p.ID, &action, &resource, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Permission{}, err
	}
	p.Action = Action(action)
	p.ResourceType = ResourceType(resource)
	return p, nil
}
