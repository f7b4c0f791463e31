package policies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/platform/db"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

const policyColumns = `id, role_id, resource_type, resource_id, attribute_name, attribute_value, condition, created_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Insert stores p. An unknown role maps to shared.ErrNotFound.
func (r *Repository) Insert(ctx context.Context, p Policy) (Policy, error) {
	stored, err := scanPolicy(r.db.QueryRow(ctx, `
		INSERT INTO resource_policies (id, role_id, resource_type, resource_id, attribute_name, attribute_value, condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+policyColumns,
		p.ID, p.RoleID, string(p.ResourceType), optionalText(p.ResourceID), optionalText(p.AttributeName), optionalText(p.AttributeValue), p.Condition))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Policy{}, fmt.Errorf("policies: role %s: %w", p.RoleID, shared.ErrNotFound)
		}
		return Policy{}, fmt.Errorf("policies: insert: %w", err)
	}
	return stored, nil
}

// GetByID fetches a policy.
func (r *Repository) GetByID(ctx context.Context, id string) (Policy, error) {
	p, err := scanPolicy(r.db.QueryRow(ctx, `SELECT `+policyColumns+` FROM resource_policies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, fmt.Errorf("policies: %w", shared.ErrNotFound)
		}
		return Policy{}, fmt.Errorf("policies: get: %w", err)
	}
	return p, nil
}

// List returns policies ordered by creation.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Policy, error) {
	var conditions []string
	var args []any
	if filter.RoleID != "" {
		args = append(args, filter.RoleID)
		conditions = append(conditions, fmt.Sprintf("role_id = $%d", len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, string(filter.ResourceType))
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	query := `SELECT ` + policyColumns + ` FROM resource_policies`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"
	return r.query(ctx, query, args...)
}

// ListForRoles returns every policy of roleIDs on resourceType. Resource id
// matching is left to Match.
func (r *Repository) ListForRoles(ctx context.Context, roleIDs []string, resourceType permissions.ResourceType) ([]Policy, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, `
		SELECT `+policyColumns+`
		FROM resource_policies
		WHERE role_id = ANY($1::uuid[]) AND resource_type = $2
		ORDER BY created_at, id`, roleIDs, string(resourceType))
}

// Update overwrites every mutable column of p.
func (r *Repository) Update(ctx context.Context, p Policy) (Policy, error) {
	stored, err := scanPolicy(r.db.QueryRow(ctx, `
		UPDATE resource_policies
		SET role_id = $2, resource_type = $3, resource_id = $4, attribute_name = $5, attribute_value = $6, condition = $7
		WHERE id = $1
		RETURNING `+policyColumns,
		p.ID, p.RoleID, string(p.ResourceType), optionalText(p.ResourceID), optionalText(p.AttributeName), optionalText(p.AttributeValue), p.Condition))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, fmt.Errorf("policies: %w", shared.ErrNotFound)
		}
		if db.IsForeignKeyViolation(err) {
			return Policy{}, fmt.Errorf("policies: role %s: %w", p.RoleID, shared.ErrNotFound)
		}
		return Policy{}, fmt.Errorf("policies: update: %w", err)
	}
	return stored, nil
}

// Delete removes a policy.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM resource_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("policies: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policies: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]Policy, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("policies: list: %w", err)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("policies: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policies: rows: %w", err)
	}
	return out, nil
}

func scanPolicy(row pgx.Row) (Policy, error) {
	var p Policy
	var resource string
	var resourceID, attrName, attrValue pgtype.Text
	if err := row.Scan(&p.ID, &p.RoleID, &resource, &resourceID, &attrName, &attrValue, &p.Condition, &p.CreatedAt); err != nil {
		return Policy{}, err
	}
	p.ResourceType = permissions.ResourceType(resource)
	p.ResourceID = resourceID.String
	p.AttributeName = attrName.String
	p.AttributeValue = attrValue.String
	return p, nil
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

