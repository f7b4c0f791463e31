package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ovr-admin/ovr-admin/internal/platform/db"
)

// WindowParams selects a slice of the timeline. LimitRows <= 0 means no limit.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Actor      pgtype.Text
	Entity     pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Repository reads audit_logs.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const timelineQuery = `
SELECT occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6
LIMIT NULLIF($7, 0)`

// Window returns timeline rows, newest first.
func (r *Repository) Window(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, timelineQuery, arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineRow, 0)
	for rows.Next() {
		var (
			at   pgtype.Timestamptz
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&at, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, fmt.Errorf("audit: scan timeline: %w", err)
		}
		if at.Valid {
			row.At = at.Time
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
