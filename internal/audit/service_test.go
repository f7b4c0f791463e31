package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall WindowParams
}

func (s *stubTimelineRepo) Window(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.lastCall = arg
	if arg.LimitRows > 0 && int(arg.LimitRows) < len(s.rows) {
		return s.rows[:arg.LimitRows], nil
	}
	return s.rows, nil
}

func entry(at, actor, action string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, Actor: actor, Action: action, Entity: "role", EntityID: "r1"}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		entry("2024-03-10T10:00:00Z", "u1", "role.update"),
		entry("2024-03-09T09:00:00Z", "u1", "authz.deny"),
		entry("2024-03-08T08:00:00Z", "u2", "role.create"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Actor:    " u1 ",
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, int32(3), repo.lastCall.LimitRows)
	assert.Equal(t, int32(0), repo.lastCall.OffsetRows)
	assert.True(t, repo.lastCall.FromAt.Valid)
	assert.False(t, repo.lastCall.ToAt.Valid)
	assert.Equal(t, "u1", repo.lastCall.Actor.String)
	assert.False(t, repo.lastCall.Entity.Valid)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.Equal(t, int32(2*maxPageSize), repo.lastCall.OffsetRows)
	assert.Empty(t, result.Rows)

	result, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, result.Paging.PageSize)
	assert.Equal(t, 1, result.Paging.Page)
}

func TestExportHasNoPaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{entry("2024-03-10T10:00:00Z", "u1", "role.update")}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Page: 4})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(0), repo.lastCall.OffsetRows)
	assert.Equal(t, int32(maxExportRows), repo.lastCall.LimitRows)
}

func TestWriteCSV(t *testing.T) {
	row := entry("2024-03-10T10:00:00Z", "u1", "authz.deny")
	row.Meta = map[string]any{"reason": "POLICY_DENIED"}
	out, err := WriteCSV([]TimelineRow{row})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "at,actor,action,entity,entity_id,meta", lines[0])
	assert.Equal(t, `2024-03-10T10:00:00Z,u1,authz.deny,role,r1,"{""reason"":""POLICY_DENIED""}"`, lines[1])
}

func TestMissingRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}
