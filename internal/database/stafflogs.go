package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createStaffLog = `
INSERT INTO staff_logs (staff_id, action, details)
VALUES ($1, $2, $3)
RETURNING id, staff_id, action, details, created_at
`

type CreateStaffLogParams struct {
	StaffID int64
	Action  string
	Details []byte
}

func (q *Queries) CreateStaffLog(ctx context.Context, arg CreateStaffLogParams) (StaffLog, error) {
	row := q.db.QueryRow(ctx, createStaffLog, arg.StaffID, arg.Action, arg.Details)
	var l StaffLog
	err := row.Scan(&l.ID, &l.StaffID, &l.Action, &l.Details, &l.CreatedAt)
	return l, err
}

const listStaffLogs = `
SELECT l.id, l.staff_id, l.action, l.details, l.created_at, st.name, st.username
FROM staff_logs l
JOIN staff st ON st.id = l.staff_id
WHERE st.shop_id = $1
  AND ($2::bigint IS NULL OR l.staff_id = $2)
  AND ($3::text IS NULL OR l.action ILIKE '%' || $3 || '%')
ORDER BY l.created_at DESC
LIMIT $4 OFFSET $5
`

type ListStaffLogsParams struct {
	ShopID  uuid.UUID
	StaffID pgtype.Int8
	Action  pgtype.Text
	Limit   int32
	Offset  int32
}

type ListStaffLogsRow struct {
	StaffLog
	StaffName     string
	StaffUsername string
}

func (q *Queries) ListStaffLogs(ctx context.Context, arg ListStaffLogsParams) ([]ListStaffLogsRow, error) {
	rows, err := q.db.Query(ctx, listStaffLogs,
		arg.ShopID, arg.StaffID, arg.Action, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListStaffLogsRow
	for rows.Next() {
		var l ListStaffLogsRow
		if err := rows.Scan(&l.ID, &l.StaffID, &l.Action, &l.Details, &l.CreatedAt, &l.StaffName, &l.StaffUsername); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

const countStaffLogs = `
SELECT COUNT(*)
FROM staff_logs l
JOIN staff st ON st.id = l.staff_id
WHERE st.shop_id = $1
  AND ($2::bigint IS NULL OR l.staff_id = $2)
  AND ($3::text IS NULL OR l.action ILIKE '%' || $3 || '%')
`

type CountStaffLogsParams struct {
	ShopID  uuid.UUID
	StaffID pgtype.Int8
	Action  pgtype.Text
}

func (q *Queries) CountStaffLogs(ctx context.Context, arg CountStaffLogsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countStaffLogs, arg.ShopID, arg.StaffID, arg.Action).Scan(&count)
	return count, err
}
