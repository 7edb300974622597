package database

import (
	"context"
)

const getStaffByUsername = `
SELECT st.id, st.shop_id, st.name, st.username, st.hashed_password, st.role,
	st.is_active, st.created_at, sh.name
FROM staff st
JOIN shops sh ON sh.id = st.shop_id
WHERE st.username = $1 AND st.is_active = true
`

type GetStaffByUsernameRow struct {
	Staff
	ShopName string
}

func (q *Queries) GetStaffByUsername(ctx context.Context, username string) (GetStaffByUsernameRow, error) {
	var r GetStaffByUsernameRow
	err := q.db.QueryRow(ctx, getStaffByUsername, username).Scan(
		&r.ID, &r.ShopID, &r.Name, &r.Username, &r.HashedPassword, &r.Role,
		&r.IsActive, &r.CreatedAt, &r.ShopName,
	)
	return r, err
}

const getStaffByID = `
SELECT st.id, st.shop_id, st.name, st.username, st.hashed_password, st.role,
	st.is_active, st.created_at, sh.name
FROM staff st
JOIN shops sh ON sh.id = st.shop_id
WHERE st.id = $1 AND st.is_active = true
`

func (q *Queries) GetStaffByID(ctx context.Context, id int64) (GetStaffByUsernameRow, error) {
	var r GetStaffByUsernameRow
	err := q.db.QueryRow(ctx, getStaffByID, id).Scan(
		&r.ID, &r.ShopID, &r.Name, &r.Username, &r.HashedPassword, &r.Role,
		&r.IsActive, &r.CreatedAt, &r.ShopName,
	)
	return r, err
}
