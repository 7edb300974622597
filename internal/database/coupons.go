package database

import (
	"context"

	"github.com/google/uuid"
)

const getCouponByCode = `
SELECT id, shop_id, code, discount, current_usage, max_usage, is_active, created_at
FROM coupons
WHERE shop_id = $1 AND code = $2
LIMIT 1
`

type GetCouponByCodeParams struct {
	ShopID uuid.UUID
	Code   string
}

func (q *Queries) GetCouponByCode(ctx context.Context, arg GetCouponByCodeParams) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, getCouponByCode, arg.ShopID, arg.Code))
}

// updateCouponUsage writes back an absolute counter value computed by the
// caller from a prior read. The read-then-write pair is not atomic; cap
// validation happens separately before sale creation.
const updateCouponUsage = `
UPDATE coupons SET current_usage = $2 WHERE id = $1
`

type UpdateCouponUsageParams struct {
	ID           int64
	CurrentUsage int32
}

func (q *Queries) UpdateCouponUsage(ctx context.Context, arg UpdateCouponUsageParams) error {
	_, err := q.db.Exec(ctx, updateCouponUsage, arg.ID, arg.CurrentUsage)
	return err
}

const listCoupons = `
SELECT id, shop_id, code, discount, current_usage, max_usage, is_active, created_at
FROM coupons
WHERE shop_id = $1 AND is_active = true
ORDER BY code
`

func (q *Queries) ListCoupons(ctx context.Context, shopID uuid.UUID) ([]Coupon, error) {
	rows, err := q.db.Query(ctx, listCoupons, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanCoupon(row rowScanner) (Coupon, error) {
	var c Coupon
	err := row.Scan(
		&c.ID, &c.ShopID, &c.Code, &c.Discount, &c.CurrentUsage, &c.MaxUsage,
		&c.IsActive, &c.CreatedAt,
	)
	return c, err
}
