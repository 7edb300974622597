package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getCustomer = `
SELECT id, shop_id, name, phone, points, total_spent, is_active, created_at, updated_at
FROM customers
WHERE id = $1 AND shop_id = $2 AND is_active = true
`

type GetCustomerParams struct {
	ID     int64
	ShopID uuid.UUID
}

func (q *Queries) GetCustomer(ctx context.Context, arg GetCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomer, arg.ID, arg.ShopID))
}

// getCustomerLoyalty reads the balance the sale pipeline recomputes. Paired
// with UpdateCustomerLoyalty this is a read-modify-write with no version
// check; concurrent sales for the same customer can lose an update.
const getCustomerLoyalty = `
SELECT points, total_spent FROM customers WHERE id = $1
`

type GetCustomerLoyaltyRow struct {
	Points     int32
	TotalSpent pgtype.Numeric
}

func (q *Queries) GetCustomerLoyalty(ctx context.Context, id int64) (GetCustomerLoyaltyRow, error) {
	var r GetCustomerLoyaltyRow
	err := q.db.QueryRow(ctx, getCustomerLoyalty, id).Scan(&r.Points, &r.TotalSpent)
	return r, err
}

const updateCustomerLoyalty = `
UPDATE customers
SET points = $2, total_spent = $3, updated_at = now()
WHERE id = $1
`

type UpdateCustomerLoyaltyParams struct {
	ID         int64
	Points     int32
	TotalSpent pgtype.Numeric
}

func (q *Queries) UpdateCustomerLoyalty(ctx context.Context, arg UpdateCustomerLoyaltyParams) error {
	_, err := q.db.Exec(ctx, updateCustomerLoyalty, arg.ID, arg.Points, arg.TotalSpent)
	return err
}

const listCustomers = `
SELECT id, shop_id, name, phone, points, total_spent, is_active, created_at, updated_at
FROM customers
WHERE shop_id = $1 AND is_active = true
  AND ($2::text IS NULL OR name ILIKE '%' || $2 || '%' OR phone ILIKE '%' || $2 || '%')
ORDER BY name
LIMIT $3 OFFSET $4
`

type ListCustomersParams struct {
	ShopID uuid.UUID
	Search pgtype.Text
	Limit  int32
	Offset int32
}

func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx, listCustomers, arg.ShopID, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const createCustomer = `
INSERT INTO customers (shop_id, name, phone)
VALUES ($1, $2, $3)
RETURNING id, shop_id, name, phone, points, total_spent, is_active, created_at, updated_at
`

type CreateCustomerParams struct {
	ShopID uuid.UUID
	Name   string
	Phone  pgtype.Text
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, createCustomer, arg.ShopID, arg.Name, arg.Phone))
}

const updateCustomer = `
UPDATE customers
SET name = COALESCE($3, name),
	phone = COALESCE($4, phone),
	updated_at = now()
WHERE id = $1 AND shop_id = $2 AND is_active = true
RETURNING id, shop_id, name, phone, points, total_spent, is_active, created_at, updated_at
`

type UpdateCustomerParams struct {
	ID     int64
	ShopID uuid.UUID
	Name   pgtype.Text
	Phone  pgtype.Text
}

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, updateCustomer, arg.ID, arg.ShopID, arg.Name, arg.Phone))
}

const softDeleteCustomer = `
UPDATE customers
SET is_active = false, updated_at = now()
WHERE id = $1 AND shop_id = $2 AND is_active = true
RETURNING id
`

type SoftDeleteCustomerParams struct {
	ID     int64
	ShopID uuid.UUID
}

func (q *Queries) SoftDeleteCustomer(ctx context.Context, arg SoftDeleteCustomerParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, softDeleteCustomer, arg.ID, arg.ShopID).Scan(&id)
	return id, err
}

func scanCustomer(row rowScanner) (Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID, &c.ShopID, &c.Name, &c.Phone, &c.Points, &c.TotalSpent,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
