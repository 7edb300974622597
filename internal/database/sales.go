package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createSale = `
INSERT INTO sales (
	bill_number, customer_id, subtotal, discount, total, payment_method,
	amount_received, change_amount, points_redeemed, status, coupon_code, staff_id
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, bill_number, customer_id, subtotal, discount, total, payment_method,
	amount_received, change_amount, points_redeemed, status, coupon_code, staff_id,
	created_at, updated_at
`

type CreateSaleParams struct {
	BillNumber     string
	CustomerID     pgtype.Int8
	Subtotal       pgtype.Numeric
	Discount       pgtype.Numeric
	Total          pgtype.Numeric
	PaymentMethod  string
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	PointsRedeemed int32
	Status         string
	CouponCode     pgtype.Text
	StaffID        int64
}

func (q *Queries) CreateSale(ctx context.Context, arg CreateSaleParams) (Sale, error) {
	row := q.db.QueryRow(ctx, createSale,
		arg.BillNumber, arg.CustomerID, arg.Subtotal, arg.Discount, arg.Total,
		arg.PaymentMethod, arg.AmountReceived, arg.ChangeAmount, arg.PointsRedeemed,
		arg.Status, arg.CouponCode, arg.StaffID,
	)
	return scanSale(row)
}

const createSaleItem = `
INSERT INTO sale_items (sale_id, product_id, product_name, price, quantity, subtotal)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, sale_id, product_id, product_name, price, quantity, subtotal
`

type CreateSaleItemParams struct {
	SaleID      int64
	ProductID   pgtype.Int8
	ProductName string
	Price       pgtype.Numeric
	Quantity    int32
	Subtotal    pgtype.Numeric
}

func (q *Queries) CreateSaleItem(ctx context.Context, arg CreateSaleItemParams) (SaleItem, error) {
	row := q.db.QueryRow(ctx, createSaleItem,
		arg.SaleID, arg.ProductID, arg.ProductName, arg.Price, arg.Quantity, arg.Subtotal,
	)
	var i SaleItem
	err := row.Scan(&i.ID, &i.SaleID, &i.ProductID, &i.ProductName, &i.Price, &i.Quantity, &i.Subtotal)
	return i, err
}

const getSale = `
SELECT id, bill_number, customer_id, subtotal, discount, total, payment_method,
	amount_received, change_amount, points_redeemed, status, coupon_code, staff_id,
	created_at, updated_at
FROM sales
WHERE id = $1
`

func (q *Queries) GetSale(ctx context.Context, id int64) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, getSale, id))
}

const getSaleByBillNumber = `
SELECT s.id, s.bill_number, s.customer_id, s.subtotal, s.discount, s.total, s.payment_method,
	s.amount_received, s.change_amount, s.points_redeemed, s.status, s.coupon_code, s.staff_id,
	s.created_at, s.updated_at
FROM sales s
JOIN staff st ON st.id = s.staff_id
WHERE s.bill_number = $1 AND st.shop_id = $2
`

type GetSaleByBillNumberParams struct {
	BillNumber string
	ShopID     uuid.UUID
}

func (q *Queries) GetSaleByBillNumber(ctx context.Context, arg GetSaleByBillNumberParams) (Sale, error) {
	return scanSale(q.db.QueryRow(ctx, getSaleByBillNumber, arg.BillNumber, arg.ShopID))
}

// getLastBillNumber finds the lexicographically highest bill number matching
// the given prefix+date pattern. Used by the bill number generator; there is
// no lock around this read and the subsequent insert.
const getLastBillNumber = `
SELECT bill_number
FROM sales
WHERE bill_number LIKE $1
ORDER BY bill_number DESC
LIMIT 1
`

func (q *Queries) GetLastBillNumber(ctx context.Context, pattern string) (string, error) {
	var bill string
	err := q.db.QueryRow(ctx, getLastBillNumber, pattern).Scan(&bill)
	return bill, err
}

const listSales = `
SELECT s.id, s.bill_number, s.customer_id, s.subtotal, s.discount, s.total, s.payment_method,
	s.amount_received, s.change_amount, s.points_redeemed, s.status, s.coupon_code, s.staff_id,
	s.created_at, s.updated_at,
	st.name AS staff_name,
	c.name AS customer_name
FROM sales s
JOIN staff st ON st.id = s.staff_id
LEFT JOIN customers c ON c.id = s.customer_id
WHERE st.shop_id = $1
  AND ($2::text IS NULL OR s.status = $2)
  AND ($3::bigint IS NULL OR s.customer_id = $3)
  AND ($4::text IS NULL OR s.bill_number ILIKE '%' || $4 || '%')
  AND ($5::timestamptz IS NULL OR s.created_at >= $5)
  AND ($6::timestamptz IS NULL OR s.created_at <= $6)
ORDER BY s.created_at DESC
LIMIT $7 OFFSET $8
`

type ListSalesParams struct {
	ShopID     uuid.UUID
	Status     pgtype.Text
	CustomerID pgtype.Int8
	Search     pgtype.Text
	StartDate  pgtype.Timestamptz
	EndDate    pgtype.Timestamptz
	Limit      int32
	Offset     int32
}

type ListSalesRow struct {
	Sale
	StaffName    string
	CustomerName pgtype.Text
}

func (q *Queries) ListSales(ctx context.Context, arg ListSalesParams) ([]ListSalesRow, error) {
	rows, err := q.db.Query(ctx, listSales,
		arg.ShopID, arg.Status, arg.CustomerID, arg.Search, arg.StartDate, arg.EndDate,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListSalesRow
	for rows.Next() {
		var i ListSalesRow
		if err := rows.Scan(
			&i.ID, &i.BillNumber, &i.CustomerID, &i.Subtotal, &i.Discount, &i.Total,
			&i.PaymentMethod, &i.AmountReceived, &i.ChangeAmount, &i.PointsRedeemed,
			&i.Status, &i.CouponCode, &i.StaffID, &i.CreatedAt, &i.UpdatedAt,
			&i.StaffName, &i.CustomerName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countSales = `
SELECT COUNT(*)
FROM sales s
JOIN staff st ON st.id = s.staff_id
WHERE st.shop_id = $1
  AND ($2::text IS NULL OR s.status = $2)
  AND ($3::bigint IS NULL OR s.customer_id = $3)
  AND ($4::text IS NULL OR s.bill_number ILIKE '%' || $4 || '%')
  AND ($5::timestamptz IS NULL OR s.created_at >= $5)
  AND ($6::timestamptz IS NULL OR s.created_at <= $6)
`

type CountSalesParams struct {
	ShopID     uuid.UUID
	Status     pgtype.Text
	CustomerID pgtype.Int8
	Search     pgtype.Text
	StartDate  pgtype.Timestamptz
	EndDate    pgtype.Timestamptz
}

func (q *Queries) CountSales(ctx context.Context, arg CountSalesParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countSales,
		arg.ShopID, arg.Status, arg.CustomerID, arg.Search, arg.StartDate, arg.EndDate,
	).Scan(&count)
	return count, err
}

const listSaleItemsBySale = `
SELECT id, sale_id, product_id, product_name, price, quantity, subtotal
FROM sale_items
WHERE sale_id = $1
ORDER BY id
`

func (q *Queries) ListSaleItemsBySale(ctx context.Context, saleID int64) ([]SaleItem, error) {
	rows, err := q.db.Query(ctx, listSaleItemsBySale, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SaleItem
	for rows.Next() {
		var i SaleItem
		if err := rows.Scan(&i.ID, &i.SaleID, &i.ProductID, &i.ProductName, &i.Price, &i.Quantity, &i.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// updateSale patches only the provided header fields; NULL params keep the
// stored value.
const updateSale = `
UPDATE sales
SET status          = COALESCE($2, status),
	customer_id     = COALESCE($3, customer_id),
	subtotal        = COALESCE($4, subtotal),
	discount        = COALESCE($5, discount),
	total           = COALESCE($6, total),
	payment_method  = COALESCE($7, payment_method),
	amount_received = COALESCE($8, amount_received),
	change_amount   = COALESCE($9, change_amount),
	updated_at      = now()
WHERE id = $1
RETURNING id, bill_number, customer_id, subtotal, discount, total, payment_method,
	amount_received, change_amount, points_redeemed, status, coupon_code, staff_id,
	created_at, updated_at
`

type UpdateSaleParams struct {
	ID             int64
	Status         pgtype.Text
	CustomerID     pgtype.Int8
	Subtotal       pgtype.Numeric
	Discount       pgtype.Numeric
	Total          pgtype.Numeric
	PaymentMethod  pgtype.Text
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
}

func (q *Queries) UpdateSale(ctx context.Context, arg UpdateSaleParams) (Sale, error) {
	row := q.db.QueryRow(ctx, updateSale,
		arg.ID, arg.Status, arg.CustomerID, arg.Subtotal, arg.Discount, arg.Total,
		arg.PaymentMethod, arg.AmountReceived, arg.ChangeAmount,
	)
	return scanSale(row)
}

const deleteSaleItemsBySale = `
DELETE FROM sale_items WHERE sale_id = $1
`

func (q *Queries) DeleteSaleItemsBySale(ctx context.Context, saleID int64) error {
	_, err := q.db.Exec(ctx, deleteSaleItemsBySale, saleID)
	return err
}

const deleteSale = `
DELETE FROM sales WHERE id = $1
`

func (q *Queries) DeleteSale(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteSale, id)
	return err
}

const listSalesByStatus = `
SELECT s.id, s.bill_number, s.customer_id, s.subtotal, s.discount, s.total, s.payment_method,
	s.amount_received, s.change_amount, s.points_redeemed, s.status, s.coupon_code, s.staff_id,
	s.created_at, s.updated_at
FROM sales s
JOIN staff st ON st.id = s.staff_id
WHERE st.shop_id = $1 AND s.status = $2
ORDER BY s.created_at DESC
`

type ListSalesByStatusParams struct {
	ShopID uuid.UUID
	Status string
}

func (q *Queries) ListSalesByStatus(ctx context.Context, arg ListSalesByStatusParams) ([]Sale, error) {
	rows, err := q.db.Query(ctx, listSalesByStatus, arg.ShopID, arg.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSales(rows)
}

const listCompletedSalesSince = `
SELECT s.id, s.bill_number, s.customer_id, s.subtotal, s.discount, s.total, s.payment_method,
	s.amount_received, s.change_amount, s.points_redeemed, s.status, s.coupon_code, s.staff_id,
	s.created_at, s.updated_at
FROM sales s
JOIN staff st ON st.id = s.staff_id
WHERE st.shop_id = $1 AND s.status = 'completed' AND s.created_at >= $2
ORDER BY s.created_at DESC
`

type ListCompletedSalesSinceParams struct {
	ShopID uuid.UUID
	Since  pgtype.Timestamptz
}

func (q *Queries) ListCompletedSalesSince(ctx context.Context, arg ListCompletedSalesSinceParams) ([]Sale, error) {
	rows, err := q.db.Query(ctx, listCompletedSalesSince, arg.ShopID, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSales(rows)
}

const getSalesSummary = `
SELECT COUNT(*), COALESCE(SUM(s.total), 0)
FROM sales s
JOIN staff st ON st.id = s.staff_id
WHERE st.shop_id = $1 AND s.status = 'completed'
  AND ($2::timestamptz IS NULL OR s.created_at >= $2)
`

type GetSalesSummaryParams struct {
	ShopID uuid.UUID
	Since  pgtype.Timestamptz
}

type GetSalesSummaryRow struct {
	BillCount   int64
	TotalAmount pgtype.Numeric
}

func (q *Queries) GetSalesSummary(ctx context.Context, arg GetSalesSummaryParams) (GetSalesSummaryRow, error) {
	var r GetSalesSummaryRow
	err := q.db.QueryRow(ctx, getSalesSummary, arg.ShopID, arg.Since).Scan(&r.BillCount, &r.TotalAmount)
	return r, err
}

// listSaleItemRows is the single bulk fetch behind the dashboard and
// product-stats aggregators: completed sales in a window, flattened with their
// line items, product cost/barcode and category name. A sale with no items
// still yields one row with NULL item columns; aggregators group by sale ID.
const listSaleItemRows = `
SELECT s.id, s.total, s.created_at, s.payment_method,
	i.product_id, i.product_name, i.quantity, i.subtotal,
	p.cost, p.barcode, c.name
FROM sales s
JOIN staff st ON st.id = s.staff_id
LEFT JOIN sale_items i ON i.sale_id = s.id
LEFT JOIN products p ON p.id = i.product_id
LEFT JOIN categories c ON c.id = p.category_id
WHERE st.shop_id = $1 AND s.status = 'completed'
  AND s.created_at >= $2 AND s.created_at <= $3
ORDER BY s.created_at
`

type ListSaleItemRowsParams struct {
	ShopID uuid.UUID
	Start  pgtype.Timestamptz
	End    pgtype.Timestamptz
}

type SaleItemRow struct {
	SaleID        int64
	SaleTotal     pgtype.Numeric
	CreatedAt     pgtype.Timestamptz
	PaymentMethod string
	ProductID     pgtype.Int8
	ProductName   pgtype.Text
	Quantity      pgtype.Int4
	ItemSubtotal  pgtype.Numeric
	ProductCost   pgtype.Numeric
	Barcode       pgtype.Text
	CategoryName  pgtype.Text
}

func (q *Queries) ListSaleItemRows(ctx context.Context, arg ListSaleItemRowsParams) ([]SaleItemRow, error) {
	rows, err := q.db.Query(ctx, listSaleItemRows, arg.ShopID, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SaleItemRow
	for rows.Next() {
		var i SaleItemRow
		if err := rows.Scan(
			&i.SaleID, &i.SaleTotal, &i.CreatedAt, &i.PaymentMethod,
			&i.ProductID, &i.ProductName, &i.Quantity, &i.ItemSubtotal,
			&i.ProductCost, &i.Barcode, &i.CategoryName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (Sale, error) {
	var s Sale
	err := row.Scan(
		&s.ID, &s.BillNumber, &s.CustomerID, &s.Subtotal, &s.Discount, &s.Total,
		&s.PaymentMethod, &s.AmountReceived, &s.ChangeAmount, &s.PointsRedeemed,
		&s.Status, &s.CouponCode, &s.StaffID, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func collectSales(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Sale, error) {
	var items []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
