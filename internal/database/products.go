package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getProduct = `
SELECT id, shop_id, category_id, barcode, name, price, cost, stock, is_active, created_at, updated_at
FROM products
WHERE id = $1 AND shop_id = $2 AND is_active = true
`

type GetProductParams struct {
	ID     int64
	ShopID uuid.UUID
}

func (q *Queries) GetProduct(ctx context.Context, arg GetProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, arg.ID, arg.ShopID))
}

const listProducts = `
SELECT id, shop_id, category_id, barcode, name, price, cost, stock, is_active, created_at, updated_at
FROM products
WHERE shop_id = $1 AND is_active = true
  AND ($2::text IS NULL OR name ILIKE '%' || $2 || '%' OR barcode = $2)
ORDER BY name
LIMIT $3 OFFSET $4
`

type ListProductsParams struct {
	ShopID uuid.UUID
	Search pgtype.Text
	Limit  int32
	Offset int32
}

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts, arg.ShopID, arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const countProducts = `
SELECT COUNT(*)
FROM products
WHERE shop_id = $1 AND is_active = true
  AND ($2::text IS NULL OR name ILIKE '%' || $2 || '%' OR barcode = $2)
`

type CountProductsParams struct {
	ShopID uuid.UUID
	Search pgtype.Text
}

func (q *Queries) CountProducts(ctx context.Context, arg CountProductsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countProducts, arg.ShopID, arg.Search).Scan(&count)
	return count, err
}

const createProduct = `
INSERT INTO products (shop_id, category_id, barcode, name, price, cost, stock)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, shop_id, category_id, barcode, name, price, cost, stock, is_active, created_at, updated_at
`

type CreateProductParams struct {
	ShopID     uuid.UUID
	CategoryID pgtype.Int8
	Barcode    pgtype.Text
	Name       string
	Price      pgtype.Numeric
	Cost       pgtype.Numeric
	Stock      int32
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.ShopID, arg.CategoryID, arg.Barcode, arg.Name, arg.Price, arg.Cost, arg.Stock,
	)
	return scanProduct(row)
}

const updateProduct = `
UPDATE products
SET category_id = COALESCE($3, category_id),
	barcode     = COALESCE($4, barcode),
	name        = COALESCE($5, name),
	price       = COALESCE($6, price),
	cost        = COALESCE($7, cost),
	updated_at  = now()
WHERE id = $1 AND shop_id = $2 AND is_active = true
RETURNING id, shop_id, category_id, barcode, name, price, cost, stock, is_active, created_at, updated_at
`

type UpdateProductParams struct {
	ID         int64
	ShopID     uuid.UUID
	CategoryID pgtype.Int8
	Barcode    pgtype.Text
	Name       pgtype.Text
	Price      pgtype.Numeric
	Cost       pgtype.Numeric
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct,
		arg.ID, arg.ShopID, arg.CategoryID, arg.Barcode, arg.Name, arg.Price, arg.Cost,
	)
	return scanProduct(row)
}

const softDeleteProduct = `
UPDATE products
SET is_active = false, updated_at = now()
WHERE id = $1 AND shop_id = $2 AND is_active = true
RETURNING id
`

type SoftDeleteProductParams struct {
	ID     int64
	ShopID uuid.UUID
}

func (q *Queries) SoftDeleteProduct(ctx context.Context, arg SoftDeleteProductParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, softDeleteProduct, arg.ID, arg.ShopID).Scan(&id)
	return id, err
}

// adjustStock is the preferred, atomic stock mutation: the delta is applied
// server-side in one statement, so concurrent sales cannot lose each other's
// decrement on this path.
const adjustStock = `
UPDATE products
SET stock = stock + $2, updated_at = now()
WHERE id = $1
RETURNING stock
`

type AdjustStockParams struct {
	ID    int64
	Delta int32
}

func (q *Queries) AdjustStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	var stock int32
	err := q.db.QueryRow(ctx, adjustStock, arg.ID, arg.Delta).Scan(&stock)
	return stock, err
}

const getProductStock = `
SELECT stock FROM products WHERE id = $1
`

func (q *Queries) GetProductStock(ctx context.Context, id int64) (int32, error) {
	var stock int32
	err := q.db.QueryRow(ctx, getProductStock, id).Scan(&stock)
	return stock, err
}

const setProductStock = `
UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
`

type SetProductStockParams struct {
	ID    int64
	Stock int32
}

func (q *Queries) SetProductStock(ctx context.Context, arg SetProductStockParams) error {
	_, err := q.db.Exec(ctx, setProductStock, arg.ID, arg.Stock)
	return err
}

const createStockTransaction = `
INSERT INTO stock_transactions (product_id, qty, type, reason, sale_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, product_id, qty, type, reason, sale_id, created_at
`

type CreateStockTransactionParams struct {
	ProductID int64
	Qty       int32
	Type      string
	Reason    string
	SaleID    pgtype.Int8
}

func (q *Queries) CreateStockTransaction(ctx context.Context, arg CreateStockTransactionParams) (StockTransaction, error) {
	row := q.db.QueryRow(ctx, createStockTransaction,
		arg.ProductID, arg.Qty, arg.Type, arg.Reason, arg.SaleID,
	)
	var t StockTransaction
	err := row.Scan(&t.ID, &t.ProductID, &t.Qty, &t.Type, &t.Reason, &t.SaleID, &t.CreatedAt)
	return t, err
}

const listStockTransactionsByProduct = `
SELECT id, product_id, qty, type, reason, sale_id, created_at
FROM stock_transactions
WHERE product_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListStockTransactionsByProductParams struct {
	ProductID int64
	Limit     int32
}

func (q *Queries) ListStockTransactionsByProduct(ctx context.Context, arg ListStockTransactionsByProductParams) ([]StockTransaction, error) {
	rows, err := q.db.Query(ctx, listStockTransactionsByProduct, arg.ProductID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []StockTransaction
	for rows.Next() {
		var t StockTransaction
		if err := rows.Scan(&t.ID, &t.ProductID, &t.Qty, &t.Type, &t.Reason, &t.SaleID, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.ShopID, &p.CategoryID, &p.Barcode, &p.Name, &p.Price, &p.Cost,
		&p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
