package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Shop struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Staff struct {
	ID             int64
	ShopID         uuid.UUID
	Name           string
	Username       string
	HashedPassword string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
}

type Category struct {
	ID     int64
	ShopID uuid.UUID
	Name   string
}

type Product struct {
	ID         int64
	ShopID     uuid.UUID
	CategoryID pgtype.Int8
	Barcode    pgtype.Text
	Name       string
	Price      pgtype.Numeric
	Cost       pgtype.Numeric
	Stock      int32
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Customer struct {
	ID         int64
	ShopID     uuid.UUID
	Name       string
	Phone      pgtype.Text
	Points     int32
	TotalSpent pgtype.Numeric
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Coupon struct {
	ID           int64
	ShopID       uuid.UUID
	Code         string
	Discount     pgtype.Numeric
	CurrentUsage int32
	MaxUsage     pgtype.Int4
	IsActive     bool
	CreatedAt    time.Time
}

type Sale struct {
	ID             int64
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
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SaleItem struct {
	ID          int64
	SaleID      int64
	ProductID   pgtype.Int8
	ProductName string
	Price       pgtype.Numeric
	Quantity    int32
	Subtotal    pgtype.Numeric
}

// StockTransaction is an append-only audit row; it is never updated or
// deleted. The authoritative stock count lives on Product.
type StockTransaction struct {
	ID        int64
	ProductID int64
	Qty       int32
	Type      string
	Reason    string
	SaleID    pgtype.Int8
	CreatedAt time.Time
}

type StaffLog struct {
	ID        int64
	StaffID   int64
	Action    string
	Details   []byte
	CreatedAt time.Time
}
