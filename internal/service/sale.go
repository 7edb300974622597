package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/enum"
)

// Errors returned by the sale service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidPoints        = errors.New("points_redeemed must be >= 0")
	ErrMissingStaff         = errors.New("staff_id is required")
	ErrSaleNotFound         = errors.New("sale not found")
)

// pointsPerUnit: 100 currency units earn 1 loyalty point.
var pointsPerUnit = decimal.NewFromInt(100)

// commitStage labels the steps of a sale commit. The commit is a sequence of
// independent single-row writes, not a transaction: stages through
// WRITING_ITEMS must succeed, everything after is best-effort.
type commitStage string

const (
	stageGeneratingBill  commitStage = "GENERATING_BILL"
	stageWritingHeader   commitStage = "WRITING_HEADER"
	stageWritingItems    commitStage = "WRITING_ITEMS"
	stageAdjustingStock  commitStage = "ADJUSTING_STOCK"
	stageUpdatingLoyalty commitStage = "UPDATING_LOYALTY"
	stageUpdatingCoupon  commitStage = "UPDATING_COUPON"
	stageLoggingAudit    commitStage = "LOGGING_AUDIT"
)

// SaleStore defines the database methods needed to commit, update, and delete
// sales. Satisfied by *database.Queries; narrow interface for testability.
type SaleStore interface {
	CreateSale(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error)
	CreateSaleItem(ctx context.Context, arg database.CreateSaleItemParams) (database.SaleItem, error)
	UpdateSale(ctx context.Context, arg database.UpdateSaleParams) (database.Sale, error)
	DeleteSaleItemsBySale(ctx context.Context, saleID int64) error
	DeleteSale(ctx context.Context, id int64) error

	AdjustStock(ctx context.Context, arg database.AdjustStockParams) (int32, error)
	GetProductStock(ctx context.Context, id int64) (int32, error)
	SetProductStock(ctx context.Context, arg database.SetProductStockParams) error
	CreateStockTransaction(ctx context.Context, arg database.CreateStockTransactionParams) (database.StockTransaction, error)

	GetCustomerLoyalty(ctx context.Context, id int64) (database.GetCustomerLoyaltyRow, error)
	UpdateCustomerLoyalty(ctx context.Context, arg database.UpdateCustomerLoyaltyParams) error

	GetCouponByCode(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error)
	UpdateCouponUsage(ctx context.Context, arg database.UpdateCouponUsageParams) error

	CreateStaffLog(ctx context.Context, arg database.CreateStaffLogParams) (database.StaffLog, error)
}

// CreateSaleRequest is the input for committing a sale.
type CreateSaleRequest struct {
	ShopID         uuid.UUID
	ShopName       string
	StaffID        int64
	CustomerID     int64 // 0 = walk-in
	Items          []SaleItemRequest
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  string
	AmountReceived decimal.Decimal // zero defaults to Total
	ChangeAmount   decimal.Decimal
	PointsRedeemed int32
	Status         string // empty defaults to completed
	CouponCode     string
}

// SaleItemRequest is a single cart line.
type SaleItemRequest struct {
	ProductID   int64 // 0 = ad-hoc line with no catalog product
	ProductName string
	Price       decimal.Decimal
	Quantity    int32
}

// UpdateSaleRequest patches a sale header; nil fields are left unchanged.
// If Items is non-nil the sale's items are deleted and re-inserted wholesale.
type UpdateSaleRequest struct {
	Status         *string
	CustomerID     *int64
	Subtotal       *decimal.Decimal
	Discount       *decimal.Decimal
	Total          *decimal.Decimal
	PaymentMethod  *string
	AmountReceived *decimal.Decimal
	ChangeAmount   *decimal.Decimal
	Items          []SaleItemRequest
	ReplaceItems   bool
}

// CreateSaleResult is the committed sale with its inserted items.
type CreateSaleResult struct {
	Sale  database.Sale
	Items []database.SaleItem
}

// SaleService owns the sale write path: bill numbering, header and item
// inserts, and the best-effort stock/loyalty/coupon/audit side effects.
type SaleService struct {
	store SaleStore
	bills *BillNumberGenerator
}

// NewSaleService creates a new SaleService.
func NewSaleService(store SaleStore, bills *BillNumberGenerator) *SaleService {
	return &SaleService{store: store, bills: bills}
}

// CreateSale commits a sale. The underlying store only supports single-row
// writes, so there is no rollback: if an item insert fails after the header
// was written, the header stays behind and the call returns an error. Stock,
// loyalty, coupon, and audit updates run after the items are in and are
// best-effort: their failures are logged and swallowed.
func (s *SaleService) CreateSale(ctx context.Context, req CreateSaleRequest) (*CreateSaleResult, error) {
	if req.StaffID == 0 {
		return nil, ErrMissingStaff
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
	}
	if req.PointsRedeemed < 0 {
		return nil, ErrInvalidPoints
	}

	paymentMethod := enum.PaymentMethod(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = enum.PaymentMethodCash
	}
	if !paymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	status := enum.SaleStatus(req.Status)
	if status == "" {
		status = enum.SaleStatusCompleted
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	// --- GENERATING_BILL ---
	billNumber := s.bills.Next(ctx, req.ShopName)

	amountReceived := req.AmountReceived
	if amountReceived.IsZero() {
		amountReceived = req.Total
	}

	customerID := pgtype.Int8{}
	if req.CustomerID != 0 {
		customerID = pgtype.Int8{Int64: req.CustomerID, Valid: true}
	}
	couponCode := pgtype.Text{}
	if req.CouponCode != "" {
		couponCode = pgtype.Text{String: req.CouponCode, Valid: true}
	}

	// --- WRITING_HEADER ---
	sale, err := s.store.CreateSale(ctx, database.CreateSaleParams{
		BillNumber:     billNumber,
		CustomerID:     customerID,
		Subtotal:       decimalToNumeric(req.Subtotal),
		Discount:       decimalToNumeric(req.Discount),
		Total:          decimalToNumeric(req.Total),
		PaymentMethod:  string(paymentMethod),
		AmountReceived: decimalToNumeric(amountReceived),
		ChangeAmount:   decimalToNumeric(req.ChangeAmount),
		PointsRedeemed: req.PointsRedeemed,
		Status:         string(status),
		CouponCode:     couponCode,
		StaffID:        req.StaffID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stageWritingHeader, err)
	}

	// --- WRITING_ITEMS ---
	// A failure here orphans the already-written header; there is no
	// compensating delete. Surfaced to the caller as a hard error.
	items := make([]database.SaleItem, 0, len(req.Items))
	for i, item := range req.Items {
		inserted, err := s.store.CreateSaleItem(ctx, saleItemParams(sale.ID, item))
		if err != nil {
			return nil, fmt.Errorf("%s: items[%d]: %w", stageWritingItems, i, err)
		}
		items = append(items, inserted)
	}

	// --- ADJUSTING_STOCK ---
	// One adjustment per line item, issued concurrently with no ordering
	// guarantee; one item's failure does not block the others.
	var wg sync.WaitGroup
	for _, item := range req.Items {
		if item.ProductID == 0 {
			continue
		}
		wg.Add(1)
		go func(item SaleItemRequest) {
			defer wg.Done()
			reason := fmt.Sprintf("Sale #%s", billNumber)
			s.ApplyStockDelta(ctx, item.ProductID, -item.Quantity, reason, sale.ID)
		}(item)
	}
	wg.Wait()

	// --- UPDATING_LOYALTY ---
	if req.CustomerID != 0 {
		s.updateLoyalty(ctx, req.CustomerID, req.Total, req.PointsRedeemed, billNumber)
	}

	// --- UPDATING_COUPON ---
	if req.CouponCode != "" {
		s.incrementCouponUsage(ctx, req.ShopID, req.CouponCode)
	}

	// --- LOGGING_AUDIT ---
	s.logStaffAction(ctx, req.StaffID, enum.ActionCreateSale, map[string]any{
		"saleId":     sale.ID,
		"billNumber": billNumber,
		"total":      req.Total,
	})

	return &CreateSaleResult{Sale: sale, Items: items}, nil
}

// ApplyStockDelta applies a signed stock change to a product and appends an
// audit row. The preferred path is a single atomic server-side update; if
// that errors the fallback reads the current stock and writes the new value
// back, which is a read-modify-write race window under concurrent sales of
// the same product. Failure to append the audit row is logged but never
// fails the surrounding operation.
func (s *SaleService) ApplyStockDelta(ctx context.Context, productID int64, delta int32, reason string, saleID int64) {
	if _, err := s.store.AdjustStock(ctx, database.AdjustStockParams{ID: productID, Delta: delta}); err != nil {
		log.Printf("WARN: %s: atomic adjust product %d failed (%v), using manual fallback", stageAdjustingStock, productID, err)
		current, err := s.store.GetProductStock(ctx, productID)
		if err != nil {
			log.Printf("ERROR: %s: read stock for product %d: %v", stageAdjustingStock, productID, err)
		} else if err := s.store.SetProductStock(ctx, database.SetProductStockParams{ID: productID, Stock: current + delta}); err != nil {
			log.Printf("ERROR: %s: write stock for product %d: %v", stageAdjustingStock, productID, err)
		}
	}

	txType := enum.StockTxOut
	qty := delta
	if delta < 0 {
		qty = -delta
	} else {
		txType = enum.StockTxIn
	}
	txSaleID := pgtype.Int8{}
	if saleID != 0 {
		txSaleID = pgtype.Int8{Int64: saleID, Valid: true}
	}
	if _, err := s.store.CreateStockTransaction(ctx, database.CreateStockTransactionParams{
		ProductID: productID,
		Qty:       qty,
		Type:      string(txType),
		Reason:    reason,
		SaleID:    txSaleID,
	}); err != nil {
		log.Printf("ERROR: %s: audit row for product %d: %v", stageAdjustingStock, productID, err)
	}
}

// updateLoyalty recomputes the customer's point balance and lifetime spend.
// 100 currency units earn 1 point; the balance is clamped at zero rather
// than rejecting the sale. Best-effort: every failure is logged and swallowed.
func (s *SaleService) updateLoyalty(ctx context.Context, customerID int64, total decimal.Decimal, pointsRedeemed int32, billNumber string) {
	row, err := s.store.GetCustomerLoyalty(ctx, customerID)
	if err != nil {
		log.Printf("ERROR: %s: fetch customer %d: %v", stageUpdatingLoyalty, customerID, err)
		return
	}

	earned := total.Div(pointsPerUnit).Floor().IntPart()
	newPoints := int64(row.Points) + earned - int64(pointsRedeemed)
	if newPoints < 0 {
		newPoints = 0
	}
	newTotalSpent := numericToDecimal(row.TotalSpent).Add(total)

	log.Printf("loyalty: customer %d bill %s earned=%d redeemed=%d points %d -> %d",
		customerID, billNumber, earned, pointsRedeemed, row.Points, newPoints)

	if err := s.store.UpdateCustomerLoyalty(ctx, database.UpdateCustomerLoyaltyParams{
		ID:         customerID,
		Points:     int32(newPoints),
		TotalSpent: decimalToNumeric(newTotalSpent),
	}); err != nil {
		log.Printf("ERROR: %s: update customer %d: %v", stageUpdatingLoyalty, customerID, err)
	}
}

// incrementCouponUsage bumps the usage counter of the coupon attached to the
// sale. Cap checking happened during cart validation; this is a plain
// read-then-write with no atomicity against concurrent redemptions.
func (s *SaleService) incrementCouponUsage(ctx context.Context, shopID uuid.UUID, code string) {
	coupon, err := s.store.GetCouponByCode(ctx, database.GetCouponByCodeParams{ShopID: shopID, Code: code})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("ERROR: %s: fetch coupon %q: %v", stageUpdatingCoupon, code, err)
		}
		return
	}
	if err := s.store.UpdateCouponUsage(ctx, database.UpdateCouponUsageParams{
		ID:           coupon.ID,
		CurrentUsage: coupon.CurrentUsage + 1,
	}); err != nil {
		log.Printf("ERROR: %s: update coupon %q: %v", stageUpdatingCoupon, code, err)
	}
}

// logStaffAction appends a staff audit entry; best-effort.
func (s *SaleService) logStaffAction(ctx context.Context, staffID int64, action string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		log.Printf("ERROR: %s: marshal details: %v", stageLoggingAudit, err)
		return
	}
	if _, err := s.store.CreateStaffLog(ctx, database.CreateStaffLogParams{
		StaffID: staffID,
		Action:  action,
		Details: payload,
	}); err != nil {
		log.Printf("ERROR: %s: staff %d action %s: %v", stageLoggingAudit, staffID, action, err)
	}
}

// UpdateSale patches only the header fields the request provides and, when
// ReplaceItems is set, deletes and re-inserts the sale's items wholesale.
// There is no diff/merge of items.
func (s *SaleService) UpdateSale(ctx context.Context, id int64, staffID int64, req UpdateSaleRequest) (*CreateSaleResult, error) {
	params := database.UpdateSaleParams{ID: id}

	if req.Status != nil {
		if !enum.SaleStatus(*req.Status).Valid() {
			return nil, ErrInvalidStatus
		}
		params.Status = pgtype.Text{String: *req.Status, Valid: true}
	}
	if req.PaymentMethod != nil {
		if !enum.PaymentMethod(*req.PaymentMethod).Valid() {
			return nil, ErrInvalidPaymentMethod
		}
		params.PaymentMethod = pgtype.Text{String: *req.PaymentMethod, Valid: true}
	}
	if req.CustomerID != nil {
		params.CustomerID = pgtype.Int8{Int64: *req.CustomerID, Valid: true}
	}
	if req.Subtotal != nil {
		params.Subtotal = decimalToNumeric(*req.Subtotal)
	}
	if req.Discount != nil {
		params.Discount = decimalToNumeric(*req.Discount)
	}
	if req.Total != nil {
		params.Total = decimalToNumeric(*req.Total)
	}
	if req.AmountReceived != nil {
		params.AmountReceived = decimalToNumeric(*req.AmountReceived)
	}
	if req.ChangeAmount != nil {
		params.ChangeAmount = decimalToNumeric(*req.ChangeAmount)
	}

	sale, err := s.store.UpdateSale(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("update sale header: %w", err)
	}

	var items []database.SaleItem
	if req.ReplaceItems {
		for i, item := range req.Items {
			if item.Quantity <= 0 {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
			}
		}
		if err := s.store.DeleteSaleItemsBySale(ctx, id); err != nil {
			log.Printf("ERROR: delete items for sale %d: %v", id, err)
		} else {
			for i, item := range req.Items {
				inserted, err := s.store.CreateSaleItem(ctx, saleItemParams(id, item))
				if err != nil {
					log.Printf("ERROR: reinsert items[%d] for sale %d: %v", i, id, err)
					continue
				}
				items = append(items, inserted)
			}
		}
	}

	s.logStaffAction(ctx, staffID, enum.ActionUpdateSale, map[string]any{
		"saleId":     sale.ID,
		"billNumber": sale.BillNumber,
	})

	return &CreateSaleResult{Sale: sale, Items: items}, nil
}

// DeleteSale removes a sale and its items. Items go first so no orphaned
// item stays queryable by sale ID even without a DB-level cascade.
func (s *SaleService) DeleteSale(ctx context.Context, id int64, staffID int64) error {
	if err := s.store.DeleteSaleItemsBySale(ctx, id); err != nil {
		return fmt.Errorf("delete sale items: %w", err)
	}
	if err := s.store.DeleteSale(ctx, id); err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	s.logStaffAction(ctx, staffID, enum.ActionDeleteSale, map[string]any{"saleId": id})
	return nil
}

func saleItemParams(saleID int64, item SaleItemRequest) database.CreateSaleItemParams {
	productID := pgtype.Int8{}
	if item.ProductID != 0 {
		productID = pgtype.Int8{Int64: item.ProductID, Valid: true}
	}
	subtotal := item.Price.Mul(decimal.NewFromInt32(item.Quantity))
	return database.CreateSaleItemParams{
		SaleID:      saleID,
		ProductID:   productID,
		ProductName: item.ProductName,
		Price:       decimalToNumeric(item.Price),
		Quantity:    item.Quantity,
		Subtotal:    decimalToNumeric(subtotal),
	}
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
