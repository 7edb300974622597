package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/enum"
	"github.com/somsri-pos/api/internal/middleware"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	ListProducts(ctx context.Context, arg database.ListProductsParams) ([]database.Product, error)
	CountProducts(ctx context.Context, arg database.CountProductsParams) (int64, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	SoftDeleteProduct(ctx context.Context, arg database.SoftDeleteProductParams) (int64, error)
	ListStockTransactionsByProduct(ctx context.Context, arg database.ListStockTransactionsByProductParams) ([]database.StockTransaction, error)
	CreateStaffLog(ctx context.Context, arg database.CreateStaffLogParams) (database.StaffLog, error)
}

// StockAdjuster applies a signed stock change with its audit row.
// Satisfied by *service.SaleService.
type StockAdjuster interface {
	ApplyStockDelta(ctx context.Context, productID int64, delta int32, reason string, saleID int64)
}

// ProductHandler handles product CRUD and stock endpoints.
type ProductHandler struct {
	store    ProductStore
	adjuster StockAdjuster
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore, adjuster StockAdjuster) *ProductHandler {
	return &ProductHandler{store: store, adjuster: adjuster}
}

// RegisterRoutes registers product endpoints on the given Chi router. The
// router must already enforce authentication and shop scoping.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id:[0-9]+}", h.Get)
	r.Post("/", h.Create)
	r.Put("/{id:[0-9]+}", h.Update)
	r.Delete("/{id:[0-9]+}", h.Delete)
	r.Post("/{id:[0-9]+}/stock", h.AdjustStock)
	r.Get("/{id:[0-9]+}/stock-transactions", h.StockTransactions)
}

// --- Request / Response types ---

type createProductRequest struct {
	CategoryID *int64 `json:"categoryId"`
	Barcode    string `json:"barcode"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Cost       string `json:"cost"`
	Stock      int32  `json:"stock"`
}

type updateProductRequest struct {
	CategoryID *int64  `json:"categoryId"`
	Barcode    *string `json:"barcode"`
	Name       *string `json:"name"`
	Price      *string `json:"price"`
	Cost       *string `json:"cost"`
}

type adjustStockRequest struct {
	Qty    int32  `json:"qty"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type productResponse struct {
	ID         int64     `json:"id"`
	ShopID     uuid.UUID `json:"shopId"`
	CategoryID *int64    `json:"categoryId"`
	Barcode    *string   `json:"barcode"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Cost       string    `json:"cost"`
	Stock      int32     `json:"stock"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type productListResponse struct {
	Data     []productResponse `json:"data"`
	Total    int64             `json:"total"`
	Limit    int32             `json:"limit"`
	Offset   int32             `json:"offset"`
	NextPage *int32            `json:"nextPage"`
}

type stockTransactionResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	Qty       int32     `json:"qty"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	SaleID    *int64    `json:"saleId"`
	CreatedAt time.Time `json:"createdAt"`
}

func toProductResponse(p database.Product) productResponse {
	resp := productResponse{
		ID:        p.ID,
		ShopID:    p.ShopID,
		Name:      p.Name,
		Price:     moneyString(p.Price),
		Cost:      moneyString(p.Cost),
		Stock:     p.Stock,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.CategoryID.Valid {
		resp.CategoryID = &p.CategoryID.Int64
	}
	if p.Barcode.Valid {
		resp.Barcode = &p.Barcode.String
	}
	return resp
}

// --- Handlers ---

// List returns the shop's active products with optional name/barcode search.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	limit, offset := parsePagination(r)
	search := textParam(r, "search")

	products, err := h.store.ListProducts(r.Context(), database.ListProductsParams{
		ShopID: claims.ShopID,
		Search: search,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	total, err := h.store.CountProducts(r.Context(), database.CountProductsParams{
		ShopID: claims.ShopID,
		Search: search,
	})
	if err != nil {
		log.Printf("ERROR: count products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	data := make([]productResponse, len(products))
	for i, p := range products {
		data[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, productListResponse{
		Data:     data,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		NextPage: nextPageFor(limit, offset, total),
	})
}

// Get returns a single product by ID.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: id, ShopID: claims.ShopID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Create adds a new product to the shop's catalog.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Price == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price is required"})
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		respondPriceError(w, "price", err)
		return
	}
	cost := pgtype.Numeric{}
	if req.Cost != "" {
		if cost, err = parsePrice(req.Cost); err != nil {
			respondPriceError(w, "cost", err)
			return
		}
	}
	if req.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stock must be >= 0"})
		return
	}

	categoryID := pgtype.Int8{}
	if req.CategoryID != nil {
		categoryID = pgtype.Int8{Int64: *req.CategoryID, Valid: true}
	}
	barcode := pgtype.Text{}
	if req.Barcode != "" {
		barcode = pgtype.Text{String: req.Barcode, Valid: true}
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		ShopID:     claims.ShopID,
		CategoryID: categoryID,
		Barcode:    barcode,
		Name:       req.Name,
		Price:      price,
		Cost:       cost,
		Stock:      req.Stock,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid categoryId"})
			return
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// Update patches an existing product; omitted fields keep their value.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params := database.UpdateProductParams{ID: id, ShopID: claims.ShopID}
	if req.CategoryID != nil {
		params.CategoryID = pgtype.Int8{Int64: *req.CategoryID, Valid: true}
	}
	if req.Barcode != nil {
		params.Barcode = pgtype.Text{String: *req.Barcode, Valid: true}
	}
	if req.Name != nil {
		if *req.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name cannot be empty"})
			return
		}
		params.Name = pgtype.Text{String: *req.Name, Valid: true}
	}
	if req.Price != nil {
		if params.Price, err = parsePrice(*req.Price); err != nil {
			respondPriceError(w, "price", err)
			return
		}
	}
	if req.Cost != nil {
		if params.Cost, err = parsePrice(*req.Cost); err != nil {
			respondPriceError(w, "cost", err)
			return
		}
	}

	product, err := h.store.UpdateProduct(r.Context(), params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid categoryId"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Delete soft-deletes a product by setting is_active=false.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	_, err = h.store.SoftDeleteProduct(r.Context(), database.SoftDeleteProductParams{ID: id, ShopID: claims.ShopID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdjustStock applies a manual IN/OUT stock movement with an audit row and a
// staff log entry. The product's stock field stays authoritative; the
// transaction list is history only.
func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "qty must be > 0"})
		return
	}
	txType := enum.StockTxType(req.Type)
	if txType != enum.StockTxIn && txType != enum.StockTxOut {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type must be IN or OUT"})
		return
	}

	// Ownership check before mutating anything.
	if _, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: id, ShopID: claims.ShopID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product for stock adjust: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	delta := req.Qty
	if txType == enum.StockTxOut {
		delta = -delta
	}
	reason := req.Reason
	if reason == "" {
		reason = "Manual adjustment"
	}
	h.adjuster.ApplyStockDelta(r.Context(), id, delta, reason, 0)

	if _, err := h.store.CreateStaffLog(r.Context(), database.CreateStaffLogParams{
		StaffID: claims.StaffID,
		Action:  enum.ActionAdjustStock,
		Details: mustJSON(map[string]any{"productId": id, "qty": req.Qty, "type": string(txType), "reason": reason}),
	}); err != nil {
		log.Printf("ERROR: staff log for stock adjust: %v", err)
	}

	product, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: id, ShopID: claims.ShopID})
	if err != nil {
		log.Printf("ERROR: reload product after stock adjust: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// StockTransactions returns a product's recent stock movement history.
func (h *ProductHandler) StockTransactions(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	if _, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: id, ShopID: claims.ShopID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product for stock history: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	limit, _ := parsePagination(r)
	txs, err := h.store.ListStockTransactionsByProduct(r.Context(), database.ListStockTransactionsByProductParams{
		ProductID: id,
		Limit:     limit,
	})
	if err != nil {
		log.Printf("ERROR: list stock transactions: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]stockTransactionResponse, len(txs))
	for i, t := range txs {
		resp[i] = stockTransactionResponse{
			ID:        t.ID,
			ProductID: t.ProductID,
			Qty:       t.Qty,
			Type:      t.Type,
			Reason:    t.Reason,
			CreatedAt: t.CreatedAt,
		}
		if t.SaleID.Valid {
			resp[i].SaleID = &t.SaleID.Int64
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

var errNegativePrice = errors.New("negative price")

func parsePrice(s string) (pgtype.Numeric, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return pgtype.Numeric{}, err
	}
	if d.IsNegative() {
		return pgtype.Numeric{}, errNegativePrice
	}
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}

func respondPriceError(w http.ResponseWriter, field string, err error) {
	if errors.Is(err, errNegativePrice) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("%s must be >= 0", field)})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + field})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
