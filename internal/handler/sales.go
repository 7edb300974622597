package handler

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/somsri-pos/api/internal/middleware"
	"github.com/somsri-pos/api/internal/service"
	"github.com/somsri-pos/api/internal/ws"
)

// SalesStore defines the database methods needed by the sale read endpoints.
// Satisfied by *database.Queries; narrow interface for testability.
type SalesStore interface {
	GetSale(ctx context.Context, id int64) (database.Sale, error)
	GetSaleByBillNumber(ctx context.Context, arg database.GetSaleByBillNumberParams) (database.Sale, error)
	ListSales(ctx context.Context, arg database.ListSalesParams) ([]database.ListSalesRow, error)
	CountSales(ctx context.Context, arg database.CountSalesParams) (int64, error)
	ListSaleItemsBySale(ctx context.Context, saleID int64) ([]database.SaleItem, error)
	ListSalesByStatus(ctx context.Context, arg database.ListSalesByStatusParams) ([]database.Sale, error)
	ListCompletedSalesSince(ctx context.Context, arg database.ListCompletedSalesSinceParams) ([]database.Sale, error)
	GetSalesSummary(ctx context.Context, arg database.GetSalesSummaryParams) (database.GetSalesSummaryRow, error)
}

// SaleWriter is the write path behind POST/PUT/DELETE.
// Satisfied by *service.SaleService.
type SaleWriter interface {
	CreateSale(ctx context.Context, req service.CreateSaleRequest) (*service.CreateSaleResult, error)
	UpdateSale(ctx context.Context, id int64, staffID int64, req service.UpdateSaleRequest) (*service.CreateSaleResult, error)
	DeleteSale(ctx context.Context, id int64, staffID int64) error
}

// Broadcaster pushes events to connected POS clients.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToShop(shopID uuid.UUID, event ws.Event)
}

// SalesHandler handles sale endpoints.
type SalesHandler struct {
	store  SalesStore
	writer SaleWriter
	hub    Broadcaster
}

// NewSalesHandler creates a new SalesHandler.
func NewSalesHandler(store SalesStore, writer SaleWriter, hub Broadcaster) *SalesHandler {
	return &SalesHandler{store: store, writer: writer, hub: hub}
}

// RegisterRoutes registers sale endpoints on the given Chi router. The
// router must already enforce authentication and shop scoping; Update and
// Delete additionally require the admin role.
func (h *SalesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/today", h.Today)
	r.Get("/summary", h.Summary)
	r.Get("/held", h.Held)
	r.Get("/bill/{billNumber}", h.GetByBillNumber)
	r.Get("/{id:[0-9]+}", h.Get)

	admin := r.With(middleware.RequireRole("admin"))
	admin.Put("/{id:[0-9]+}", h.Update)
	admin.Delete("/{id:[0-9]+}", h.Delete)
}

// --- Request / Response types ---

type saleItemInput struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Price       string `json:"price"`
	Quantity    int32  `json:"quantity"`
}

type createSaleRequest struct {
	CustomerID     int64           `json:"customerId"`
	Items          []saleItemInput `json:"items"`
	Subtotal       string          `json:"subtotal"`
	Discount       string          `json:"discount"`
	Total          string          `json:"total"`
	PaymentMethod  string          `json:"paymentMethod"`
	AmountReceived string          `json:"amountReceived"`
	ChangeAmount   string          `json:"changeAmount"`
	PointsRedeemed int32           `json:"pointsRedeemed"`
	Status         string          `json:"status"`
	CouponCode     string          `json:"couponCode"`
}

type updateSaleRequest struct {
	Status         *string          `json:"status"`
	CustomerID     *int64           `json:"customerId"`
	Subtotal       *string          `json:"subtotal"`
	Discount       *string          `json:"discount"`
	Total          *string          `json:"total"`
	PaymentMethod  *string          `json:"paymentMethod"`
	AmountReceived *string          `json:"amountReceived"`
	ChangeAmount   *string          `json:"changeAmount"`
	Items          *[]saleItemInput `json:"items"`
}

type saleItemResponse struct {
	ID          int64  `json:"id"`
	ProductID   *int64 `json:"productId"`
	ProductName string `json:"productName"`
	Price       string `json:"price"`
	Quantity    int32  `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

type saleResponse struct {
	ID             int64              `json:"id"`
	BillNumber     string             `json:"billNumber"`
	CustomerID     *int64             `json:"customerId"`
	Items          []saleItemResponse `json:"items,omitempty"`
	Subtotal       string             `json:"subtotal"`
	Discount       string             `json:"discount"`
	Total          string             `json:"total"`
	PaymentMethod  string             `json:"paymentMethod"`
	AmountReceived string             `json:"amountReceived"`
	ChangeAmount   string             `json:"changeAmount"`
	PointsRedeemed int32              `json:"pointsRedeemed"`
	Status         string             `json:"status"`
	CouponCode     *string            `json:"couponCode"`
	StaffID        int64              `json:"staffId"`
	StaffName      string             `json:"staffName,omitempty"`
	CustomerName   *string            `json:"customerName,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

type saleListResponse struct {
	Data     []saleResponse `json:"data"`
	Total    int64          `json:"total"`
	Limit    int32          `json:"limit"`
	Offset   int32          `json:"offset"`
	NextPage *int32         `json:"nextPage"`
}

type salesSummaryResponse struct {
	TotalSales  int64  `json:"totalSales"`
	TotalAmount string `json:"totalAmount"`
	TodaySales  int64  `json:"todaySales"`
	TodayAmount string `json:"todayAmount"`
}

func toSaleResponse(s database.Sale, items []database.SaleItem) saleResponse {
	resp := saleResponse{
		ID:             s.ID,
		BillNumber:     s.BillNumber,
		Subtotal:       moneyString(s.Subtotal),
		Discount:       moneyString(s.Discount),
		Total:          moneyString(s.Total),
		PaymentMethod:  s.PaymentMethod,
		AmountReceived: moneyString(s.AmountReceived),
		ChangeAmount:   moneyString(s.ChangeAmount),
		PointsRedeemed: s.PointsRedeemed,
		Status:         s.Status,
		StaffID:        s.StaffID,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.CustomerID.Valid {
		resp.CustomerID = &s.CustomerID.Int64
	}
	if s.CouponCode.Valid {
		resp.CouponCode = &s.CouponCode.String
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toSaleItemResponse(item))
	}
	return resp
}

func toSaleItemResponse(i database.SaleItem) saleItemResponse {
	resp := saleItemResponse{
		ID:          i.ID,
		ProductName: i.ProductName,
		Price:       moneyString(i.Price),
		Quantity:    i.Quantity,
		Subtotal:    moneyString(i.Subtotal),
	}
	if i.ProductID.Valid {
		resp.ProductID = &i.ProductID.Int64
	}
	return resp
}

// --- Handlers ---

// List returns the shop's sales, newest first, with optional status,
// customerId, search (bill number substring) and startDate/endDate filters.
func (h *SalesHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	limit, offset := parsePagination(r)

	params := database.ListSalesParams{
		ShopID: claims.ShopID,
		Status: textParam(r, "status"),
		Search: textParam(r, "search"),
		Limit:  limit,
		Offset: offset,
	}
	countParams := database.CountSalesParams{
		ShopID: params.ShopID,
		Status: params.Status,
		Search: params.Search,
	}

	if s := r.URL.Query().Get("customerId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customerId"})
			return
		}
		params.CustomerID = pgtype.Int8{Int64: id, Valid: true}
		countParams.CustomerID = params.CustomerID
	}
	for _, rangeParam := range []struct {
		name string
		dest *pgtype.Timestamptz
		cnt  *pgtype.Timestamptz
	}{
		{"startDate", &params.StartDate, &countParams.StartDate},
		{"endDate", &params.EndDate, &countParams.EndDate},
	} {
		if s := r.URL.Query().Get(rangeParam.name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + rangeParam.name})
				return
			}
			*rangeParam.dest = pgtype.Timestamptz{Time: t, Valid: true}
			*rangeParam.cnt = *rangeParam.dest
		}
	}

	rows, err := h.store.ListSales(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	total, err := h.store.CountSales(r.Context(), countParams)
	if err != nil {
		log.Printf("ERROR: count sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	data := make([]saleResponse, len(rows))
	for i, row := range rows {
		resp := toSaleResponse(row.Sale, nil)
		resp.StaffName = row.StaffName
		if row.CustomerName.Valid {
			resp.CustomerName = &row.CustomerName.String
		}
		data[i] = resp
	}

	writeJSON(w, http.StatusOK, saleListResponse{
		Data:     data,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		NextPage: nextPageFor(limit, offset, total),
	})
}

// Get returns a single sale with its items.
func (h *SalesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sale ID"})
		return
	}

	sale, err := h.store.GetSale(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sale not found"})
			return
		}
		log.Printf("ERROR: get sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListSaleItemsBySale(r.Context(), sale.ID)
	if err != nil {
		log.Printf("ERROR: list sale items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toSaleResponse(sale, items))
}

// GetByBillNumber looks a sale up by its printed bill number, scoped to the
// caller's shop.
func (h *SalesHandler) GetByBillNumber(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	billNumber := chi.URLParam(r, "billNumber")

	sale, err := h.store.GetSaleByBillNumber(r.Context(), database.GetSaleByBillNumberParams{
		BillNumber: billNumber,
		ShopID:     claims.ShopID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sale not found"})
			return
		}
		log.Printf("ERROR: get sale by bill number: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListSaleItemsBySale(r.Context(), sale.ID)
	if err != nil {
		log.Printf("ERROR: list sale items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toSaleResponse(sale, items))
}

// Today returns the shop's completed sales since local midnight.
func (h *SalesHandler) Today(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	now := service.LocalNow()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sales, err := h.store.ListCompletedSalesSince(r.Context(), database.ListCompletedSalesSinceParams{
		ShopID: claims.ShopID,
		Since:  pgtype.Timestamptz{Time: midnight, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: list today's sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]saleResponse, len(sales))
	for i, s := range sales {
		resp[i] = toSaleResponse(s, nil)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Held returns the shop's held (parked) sales.
func (h *SalesHandler) Held(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	sales, err := h.store.ListSalesByStatus(r.Context(), database.ListSalesByStatusParams{
		ShopID: claims.ShopID,
		Status: "held",
	})
	if err != nil {
		log.Printf("ERROR: list held sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]saleResponse, len(sales))
	for i, s := range sales {
		resp[i] = toSaleResponse(s, nil)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Summary returns lifetime and today's bill count and revenue.
func (h *SalesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	now := service.LocalNow()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	lifetime, err := h.store.GetSalesSummary(r.Context(), database.GetSalesSummaryParams{ShopID: claims.ShopID})
	if err != nil {
		log.Printf("ERROR: sales summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	today, err := h.store.GetSalesSummary(r.Context(), database.GetSalesSummaryParams{
		ShopID: claims.ShopID,
		Since:  pgtype.Timestamptz{Time: midnight, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: today's sales summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, salesSummaryResponse{
		TotalSales:  lifetime.BillCount,
		TotalAmount: moneyString(lifetime.TotalAmount),
		TodaySales:  today.BillCount,
		TodayAmount: moneyString(today.TotalAmount),
	})
}

// Create commits a new sale and broadcasts sale.created to the shop's
// connected clients.
func (h *SalesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var req createSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.CreateSaleRequest{
		ShopID:         claims.ShopID,
		ShopName:       claims.ShopName,
		StaffID:        claims.StaffID,
		CustomerID:     req.CustomerID,
		PaymentMethod:  req.PaymentMethod,
		PointsRedeemed: req.PointsRedeemed,
		Status:         req.Status,
		CouponCode:     req.CouponCode,
	}

	var err error
	if svcReq.Subtotal, err = parseRequiredDecimal(req.Subtotal, "subtotal", w); err != nil {
		return
	}
	if svcReq.Total, err = parseRequiredDecimal(req.Total, "total", w); err != nil {
		return
	}
	if svcReq.Discount, err = parseOptionalDecimal(req.Discount, "discount", w); err != nil {
		return
	}
	if svcReq.AmountReceived, err = parseOptionalDecimal(req.AmountReceived, "amountReceived", w); err != nil {
		return
	}
	if svcReq.ChangeAmount, err = parseOptionalDecimal(req.ChangeAmount, "changeAmount", w); err != nil {
		return
	}

	for _, item := range req.Items {
		price, perr := decimal.NewFromString(item.Price)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item price"})
			return
		}
		svcReq.Items = append(svcReq.Items, service.SaleItemRequest{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       price,
			Quantity:    item.Quantity,
		})
	}

	result, err := h.writer.CreateSale(r.Context(), svcReq)
	if err != nil {
		if isSaleValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: create sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create sale"})
		return
	}

	resp := toSaleResponse(result.Sale, result.Items)

	if h.hub != nil {
		if payload, merr := json.Marshal(resp); merr == nil {
			h.hub.BroadcastToShop(claims.ShopID, ws.Event{Type: "sale.created", Payload: payload})
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Update patches a sale's header and optionally replaces its items.
func (h *SalesHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sale ID"})
		return
	}

	var req updateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.UpdateSaleRequest{
		Status:        req.Status,
		CustomerID:    req.CustomerID,
		PaymentMethod: req.PaymentMethod,
	}
	for _, field := range []struct {
		src  *string
		dest **decimal.Decimal
		name string
	}{
		{req.Subtotal, &svcReq.Subtotal, "subtotal"},
		{req.Discount, &svcReq.Discount, "discount"},
		{req.Total, &svcReq.Total, "total"},
		{req.AmountReceived, &svcReq.AmountReceived, "amountReceived"},
		{req.ChangeAmount, &svcReq.ChangeAmount, "changeAmount"},
	} {
		if field.src == nil {
			continue
		}
		d, derr := decimal.NewFromString(*field.src)
		if derr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + field.name})
			return
		}
		*field.dest = &d
	}
	if req.Items != nil {
		svcReq.ReplaceItems = true
		for _, item := range *req.Items {
			price, perr := decimal.NewFromString(item.Price)
			if perr != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item price"})
				return
			}
			svcReq.Items = append(svcReq.Items, service.SaleItemRequest{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Price:       price,
				Quantity:    item.Quantity,
			})
		}
	}

	result, err := h.writer.UpdateSale(r.Context(), id, claims.StaffID, svcReq)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sale not found"})
			return
		}
		if isSaleValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: update sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update sale"})
		return
	}

	writeJSON(w, http.StatusOK, toSaleResponse(result.Sale, result.Items))
}

// Delete removes a sale along with its items.
func (h *SalesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sale ID"})
		return
	}

	if err := h.writer.DeleteSale(r.Context(), id, claims.StaffID); err != nil {
		log.Printf("ERROR: delete sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete sale"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func isSaleValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidStatus) ||
		errors.Is(err, service.ErrInvalidPoints) ||
		errors.Is(err, service.ErrMissingStaff)
}

func parseRequiredDecimal(s, name string, w http.ResponseWriter) (decimal.Decimal, error) {
	if s == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " is required"})
		return decimal.Decimal{}, errors.New(name + " is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return decimal.Decimal{}, err
	}
	return d, nil
}

func parseOptionalDecimal(s, name string, w http.ResponseWriter) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return decimal.Decimal{}, err
	}
	return d, nil
}
