package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/somsri-pos/api/internal/cache"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/middleware"
	"github.com/somsri-pos/api/internal/report"
	"github.com/somsri-pos/api/internal/service"
)

// ReportStore defines the database methods needed by the report endpoints.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportStore interface {
	ListSaleItemRows(ctx context.Context, arg database.ListSaleItemRowsParams) ([]database.SaleItemRow, error)
	GetSalesSummary(ctx context.Context, arg database.GetSalesSummaryParams) (database.GetSalesSummaryRow, error)
}

// ReportHandler serves the dashboard and product statistics endpoints.
// Responses are cached briefly; dashboards are polled and tolerate a short
// staleness window.
type ReportHandler struct {
	store    ReportStore
	cache    cache.ReportCache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(store ReportStore, c cache.ReportCache, cacheTTL time.Duration) *ReportHandler {
	return &ReportHandler{
		store:    store,
		cache:    c,
		cacheTTL: cacheTTL,
		now:      service.LocalNow,
	}
}

// RegisterRoutes registers report endpoints on the given Chi router.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/product-stats", h.ProductStats)
}

// Dashboard serves GET /sales/dashboard?viewType=daily|yearly&year=&month=.
func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	params := report.DashboardParams{
		ViewType: r.URL.Query().Get("viewType"),
		Now:      h.now(),
	}
	if s := r.URL.Query().Get("year"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid year"})
			return
		}
		params.Year = n
	}
	if s := r.URL.Query().Get("month"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 12 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid month"})
			return
		}
		params.Month = n
	}

	cacheKey := fmt.Sprintf("dashboard:%s:%s:%d:%d", claims.ShopID, params.ViewType, params.Year, params.Month)
	if h.serveCached(w, r.Context(), cacheKey) {
		return
	}

	start, end := params.Window()
	rows, err := h.store.ListSaleItemRows(r.Context(), database.ListSaleItemRowsParams{
		ShopID: claims.ShopID,
		Start:  pgtype.Timestamptz{Time: start, Valid: true},
		End:    pgtype.Timestamptz{Time: end, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: dashboard rows: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	summary, err := h.store.GetSalesSummary(r.Context(), database.GetSalesSummaryParams{ShopID: claims.ShopID})
	if err != nil {
		log.Printf("ERROR: dashboard summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	dash := report.BuildDashboard(rows, report.SalesTotals{
		Amount:    numericDecimal(summary.TotalAmount),
		BillCount: summary.BillCount,
	}, params)

	h.respondAndCache(w, r.Context(), cacheKey, dash)
}

// ProductStats serves GET /sales/product-stats?dateRange=&limit=&offset=.
func (h *ReportHandler) ProductStats(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	dateRange := r.URL.Query().Get("dateRange")
	if dateRange == "" {
		dateRange = report.RangeToday
	}
	limit, offset := parsePagination(r)

	cacheKey := fmt.Sprintf("product-stats:%s:%s:%d:%d", claims.ShopID, dateRange, limit, offset)
	if h.serveCached(w, r.Context(), cacheKey) {
		return
	}

	start, end := report.ProductSalesWindow(dateRange, h.now())
	rows, err := h.store.ListSaleItemRows(r.Context(), database.ListSaleItemRowsParams{
		ShopID: claims.ShopID,
		Start:  pgtype.Timestamptz{Time: start, Valid: true},
		End:    pgtype.Timestamptz{Time: end, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: product stats rows: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	page := report.BuildProductSales(rows, int(limit), int(offset))
	h.respondAndCache(w, r.Context(), cacheKey, page)
}

// serveCached writes the cached payload if present. Cache errors are logged
// and treated as misses.
func (h *ReportHandler) serveCached(w http.ResponseWriter, ctx context.Context, key string) bool {
	payload, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		log.Printf("WARN: report cache get %s: %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
	return true
}

func (h *ReportHandler) respondAndCache(w http.ResponseWriter, ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ERROR: marshal report: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if err := h.cache.Set(ctx, key, payload, h.cacheTTL); err != nil {
		log.Printf("WARN: report cache set %s: %v", key, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
