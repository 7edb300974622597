package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/middleware"
)

// CouponStore defines the database methods needed by coupon handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CouponStore interface {
	ListCoupons(ctx context.Context, shopID uuid.UUID) ([]database.Coupon, error)
	GetCouponByCode(ctx context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error)
}

// CouponHandler handles coupon read endpoints. Usage counters move through
// the sale pipeline, not through this handler.
type CouponHandler struct {
	store CouponStore
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(store CouponStore) *CouponHandler {
	return &CouponHandler{store: store}
}

// RegisterRoutes registers coupon endpoints on the given Chi router.
func (h *CouponHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{code}", h.GetByCode)
}

type couponResponse struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Discount     string    `json:"discount"`
	CurrentUsage int32     `json:"currentUsage"`
	MaxUsage     *int32    `json:"maxUsage"`
	Exhausted    bool      `json:"exhausted"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toCouponResponse(c database.Coupon) couponResponse {
	resp := couponResponse{
		ID:           c.ID,
		Code:         c.Code,
		Discount:     moneyString(c.Discount),
		CurrentUsage: c.CurrentUsage,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt,
	}
	if c.MaxUsage.Valid {
		resp.MaxUsage = &c.MaxUsage.Int32
		resp.Exhausted = c.CurrentUsage >= c.MaxUsage.Int32
	}
	return resp
}

// List returns the shop's active coupons.
func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	coupons, err := h.store.ListCoupons(r.Context(), claims.ShopID)
	if err != nil {
		log.Printf("ERROR: list coupons: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]couponResponse, len(coupons))
	for i, c := range coupons {
		resp[i] = toCouponResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetByCode validates a coupon code before it is attached to a cart.
func (h *CouponHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	code := chi.URLParam(r, "code")

	coupon, err := h.store.GetCouponByCode(r.Context(), database.GetCouponByCodeParams{
		ShopID: claims.ShopID,
		Code:   code,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "coupon not found"})
			return
		}
		log.Printf("ERROR: get coupon: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCouponResponse(coupon))
}
