package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/handler"
	"github.com/somsri-pos/api/internal/middleware"
)

type mockCouponStore struct {
	coupons []database.Coupon
}

func (m *mockCouponStore) ListCoupons(_ context.Context, shopID uuid.UUID) ([]database.Coupon, error) {
	var result []database.Coupon
	for _, c := range m.coupons {
		if c.ShopID == shopID && c.IsActive {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockCouponStore) GetCouponByCode(_ context.Context, arg database.GetCouponByCodeParams) (database.Coupon, error) {
	for _, c := range m.coupons {
		if c.ShopID == arg.ShopID && c.Code == arg.Code && c.IsActive {
			return c, nil
		}
	}
	return database.Coupon{}, pgx.ErrNoRows
}

func setupCouponRouter(store *mockCouponStore) *chi.Mux {
	h := handler.NewCouponHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Use(middleware.RequireShop)
	r.Route("/coupons", h.RegisterRoutes)
	return r
}

func TestCouponList(t *testing.T) {
	shopID := uuid.New()
	store := &mockCouponStore{coupons: []database.Coupon{
		{ID: 1, ShopID: shopID, Code: "NEWYEAR", Discount: testNumeric("50.00"), IsActive: true, CreatedAt: time.Now()},
		{ID: 2, ShopID: uuid.New(), Code: "OTHER", Discount: testNumeric("10.00"), IsActive: true, CreatedAt: time.Now()},
	}}
	router := setupCouponRouter(store)

	rr := doAuthRequest(t, router, "GET", "/coupons", nil, testClaims(shopID, "staff"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("coupons: got %d, want 1", len(resp))
	}
	if resp[0]["code"] != "NEWYEAR" {
		t.Errorf("code: got %v", resp[0]["code"])
	}
	if resp[0]["discount"] != "50.00" {
		t.Errorf("discount: got %v", resp[0]["discount"])
	}
}

func TestCouponGetByCode_ReportsExhaustion(t *testing.T) {
	shopID := uuid.New()
	store := &mockCouponStore{coupons: []database.Coupon{
		{
			ID: 1, ShopID: shopID, Code: "LIMITED", Discount: testNumeric("20.00"),
			CurrentUsage: 10, MaxUsage: pgtype.Int4{Int32: 10, Valid: true},
			IsActive: true, CreatedAt: time.Now(),
		},
		{
			ID: 2, ShopID: shopID, Code: "FOREVER", Discount: testNumeric("5.00"),
			CurrentUsage: 999, IsActive: true, CreatedAt: time.Now(),
		},
	}}
	router := setupCouponRouter(store)

	rr := doAuthRequest(t, router, "GET", "/coupons/LIMITED", nil, testClaims(shopID, "staff"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeMap(t, rr)
	if resp["exhausted"] != true {
		t.Errorf("exhausted: got %v, want true", resp["exhausted"])
	}
	if resp["maxUsage"] != float64(10) {
		t.Errorf("maxUsage: got %v, want 10", resp["maxUsage"])
	}

	// No usage cap means never exhausted.
	rr = doAuthRequest(t, router, "GET", "/coupons/FOREVER", nil, testClaims(shopID, "staff"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	resp = decodeMap(t, rr)
	if resp["exhausted"] != false {
		t.Errorf("exhausted: got %v, want false", resp["exhausted"])
	}
	if resp["maxUsage"] != nil {
		t.Errorf("maxUsage: got %v, want null", resp["maxUsage"])
	}
}

func TestCouponGetByCode_NotFound(t *testing.T) {
	store := &mockCouponStore{}
	router := setupCouponRouter(store)

	rr := doAuthRequest(t, router, "GET", "/coupons/NOPE", nil, testClaims(uuid.New(), "staff"))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
