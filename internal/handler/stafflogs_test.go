package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/handler"
	"github.com/somsri-pos/api/internal/middleware"
)

type mockStaffLogStore struct {
	rows       []database.ListStaffLogsRow
	total      int64
	lastParams database.ListStaffLogsParams
}

func (m *mockStaffLogStore) ListStaffLogs(_ context.Context, arg database.ListStaffLogsParams) ([]database.ListStaffLogsRow, error) {
	m.lastParams = arg
	return m.rows, nil
}

func (m *mockStaffLogStore) CountStaffLogs(_ context.Context, _ database.CountStaffLogsParams) (int64, error) {
	return m.total, nil
}

func setupStaffLogRouter(store *mockStaffLogStore) *chi.Mux {
	h := handler.NewStaffLogHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Use(middleware.RequireShop)
	r.Route("/staff-logs", func(sub chi.Router) {
		sub.Use(middleware.RequireRole("admin"))
		h.RegisterRoutes(sub)
	})
	return r
}

func TestStaffLogList(t *testing.T) {
	store := &mockStaffLogStore{
		rows: []database.ListStaffLogsRow{
			{
				StaffLog: database.StaffLog{
					ID: 1, StaffID: 7, Action: "CREATE_SALE",
					Details:   []byte(`{"saleId":42,"billNumber":"ss1501680001"}`),
					CreatedAt: time.Now(),
				},
				StaffName:     "Malee",
				StaffUsername: "malee",
			},
		},
		total: 75,
	}
	shopID := uuid.New()
	router := setupStaffLogRouter(store)

	rr := doAuthRequest(t, router, "GET", "/staff-logs?staffId=7&action=SALE&limit=50", nil, testClaims(shopID, "admin"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeMap(t, rr)
	if resp["total"] != float64(75) {
		t.Errorf("total: got %v, want 75", resp["total"])
	}
	if resp["nextPage"] != float64(50) {
		t.Errorf("nextPage: got %v, want 50", resp["nextPage"])
	}
	data := resp["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("data: got %d rows", len(data))
	}
	row := data[0].(map[string]interface{})
	if row["action"] != "CREATE_SALE" {
		t.Errorf("action: got %v", row["action"])
	}
	if row["staffName"] != "Malee" {
		t.Errorf("staffName: got %v", row["staffName"])
	}
	details, ok := row["details"].(map[string]interface{})
	if !ok {
		t.Fatalf("details should be a JSON object, got %v", row["details"])
	}
	if details["billNumber"] != "ss1501680001" {
		t.Errorf("details billNumber: got %v", details["billNumber"])
	}

	if store.lastParams.ShopID != shopID {
		t.Errorf("shop scope: got %v, want %v", store.lastParams.ShopID, shopID)
	}
	if !store.lastParams.StaffID.Valid || store.lastParams.StaffID.Int64 != 7 {
		t.Errorf("staffId filter: got %+v", store.lastParams.StaffID)
	}
	if !store.lastParams.Action.Valid || store.lastParams.Action.String != "SALE" {
		t.Errorf("action filter: got %+v", store.lastParams.Action)
	}
}

func TestStaffLogList_AdminOnly(t *testing.T) {
	store := &mockStaffLogStore{}
	router := setupStaffLogRouter(store)

	rr := doAuthRequest(t, router, "GET", "/staff-logs", nil, testClaims(uuid.New(), "staff"))

	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestStaffLogList_InvalidStaffID(t *testing.T) {
	store := &mockStaffLogStore{}
	router := setupStaffLogRouter(store)

	rr := doAuthRequest(t, router, "GET", "/staff-logs?staffId=abc", nil, testClaims(uuid.New(), "admin"))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
