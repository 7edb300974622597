//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/somsri-pos/api/internal/cache"
	"github.com/somsri-pos/api/internal/config"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/router"
	"github.com/somsri-pos/api/internal/ws"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full sale lifecycle against a real
// PostgreSQL database: login, catalog setup, sale commit with stock, loyalty
// and coupon side effects, then the read and report endpoints.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:              "8081",
		DatabaseURL:       connStr,
		JWTSecret:         "integration-test-secret",
		DashboardCacheTTL: 30,
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit; Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	r := router.New(cfg, queries, cache.NoopReportCache{}, hub)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Bootstrap shop + admin staff (direct DB insert, no signup API) ---
	shopID := createShop(t, ctx, pool, "Somsri Shop")
	adminID := createStaff(t, ctx, pool, shopID, "malee", "password123", "admin")
	createStaff(t, ctx, pool, shopID, "lek", "password123", "staff")

	// --- 2. Login ---
	adminToken := login(t, server, "malee", "password123")
	staffToken := login(t, server, "lek", "password123")

	// --- 3. Build catalog: product with stock, customer, capped coupon ---
	productResp := httpPostJSON(t, server, "/products", map[string]interface{}{
		"name":    "Green Tea",
		"barcode": "8851234567890",
		"price":   "25.00",
		"cost":    "18.00",
		"stock":   100,
	}, staffToken)
	productID := int64(productResp["id"].(float64))

	customerResp := httpPostJSON(t, server, "/customers", map[string]interface{}{
		"name":  "Somchai",
		"phone": "0812345678",
	}, staffToken)
	customerID := int64(customerResp["id"].(float64))

	createCoupon(t, ctx, pool, shopID, "NEWYEAR", "10.00", 5)

	// --- 4. Commit a sale: 8 units, coupon attached, loyalty customer ---
	saleResp := httpPostJSON(t, server, "/sales", map[string]interface{}{
		"customerId": customerID,
		"items": []map[string]interface{}{
			{"productId": productID, "productName": "Green Tea", "price": "25.00", "quantity": 8},
		},
		"subtotal":      "200.00",
		"discount":      "10.00",
		"total":         "190.00",
		"paymentMethod": "cash",
		"couponCode":    "NEWYEAR",
	}, staffToken)
	saleID := int64(saleResp["id"].(float64))

	billNumber, _ := saleResp["billNumber"].(string)
	if len(billNumber) != 12 || billNumber[:2] != "ss" {
		t.Fatalf("bill number: got %q, want ss + DDMMYY + NNNN", billNumber)
	}
	if saleResp["total"] != "190.00" {
		t.Fatalf("sale total: got %v", saleResp["total"])
	}

	// Side effects are asynchronous only per item; by the time the response is
	// written they have all completed.

	// --- 5. Stock decremented with an audit row ---
	productAfter := httpGetJSON(t, server, fmt.Sprintf("/products/%d", productID), staffToken)
	if productAfter["stock"] != float64(92) {
		t.Fatalf("stock after sale: got %v, want 92", productAfter["stock"])
	}
	txs := httpGetJSONList(t, server, fmt.Sprintf("/products/%d/stock-transactions", productID), staffToken)
	if len(txs) != 1 {
		t.Fatalf("stock transactions: got %d, want 1", len(txs))
	}
	if txs[0]["type"] != "OUT" || txs[0]["qty"] != float64(8) {
		t.Fatalf("stock transaction: got %v", txs[0])
	}
	if int64(txs[0]["saleId"].(float64)) != saleID {
		t.Fatalf("stock transaction saleId: got %v, want %d", txs[0]["saleId"], saleID)
	}

	// --- 6. Loyalty: floor(190/100) = 1 point, totalSpent 190 ---
	customerAfter := httpGetJSON(t, server, fmt.Sprintf("/customers/%d", customerID), staffToken)
	if customerAfter["points"] != float64(1) {
		t.Fatalf("customer points: got %v, want 1", customerAfter["points"])
	}
	if customerAfter["totalSpent"] != "190.00" {
		t.Fatalf("customer totalSpent: got %v, want '190.00'", customerAfter["totalSpent"])
	}

	// --- 7. Coupon usage incremented ---
	couponAfter := httpGetJSON(t, server, "/coupons/NEWYEAR", staffToken)
	if couponAfter["currentUsage"] != float64(1) {
		t.Fatalf("coupon usage: got %v, want 1", couponAfter["currentUsage"])
	}

	// --- 8. Read endpoints ---
	byBill := httpGetJSON(t, server, "/sales/bill/"+billNumber, staffToken)
	if int64(byBill["id"].(float64)) != saleID {
		t.Fatalf("lookup by bill number: got %v, want %d", byBill["id"], saleID)
	}
	summary := httpGetJSON(t, server, "/sales/summary", staffToken)
	if summary["totalSales"] != float64(1) || summary["totalAmount"] != "190.00" {
		t.Fatalf("summary: got %v", summary)
	}

	// --- 9. Second sale the same day continues the bill sequence ---
	sale2 := httpPostJSON(t, server, "/sales", map[string]interface{}{
		"items": []map[string]interface{}{
			{"productId": productID, "productName": "Green Tea", "price": "25.00", "quantity": 1},
		},
		"subtotal": "25.00",
		"total":    "25.00",
	}, staffToken)
	bill2 := sale2["billNumber"].(string)
	if bill2[:8] != billNumber[:8] || bill2[8:] != "0002" {
		t.Fatalf("second bill number: got %q after %q", bill2, billNumber)
	}

	// --- 10. Dashboard reflects both completed sales ---
	dash := httpGetJSON(t, server, "/sales/dashboard?viewType=daily", staffToken)
	dashData := dash["dashboardData"].(map[string]interface{})
	if dashData["billCount"] != float64(2) {
		t.Fatalf("dashboard billCount: got %v, want 2", dashData["billCount"])
	}
	stats := httpGetJSON(t, server, "/sales/product-stats?dateRange=today", staffToken)
	products := stats["data"].([]interface{})
	if len(products) != 1 {
		t.Fatalf("product stats: got %d products, want 1", len(products))
	}
	top := products[0].(map[string]interface{})
	if top["soldQty"] != float64(9) {
		t.Fatalf("soldQty: got %v, want 9", top["soldQty"])
	}

	// --- 11. Role enforcement: staff cannot delete, admin can ---
	if code := httpDelete(t, server, fmt.Sprintf("/sales/%d", saleID), staffToken); code != http.StatusForbidden {
		t.Fatalf("staff delete: got %d, want %d", code, http.StatusForbidden)
	}
	if code := httpDelete(t, server, fmt.Sprintf("/sales/%d", saleID), adminToken); code != http.StatusNoContent {
		t.Fatalf("admin delete: got %d, want %d", code, http.StatusNoContent)
	}

	// --- 12. Audit trail is admin-only and captures the pipeline actions ---
	logs := httpGetJSON(t, server, "/staff-logs", adminToken)
	if logs["total"].(float64) < 3 {
		t.Fatalf("staff logs: got %v entries, want at least 3 (2 creates + 1 delete)", logs["total"])
	}

	t.Logf("Integration test passed: container=%s, shop=%s, admin=%d, sale=%d",
		pgContainer.GetContainerID(), shopID, adminID, saleID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Go test sets cwd to the package directory (internal/handler/).
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createShop(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO shops (name) VALUES ($1) RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	return id
}

func createStaff(t *testing.T, ctx context.Context, pool *pgxpool.Pool, shopID uuid.UUID, username, password, role string) int64 {
	t.Helper()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id int64
	err = pool.QueryRow(ctx,
		`INSERT INTO staff (shop_id, name, username, hashed_password, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		shopID, username, username, string(hashedPassword), role,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return id
}

func createCoupon(t *testing.T, ctx context.Context, pool *pgxpool.Pool, shopID uuid.UUID, code, discount string, maxUsage int32) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO coupons (shop_id, code, discount, max_usage) VALUES ($1, $2, $3, $4)`,
		shopID, code, discount, maxUsage,
	)
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"username": username,
		"password": password,
	}, "")
	token, ok := resp["accessToken"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no accessToken in response: %+v", resp)
	}
	return token
}

// --- HTTP helpers ---

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest("POST", server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("POST %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	httpGetInto(t, server, path, token, &result)
	return result
}

func httpGetJSONList(t *testing.T, server *httptest.Server, path string, token string) []map[string]interface{} {
	t.Helper()
	var result []map[string]interface{}
	httpGetInto(t, server, path, token, &result)
	return result
}

func httpGetInto(t *testing.T, server *httptest.Server, path, token string, dest interface{}) {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func httpDelete(t *testing.T, server *httptest.Server, path, token string) int {
	t.Helper()
	req, err := http.NewRequest("DELETE", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}
