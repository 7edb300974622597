package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/somsri-pos/api/internal/auth"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/handler"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock store ---

type mockAuthStore struct {
	staff map[string]database.GetStaffByUsernameRow
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{staff: make(map[string]database.GetStaffByUsernameRow)}
}

func (m *mockAuthStore) GetStaffByUsername(_ context.Context, username string) (database.GetStaffByUsernameRow, error) {
	s, ok := m.staff[username]
	if !ok {
		return database.GetStaffByUsernameRow{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockAuthStore) GetStaffByID(_ context.Context, id int64) (database.GetStaffByUsernameRow, error) {
	for _, s := range m.staff {
		if s.ID == id {
			return s, nil
		}
	}
	return database.GetStaffByUsernameRow{}, pgx.ErrNoRows
}

// --- Helpers ---

// doRequest issues an unauthenticated request; token-carrying endpoints use
// doAuthRequest instead.
func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func setupAuthRouter(store *mockAuthStore) *chi.Mux {
	h := handler.NewAuthHandler(store, testJWTSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func seedStaff(t *testing.T, store *mockAuthStore, username, password, role string) database.GetStaffByUsernameRow {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	s := database.GetStaffByUsernameRow{
		Staff: database.Staff{
			ID:             int64(len(store.staff) + 1),
			ShopID:         uuid.New(),
			Name:           "Malee",
			Username:       username,
			HashedPassword: string(hash),
			Role:           role,
			IsActive:       true,
		},
		ShopName: "Somsri Shop",
	}
	store.staff[username] = s
	return s
}

// --- Tests ---

func TestLogin_Valid(t *testing.T) {
	store := newMockAuthStore()
	staff := seedStaff(t, store, "malee", "secret123", "admin")
	router := setupAuthRouter(store)

	rr := doRequest(t, router, "POST", "/auth/login", map[string]string{
		"username": "malee",
		"password": "secret123",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeMap(t, rr)

	accessToken, _ := resp["accessToken"].(string)
	if accessToken == "" {
		t.Fatal("accessToken missing")
	}
	claims, err := auth.ValidateToken(testJWTSecret, accessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.StaffID != staff.ID {
		t.Errorf("staff ID in claims: got %d, want %d", claims.StaffID, staff.ID)
	}
	if claims.ShopID != staff.ShopID {
		t.Errorf("shop ID in claims: got %v, want %v", claims.ShopID, staff.ShopID)
	}
	if claims.Role != "admin" {
		t.Errorf("role in claims: got %q", claims.Role)
	}

	staffResp, ok := resp["staff"].(map[string]interface{})
	if !ok {
		t.Fatalf("staff missing: %v", resp)
	}
	if staffResp["username"] != "malee" {
		t.Errorf("username: got %v", staffResp["username"])
	}
	if staffResp["shopName"] != "Somsri Shop" {
		t.Errorf("shopName: got %v", staffResp["shopName"])
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newMockAuthStore()
	seedStaff(t, store, "malee", "secret123", "staff")
	router := setupAuthRouter(store)

	rr := doRequest(t, router, "POST", "/auth/login", map[string]string{
		"username": "malee",
		"password": "wrong",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	store := newMockAuthStore()
	router := setupAuthRouter(store)

	rr := doRequest(t, router, "POST", "/auth/login", map[string]string{
		"username": "nobody",
		"password": "secret123",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	store := newMockAuthStore()
	router := setupAuthRouter(store)

	rr := doRequest(t, router, "POST", "/auth/login", map[string]string{"username": "malee"})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRefresh_IssuesNewTokenPair(t *testing.T) {
	store := newMockAuthStore()
	staff := seedStaff(t, store, "malee", "secret123", "staff")
	router := setupAuthRouter(store)

	refreshToken, err := auth.GenerateRefreshToken(testJWTSecret, staff.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rr := doRequest(t, router, "POST", "/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeMap(t, rr)
	if resp["accessToken"] == "" || resp["refreshToken"] == "" {
		t.Error("token pair missing from response")
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	store := newMockAuthStore()
	staff := seedStaff(t, store, "malee", "secret123", "staff")
	router := setupAuthRouter(store)

	// An access token is not a refresh token.
	accessToken, err := auth.GenerateToken(testJWTSecret, staff.ID, staff.ShopID, staff.ShopName, staff.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	rr := doRequest(t, router, "POST", "/auth/refresh", map[string]string{
		"refreshToken": accessToken,
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	store := newMockAuthStore()
	router := setupAuthRouter(store)

	rr := doRequest(t, router, "POST", "/auth/refresh", map[string]string{
		"refreshToken": "not-a-token",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
