package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/somsri-pos/api/internal/cache"
	"github.com/somsri-pos/api/internal/config"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/handler"
	mw "github.com/somsri-pos/api/internal/middleware"
	"github.com/somsri-pos/api/internal/service"
	"github.com/somsri-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, shop scoping, and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, reportCache cache.ReportCache, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://pos.somsri.shop"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/shops/{sid}/sales", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	saleService := service.NewSaleService(queries, service.NewBillNumberGenerator(queries))

	// Protected routes (require authentication and a shop-scoped token)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireShop)

		salesHandler := handler.NewSalesHandler(queries, saleService, hub)
		reportHandler := handler.NewReportHandler(queries, reportCache, time.Duration(cfg.DashboardCacheTTL)*time.Second)
		r.Route("/sales", func(r chi.Router) {
			salesHandler.RegisterRoutes(r)
			reportHandler.RegisterRoutes(r)
		})

		productHandler := handler.NewProductHandler(queries, saleService)
		r.Route("/products", productHandler.RegisterRoutes)

		customerHandler := handler.NewCustomerHandler(queries)
		r.Route("/customers", customerHandler.RegisterRoutes)

		couponHandler := handler.NewCouponHandler(queries)
		r.Route("/coupons", couponHandler.RegisterRoutes)

		staffLogHandler := handler.NewStaffLogHandler(queries)
		r.Route("/staff-logs", func(r chi.Router) {
			r.Use(mw.RequireRole("admin"))
			staffLogHandler.RegisterRoutes(r)
		})
	})

	return r
}
