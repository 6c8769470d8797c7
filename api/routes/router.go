package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Catalog       catalog.Service
	Cart          cart.Service
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Ledger        ledger.Service
	Notifications notifications.Service
}

// Infra carries the infrastructure the router wires into middleware and
// health checks. Tokens is required; a nil Idempotency store disables replay.
type Infra struct {
	Tokens      middleware.TokenVerifier
	Checks      map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, svcs Services, infra Infra) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	secureCookie := cfg.App.IsProd()
	prices := svcs.Catalog
	if cfg.Cart.ClientPricing {
		prices = nil
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, infra.Checks))
	})
	if infra.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", infra.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, logg))
			r.Get("/products", controllers.ProductList(svcs.Catalog, logg))
			r.Get("/products/{handle}", controllers.ProductDetail(svcs.Catalog, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(infra.Tokens, cfg.Auth, logg))
			r.Use(middleware.RateLimit(limiter, logg))
			r.Use(middleware.Idempotency(infra.Idempotency, logg))

			r.Get("/cart", controllers.CartFetch(svcs.Cart, cfg.Cart, secureCookie, logg))
			r.Post("/cart", controllers.CartMutate(svcs.Cart, prices, cfg.Cart, secureCookie, logg))
			r.Post("/checkout", controllers.Checkout(svcs.Checkout, cfg.Cart, secureCookie, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrderList(svcs.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
			})

			r.Route("/points", func(r chi.Router) {
				r.Get("/balance", controllers.PointsBalance(svcs.Ledger, logg))
				r.Get("/history", controllers.PointsHistory(svcs.Ledger, logg))
				if cfg.FeatureFlags.PointsTestCredit {
					r.Post("/test-credit", controllers.PointsTestCredit(svcs.Ledger, cfg.Points.TestCreditAmount, logg))
				}
			})

			r.Route("/admin/orders/{orderId}", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
				r.Get("/", controllers.AdminOrderDetail(svcs.Orders, logg))
				r.Patch("/status", controllers.AdminSetOrderStatus(svcs.Orders, logg))
				r.Patch("/tracking", controllers.AdminMergeOrderTracking(svcs.Orders, logg))
				r.Get("/notifications", controllers.AdminOrderNotifications(svcs.Notifications, logg))
			})
		})
	})

	return r
}

