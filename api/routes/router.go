package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Params carries everything the HTTP surface is wired to.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer

	Accounts       middleware.AccountEnsurer
	Catalog        catalog.Service
	Cart           cart.Service
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Invoices       ordercontrollers.InvoiceRenderer
	StripeSigner   webhookcontrollers.StripeSigner
	StripeWebhooks webhookcontrollers.StripeWebhookService
	StripeGuard    webhookcontrollers.StripeWebhookGuard
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	var cache controllers.Pinger
	if p.Redis != nil {
		cache = p.Redis
	}
	var idempotencyStore redis.IdempotencyStore
	if p.Redis != nil {
		idempotencyStore = p.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.DB, cache, logg))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(p.Gatherer))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/products", controllers.PublicListProducts(p.Catalog, logg))
		r.Get("/products/{productId}", controllers.PublicProductDetail(p.Catalog, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhooks, p.StripeSigner, p.StripeGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, p.Accounts, logg))
			r.Use(middleware.Idempotency(idempotencyStore, cfg.Eventing.RequestIdempotencyTTL, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(p.Cart, logg))
				r.Post("/", cartcontrollers.CartAdd(p.Cart, logg))
				r.Post("/delete", cartcontrollers.CartRemove(p.Cart, logg))
			})
			r.Get("/checkout", ordercontrollers.CheckoutPreview(p.Checkout, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.ListOrders(p.Orders, logg))
				r.Post("/", ordercontrollers.PlaceOrder(p.Checkout, logg))
				r.Get("/{orderId}/invoice", ordercontrollers.OrderInvoice(p.Orders, p.Invoices, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Accounts, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Post("/products", controllers.AdminCreateProduct(p.Catalog, logg))
		r.Delete("/products/{productId}", controllers.AdminDeleteProduct(p.Catalog, logg))
	})

	return r
}
