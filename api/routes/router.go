package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-checkout/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-checkout/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-checkout/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-checkout/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-checkout/internal/checkout"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

type orderReader interface {
	Get(ctx context.Context, ref string) (*orders.OrderView, error)
}

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	DB            db.Pinger
	Redis         redis.Pinger
	ReplayStore   redis.KV
	Guests        middleware.GuestSessions
	Cart          cart.Service
	Checkout      checkoutsvc.Service
	Orders        orderReader
	StripeSecrets webhookcontrollers.SigningSecretSource
	StripeWebhook webhookcontrollers.StripeWebhookService
	WebhookLedger webhookcontrollers.EventLedger
	Metrics       prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Storefront.PublicBaseURL()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Metrics))

	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeSecrets, deps.WebhookLedger, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.Get("/api/v1/auth/check", controllers.AuthCheck(logg))
		r.Get("/api/v1/orders/{ref}", ordercontrollers.Lookup(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.GuestSession(deps.Guests, cfg.Storefront, logg),
				middleware.Idempotency(deps.ReplayStore, logg),
			)
			r.Get("/api/v1/cart", cartcontrollers.CartFetch(deps.Cart, logg))
			r.Post("/api/v1/cart", cartcontrollers.CartReplace(deps.Cart, logg))
			r.Delete("/api/v1/cart", cartcontrollers.CartClear(deps.Cart, logg))
			r.Post("/api/v1/cart/clear", cartcontrollers.CartClear(deps.Cart, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.RequireAuth(logg),
				middleware.GuestSession(deps.Guests, cfg.Storefront, logg),
				middleware.Idempotency(deps.ReplayStore, logg),
			)
			r.Post("/api/v1/checkout", controllers.Checkout(deps.Checkout, logg))
		})
	})

	return r
}
