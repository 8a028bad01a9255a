package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-checkout/api/routes"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/checkout"
	"github.com/angelmondragon/storefront-checkout/internal/guests"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	stripewebhook "github.com/angelmondragon/storefront-checkout/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/env"
	"github.com/angelmondragon/storefront-checkout/pkg/instance"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-checkout/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, cfg.Checkout.ProviderTimeout, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	outboxService := outbox.NewWriter(outbox.NewStore(dbClient.DB()), logg)

	guestService, err := guests.NewService(guests.ServiceParams{
		Repo: guests.NewRepository(dbClient.DB()),
		TTL:  cfg.Storefront.GuestCookieTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create guest service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, dbClient, guestService)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Provider: stripeClient,
		Carts:    cartService,
		CartRows: cartRepo,
		Catalog:  catalogRepo,
		BaseURL:  cfg.Storefront.PublicBaseURL(),
		Metrics:  checkoutMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	reconciler, err := orders.NewReconciler(orders.ReconcilerParams{
		Repo:            ordersRepo,
		Tx:              dbClient,
		Provider:        stripeClient,
		Carts:           cartRepo,
		Guests:          guestService,
		Catalog:         catalogRepo,
		Outbox:          outboxService,
		AllowAnyVariant: cfg.Checkout.AllowAnyVariantFallback,
		Metrics:         checkoutMetrics,
		Logger:          logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create order reconciler", err)
		os.Exit(1)
	}

	reader, err := orders.NewReader(ordersRepo, catalogRepo, cfg.Storefront.PublicBaseURL(), cfg.Storefront.PlaceholderImage)
	if err != nil {
		logg.Error(ctx, "failed to create order reader", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler:        reconciler,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Metrics:           checkoutMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	eventLedger, err := stripewebhook.NewEventLedger(redisClient, stripewebhook.LedgerConfig{
		Lease:     cfg.Webhook.EventLease,
		Retention: cfg.Webhook.EventTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create stripe event ledger", err)
		os.Exit(1)
	}

	addr := env.ListenAddr(cfg.App.Port)
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"stripe_env":  stripeClient.Environment(),
		"instance_id": instance.GetID(),
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:            dbClient,
			Redis:         redisClient,
			ReplayStore:   redisClient,
			Guests:        guestService,
			Cart:          cartService,
			Checkout:      checkoutService,
			Orders:        reader,
			StripeSecrets: stripeClient,
			StripeWebhook: webhookService,
			WebhookLedger: eventLedger,
			Metrics:       registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "api server shutdown failed", err)
		}
		logg.Info(serverCtx, "api server stopped")
	}
}
