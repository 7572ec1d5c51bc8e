// Package app wires configuration, storage, payment and HTTP serving into a
// runnable register backend.
package app

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
	"github.com/kioskpay/smart-checkout/internal/domain/order"
	"github.com/kioskpay/smart-checkout/internal/handler"
	"github.com/kioskpay/smart-checkout/internal/identity"
	"github.com/kioskpay/smart-checkout/internal/notify"
	"github.com/kioskpay/smart-checkout/internal/payment"
	"github.com/kioskpay/smart-checkout/internal/storage/postgres"
	"github.com/kioskpay/smart-checkout/internal/storage/rediscache"
	"github.com/kioskpay/smart-checkout/pkg/health"
	"github.com/kioskpay/smart-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return errors.Wrapf(err, "load time zone %q", cfg.TimeZone)
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories, optionally fronted by the Redis catalog cache.
	var (
		items   catalog.ItemRepository   = postgres.NewItemRepository(pool)
		coupons catalog.CouponRepository = postgres.NewCouponRepository(pool)
	)
	if cfg.RedisAddr != "" {
		rdb := rediscache.New(cfg.RedisAddr)
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Warn("close redis", zap.Error(err))
			}
		}()
		healthSvc.AddReadinessCheck("redis", 5*time.Second, health.PingCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		items = rediscache.NewItemCache(items, rdb, cfg.CacheTTL, lg)
		coupons = rediscache.NewCouponCache(coupons, rdb, cfg.CacheTTL, lg)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Outbound clients.
	gateway := payment.NewClient(payment.Config{
		ChannelID:       cfg.LinePay.ChannelID,
		ChannelSecret:   cfg.LinePay.ChannelSecret,
		Sandbox:         cfg.LinePay.Sandbox,
		StoreName:       cfg.LinePay.StoreName,
		ProductImageURL: cfg.LinePay.ProductImageURL,
		CancelURL:       cfg.LinePay.CancelURL,
	}, nil)
	notifier := notify.NewDispatcher(notify.Config{
		ChannelAccessToken: cfg.Messaging.ChannelAccessToken,
		StoreName:          cfg.LinePay.StoreName,
		DetailsURL:         cfg.Messaging.DetailsURL,
	}, nil, lg)
	verifier := identity.NewClient(cfg.Messaging.LoginChannelID, nil)

	// Domain service.
	orderStore := postgres.NewOrderStore(pool)
	orderService := order.NewService(items, coupons, orderStore, gateway, notifier, loc)

	// HTTP surface: health endpoints + API routes on one server.
	h := handler.New(
		handler.Config{
			ConfirmPath:    cfg.ConfirmPath,
			ConfirmBaseURL: originOf(cfg.Messaging.DetailsURL),
		},
		items, coupons, orderService, verifier, lg,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("smart-checkout", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// originOf extracts scheme://host from a URL, or "" when it has none.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
