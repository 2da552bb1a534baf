package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/identity"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis holds checkout drafts.
	rdb, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	healthSvc := health.New()
	healthSvc.Register("postgres", health.Readiness, health.Ping(pool), health.WithTimeout(5*time.Second))
	healthSvc.Register("redis", health.Readiness, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, health.WithTimeout(2*time.Second))
	healthSvc.Register("goroutines", health.Liveness, health.GoroutineLimit(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.Serve(true)

	apiHandler, err := newHandler(ctx, m, cfg, pool, rdb, healthSvc)
	if err != nil {
		return err
	}
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.CommitTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           apiHandler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.Serve(false)
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

// newHandler builds repositories, services and the middleware chain on top of
// the given connections.
func newHandler(
	ctx context.Context,
	tel httpmiddleware.Telemetry,
	cfg *Config,
	pool *pgxpool.Pool,
	rdb *goredis.Client,
	healthSvc *health.Health,
) (http.Handler, error) {
	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// Domain services.
	catalogSvc := product.NewService(productRepo, categoryRepo, product.PageLimits{
		Default: cfg.Catalog.PageSize,
		Max:     cfg.Catalog.MaxPageSize,
	})
	cartSvc := cart.NewService(cartRepo, productRepo)
	orderSvc := order.NewService(orderRepo, userRepo, order.CounterFunc(func(ctx context.Context) (int, error) {
		return productRepo.Count(ctx, product.Filter{})
	}))
	checkoutSvc, err := checkout.NewService(
		userRepo,
		cartRepo,
		productRepo,
		redis.NewDraftStore(rdb),
		postgres.NewCheckoutStore(pool),
		checkout.Config{
			DraftTTL:      cfg.Checkout.DraftTTL,
			ShipAfter:     cfg.Checkout.ShipAfter,
			CommitTimeout: cfg.Checkout.CommitTimeout,
		},
		checkout.WithTracerProvider(tel.TracerProvider()),
		checkout.WithMeterProvider(tel.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout service")
	}

	// HTTP handlers.
	h := handler.New(
		handler.Config{SecureCookies: cfg.Session.Secure, SessionTTL: cfg.Session.TTL},
		catalogSvc,
		cartSvc,
		checkoutSvc,
		orderSvc,
		auth.NewUserService(userRepo),
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.Live)
	mux.HandleFunc("GET /readyz", healthSvc.Readyz)
	h.Register(mux)

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Limit:  cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
		Key:    handler.RateLimitKey(httpmiddleware.ClientIP),
	})
	go limiter.Run(ctx)

	verifier := identity.NewVerifier([]byte(cfg.JWT.Secret), cfg.JWT.Issuer)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("storefront-api", routeFinder, tel),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
		handler.Authenticate(verifier),
		httpmiddleware.RateLimit(limiter),
	), nil
}
