package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-bff/internal/cart"
	"github.com/noah-isme/storefront-bff/internal/catalog"
	"github.com/noah-isme/storefront-bff/internal/checkout"
	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/config"
	"github.com/noah-isme/storefront-bff/internal/events"
	"github.com/noah-isme/storefront-bff/internal/health"
	"github.com/noah-isme/storefront-bff/internal/lock"
	"github.com/noah-isme/storefront-bff/internal/obs"
	"github.com/noah-isme/storefront-bff/internal/order"
	"github.com/noah-isme/storefront-bff/internal/orderclient"
	"github.com/noah-isme/storefront-bff/internal/orderstate"
	"github.com/noah-isme/storefront-bff/internal/ratelimit"
	"github.com/noah-isme/storefront-bff/internal/resilience"
	"github.com/noah-isme/storefront-bff/internal/security"
	"github.com/noah-isme/storefront-bff/internal/tasks"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "storefront-bff",
			ServiceVersion: envOrDefault("APP_VERSION", "dev"),
			Environment:    cfg.AppEnv,
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Headers:        obs.ParseHeaders(envOrDefault("OBS_OTLP_HEADERS", "")),
			Insecure:       envBool("OBS_OTLP_INSECURE", false),
			SamplingRatio:  sampling,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisClient := mustInitRedis(ctx, cfg, logger, metricsEnabled)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	locker := lock.Locker{R: redisClient, Prefix: "storefront:lock:"}

	migrator := orderstate.Migrator{R: redisClient, Locker: locker}
	if _, err := migrator.Run(logger.WithContext(ctx)); err != nil {
		logger.Error().Err(err).Msg("legacy_order_state_migration_failed")
	}

	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("order_service").
		WithWindow(cfg.BreakerWindow).
		WithLogger(logger)
	orders := orderclient.New(orderclient.Config{
		BaseURL:         cfg.OrderServiceURL,
		CreatePath:      cfg.OrderCreatePath,
		GetPath:         cfg.OrderGetPath,
		CheckoutTimeout: cfg.CheckoutTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		ReadPolicy: resilience.RetryPolicy{
			BaseDelay:  cfg.RetryBase,
			MaxDelay:   cfg.RetryMaxDelay,
			MaxRetries: cfg.RetryMaxRetries,
		},
		Breaker: breaker,
	})

	var catalogCache catalog.Cache
	switch cfg.CatalogCacheDriver {
	case "redis":
		catalogCache = catalog.NewRedisCache(redisClient, cfg.CatalogCacheTTL, "storefront:catalog:")
	default:
		catalogCache = catalog.NewMemoryCache(cfg.CatalogCacheTTL)
	}
	catalogClient := &catalog.Client{
		HTTP:       orders.ReadClient(),
		BaseURL:    orders.BaseURL(),
		ListPath:   cfg.CatalogListPath,
		DetailPath: cfg.CatalogDetailPath,
		Cache:      catalogCache,
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Client: catalogClient, Inflight: catalog.NewInflight()})

	cartSvc := &cart.Service{
		Store:    cart.Store{R: redisClient, TTL: cfg.CartTTL},
		Products: catalogClient,
		Shipping: cfg.ShippingPolicy(),
		Fees:     cfg.FeeConfig(),
	}
	cartHandler := &cart.Handler{Svc: cartSvc}

	stateStore := orderstate.Store{R: redisClient, TTL: cfg.OrderStateTTL}

	bus, closeBus := mustInitBus(cfg, logger)
	defer closeBus()

	asynqClient := mustInitAsynqClient(cfg, logger)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close asynq client")
		}
	}()
	scheduler := tasks.Scheduler{
		Client:   asynqClient,
		Delay:    cfg.OrderRefreshDelay,
		MaxRetry: cfg.OrderRefreshMaxRetry,
	}

	checkoutSvc := &checkout.Service{
		Cart:      cartSvc,
		Orders:    orders,
		State:     stateStore,
		Events:    bus,
		Refresh:   scheduler,
		Locker:    locker,
		LockTTL:   checkout.LockTTLFor(cfg.CheckoutTimeout),
		Catalog:   catalogClient,
		Validator: checkout.NewFormValidator(),
		Shipping:  cfg.ShippingPolicy(),
		Fees:      cfg.FeeConfig(),
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	orderHandler := &order.Handler{
		State:     stateStore,
		Refresher: order.Refresher{Orders: orders, State: stateStore, Events: bus},
	}

	checkoutLimiter, err := ratelimit.New(redisClient, cfg.CheckoutRateLimit, "storefront:ratelimit:checkout")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limiter")
	}
	checkoutRate := ratelimit.Handler{
		Limiter: checkoutLimiter,
		Key:     common.ShopperKey,
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate_limit_store_error")
		},
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Prefix: "storefront:idem:"}
	sessions := common.Sessions{CookieSecure: cfg.CookieSecure, CookieTTL: cfg.CartTTL}
	bodyLimit := security.BodyLimit{Max: cfg.BodyLimitBytes}
	secHeaders := security.Headers{
		Enable:                envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS:            envBool("SECURE_HSTS_ENABLE", cfg.AppEnv == "production"),
		HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", false),
		NoStore:               true,
	}
	csrf := security.CSRF{CookieSecure: cfg.CookieSecure}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token", common.SessionHeader, common.IdempotencyHeader},
		ExposedHeaders:   []string{common.SessionHeader, obs.TraceHeader, "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:         health.Deps{Redis: redisClient, OrderService: orders},
		RedisTimeout:    envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		UpstreamTimeout: envDurationMillis("HEALTH_READY_UPSTREAM_TIMEOUT_MS", 1500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(secHeaders.Middleware)
		v.Use(sessions.Middleware)
		v.Use(csrf.Middleware)
		v.Use(bodyLimit.Middleware)

		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.ProductDetail)

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.AddItem)
			c.Patch("/items/{productId}", cartHandler.UpdateItem)
			c.Delete("/items/{productId}", cartHandler.RemoveItem)
		})

		v.Post("/quote", checkoutHandler.Quote)
		v.Get("/checkout/preview", checkoutHandler.Preview)
		v.With(checkoutRate.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Get("/orders/current", orderHandler.Current)
		v.Post("/orders/current/refresh", orderHandler.Refresh)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-runCtx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func mustInitBus(cfg *config.Config, logger zerolog.Logger) (*events.Bus, func()) {
	bus := &events.Bus{}
	if len(cfg.KafkaBrokers) == 0 {
		bus.Publishers = []events.Publisher{events.LogPublisher{Logger: logger}}
		return bus, func() {}
	}
	producer, err := events.NewKafkaProducer(cfg.KafkaBrokers)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise kafka producer")
	}
	bus.Publishers = []events.Publisher{events.KafkaPublisher{Producer: producer, Topic: cfg.KafkaTopic}}
	return bus, func() {
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("close kafka producer")
		}
	}
}

func mustInitAsynqClient(cfg *config.Config, logger zerolog.Logger) *asynq.Client {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis uri")
	}
	return asynq.NewClient(opt)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorised", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
