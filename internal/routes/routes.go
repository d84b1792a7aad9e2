package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxledger/internal/config"
	"github.com/congo-pay/fxledger/internal/currency"
	"github.com/congo-pay/fxledger/internal/events"
	"github.com/congo-pay/fxledger/internal/fxrate"
	"github.com/congo-pay/fxledger/internal/ledger"
	"github.com/congo-pay/fxledger/internal/metrics"
	"github.com/congo-pay/fxledger/internal/middleware"
	"github.com/congo-pay/fxledger/internal/txlog"
	"github.com/congo-pay/fxledger/internal/wallet"
)

const devJWTSecret = "dev-secret-change-me"

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Producer sarama.SyncProducer
	Logger   *slog.Logger
	// Provider overrides the HTTP rate provider built from Cfg.
	Provider fxrate.Provider
}

// Services exposes the long-lived components built during Setup that the
// process needs to drive outside the request path.
type Services struct {
	Rates      *fxrate.Cache
	Currencies *currency.CachedRegistry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("fxledger")
	if err := collector.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Currencies
	var source currency.Registry
	if d.DB != nil {
		source = currency.NewPostgresRegistry(d.DB)
	} else {
		source = currency.NewStaticRegistry(d.Cfg.SupportedCurrencies...)
	}
	currencies := currency.NewCachedRegistry(source, d.Cfg.CurrencyTTL, d.Logger)

	// Rates
	provider := d.Provider
	if provider == nil {
		provider = fxrate.NewHTTPProvider(d.Cfg.FXAPIURL, d.Cfg.FXAPIKey, d.Cfg.FXTimeout)
	}
	rates := fxrate.NewCache(provider, currencies, fxrate.Config{
		TTL:             d.Cfg.RateTTL,
		ProviderTimeout: d.Cfg.FXTimeout,
		Metrics:         collector,
	}, d.Logger)

	// Ledger and read models
	var (
		store       ledger.Store
		walletRepo  wallet.Repository
		historyRepo txlog.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.LockTimeout)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		historyRepo = txlog.NewPostgresRepository(d.DB)
	} else {
		mem := ledger.NewMemoryStore(d.Cfg.LockTimeout)
		store, walletRepo, historyRepo = mem, mem, mem
	}

	var publisher events.Publisher = events.NewLoggerPublisher(d.Logger)
	if d.Producer != nil {
		publisher = events.NewKafkaPublisher(d.Producer, d.Cfg.KafkaTopic)
	}

	coordinator := ledger.NewCoordinator(store, rates, currencies, d.Logger, ledger.Options{
		OperationTimeout: d.Cfg.OperationTimeout,
		Events:           publisher,
		Metrics:          collector,
	})

	walletHandler := wallet.NewHandler(wallet.NewService(walletRepo))
	ledgerHandler := ledger.NewHandler(coordinator, validator.New())
	historyHandler := txlog.NewHandler(historyRepo)
	fxHandler := fxrate.NewHandler(rates)
	currencyHandler := currency.NewHandler(currencies)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	api.Get("/currencies", currencyHandler.List)
	RegisterRateRoutes(api, fxHandler)

	// Protected routes
	secret := d.Cfg.JWTSecret
	if secret == "" {
		d.Logger.Warn("JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	}
	protected := api.Group("", middleware.JWTAuth([]byte(secret)))
	mutations := []fiber.Handler{middleware.MutationRateLimit(d.Cache, d.Cfg.RateLimitPerMinute)}
	if d.Cache != nil {
		mutations = append(mutations, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(protected, walletHandler, ledgerHandler, mutations...)
	protected.Get("/transactions", historyHandler.List)

	return &Services{
		Rates:      rates,
		Currencies: currencies,
	}, nil
}
