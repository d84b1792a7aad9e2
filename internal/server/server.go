package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxledger/internal/config"
	"github.com/congo-pay/fxledger/internal/currency"
	"github.com/congo-pay/fxledger/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	cache    *redis.Client
	logger   *slog.Logger
	services *routes.Services
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// producer may be nil, in which case ledger events are only logged.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, producer sarama.SyncProducer, logger *slog.Logger) (*Server, error) {
	return build(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Producer: producer, Logger: logger})
}

func build(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler,
	})

	services, err := routes.Setup(app, d)
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: d.Cfg, cache: d.Cache, logger: d.Logger, services: services}, nil
}

// errorHandler renders every error as {"error": ..., "retryable": ...}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	msg := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{
		"error":     msg,
		"retryable": retryableStatus(code),
	})
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusConflict, http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RunBackground starts the currency invalidation subscriber when Redis is
// configured. It returns immediately; workers stop when ctx is cancelled.
func (s *Server) RunBackground(ctx context.Context) {
	if s.cache == nil {
		return
	}
	sub := currency.NewSubscriber(s.cache, s.cfg.CurrencyChannel, s.services.Rates.InvalidateCurrencies, s.logger)
	go func() {
		if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("currency subscriber stopped", slog.Any("error", err))
		}
	}()
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
