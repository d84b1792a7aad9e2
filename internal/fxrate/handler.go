package fxrate

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/money"
)

const defaultBase = "NGN"

// Handler exposes read-only rate endpoints.
type Handler struct {
	cache *Cache
}

// NewHandler builds a rate HTTP handler.
func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

// Rate returns the rate for a single pair.
func (h *Handler) Rate(c *fiber.Ctx) error {
	base, err := money.NormalizeCode(c.Params("base"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	target, err := money.NormalizeCode(c.Params("target"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rate, err := h.cache.GetRate(c.UserContext(), base, target)
	if err != nil {
		if errors.Is(err, ErrRateUnavailable) {
			return fiber.NewError(http.StatusServiceUnavailable, "exchange rate unavailable, retry later")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"base":      base,
		"target":    target,
		"rate":      rate,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Rates returns rates from base (default NGN) to every other active currency.
func (h *Handler) Rates(c *fiber.Ctx) error {
	base, err := money.NormalizeCode(c.Query("base", defaultBase))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rates, err := h.cache.GetAllRates(c.UserContext(), base)
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, "currency list unavailable")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"base":      base,
		"rates":     rates,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
