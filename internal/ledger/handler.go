package ledger

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes funding and conversion endpoints.
type Handler struct {
	coordinator *Coordinator
	validate    *validator.Validate
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(coordinator *Coordinator, validate *validator.Validate) *Handler {
	return &Handler{coordinator: coordinator, validate: validate}
}

type fundRequest struct {
	Currency string          `json:"currency" validate:"required,len=3,alpha"`
	Amount   decimal.Decimal `json:"amount"`
}

type convertRequest struct {
	FromCurrency string          `json:"fromCurrency" validate:"required,len=3,alpha"`
	ToCurrency   string          `json:"toCurrency" validate:"required,len=3,alpha"`
	Amount       decimal.Decimal `json:"amount"`
}

// Fund credits the caller's wallet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.coordinator.Fund(c.UserContext(), FundInput{UserID: uid, Currency: req.Currency, Amount: req.Amount})
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Wallet funded successfully",
		"result":  res,
	})
}

// Convert exchanges between two currencies of the caller's wallet.
func (h *Handler) Convert(c *fiber.Ctx) error {
	return h.exchange(c, h.coordinator.Convert, "Currency converted successfully")
}

// Trade is Convert recorded as a trade.
func (h *Handler) Trade(c *fiber.Ctx) error {
	return h.exchange(c, h.coordinator.Trade, "Trade executed successfully")
}

func (h *Handler) exchange(c *fiber.Ctx, op func(context.Context, ConvertInput) (ConvertResult, error), message string) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req convertRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := op(c.UserContext(), ConvertInput{UserID: uid, From: req.FromCurrency, To: req.ToCurrency, Amount: req.Amount})
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": message,
		"result":  res,
	})
}

func httpError(c *fiber.Ctx, err error) error {
	if IsRetryable(err) {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSameCurrency), errors.Is(err, ErrUnsupportedCurrency):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient balance")
	case errors.Is(err, ErrLockTimeout):
		return fiber.NewError(http.StatusConflict, "balance is busy, retry later")
	case errors.Is(err, ErrRateUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "exchange rate unavailable, retry later")
	case errors.Is(err, ErrOperationTimeout):
		return fiber.NewError(http.StatusGatewayTimeout, "operation timed out, retry later")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
