package currency

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the active currency list.
type Handler struct {
	registry Registry
}

// NewHandler builds a currency HTTP handler.
func NewHandler(registry Registry) *Handler {
	return &Handler{registry: registry}
}

// List returns active currency codes.
func (h *Handler) List(c *fiber.Ctx) error {
	codes, err := h.registry.ActiveCodes(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, "currency list unavailable")
	}
	if codes == nil {
		codes = []string{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"currencies": codes})
}
