package txlog

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler serves transaction history for the authenticated user.
type Handler struct {
	repo Repository
}

// NewHandler builds a history HTTP handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns a page of the caller's transactions.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	f, err := parseFilter(c)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	page, err := h.repo.List(c.UserContext(), uid, f)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to load transactions")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": page.Items,
		"pagination": fiber.Map{
			"total":      page.Total,
			"page":       page.Page,
			"limit":      page.Limit,
			"totalPages": page.TotalPages,
		},
	})
}

func parseFilter(c *fiber.Ctx) (Filter, error) {
	f := Filter{
		Page:  c.QueryInt("page", DefaultPage),
		Limit: c.QueryInt("limit", DefaultLimit),
	}
	if v := c.Query("type"); v != "" {
		f.Type = Type(strings.ToUpper(v))
		if !f.Type.Valid() {
			return Filter{}, fiber.NewError(http.StatusBadRequest, "invalid type")
		}
	}
	if v := c.Query("status"); v != "" {
		f.Status = Status(strings.ToUpper(v))
		if !f.Status.Valid() {
			return Filter{}, fiber.NewError(http.StatusBadRequest, "invalid status")
		}
	}
	var err error
	if f.StartDate, err = parseDate(c.Query("startDate"), false); err != nil {
		return Filter{}, fiber.NewError(http.StatusBadRequest, "invalid startDate")
	}
	if f.EndDate, err = parseDate(c.Query("endDate"), true); err != nil {
		return Filter{}, fiber.NewError(http.StatusBadRequest, "invalid endDate")
	}
	return f, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
