package fxrate

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateApp(p Provider) *fiber.App {
	h := NewHandler(newTestCache(p, &testClock{now: time.Now()}, nil))
	app := fiber.New()
	app.Get("/fx/rates", h.Rates)
	app.Get("/fx/rates/:base/:target", h.Rate)
	return app
}

func TestHandlerRate(t *testing.T) {
	app := newRateApp(&fakeProvider{rates: ngnTable()})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fx/rates/ngn/usd", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NGN", body["base"])
	assert.Equal(t, "USD", body["target"])
	assert.Equal(t, "0.0012", body["rate"])
}

func TestHandlerRateUnavailable(t *testing.T) {
	app := newRateApp(&fakeProvider{err: errors.New("down")})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fx/rates/NGN/USD", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandlerRatesDefaultsToNGN(t *testing.T) {
	app := newRateApp(&fakeProvider{rates: ngnTable()})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fx/rates", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Base  string         `json:"base"`
		Rates map[string]any `json:"rates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NGN", body.Base)
	assert.Equal(t, "0.0012", body.Rates["USD"])
	assert.Nil(t, body.Rates["GBP"])
}

func TestHandlerRejectsBadCode(t *testing.T) {
	app := newRateApp(&fakeProvider{rates: ngnTable()})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fx/rates/NG/USD", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
