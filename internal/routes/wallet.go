package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/fxrate"
	"github.com/congo-pay/fxledger/internal/ledger"
	"github.com/congo-pay/fxledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet and balance-changing endpoints. The
// mutation handlers run in front of every POST.
func RegisterWalletRoutes(r fiber.Router, w *wallet.Handler, l *ledger.Handler, mutation ...fiber.Handler) {
	r.Get("/wallet", w.Get)
	r.Post("/wallet", chain(mutation, w.Create)...)
	r.Post("/wallet/fund", chain(mutation, l.Fund)...)
	r.Post("/wallet/convert", chain(mutation, l.Convert)...)
	r.Post("/wallet/trade", chain(mutation, l.Trade)...)
}

// RegisterRateRoutes wires the public exchange-rate endpoints.
func RegisterRateRoutes(r fiber.Router, h *fxrate.Handler) {
	r.Get("/fx/rates", h.Rates)
	r.Get("/fx/rates/:base/:target", h.Rate)
}

func chain(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}
