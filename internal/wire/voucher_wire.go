package wire

import (
	"net/http"

	"vivaly-settlement/internal/adaptor"
	"vivaly-settlement/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireVoucher(
	r chi.Router,
	voucherHandler *adaptor.VoucherHandler,
	auth func(http.Handler) http.Handler,
	log *zap.Logger,
) {
	r.Route("/api/vouchers", func(r chi.Router) {
		// Public catalog
		r.Get("/types", voucherHandler.GetVoucherTypes)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Use(middleware.RequireRole(log, "caregiver"))

			r.Get("/eligibility", voucherHandler.GetEligibility)
			r.Get("/claims", voucherHandler.GetMyClaims)
			r.Post("/claims", voucherHandler.SubmitClaim)
		})
	})
}
