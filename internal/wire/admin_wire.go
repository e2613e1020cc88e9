package wire

import (
	"net/http"

	"vivaly-settlement/internal/adaptor"
	"vivaly-settlement/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireAdmin(
	r chi.Router,
	adminHandler *adaptor.AdminHandler,
	auth func(http.Handler) http.Handler,
	log *zap.Logger,
) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.RequireRole(log, "admin"))

		r.Get("/vouchers", adminHandler.ListClaims)
		r.Get("/vouchers/stats", adminHandler.GetVoucherStats)
		r.Post("/vouchers/{id}/review", adminHandler.ReviewClaim)
		r.Post("/vouchers/{id}/pay", adminHandler.PayClaim)

		r.Get("/caregivers/{id}/eligibility", adminHandler.GetCaregiverEligibility)

		r.Post("/bookings/{id}/reconcile", adminHandler.ReconcileBooking)

		// Manual trigger for the release sweep
		r.Post("/release-payments", adminHandler.RunReleases)
	})
}
