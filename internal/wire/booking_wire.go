package wire

import (
	"net/http"

	"vivaly-settlement/internal/adaptor"
	"vivaly-settlement/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	auth func(http.Handler) http.Handler,
	log *zap.Logger,
) {
	r.Route("/api/bookings", func(r chi.Router) {
		r.Use(auth)

		// Any party, admins included
		r.Get("/", bookingHandler.GetUserBookings)
		r.Get("/{id}", bookingHandler.GetBookingByID)
		r.With(middleware.RequireRole(log, "parent", "caregiver", "admin")).
			Post("/{id}/cancel", bookingHandler.CancelBooking)

		// Parent
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(log, "parent"))

			r.Post("/", bookingHandler.CreateBooking)
			r.Post("/{id}/pay", bookingHandler.PayBooking)
			r.Post("/{id}/complete", bookingHandler.CompleteBooking)
		})

		// Caregiver
		r.With(middleware.RequireRole(log, "caregiver")).
			Post("/{id}/respond", bookingHandler.RespondToBooking)
	})
}
