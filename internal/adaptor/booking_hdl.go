package adaptor

import (
	"encoding/json"
	"net/http"

	"vivaly-settlement/internal/dto/request"
	"vivaly-settlement/internal/usecase"
	"vivaly-settlement/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type BookingHandler struct {
	service usecase.BookingService
	log     *zap.Logger
}

func NewBookingHandler(service usecase.BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log.With(zap.String("handler", "booking")),
	}
}

// CreateBooking handles POST /api/bookings (parent)
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), actor, &req)
	if err != nil {
		handleServiceError(h.log, w, err, "create booking")
		return
	}

	utils.ResponseCreated(w, "success", booking)
}

// GetUserBookings handles GET /api/bookings
func (h *BookingHandler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	page, perPage := paginationFromRequest(r)
	req := &request.PaginatedRequest{Page: page, PerPage: perPage}

	bookings, err := h.service.GetUserBookings(r.Context(), actor, req)
	if err != nil {
		handleServiceError(h.log, w, err, "get user bookings")
		return
	}

	utils.ResponseSuccess(w, "success", bookings)
}

// GetBookingByID handles GET /api/bookings/{id}
func (h *BookingHandler) GetBookingByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	booking, err := h.service.GetBookingByID(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(h.log, w, err, "get booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// RespondToBooking handles POST /api/bookings/{id}/respond (caregiver)
func (h *BookingHandler) RespondToBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.RespondBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	booking, err := h.service.RespondToBooking(r.Context(), actor, chi.URLParam(r, "id"), &req)
	if err != nil {
		handleServiceError(h.log, w, err, "respond to booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// PayBooking handles POST /api/bookings/{id}/pay (parent)
func (h *BookingHandler) PayBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.PayBookingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.ResponseBadRequest(w, "Invalid request body", nil)
			return
		}
	}

	booking, err := h.service.PayBooking(r.Context(), actor, chi.URLParam(r, "id"), &req)
	if err != nil {
		handleServiceError(h.log, w, err, "pay booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// CompleteBooking handles POST /api/bookings/{id}/complete (parent)
func (h *BookingHandler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	booking, err := h.service.CompleteBooking(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(h.log, w, err, "complete booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// CancelBooking handles POST /api/bookings/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CancelBookingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.ResponseBadRequest(w, "Invalid request body", nil)
			return
		}
	}

	booking, err := h.service.CancelBooking(r.Context(), actor, chi.URLParam(r, "id"), &req)
	if err != nil {
		handleServiceError(h.log, w, err, "cancel booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}
