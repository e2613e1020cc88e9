package adaptor

import (
	"encoding/json"
	"net/http"

	"vivaly-settlement/internal/dto/request"
	"vivaly-settlement/internal/usecase"
	"vivaly-settlement/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminHandler struct {
	bookings    usecase.BookingService
	vouchers    usecase.VoucherService
	eligibility usecase.EligibilityService
	release     usecase.ReleaseService
	log         *zap.Logger
}

func NewAdminHandler(
	bookings usecase.BookingService,
	vouchers usecase.VoucherService,
	eligibility usecase.EligibilityService,
	release usecase.ReleaseService,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		bookings:    bookings,
		vouchers:    vouchers,
		eligibility: eligibility,
		release:     release,
		log:         log.With(zap.String("handler", "admin")),
	}
}

// ListClaims handles GET /api/admin/vouchers?status=
func (h *AdminHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	page, perPage := paginationFromRequest(r)
	req := &request.ListVoucherClaimsRequest{
		PaginatedRequest: request.PaginatedRequest{Page: page, PerPage: perPage},
		Status:           r.URL.Query().Get("status"),
	}

	claims, err := h.vouchers.ListClaims(r.Context(), req)
	if err != nil {
		handleServiceError(h.log, w, err, "list voucher claims")
		return
	}

	utils.ResponseSuccess(w, "success", claims)
}

// GetVoucherStats handles GET /api/admin/vouchers/stats
func (h *AdminHandler) GetVoucherStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.vouchers.GetStats(r.Context())
	if err != nil {
		handleServiceError(h.log, w, err, "get voucher stats")
		return
	}

	utils.ResponseSuccess(w, "success", stats)
}

// ReviewClaim handles POST /api/admin/vouchers/{id}/review
func (h *AdminHandler) ReviewClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.ReviewVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	claim, err := h.vouchers.ReviewClaim(r.Context(), actor, chi.URLParam(r, "id"), &req)
	if err != nil {
		handleServiceError(h.log, w, err, "review voucher claim")
		return
	}

	utils.ResponseSuccess(w, "success", claim)
}

// PayClaim handles POST /api/admin/vouchers/{id}/pay
func (h *AdminHandler) PayClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	claim, err := h.vouchers.PayClaim(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(h.log, w, err, "pay voucher claim")
		return
	}

	utils.ResponseSuccess(w, "success", claim)
}

// GetCaregiverEligibility handles GET /api/admin/caregivers/{id}/eligibility
func (h *AdminHandler) GetCaregiverEligibility(w http.ResponseWriter, r *http.Request) {
	caregiverID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid caregiver ID", nil)
		return
	}

	eligibility, err := h.eligibility.GetEligibility(r.Context(), caregiverID)
	if err != nil {
		handleServiceError(h.log, w, err, "get caregiver eligibility")
		return
	}

	utils.ResponseSuccess(w, "success", eligibility)
}

// ReconcileBooking handles POST /api/admin/bookings/{id}/reconcile
func (h *AdminHandler) ReconcileBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.ReconcileBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(h.log, w, err, "reconcile booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// RunReleases handles POST /api/admin/release-payments
func (h *AdminHandler) RunReleases(w http.ResponseWriter, r *http.Request) {
	run, err := h.release.RunDue(r.Context())
	if err != nil {
		handleServiceError(h.log, w, err, "run release payments")
		return
	}

	utils.ResponseSuccess(w, "success", run)
}
