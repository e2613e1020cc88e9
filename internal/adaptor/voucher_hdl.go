package adaptor

import (
	"encoding/json"
	"net/http"

	"vivaly-settlement/internal/dto/request"
	"vivaly-settlement/internal/usecase"
	"vivaly-settlement/pkg/utils"

	"go.uber.org/zap"
)

type VoucherHandler struct {
	service     usecase.VoucherService
	eligibility usecase.EligibilityService
	log         *zap.Logger
}

func NewVoucherHandler(service usecase.VoucherService, eligibility usecase.EligibilityService, log *zap.Logger) *VoucherHandler {
	return &VoucherHandler{
		service:     service,
		eligibility: eligibility,
		log:         log.With(zap.String("handler", "voucher")),
	}
}

// GetVoucherTypes handles GET /api/vouchers/types (public)
func (h *VoucherHandler) GetVoucherTypes(w http.ResponseWriter, r *http.Request) {
	utils.ResponseSuccess(w, "success", h.service.GetVoucherTypes(r.Context()))
}

// GetEligibility handles GET /api/vouchers/eligibility (caregiver)
func (h *VoucherHandler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	eligibility, err := h.eligibility.GetEligibility(r.Context(), actor.ID)
	if err != nil {
		handleServiceError(h.log, w, err, "get eligibility")
		return
	}

	utils.ResponseSuccess(w, "success", eligibility)
}

// SubmitClaim handles POST /api/vouchers/claims (caregiver)
func (h *VoucherHandler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.SubmitVoucherClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	claim, err := h.service.SubmitClaim(r.Context(), actor, &req)
	if err != nil {
		handleServiceError(h.log, w, err, "submit voucher claim")
		return
	}

	utils.ResponseCreated(w, "success", claim)
}

// GetMyClaims handles GET /api/vouchers/claims (caregiver)
func (h *VoucherHandler) GetMyClaims(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	page, perPage := paginationFromRequest(r)
	claims, err := h.service.GetMyClaims(r.Context(), actor, &request.PaginatedRequest{Page: page, PerPage: perPage})
	if err != nil {
		handleServiceError(h.log, w, err, "get voucher claims")
		return
	}

	utils.ResponseSuccess(w, "success", claims)
}
