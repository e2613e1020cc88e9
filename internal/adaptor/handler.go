package adaptor

import (
	"errors"
	"net/http"

	"vivaly-settlement/internal/data/entity"
	"vivaly-settlement/internal/usecase"
	"vivaly-settlement/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Booking *BookingHandler
	Voucher *VoucherHandler
	Admin   *AdminHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Booking: NewBookingHandler(service.Booking, log),
		Voucher: NewVoucherHandler(service.Voucher, service.Eligibility, log),
		Admin:   NewAdminHandler(service.Booking, service.Voucher, service.Eligibility, service.Release, log),
	}
}

// actorFromRequest reads the caller set by the auth middleware.
func actorFromRequest(r *http.Request) (usecase.Actor, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		return usecase.Actor{}, false
	}
	role, ok := utils.GetRoleFromContext(r.Context())
	if !ok {
		return usecase.Actor{}, false
	}
	return usecase.Actor{ID: userID, Role: entity.ActorRole(role)}, true
}

func paginationFromRequest(r *http.Request) (page, perPage int) {
	query := r.URL.Query()
	return utils.ParseInt(query.Get("page"), 1), utils.ParseInt(query.Get("per_page"), 10)
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(log *zap.Logger, w http.ResponseWriter, err error, operation string) {
	errMsg := err.Error()
	fields := []zap.Field{zap.Error(err), zap.String("operation", operation)}

	switch {
	case errors.Is(err, usecase.ErrNotFound):
		log.Warn(operation+" failed - not found", fields...)
		utils.ResponseNotFound(w, errMsg)

	case errors.Is(err, usecase.ErrValidation),
		errors.Is(err, usecase.ErrInvalidAmount),
		errors.Is(err, usecase.ErrUnknownVoucherType):
		log.Warn(operation+" validation failed", fields...)
		utils.ResponseBadRequest(w, errMsg, nil)

	case errors.Is(err, usecase.ErrNotEligible),
		errors.Is(err, usecase.ErrAmountOutOfRange):
		log.Warn(operation+" failed - not allowed", fields...)
		utils.ResponseUnprocessable(w, errMsg, nil)

	case errors.Is(err, usecase.ErrPaymentFailed):
		log.Error(operation+" failed - payment processor", fields...)
		utils.ResponseBadGateway(w, errMsg)

	case errors.Is(err, usecase.ErrEscrowState):
		log.Error(operation+" failed - escrow state", fields...)
		utils.ResponseConflict(w, errMsg)

	case errors.Is(err, usecase.ErrInvalidTransition),
		errors.Is(err, usecase.ErrNotConfirmed),
		errors.Is(err, usecase.ErrPaymentRequired),
		errors.Is(err, usecase.ErrAlreadyTerminal),
		errors.Is(err, usecase.ErrTooEarly),
		errors.Is(err, usecase.ErrTooLateToCancel),
		errors.Is(err, usecase.ErrConcurrentUpdate):
		log.Warn(operation+" failed - invalid state", fields...)
		utils.ResponseConflict(w, errMsg)

	default:
		log.Error(operation+" failed", fields...)
		utils.ResponseInternalError(w, "Internal server error")
	}
}
