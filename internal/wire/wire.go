package wire

import (
	"net/http"

	"vivaly-settlement/internal/adaptor"
	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/internal/usecase"
	"vivaly-settlement/pkg/middleware"
	"vivaly-settlement/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the wired router and the services behind it.
type App struct {
	Router  *chi.Mux
	Service *usecase.Service
}

func Wiring(
	repo *repository.Repository,
	config *utils.Config,
	proc usecase.PaymentProcessor,
	events usecase.EventPublisher,
	logger *zap.Logger,
) *App {
	service := usecase.NewService(repo, config, proc, events, logger)
	handler := adaptor.NewHandler(service, logger)

	return &App{
		Router:  setupRouter(handler, config, logger),
		Service: service,
	}
}

func setupRouter(handler *adaptor.Handler, config *utils.Config, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(config.App.AllowedOrigins))

	auth := middleware.AuthJWT(config.JWT.Secret, config.JWT.Issuer, logger)

	wireBooking(r, handler.Booking, auth, logger)
	wireVoucher(r, handler.Voucher, auth, logger)
	wireAdmin(r, handler.Admin, auth, logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
