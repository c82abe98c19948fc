package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	authHandler "github.com/silvercoin/advisor/backend/internal/handler/auth"
	chatHandler "github.com/silvercoin/advisor/backend/internal/handler/chat"
	profileHandler "github.com/silvercoin/advisor/backend/internal/handler/profile"
	"github.com/silvercoin/advisor/backend/internal/handler/stream"
	"github.com/silvercoin/advisor/backend/internal/handler/ws"
	"github.com/silvercoin/advisor/backend/internal/logging"
	middlewarePkg "github.com/silvercoin/advisor/backend/internal/middleware"
	profileService "github.com/silvercoin/advisor/backend/internal/service/profile"
	"github.com/silvercoin/advisor/backend/pkg/utils"
)

// Services are the dependencies the HTTP layer needs.
type Services struct {
	Authenticator authHandler.Authenticator
	Verifier      middlewarePkg.Verifier
	Chat          chatHandler.Pipeline
	Profiles      *profileService.Service
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	logger := logging.OrNop(svc.Logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if svc.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{}))
	}

	authHandler.New(svc.Authenticator).RegisterRoutes(r)

	// The chat pipeline authenticates the caller itself.
	chatHandler.New(svc.Chat).RegisterRoutes(r)
	stream.New(svc.Chat, logger).RegisterRoutes(r)
	ws.New(svc.Chat, logger).RegisterRoutes(r)

	r.Group(func(protected chi.Router) {
		protected.Use(middlewarePkg.RequireCaller(svc.Verifier))
		profileHandler.New(svc.Profiles).RegisterRoutes(protected)
	})

	return r
}
