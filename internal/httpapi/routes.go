package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/league-scorekeeper/internal/hub"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/ws"
)

func SetupRoutes(h *hub.Hub, wsOpts ws.Options, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if wsOpts.Logger == nil {
		wsOpts.Logger = logger
	}

	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, wsOpts))
	r.Route("/matches", func(r chi.Router) {
		r.Get("/", ListMatches(h))
		r.Get("/{matchID}", GetMatch(h))
		r.Delete("/{matchID}", AbandonMatch(h))
	})

	return RequestLogging(logger.With("component", "http"), recoverPanic(logger, r))
}
