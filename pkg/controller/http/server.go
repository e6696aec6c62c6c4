package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/trickpatty/hearthsync/pkg/service/notify"
	"github.com/trickpatty/hearthsync/pkg/usecase"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
)

type Server struct {
	router  *chi.Mux
	uc      *usecase.UseCases
	hub     *notify.Hub
	subOpts []notify.SubscriberOption
}

type Options func(*Server)

// WithSubscriberWriteTimeout sets the write deadline applied to every
// websocket subscriber
func WithSubscriberWriteTimeout(d time.Duration) Options {
	return func(s *Server) {
		s.subOpts = append(s.subOpts, notify.WithWriteTimeout(d))
	}
}

func New(uc *usecase.UseCases, hub *notify.Hub, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
		hub:    hub,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(uc.Auth))

		r.Route("/connections", func(r chi.Router) {
			r.Post("/", createConnectionHandler(uc.Connection))
			r.Get("/", listConnectionsHandler(uc.Connection))

			r.Route("/{connectionID}", func(r chi.Router) {
				r.Get("/", getConnectionHandler(uc.Connection))
				r.Patch("/", updateConnectionHandler(uc.Connection))
				r.Delete("/", disconnectHandler(uc.Connection))
				r.Post("/authorize", completeAuthHandler(uc.Connection))
				r.Post("/sync", syncNowHandler(uc.Connection))
				r.Post("/pause", pauseHandler(uc.Connection))
				r.Post("/resume", resumeHandler(uc.Connection))
			})
		})

		r.Post("/changes", announceChangeHandler(uc.Changes))
	})

	// Subscription endpoint. Browsers cannot set headers on websocket
	// handshakes, so the credential rides in a query parameter.
	r.Get("/ws", subscribeHandler(uc.Auth, hub, s.subOpts))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
