// File: internal/infra/web/server.go
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/usecase"
)

// Server exposes the operator API: stats, manual sweeps and per-user ledger
// inspection. Authentication is the admin API key (Bearer) or a short-lived
// session minted from it.
type Server struct {
	statsUC     usecase.StatsUseCase
	reconcileUC usecase.ReconcileUseCase
	subUC       usecase.SubscriptionUseCase
	obligUC     usecase.ObligationUseCase
	auth        *AuthManager
	apiKey      string
	log         *zerolog.Logger
}

func NewServer(
	statsUC usecase.StatsUseCase,
	reconcileUC usecase.ReconcileUseCase,
	subUC usecase.SubscriptionUseCase,
	obligUC usecase.ObligationUseCase,
	auth *AuthManager,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		statsUC:     statsUC,
		reconcileUC: reconcileUC,
		subUC:       subUC,
		obligUC:     obligUC,
		auth:        auth,
		apiKey:      apiKey,
		log:         &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/login", s.loginHandler())
	r.Post("/api/v1/logout", s.logoutHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/stats", s.statsHandler())
		r.Post("/api/v1/sweep", s.sweepHandler())
		r.Get("/api/v1/users/{id}", s.userHandler())
	})
	return r
}

// authMiddleware accepts either the raw API key or a session token minted
// from it.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if hdr := r.Header.Get("Authorization"); hdr != "" {
			parts := strings.SplitN(hdr, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] == s.apiKey {
				next.ServeHTTP(w, r)
				return
			}
		}
		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}
