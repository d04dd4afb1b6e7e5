package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/infra/metrics"
)

type loginRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if s.apiKey == "" || req.APIKey != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			http.Error(w, "Failed to mint session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// statsHandler serves a snapshot with revenue windows aligned to the
// operator's usual questions: this week, this month, this year.
func (s *Server) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().UTC()

		since := now.AddDate(0, 0, -30)
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				http.Error(w, "Invalid 'since' timestamp, want RFC3339", http.StatusBadRequest)
				return
			}
			since = parsed
		}

		snap, err := s.statsUC.Snapshot(ctx, since)
		if err != nil {
			s.log.Error().Err(err).Msg("stats snapshot failed")
			http.Error(w, "Failed to get stats", http.StatusInternalServerError)
			return
		}

		response := struct {
			OpenObligations     int               `json:"open_obligations"`
			ActiveSubscriptions int               `json:"active_subscriptions"`
			RevenueSince        time.Time         `json:"revenue_since"`
			SettledRevenue      map[string]string `json:"settled_revenue"`
		}{
			OpenObligations:     snap.OpenObligations,
			ActiveSubscriptions: snap.ActiveSubscriptions,
			RevenueSince:        since,
			SettledRevenue:      make(map[string]string, len(snap.SettledRevenue)),
		}
		for cur, amount := range snap.SettledRevenue {
			response.SettledRevenue[string(cur)] = amount.String()
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// sweepHandler triggers a reconciliation pass. With ?currency= it sweeps one
// chain; without, all of them.
func (s *Server) sweepHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		metrics.IncSweep("admin")

		if raw := r.URL.Query().Get("currency"); raw != "" {
			cur, err := model.ParseCurrency(raw)
			if err != nil {
				http.Error(w, "Unknown currency", http.StatusBadRequest)
				return
			}
			n, err := s.reconcileUC.SweepCurrency(ctx, cur)
			if err != nil {
				if errors.Is(err, domain.ErrCurrencyNotConfigured) {
					http.Error(w, "Currency not configured", http.StatusConflict)
					return
				}
				s.log.Error().Err(err).Str("currency", string(cur)).Msg("manual sweep failed")
				http.Error(w, "Sweep failed", http.StatusInternalServerError)
				return
			}
			metrics.AddSettlements(string(cur), n)
			writeJSON(w, http.StatusOK, map[string]int{string(cur): n})
			return
		}

		counts := s.reconcileUC.SweepAll(ctx)
		out := make(map[string]int, len(counts))
		for cur, n := range counts {
			metrics.AddSettlements(string(cur), n)
			out[string(cur)] = n
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// userHandler shows one user's ledger: open obligations and subscription
// history.
func (s *Server) userHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := chi.URLParam(r, "id")
		if userID == "" {
			http.Error(w, "User ID is required", http.StatusBadRequest)
			return
		}

		open, err := s.obligUC.ListOpenByUser(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Failed to list obligations", http.StatusInternalServerError)
			return
		}

		sub, err := s.subUC.Effective(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNoEffectiveSubscription) {
			http.Error(w, "Failed to get subscription", http.StatusInternalServerError)
			return
		}

		response := struct {
			UserID          string                     `json:"user_id"`
			Effective       *model.Subscription        `json:"effective_subscription"`
			OpenObligations []*model.PendingObligation `json:"open_obligations"`
		}{
			UserID:          userID,
			Effective:       sub,
			OpenObligations: open,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
