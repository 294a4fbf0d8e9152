package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appChat "github.com/paire/chat-billing/internal/application/chat"
	appLedger "github.com/paire/chat-billing/internal/application/ledger"
	"github.com/paire/chat-billing/internal/domain/billing"
	"github.com/paire/chat-billing/internal/domain/session"
	"github.com/paire/chat-billing/internal/domain/wallet"
	"github.com/paire/chat-billing/internal/infrastructure/events"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	chatSvc    *appChat.Service
	ledgerSvc  *appLedger.Service
	hub        *events.Hub
	apiKeyHash string
	logger     zerolog.Logger
}

func NewServer(
	chatSvc *appChat.Service,
	ledgerSvc *appLedger.Service,
	hub *events.Hub,
	apiKeyHash string,
	logger zerolog.Logger,
) *Server {
	return &Server{
		chatSvc:    chatSvc,
		ledgerSvc:  ledgerSvc,
		hub:        hub,
		apiKeyHash: apiKeyHash,
		logger:     logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.openSession)
			r.Get("/{sessionId}", s.getSession)
			r.Post("/{sessionId}/messages", s.recordMessage)
			r.Post("/{sessionId}/deposit", s.deposit)
			r.Post("/{sessionId}/close", s.closeSession)
			r.Get("/{sessionId}/transactions", s.listTransactions)
			r.Get("/{sessionId}/totals", s.sessionTotals)
		})

		r.Route("/wallets", func(r chi.Router) {
			r.Get("/{userId}", s.getWallet)
			r.With(s.requireAPIKey).Post("/{userId}/credit", s.creditWallet)
		})

		r.Get("/events", s.sseEndpoint)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// Helpers

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps typed engine errors onto the HTTP surface.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appChat.ErrDepositRequired):
		respondError(w, http.StatusPaymentRequired, "DEPOSIT_REQUIRED", err.Error())
	case errors.Is(err, wallet.ErrInsufficientBalance):
		respondError(w, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, wallet.ErrEscrowExhausted):
		respondError(w, http.StatusPaymentRequired, "ESCROW_EXHAUSTED", err.Error())
	case errors.Is(err, appChat.ErrSessionNotFound),
		errors.Is(err, wallet.ErrAccountNotFound),
		errors.Is(err, billing.ErrProfileNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, session.ErrClosed):
		respondError(w, http.StatusConflict, "SESSION_CLOSED", err.Error())
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, appChat.ErrDepositNotAllowed):
		respondError(w, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, session.ErrNotParticipant),
		errors.Is(err, appChat.ErrNotPayer):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, appChat.ErrModerationRejected),
		errors.Is(err, billing.ErrRoleConflict):
		respondError(w, http.StatusUnprocessableEntity, "REJECTED", err.Error())
	case errors.Is(err, appChat.ErrSameParticipant):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case errors.Is(err, wallet.ErrConcurrentConflict),
		errors.Is(err, session.ErrVersionConflict):
		respondError(w, http.StatusServiceUnavailable, "CONFLICT_RETRY", err.Error())
	default:
		s.logger.Error().Err(err).Msg("unhandled error")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
