package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/paire/chat-billing/internal/domain/session"
)

type openSessionRequest struct {
	SenderID   uuid.UUID `json:"senderId"`
	ReceiverID uuid.UUID `json:"receiverId"`
}

type recordMessageRequest struct {
	AuthorID uuid.UUID `json:"authorId"`
	Text     string    `json:"text"`
}

type depositRequest struct {
	UserID       uuid.UUID `json:"userId"`
	AmountTokens int64     `json:"amountTokens"`
}

type closeSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.SenderID == uuid.Nil || req.ReceiverID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "senderId and receiverId are required")
		return
	}
	sess, err := s.chatSvc.OpenSession(r.Context(), req.SenderID, req.ReceiverID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, err := s.chatSvc.GetSession(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) recordMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	var req recordMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.AuthorID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "authorId is required")
		return
	}
	res, err := s.chatSvc.RecordMessage(r.Context(), id, req.AuthorID, req.Text)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.AmountTokens <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "amountTokens must be positive")
		return
	}
	res, err := s.chatSvc.Deposit(r.Context(), id, req.UserID, req.AmountTokens)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	var req closeSessionRequest
	_ = decodeBody(r, &req)
	reason := session.CloseReasonUser
	if req.Reason != "" {
		switch session.CloseReason(req.Reason) {
		case session.CloseReasonUser, session.CloseReasonTimeout, session.CloseReasonModeration:
			reason = session.CloseReason(req.Reason)
		default:
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid close reason")
			return
		}
	}
	sess, err := s.chatSvc.CloseSession(r.Context(), id, reason)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	limit := parseLimit(r, 100, 500)
	txs, err := s.ledgerSvc.Transactions(r.Context(), id, limit)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sessionId": id, "transactions": txs})
}

func (s *Server) sessionTotals(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	totals, err := s.ledgerSvc.Totals(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}
