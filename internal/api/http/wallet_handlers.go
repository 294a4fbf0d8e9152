package httpapi

import (
	"net/http"
)

type creditRequest struct {
	AmountTokens int64 `json:"amountTokens"`
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	acct, err := s.ledgerSvc.Account(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

// creditWallet applies an externally settled top-up. Admin only: in
// production the payment processor webhook is the sole caller.
func (s *Server) creditWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	var req creditRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.AmountTokens <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "amountTokens must be positive")
		return
	}
	if _, err := s.ledgerSvc.EnsureAccount(r.Context(), userID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	acct, err := s.ledgerSvc.Credit(r.Context(), userID, req.AmountTokens)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}
