package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type fundEscrowRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) fundEscrow(w http.ResponseWriter, r *http.Request) {
	var req fundEscrowRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if req.PaymentMethod == "" {
		s.badRequest(w, "payment_method is required")
		return
	}

	txn, err := s.ledger.FundEscrow(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "contractID"), req.PaymentMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTransaction(txn))
}

func (s *Server) releaseMilestone(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ledger.ReleaseMilestone(r.Context(), actorFrom(r.Context()).ID,
		chi.URLParam(r, "contractID"), chi.URLParam(r, "milestoneID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTransaction(txn))
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	esc, err := s.ledger.Escrow(r.Context(), chi.URLParam(r, "contractID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEscrow(esc))
}

func (s *Server) getEarnings(w http.ResponseWriter, r *http.Request) {
	earnings, err := s.ledger.Earnings(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_earnings":   earnings.TotalEarnings,
		"pending_earnings": earnings.PendingEarnings,
		"paid_out":         earnings.PaidOut,
		"available":        earnings.Available,
	})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txns, total, err := s.ledger.History(r.Context(), actorFrom(r.Context()).ID, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]transactionView, len(txns))
	for i, txn := range txns {
		out[i] = viewTransaction(txn)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out, "total": total})
}

type payoutSettingsRequest struct {
	PayoutMethod string `json:"payout_method"`
	Destination  string `json:"destination"`
	Verified     bool   `json:"verified"`
}

func (s *Server) setupPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutSettingsRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if req.PayoutMethod == "" || req.Destination == "" {
		s.badRequest(w, "payout_method and destination are required")
		return
	}

	ps, err := s.ledger.SetupPayout(r.Context(), actorFrom(r.Context()).ID, req.PayoutMethod, req.Destination, req.Verified)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       ps.UserID,
		"payout_method": ps.PayoutMethod,
		"destination":   ps.Destination,
		"is_verified":   ps.IsVerified,
		"updated_at":    ps.UpdatedAt,
	})
}

func (s *Server) getPayoutSettings(w http.ResponseWriter, r *http.Request) {
	ps, err := s.ledger.PayoutSettings(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       ps.UserID,
		"payout_method": ps.PayoutMethod,
		"destination":   ps.Destination,
		"is_verified":   ps.IsVerified,
		"updated_at":    ps.UpdatedAt,
	})
}

type payoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) requestPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		s.badRequest(w, "amount must be positive")
		return
	}

	txn, err := s.ledger.RequestPayout(r.Context(), actorFrom(r.Context()).ID, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTransaction(txn))
}
