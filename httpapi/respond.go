package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"gigflow/contract"
	"gigflow/dispute"
	"gigflow/gateway"
	"gigflow/identity"
	"gigflow/job"
	"gigflow/ledger"
	"gigflow/profile"
	"gigflow/proposal"
)

const requestBodyLimit = 1 << 20 // 1 MiB

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps domain sentinels onto HTTP status and a stable machine
// code. Anything unmapped is a 500 and gets logged with the request path.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{job.ErrNotFound, http.StatusNotFound, "job_not_found"},
	{proposal.ErrNotFound, http.StatusNotFound, "proposal_not_found"},
	{contract.ErrNotFound, http.StatusNotFound, "contract_not_found"},
	{contract.ErrMilestoneNotFound, http.StatusNotFound, "milestone_not_found"},
	{ledger.ErrEscrowNotFound, http.StatusNotFound, "escrow_not_found"},
	{dispute.ErrNotFound, http.StatusNotFound, "dispute_not_found"},
	{profile.ErrNotFound, http.StatusNotFound, "profile_not_found"},

	{job.ErrForbidden, http.StatusForbidden, "forbidden"},
	{proposal.ErrForbidden, http.StatusForbidden, "forbidden"},
	{contract.ErrForbidden, http.StatusForbidden, "forbidden"},

	{job.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{proposal.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{contract.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{contract.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{proposal.ErrJobNotOpen, http.StatusConflict, "job_not_open"},
	{proposal.ErrDuplicateProposal, http.StatusConflict, "duplicate_proposal"},
	{proposal.ErrSelfProposal, http.StatusConflict, "self_proposal"},
	{ledger.ErrAlreadyFunded, http.StatusConflict, "already_funded"},
	{ledger.ErrNotApproved, http.StatusConflict, "milestone_not_approved"},
	{dispute.ErrAlreadyOpen, http.StatusConflict, "dispute_already_open"},
	{dispute.ErrResolved, http.StatusConflict, "dispute_resolved"},

	{ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{ledger.ErrPayoutNotConfigured, http.StatusUnprocessableEntity, "payout_not_configured"},
	{gateway.ErrPaymentGateway, http.StatusBadGateway, "payment_gateway_failure"},

	{identity.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, errorBody{Code: m.code, Message: err.Error()})
			return
		}
	}
	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestBodyLimit))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
