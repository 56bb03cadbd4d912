package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"gigflow/proposal"
)

type milestoneInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

func toMilestoneInputs(in []milestoneInput) []proposal.MilestoneInput {
	out := make([]proposal.MilestoneInput, len(in))
	for i, m := range in {
		out[i] = proposal.MilestoneInput{Title: m.Title, Description: m.Description, Amount: m.Amount}
	}
	return out
}

type submitProposalRequest struct {
	CoverLetter string           `json:"cover_letter"`
	BidAmount   decimal.Decimal  `json:"bid_amount"`
	Milestones  []milestoneInput `json:"milestones"`
}

func (s *Server) submitProposal(w http.ResponseWriter, r *http.Request) {
	var req submitProposalRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	rec, err := s.proposals.Submit(r.Context(), actorFrom(r.Context()).ID, proposal.SubmitParams{
		JobID:       chi.URLParam(r, "jobID"),
		CoverLetter: req.CoverLetter,
		BidAmount:   req.BidAmount,
		Milestones:  toMilestoneInputs(req.Milestones),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewProposal(rec))
}

type updateProposalRequest struct {
	CoverLetter *string          `json:"cover_letter"`
	BidAmount   *decimal.Decimal `json:"bid_amount"`
	Milestones  []milestoneInput `json:"milestones"`
}

func (s *Server) updateProposal(w http.ResponseWriter, r *http.Request) {
	var req updateProposalRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	params := proposal.UpdateParams{
		CoverLetter: req.CoverLetter,
		BidAmount:   req.BidAmount,
	}
	if req.Milestones != nil {
		params.Milestones = toMilestoneInputs(req.Milestones)
	}

	rec, err := s.proposals.Update(r.Context(), chi.URLParam(r, "proposalID"), actorFrom(r.Context()).ID, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProposal(rec))
}

func (s *Server) withdrawProposal(w http.ResponseWriter, r *http.Request) {
	if err := s.proposals.Withdraw(r.Context(), chi.URLParam(r, "proposalID"), actorFrom(r.Context()).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) shortlistProposal(w http.ResponseWriter, r *http.Request) {
	rec, err := s.proposals.Shortlist(r.Context(), chi.URLParam(r, "proposalID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProposal(rec))
}

func (s *Server) rejectProposal(w http.ResponseWriter, r *http.Request) {
	rec, err := s.proposals.Reject(r.Context(), chi.URLParam(r, "proposalID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProposal(rec))
}

// acceptProposal is the pivot of the whole marketplace: one transaction takes
// the proposal to ACCEPTED, spins up the contract with its escrow, and closes
// the job to further bidding.
func (s *Server) acceptProposal(w http.ResponseWriter, r *http.Request) {
	res, err := s.proposals.Accept(r.Context(), chi.URLParam(r, "proposalID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal":   viewProposal(res.Proposal),
		"contract":   viewContract(res.Contract),
		"milestones": viewMilestones(res.Milestones),
	})
}

func (s *Server) listJobProposals(w http.ResponseWriter, r *http.Request) {
	recs, err := s.proposals.ListForJob(r.Context(), chi.URLParam(r, "jobID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": viewProposals(recs)})
}

func (s *Server) listMyProposals(w http.ResponseWriter, r *http.Request) {
	recs, err := s.proposals.ListMine(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": viewProposals(recs)})
}

func (s *Server) proposalMilestones(w http.ResponseWriter, r *http.Request) {
	ms, err := s.proposals.Milestones(r.Context(), chi.URLParam(r, "proposalID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"milestones": viewProposedMilestones(ms)})
}
