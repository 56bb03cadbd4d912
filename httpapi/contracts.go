package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"gigflow/contract"
	"gigflow/dispute"
)

func (s *Server) getContract(w http.ResponseWriter, r *http.Request) {
	rec, err := s.contracts.Get(r.Context(), chi.URLParam(r, "contractID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewContract(rec))
}

func (s *Server) listContracts(w http.ResponseWriter, r *http.Request) {
	side := contract.Role(r.URL.Query().Get("side"))
	if side == "" {
		side = contract.RoleAny
	}
	status := contract.Status(r.URL.Query().Get("status"))

	recs, err := s.contracts.List(r.Context(), actorFrom(r.Context()).ID, side, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": viewContracts(recs)})
}

func (s *Server) contractMilestones(w http.ResponseWriter, r *http.Request) {
	ms, err := s.contracts.Milestones(r.Context(), chi.URLParam(r, "contractID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"milestones": viewMilestones(ms)})
}

func (s *Server) startMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.contracts.StartMilestone(r.Context(),
		chi.URLParam(r, "contractID"), chi.URLParam(r, "milestoneID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewMilestone(m))
}

type submitMilestoneRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	FileURLs    []string `json:"file_urls"`
}

func (s *Server) submitMilestone(w http.ResponseWriter, r *http.Request) {
	var req submitMilestoneRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	m, err := s.contracts.SubmitMilestone(r.Context(),
		chi.URLParam(r, "contractID"), chi.URLParam(r, "milestoneID"), actorFrom(r.Context()).ID,
		contract.SubmitDeliverableParams{
			Title:       req.Title,
			Description: req.Description,
			FileURLs:    req.FileURLs,
		})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewMilestone(m))
}

func (s *Server) approveMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.contracts.ApproveMilestone(r.Context(),
		chi.URLParam(r, "contractID"), chi.URLParam(r, "milestoneID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewMilestone(m))
}

type requestRevisionRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) requestRevision(w http.ResponseWriter, r *http.Request) {
	var req requestRevisionRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if req.Feedback == "" {
		s.badRequest(w, "feedback is required")
		return
	}

	m, err := s.contracts.RequestRevision(r.Context(),
		chi.URLParam(r, "contractID"), chi.URLParam(r, "milestoneID"), actorFrom(r.Context()).ID, req.Feedback)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewMilestone(m))
}

type adminStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) adminSetContractStatus(w http.ResponseWriter, r *http.Request) {
	var req adminStatusRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	rec, err := s.contracts.AdminSetStatus(r.Context(), chi.URLParam(r, "contractID"), contract.Status(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewContract(rec))
}

type timeEntryRequest struct {
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	EntryDate   string          `json:"entry_date"`
}

func (s *Server) addTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req timeEntryRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	entryDate, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		s.badRequest(w, "entry_date must be YYYY-MM-DD")
		return
	}

	entry, err := s.contracts.AddTimeEntry(r.Context(),
		chi.URLParam(r, "contractID"), actorFrom(r.Context()).ID, req.Description, req.Hours, entryDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTimeEntry(entry))
}

func (s *Server) listTimeEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.contracts.TimeEntries(r.Context(), chi.URLParam(r, "contractID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]timeEntryView, len(entries))
	for i, e := range entries {
		out[i] = viewTimeEntry(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_entries": out})
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	rv, err := s.contracts.SubmitReview(r.Context(),
		chi.URLParam(r, "contractID"), actorFrom(r.Context()).ID, req.Rating, req.Title, req.Comment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewReview(rv))
}

type openDisputeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) openDispute(w http.ResponseWriter, r *http.Request) {
	var req openDisputeRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if req.Reason == "" {
		s.badRequest(w, "reason is required")
		return
	}

	d, err := s.disputes.Open(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "contractID"), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewDispute(d))
}

func (s *Server) listDisputes(w http.ResponseWriter, r *http.Request) {
	ds, err := s.disputes.ListForContract(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "contractID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]disputeView, len(ds))
	for i, d := range ds {
		out[i] = viewDispute(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": out})
}

type resolveDisputeRequest struct {
	Outcome string `json:"outcome"`
}

func (s *Server) resolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	outcome := dispute.Outcome(req.Outcome)
	if outcome != dispute.OutcomeResume && outcome != dispute.OutcomeCancel {
		s.badRequest(w, "outcome must be RESUME or CANCEL")
		return
	}

	d, err := s.disputes.Resolve(r.Context(), chi.URLParam(r, "disputeID"), outcome)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewDispute(d))
}
