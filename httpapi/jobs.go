package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"gigflow/job"
)

type createJobRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	JobType     string           `json:"job_type"`
	BudgetMin   *decimal.Decimal `json:"budget_min"`
	BudgetMax   *decimal.Decimal `json:"budget_max"`
	Draft       bool             `json:"draft"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	rec, err := s.jobs.Create(r.Context(), actorFrom(r.Context()).ID, job.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		JobType:     job.Type(req.JobType),
		BudgetMin:   req.BudgetMin,
		BudgetMax:   req.BudgetMax,
		Draft:       req.Draft,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewJob(rec))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewJob(rec))
}

func (s *Server) listOpenJobs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := s.jobs.ListOpen(r.Context(), r.URL.Query().Get("category"), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": viewJobs(recs)})
}

type updateJobRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	BudgetMin   *decimal.Decimal `json:"budget_min"`
	BudgetMax   *decimal.Decimal `json:"budget_max"`
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	var req updateJobRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	rec, err := s.jobs.Update(r.Context(), chi.URLParam(r, "jobID"), actorFrom(r.Context()).ID, job.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		BudgetMin:   req.BudgetMin,
		BudgetMax:   req.BudgetMax,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewJob(rec))
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), chi.URLParam(r, "jobID"), actorFrom(r.Context()).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publishJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Publish(r.Context(), chi.URLParam(r, "jobID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewJob(rec))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Cancel(r.Context(), chi.URLParam(r, "jobID"), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewJob(rec))
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProfile(rec))
}
