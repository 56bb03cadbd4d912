package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gigflow/contract"
	"gigflow/dispute"
	"gigflow/identity"
	"gigflow/job"
	"gigflow/ledger"
	"gigflow/profile"
	"gigflow/proposal"
)

// Server wires the domain services to HTTP. It holds no state of its own;
// every handler is a thin decode, dispatch, encode shim.
type Server struct {
	jobs      *job.Service
	proposals *proposal.Service
	contracts *contract.Service
	ledger    *ledger.Service
	disputes  *dispute.Service
	profiles  *profile.Repository
	verifier  *identity.Verifier
	logger    *zap.Logger
}

func NewServer(
	jobs *job.Service,
	proposals *proposal.Service,
	contracts *contract.Service,
	ledg *ledger.Service,
	disputes *dispute.Service,
	profiles *profile.Repository,
	verifier *identity.Verifier,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		jobs:      jobs,
		proposals: proposals,
		contracts: contracts,
		ledger:    ledg,
		disputes:  disputes,
		profiles:  profiles,
		verifier:  verifier,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listOpenJobs)
			r.Get("/{jobID}", s.getJob)
			r.Patch("/{jobID}", s.updateJob)
			r.Delete("/{jobID}", s.deleteJob)
			r.Post("/{jobID}/publish", s.publishJob)
			r.Post("/{jobID}/cancel", s.cancelJob)
			r.Get("/{jobID}/proposals", s.listJobProposals)
			r.Post("/{jobID}/proposals", s.submitProposal)
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Get("/mine", s.listMyProposals)
			r.Patch("/{proposalID}", s.updateProposal)
			r.Get("/{proposalID}/milestones", s.proposalMilestones)
			r.Post("/{proposalID}/withdraw", s.withdrawProposal)
			r.Post("/{proposalID}/shortlist", s.shortlistProposal)
			r.Post("/{proposalID}/reject", s.rejectProposal)
			r.Post("/{proposalID}/accept", s.acceptProposal)
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", s.listContracts)
			r.Get("/{contractID}", s.getContract)
			r.Get("/{contractID}/milestones", s.contractMilestones)
			r.Post("/{contractID}/milestones/{milestoneID}/start", s.startMilestone)
			r.Post("/{contractID}/milestones/{milestoneID}/submit", s.submitMilestone)
			r.Post("/{contractID}/milestones/{milestoneID}/approve", s.approveMilestone)
			r.Post("/{contractID}/milestones/{milestoneID}/revision", s.requestRevision)
			r.Post("/{contractID}/milestones/{milestoneID}/release", s.releaseMilestone)
			r.Post("/{contractID}/fund", s.fundEscrow)
			r.Get("/{contractID}/escrow", s.getEscrow)
			r.Post("/{contractID}/time-entries", s.addTimeEntry)
			r.Get("/{contractID}/time-entries", s.listTimeEntries)
			r.Post("/{contractID}/reviews", s.submitReview)
			r.Post("/{contractID}/disputes", s.openDispute)
			r.Get("/{contractID}/disputes", s.listDisputes)
			r.With(s.requireAdmin).Patch("/{contractID}/status", s.adminSetContractStatus)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/earnings", s.getEarnings)
			r.Get("/transactions", s.listTransactions)
			r.Get("/payout-settings", s.getPayoutSettings)
			r.Put("/payout-settings", s.setupPayout)
			r.Post("/payouts", s.requestPayout)
		})

		r.With(s.requireAdmin).Post("/disputes/{disputeID}/resolve", s.resolveDispute)

		r.Get("/profiles/{userID}", s.getProfile)
	})

	return r
}
