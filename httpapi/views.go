package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"gigflow/contract"
	"gigflow/dispute"
	"gigflow/job"
	"gigflow/ledger"
	"gigflow/profile"
	"gigflow/proposal"
)

// Wire representations. Domain structs stay JSON-free; the mapping lives
// here so the API shape can move without touching the core.

type jobView struct {
	ID            string           `json:"id"`
	PosterID      string           `json:"poster_id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Category      string           `json:"category"`
	JobType       string           `json:"job_type"`
	BudgetMin     *decimal.Decimal `json:"budget_min,omitempty"`
	BudgetMax     *decimal.Decimal `json:"budget_max,omitempty"`
	Status        string           `json:"status"`
	ProposalCount int              `json:"proposal_count"`
	ViewCount     int              `json:"view_count"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func viewJob(rec job.Record) jobView {
	return jobView{
		ID:            rec.ID,
		PosterID:      rec.PosterID,
		Title:         rec.Title,
		Description:   rec.Description,
		Category:      rec.Category,
		JobType:       string(rec.JobType),
		BudgetMin:     rec.BudgetMin,
		BudgetMax:     rec.BudgetMax,
		Status:        string(rec.Status),
		ProposalCount: rec.ProposalCount,
		ViewCount:     rec.ViewCount,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func viewJobs(recs []job.Record) []jobView {
	out := make([]jobView, len(recs))
	for i, rec := range recs {
		out[i] = viewJob(rec)
	}
	return out
}

type proposalView struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	FreelancerID string          `json:"freelancer_id"`
	CoverLetter  string          `json:"cover_letter"`
	BidAmount    decimal.Decimal `json:"bid_amount"`
	Status       string          `json:"status"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func viewProposal(rec proposal.Record) proposalView {
	return proposalView{
		ID:           rec.ID,
		JobID:        rec.JobID,
		FreelancerID: rec.FreelancerID,
		CoverLetter:  rec.CoverLetter,
		BidAmount:    rec.BidAmount,
		Status:       string(rec.Status),
		SubmittedAt:  rec.SubmittedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func viewProposals(recs []proposal.Record) []proposalView {
	out := make([]proposalView, len(recs))
	for i, rec := range recs {
		out[i] = viewProposal(rec)
	}
	return out
}

type proposedMilestoneView struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Order       int             `json:"order"`
}

func viewProposedMilestones(ms []proposal.ProposedMilestone) []proposedMilestoneView {
	out := make([]proposedMilestoneView, len(ms))
	for i, m := range ms {
		out[i] = proposedMilestoneView{
			ID:          m.ID,
			Title:       m.Title,
			Description: m.Description,
			Amount:      m.Amount,
			Order:       m.Order,
		}
	}
	return out
}

type contractView struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	ProposalID   string          `json:"proposal_id"`
	ClientID     string          `json:"client_id"`
	FreelancerID string          `json:"freelancer_id"`
	Title        string          `json:"title"`
	ContractType string          `json:"contract_type"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Status       string          `json:"status"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func viewContract(rec contract.Record) contractView {
	return contractView{
		ID:           rec.ID,
		JobID:        rec.JobID,
		ProposalID:   rec.ProposalID,
		ClientID:     rec.ClientID,
		FreelancerID: rec.FreelancerID,
		Title:        rec.Title,
		ContractType: string(rec.ContractType),
		TotalAmount:  rec.TotalAmount,
		PaidAmount:   rec.PaidAmount,
		Status:       string(rec.Status),
		CompletedAt:  rec.CompletedAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func viewContracts(recs []contract.Record) []contractView {
	out := make([]contractView, len(recs))
	for i, rec := range recs {
		out[i] = viewContract(rec)
	}
	return out
}

type milestoneView struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Order       int             `json:"order"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
}

func viewMilestone(m contract.Milestone) milestoneView {
	return milestoneView{
		ID:          m.ID,
		ContractID:  m.ContractID,
		Title:       m.Title,
		Description: m.Description,
		Amount:      m.Amount,
		Status:      string(m.Status),
		Order:       m.Order,
		CompletedAt: m.CompletedAt,
		ApprovedAt:  m.ApprovedAt,
	}
}

func viewMilestones(ms []contract.Milestone) []milestoneView {
	out := make([]milestoneView, len(ms))
	for i, m := range ms {
		out[i] = viewMilestone(m)
	}
	return out
}

type timeEntryView struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	EntryDate   string          `json:"entry_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

func viewTimeEntry(e contract.TimeEntry) timeEntryView {
	return timeEntryView{
		ID:          e.ID,
		ContractID:  e.ContractID,
		Description: e.Description,
		Hours:       e.Hours,
		EntryDate:   e.EntryDate.Format("2006-01-02"),
		CreatedAt:   e.CreatedAt,
	}
}

type reviewView struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contract_id"`
	AuthorID   string    `json:"author_id"`
	TargetID   string    `json:"target_id"`
	Rating     int       `json:"rating"`
	Title      string    `json:"title"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

func viewReview(rv contract.Review) reviewView {
	return reviewView{
		ID:         rv.ID,
		ContractID: rv.ContractID,
		AuthorID:   rv.AuthorID,
		TargetID:   rv.TargetID,
		Rating:     rv.Rating,
		Title:      rv.Title,
		Comment:    rv.Comment,
		CreatedAt:  rv.CreatedAt,
	}
}

type escrowView struct {
	ID             string          `json:"id"`
	ContractID     string          `json:"contract_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	HeldAmount     decimal.Decimal `json:"held_amount"`
	ReleasedAmount decimal.Decimal `json:"released_amount"`
	Status         string          `json:"status"`
	FundedAt       *time.Time      `json:"funded_at,omitempty"`
}

func viewEscrow(e ledger.Escrow) escrowView {
	return escrowView{
		ID:             e.ID,
		ContractID:     e.ContractID,
		TotalAmount:    e.TotalAmount,
		HeldAmount:     e.HeldAmount,
		ReleasedAmount: e.ReleasedAmount,
		Status:         string(e.Status),
		FundedAt:       e.FundedAt,
	}
}

type transactionView struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	EscrowID      *string         `json:"escrow_id,omitempty"`
	MilestoneID   *string         `json:"milestone_id,omitempty"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Status        string          `json:"status"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	Reference     *string         `json:"reference,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

func viewTransaction(txn ledger.Transaction) transactionView {
	return transactionView{
		ID:            txn.ID,
		UserID:        txn.UserID,
		EscrowID:      txn.EscrowID,
		MilestoneID:   txn.MilestoneID,
		Type:          string(txn.Type),
		Amount:        txn.Amount,
		Fee:           txn.Fee,
		NetAmount:     txn.NetAmount,
		Status:        string(txn.Status),
		PaymentMethod: txn.PaymentMethod,
		Reference:     txn.Reference,
		Description:   txn.Description,
		CreatedAt:     txn.CreatedAt,
	}
}

type disputeView struct {
	ID         string     `json:"id"`
	ContractID string     `json:"contract_id"`
	OpenedBy   string     `json:"opened_by"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func viewDispute(d dispute.Record) disputeView {
	return disputeView{
		ID:         d.ID,
		ContractID: d.ContractID,
		OpenedBy:   d.OpenedBy,
		Reason:     d.Reason,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt,
		ResolvedAt: d.ResolvedAt,
	}
}

type profileView struct {
	UserID        string          `json:"user_id"`
	CompletedJobs int             `json:"completed_jobs"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	AvgRating     decimal.Decimal `json:"avg_rating"`
	TotalReviews  int             `json:"total_reviews"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func viewProfile(rec profile.Record) profileView {
	return profileView{
		UserID:        rec.UserID,
		CompletedJobs: rec.CompletedJobs,
		TotalEarnings: rec.TotalEarnings,
		TotalSpent:    rec.TotalSpent,
		AvgRating:     rec.AvgRating,
		TotalReviews:  rec.TotalReviews,
		UpdatedAt:     rec.UpdatedAt,
	}
}
