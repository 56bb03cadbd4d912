package proposal

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusShortlisted Status = "SHORTLISTED"
	StatusAccepted    Status = "ACCEPTED"
	StatusRejected    Status = "REJECTED"
	StatusWithdrawn   Status = "WITHDRAWN"
)

// Record mirrors the proposals table. ACCEPTED, REJECTED, and WITHDRAWN are
// terminal; at most one proposal per job is ever ACCEPTED.
type Record struct {
	ID           string
	JobID        string
	FreelancerID string
	CoverLetter  string
	BidAmount    decimal.Decimal
	Status       Status
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

// ProposedMilestone is the freelancer's pre-contract milestone plan. Copied
// 1:1 onto the contract at acceptance.
type ProposedMilestone struct {
	ID          string
	ProposalID  string
	Title       string
	Description string
	Amount      decimal.Decimal
	Order       int
}

// MilestoneInput is one milestone in a submission or update request.
type MilestoneInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
}

// SubmitParams carries a new proposal.
type SubmitParams struct {
	JobID       string
	CoverLetter string
	BidAmount   decimal.Decimal
	Milestones  []MilestoneInput
}

// UpdateParams replaces the editable fields of a PENDING proposal. A non-nil
// Milestones slice replaces the whole plan.
type UpdateParams struct {
	CoverLetter *string
	BidAmount   *decimal.Decimal
	Milestones  []MilestoneInput
}
