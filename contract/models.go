package contract

import (
	"time"

	"github.com/shopspring/decimal"

	"gigflow/job"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusDisputed  Status = "DISPUTED"
)

type MilestoneStatus string

const (
	MilestonePending           MilestoneStatus = "PENDING"
	MilestoneInProgress        MilestoneStatus = "IN_PROGRESS"
	MilestoneSubmitted         MilestoneStatus = "SUBMITTED"
	MilestoneRevisionRequested MilestoneStatus = "REVISION_REQUESTED"
	MilestoneApproved          MilestoneStatus = "APPROVED"
	MilestonePaid              MilestoneStatus = "PAID"
)

// Record mirrors the contracts table. paidAmount only grows through milestone
// approval and never exceeds totalAmount; the table carries a CHECK for the
// same invariant.
type Record struct {
	ID           string
	JobID        string
	ProposalID   string
	ClientID     string
	FreelancerID string
	Title        string
	ContractType job.Type
	TotalAmount  decimal.Decimal
	PaidAmount   decimal.Decimal
	Status       Status
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Milestone is a priced, independently approvable unit of deliverable work.
// Amount is immutable after creation; APPROVED and PAID are terminal.
type Milestone struct {
	ID          string
	ContractID  string
	Title       string
	Description string
	Amount      decimal.Decimal
	Status      MilestoneStatus
	Order       int
	CompletedAt *time.Time
	ApprovedAt  *time.Time
}

// Deliverable is the freelancer's submission payload attached to a milestone.
type Deliverable struct {
	ID          string
	ContractID  string
	MilestoneID string
	Title       string
	Description string
	FileURLs    []string
	Feedback    *string
	SubmittedAt time.Time
}

// SubmitDeliverableParams carries the submission payload.
type SubmitDeliverableParams struct {
	Title       string
	Description string
	FileURLs    []string
}

// MilestoneSpec describes one milestone copied from an accepted proposal.
type MilestoneSpec struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Order       int
}

// CreateFromProposalParams enumerates the inserts performed when a proposal is
// accepted. The whole set is applied inside the acceptance transaction.
type CreateFromProposalParams struct {
	JobID        string
	ProposalID   string
	ClientID     string
	FreelancerID string
	Title        string
	ContractType job.Type
	TotalAmount  decimal.Decimal
	Milestones   []MilestoneSpec
}

// TimeEntry records hours against an HOURLY contract.
type TimeEntry struct {
	ID          string
	ContractID  string
	Description string
	Hours       decimal.Decimal
	EntryDate   time.Time
	CreatedAt   time.Time
}

// Review is left by either party after completion; one per author.
type Review struct {
	ID         string
	ContractID string
	AuthorID   string
	TargetID   string
	Rating     int
	Title      string
	Comment    string
	CreatedAt  time.Time
}
