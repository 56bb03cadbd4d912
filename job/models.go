package job

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

type Type string

const (
	TypeFixedPrice Type = "FIXED_PRICE"
	TypeHourly     Type = "HOURLY"
	TypeMilestone  Type = "MILESTONE"
)

// Record mirrors the jobs table columns the core touches. Status only ever
// advances OPEN -> IN_PROGRESS -> COMPLETED; CANCELLED is reachable from
// DRAFT/OPEN only.
type Record struct {
	ID            string
	PosterID      string
	Title         string
	Description   string
	Category      string
	JobType       Type
	BudgetMin     *decimal.Decimal
	BudgetMax     *decimal.Decimal
	Status        Status
	ProposalCount int
	ViewCount     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams enumerates the fields callers supply when posting a job.
type CreateParams struct {
	Title       string
	Description string
	Category    string
	JobType     Type
	BudgetMin   *decimal.Decimal
	BudgetMax   *decimal.Decimal
	Draft       bool
}

// UpdateParams carries the editable fields. Nil pointers leave the column
// untouched.
type UpdateParams struct {
	Title       *string
	Description *string
	Category    *string
	BudgetMin   *decimal.Decimal
	BudgetMax   *decimal.Decimal
}
