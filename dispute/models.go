package dispute

import "time"

type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

// Outcome is what happens to the disputed contract when an admin closes
// the dispute.
type Outcome string

const (
	// OutcomeResume puts the contract back to ACTIVE.
	OutcomeResume Outcome = "RESUME"
	// OutcomeCancel ends the contract as CANCELLED.
	OutcomeCancel Outcome = "CANCEL"
)

// Record mirrors the disputes table.
type Record struct {
	ID         string
	ContractID string
	OpenedBy   string
	Reason     string
	Status     Status
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
