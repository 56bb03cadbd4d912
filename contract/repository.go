package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound          = errors.New("contract: not found")
	ErrMilestoneNotFound = errors.New("contract: milestone not found")
	// ErrForbidden is returned when the actor is not a participant, or holds
	// the wrong role for the operation.
	ErrForbidden = errors.New("contract: forbidden")
	// ErrInvalidTransition guards the milestone state graph.
	ErrInvalidTransition = errors.New("contract: invalid milestone transition")
	// ErrInvalidState is returned when the contract status forbids the
	// operation, e.g. payouts against a CANCELLED or DISPUTED contract.
	ErrInvalidState = errors.New("contract: invalid contract state")
)

const contractColumns = `
id, job_id, proposal_id, client_id, freelancer_id, title, contract_type::text,
total_amount, paid_amount, status::text, completed_at, created_at, updated_at
`

const milestoneColumns = `
id, contract_id, title, description, amount, status::text, ord, completed_at, approved_at
`

// CreateFromProposal materialises a contract, its milestones, and a pending
// escrow for an accepted proposal. It runs inside the caller's acceptance
// transaction so a crash cannot leave a contract without an escrow.
func CreateFromProposal(ctx context.Context, tx pgx.Tx, params CreateFromProposalParams) (Record, []Milestone, error) {
	if params.JobID == "" || params.ProposalID == "" {
		return Record{}, nil, fmt.Errorf("contract: proposal linkage missing")
	}
	if params.TotalAmount.Sign() <= 0 {
		return Record{}, nil, fmt.Errorf("contract: total amount must be positive")
	}

	const insertSQL = `
INSERT INTO contracts (job_id, proposal_id, client_id, freelancer_id, title, contract_type, total_amount, status)
VALUES ($1, $2, $3, $4, $5, $6::job_type, $7, 'ACTIVE')
RETURNING ` + contractColumns

	rec, err := scanContract(tx.QueryRow(ctx, insertSQL,
		params.JobID, params.ProposalID, params.ClientID, params.FreelancerID,
		params.Title, params.ContractType, params.TotalAmount,
	))
	if err != nil {
		return Record{}, nil, fmt.Errorf("contract: insert: %w", err)
	}

	milestones := make([]Milestone, 0, len(params.Milestones))
	for _, spec := range params.Milestones {
		const msSQL = `
INSERT INTO milestones (contract_id, title, description, amount, ord)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + milestoneColumns
		ms, err := scanMilestone(tx.QueryRow(ctx, msSQL, rec.ID, spec.Title, spec.Description, spec.Amount, spec.Order))
		if err != nil {
			return Record{}, nil, fmt.Errorf("contract: insert milestone: %w", err)
		}
		milestones = append(milestones, ms)
	}

	const escrowSQL = `
INSERT INTO escrows (contract_id, total_amount, held_amount, released_amount, status)
VALUES ($1, $2, 0, 0, 'PENDING')
`
	if _, err := tx.Exec(ctx, escrowSQL, rec.ID, params.TotalAmount); err != nil {
		return Record{}, nil, fmt.Errorf("contract: insert escrow: %w", err)
	}

	return rec, milestones, nil
}

// Lock loads the contract under FOR UPDATE; every mutating path goes through
// it so concurrent milestone approvals on one contract serialize.
func Lock(ctx context.Context, tx pgx.Tx, contractID string) (Record, error) {
	const query = `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1 FOR UPDATE`
	rec, err := scanContract(tx.QueryRow(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("contract: lock: %w", err)
	}
	return rec, nil
}

// LockMilestone loads the milestone under FOR UPDATE, scoped to its contract.
func LockMilestone(ctx context.Context, tx pgx.Tx, contractID, milestoneID string) (Milestone, error) {
	const query = `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1 AND contract_id = $2 FOR UPDATE`
	ms, err := scanMilestone(tx.QueryRow(ctx, query, milestoneID, contractID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Milestone{}, ErrMilestoneNotFound
		}
		return Milestone{}, fmt.Errorf("contract: lock milestone: %w", err)
	}
	return ms, nil
}

// ValidateMilestoneTransition consults the SQL transition graph shared with
// every other write path.
func ValidateMilestoneTransition(ctx context.Context, tx pgx.Tx, current, next MilestoneStatus) error {
	var ok bool
	if err := tx.QueryRow(ctx,
		`SELECT milestone_validate_transition($1::milestone_status, $2::milestone_status)`,
		current, next,
	).Scan(&ok); err != nil {
		return fmt.Errorf("contract: validate milestone transition: %w", err)
	}
	if !ok {
		return fmt.Errorf("contract: %s -> %s: %w", current, next, ErrInvalidTransition)
	}
	return nil
}

// Role restricts an operation to one side of the contract.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAny        Role = "any"
)

// Authorize enforces the access-control invariant: participants only, with
// role-specific actions further restricted.
func Authorize(rec Record, actorID string, role Role) error {
	switch role {
	case RoleClient:
		if rec.ClientID != actorID {
			return ErrForbidden
		}
	case RoleFreelancer:
		if rec.FreelancerID != actorID {
			return ErrForbidden
		}
	default:
		if rec.ClientID != actorID && rec.FreelancerID != actorID {
			return ErrForbidden
		}
	}
	return nil
}

// Payable reports whether the contract may still move money. CANCELLED and
// DISPUTED are terminal for payment purposes; PAUSED suspends work.
func (r Record) Payable() bool {
	return r.Status == StatusActive
}

func scanContract(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.JobID, &rec.ProposalID, &rec.ClientID, &rec.FreelancerID,
		&rec.Title, &rec.ContractType, &rec.TotalAmount, &rec.PaidAmount,
		&rec.Status, &rec.CompletedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

func scanMilestone(row pgx.Row) (Milestone, error) {
	var ms Milestone
	err := row.Scan(
		&ms.ID, &ms.ContractID, &ms.Title, &ms.Description, &ms.Amount,
		&ms.Status, &ms.Order, &ms.CompletedAt, &ms.ApprovedAt,
	)
	return ms, err
}
