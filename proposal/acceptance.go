package proposal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gigflow/contract"
	"gigflow/job"
	"gigflow/notify"
)

// AcceptResult bundles everything created by a successful acceptance.
type AcceptResult struct {
	Proposal   Record
	Contract   contract.Record
	Milestones []contract.Milestone
}

// Accept converts a proposal into an active contract in a single
// transaction: the job row lock makes concurrent accept attempts serialize,
// so exactly one proposal wins; siblings are rejected in the same unit and
// the job moves to IN_PROGRESS. A crash partway leaves nothing behind.
func (s *Service) Accept(ctx context.Context, proposalID, actorID string) (AcceptResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("proposal: begin acceptance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Resolve the job first so lock order is always job -> proposal.
	var jobID string
	if err := tx.QueryRow(ctx, `SELECT job_id FROM proposals WHERE id = $1`, proposalID).Scan(&jobID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AcceptResult{}, ErrNotFound
		}
		return AcceptResult{}, fmt.Errorf("proposal: resolve job: %w", err)
	}

	var (
		posterID  string
		jobTitle  string
		jobType   job.Type
		jobStatus job.Status
	)
	const jobSQL = `
SELECT poster_id, title, job_type::text, status::text
FROM jobs
WHERE id = $1
FOR UPDATE
`
	if err := tx.QueryRow(ctx, jobSQL, jobID).Scan(&posterID, &jobTitle, &jobType, &jobStatus); err != nil {
		return AcceptResult{}, fmt.Errorf("proposal: lock job: %w", err)
	}
	if posterID != actorID {
		return AcceptResult{}, ErrForbidden
	}
	if jobStatus != job.StatusOpen {
		return AcceptResult{}, fmt.Errorf("proposal: job %s is %s: %w", jobID, jobStatus, ErrInvalidState)
	}

	rec, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return AcceptResult{}, err
	}
	if rec.Status != StatusPending && rec.Status != StatusShortlisted {
		return AcceptResult{}, ErrInvalidState
	}

	plan, err := loadPlan(ctx, tx, proposalID)
	if err != nil {
		return AcceptResult{}, err
	}
	specs := make([]contract.MilestoneSpec, 0, len(plan))
	for _, m := range plan {
		specs = append(specs, contract.MilestoneSpec{
			Title:       m.Title,
			Description: m.Description,
			Amount:      m.Amount,
			Order:       m.Order,
		})
	}
	if len(specs) == 0 {
		// fixed-price jobs without a plan settle through one milestone
		specs = append(specs, contract.MilestoneSpec{
			Title:  jobTitle,
			Amount: rec.BidAmount,
		})
	}

	contractRec, milestones, err := contract.CreateFromProposal(ctx, tx, contract.CreateFromProposalParams{
		JobID:        jobID,
		ProposalID:   proposalID,
		ClientID:     posterID,
		FreelancerID: rec.FreelancerID,
		Title:        jobTitle,
		ContractType: contractTypeFor(jobType),
		TotalAmount:  rec.BidAmount,
		Milestones:   specs,
	})
	if err != nil {
		return AcceptResult{}, err
	}

	accepted, err := scanRecord(tx.QueryRow(ctx, `
UPDATE proposals
SET status = 'ACCEPTED',
    updated_at = get_tx_timestamp()
WHERE id = $1
RETURNING `+selectColumns, proposalID))
	if err != nil {
		return AcceptResult{}, fmt.Errorf("proposal: mark accepted: %w", err)
	}

	// Reject every live sibling in the same unit.
	if _, err := tx.Exec(ctx, `
UPDATE proposals
SET status = 'REJECTED',
    updated_at = get_tx_timestamp()
WHERE job_id = $1
  AND id <> $2
  AND status IN ('PENDING', 'SHORTLISTED')
`, jobID, proposalID); err != nil {
		return AcceptResult{}, fmt.Errorf("proposal: reject siblings: %w", err)
	}

	if _, err := job.Transition(ctx, tx, jobID, job.StatusOpen, job.StatusInProgress); err != nil {
		return AcceptResult{}, err
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicProposalAccepted, map[string]any{
		"proposal_id":   proposalID,
		"job_id":        jobID,
		"contract_id":   contractRec.ID,
		"freelancer_id": rec.FreelancerID,
		"client_id":     posterID,
		"total_amount":  rec.BidAmount.StringFixed(2),
	}); err != nil {
		return AcceptResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AcceptResult{}, fmt.Errorf("proposal: commit acceptance: %w", err)
	}

	s.logger.Info("proposal accepted",
		zap.String("proposal_id", proposalID),
		zap.String("contract_id", contractRec.ID),
		zap.String("job_id", jobID),
	)
	return AcceptResult{Proposal: accepted, Contract: contractRec, Milestones: milestones}, nil
}

func loadPlan(ctx context.Context, tx pgx.Tx, proposalID string) ([]ProposedMilestone, error) {
	const query = `
SELECT id, proposal_id, title, description, amount, ord
FROM proposal_milestones
WHERE proposal_id = $1
ORDER BY ord
`
	rows, err := tx.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("proposal: load plan: %w", err)
	}
	defer rows.Close()

	out := make([]ProposedMilestone, 0, 4)
	for rows.Next() {
		var m ProposedMilestone
		if err := rows.Scan(&m.ID, &m.ProposalID, &m.Title, &m.Description, &m.Amount, &m.Order); err != nil {
			return nil, fmt.Errorf("proposal: scan plan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposal: iterate plan: %w", err)
	}
	return out, nil
}

func contractTypeFor(jobType job.Type) job.Type {
	switch jobType {
	case job.TypeHourly, job.TypeMilestone:
		return jobType
	default:
		return job.TypeFixedPrice
	}
}
