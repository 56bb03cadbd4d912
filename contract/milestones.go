package contract

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gigflow/job"
	"gigflow/metrics"
	"gigflow/notify"
)

// StartMilestone moves PENDING -> IN_PROGRESS; assigned freelancer only.
func (s *Service) StartMilestone(ctx context.Context, contractID, milestoneID, actorID string) (Milestone, error) {
	return s.transitionMilestone(ctx, contractID, milestoneID, actorID, RoleFreelancer, MilestoneInProgress,
		func(ctx context.Context, tx pgx.Tx, rec Record, ms Milestone) error { return nil })
}

// SubmitMilestone moves IN_PROGRESS or REVISION_REQUESTED -> SUBMITTED and
// records the deliverable payload with the submission timestamp.
func (s *Service) SubmitMilestone(ctx context.Context, contractID, milestoneID, actorID string, params SubmitDeliverableParams) (Milestone, error) {
	if params.Title == "" {
		return Milestone{}, fmt.Errorf("contract: deliverable title required")
	}

	return s.transitionMilestone(ctx, contractID, milestoneID, actorID, RoleFreelancer, MilestoneSubmitted,
		func(ctx context.Context, tx pgx.Tx, rec Record, ms Milestone) error {
			const deliverableSQL = `
INSERT INTO deliverables (contract_id, milestone_id, title, description, file_urls)
VALUES ($1, $2, $3, $4, $5)
`
			if _, err := tx.Exec(ctx, deliverableSQL, contractID, milestoneID,
				params.Title, params.Description, params.FileURLs); err != nil {
				return fmt.Errorf("contract: insert deliverable: %w", err)
			}

			const stampSQL = `UPDATE milestones SET completed_at = get_tx_timestamp() WHERE id = $1`
			if _, err := tx.Exec(ctx, stampSQL, milestoneID); err != nil {
				return fmt.Errorf("contract: stamp submission: %w", err)
			}
			return nil
		})
}

// ApproveMilestone moves SUBMITTED -> APPROVED, credits the contract's
// paidAmount, and completes the contract in the same transaction when no
// non-terminal milestones remain.
func (s *Service) ApproveMilestone(ctx context.Context, contractID, milestoneID, actorID string) (Milestone, error) {
	return s.transitionMilestone(ctx, contractID, milestoneID, actorID, RoleClient, MilestoneApproved,
		func(ctx context.Context, tx pgx.Tx, rec Record, ms Milestone) error {
			const stampSQL = `UPDATE milestones SET approved_at = get_tx_timestamp() WHERE id = $1`
			if _, err := tx.Exec(ctx, stampSQL, milestoneID); err != nil {
				return fmt.Errorf("contract: stamp approval: %w", err)
			}

			const paidSQL = `
UPDATE contracts
SET paid_amount = paid_amount + $2,
    updated_at = get_tx_timestamp()
WHERE id = $1
`
			if _, err := tx.Exec(ctx, paidSQL, contractID, ms.Amount); err != nil {
				return fmt.Errorf("contract: credit paid amount: %w", err)
			}

			var remaining int
			const remainingSQL = `
SELECT COUNT(*)
FROM milestones
WHERE contract_id = $1
  AND id <> $2
  AND status NOT IN ('APPROVED', 'PAID')
`
			if err := tx.QueryRow(ctx, remainingSQL, contractID, milestoneID).Scan(&remaining); err != nil {
				return fmt.Errorf("contract: count remaining milestones: %w", err)
			}
			if remaining == 0 {
				return s.completeContract(ctx, tx, rec)
			}
			return nil
		})
}

// RequestRevision moves SUBMITTED -> REVISION_REQUESTED; feedback lands on
// the latest deliverable and goes out through the notification sink.
func (s *Service) RequestRevision(ctx context.Context, contractID, milestoneID, actorID, feedback string) (Milestone, error) {
	return s.transitionMilestone(ctx, contractID, milestoneID, actorID, RoleClient, MilestoneRevisionRequested,
		func(ctx context.Context, tx pgx.Tx, rec Record, ms Milestone) error {
			const feedbackSQL = `
UPDATE deliverables
SET feedback = $2
WHERE id = (
    SELECT id FROM deliverables
    WHERE milestone_id = $1
    ORDER BY submitted_at DESC
    LIMIT 1
)
`
			if _, err := tx.Exec(ctx, feedbackSQL, milestoneID, feedback); err != nil {
				return fmt.Errorf("contract: store feedback: %w", err)
			}

			return notify.Enqueue(ctx, tx, notify.TopicRevisionRequested, map[string]any{
				"contract_id":   contractID,
				"milestone_id":  milestoneID,
				"freelancer_id": rec.FreelancerID,
				"feedback":      feedback,
			})
		})
}

// transitionMilestone is the shared state-machine engine: lock contract, check
// actor role and payability, lock milestone, validate the edge, apply the
// update plus the operation-specific writes, commit.
func (s *Service) transitionMilestone(
	ctx context.Context,
	contractID, milestoneID, actorID string,
	role Role,
	next MilestoneStatus,
	apply func(ctx context.Context, tx pgx.Tx, rec Record, ms Milestone) error,
) (Milestone, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Milestone{}, fmt.Errorf("contract: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := Lock(ctx, tx, contractID)
	if err != nil {
		return Milestone{}, err
	}
	if err := Authorize(rec, actorID, role); err != nil {
		return Milestone{}, err
	}
	if !rec.Payable() {
		return Milestone{}, ErrInvalidState
	}

	ms, err := LockMilestone(ctx, tx, contractID, milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	if err := ValidateMilestoneTransition(ctx, tx, ms.Status, next); err != nil {
		return Milestone{}, err
	}

	const updateSQL = `
UPDATE milestones
SET status = $2::milestone_status
WHERE id = $1
RETURNING ` + milestoneColumns
	updated, err := scanMilestone(tx.QueryRow(ctx, updateSQL, milestoneID, next))
	if err != nil {
		return Milestone{}, fmt.Errorf("contract: update milestone: %w", err)
	}

	if err := apply(ctx, tx, rec, ms); err != nil {
		return Milestone{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Milestone{}, fmt.Errorf("contract: commit milestone transition: %w", err)
	}

	s.logger.Info("milestone transition",
		zap.String("contract_id", contractID),
		zap.String("milestone_id", milestoneID),
		zap.String("from", string(ms.Status)),
		zap.String("to", string(next)),
	)
	return updated, nil
}

// completeContract applies the completion fan-out inside the surrounding
// transaction: contract COMPLETED, job COMPLETED, both profile aggregates,
// and the outbox notification. Partial application is impossible.
func (s *Service) completeContract(ctx context.Context, tx pgx.Tx, rec Record) error {
	const query = `
UPDATE contracts
SET status = 'COMPLETED',
    completed_at = get_tx_timestamp(),
    updated_at = get_tx_timestamp()
WHERE id = $1 AND status = 'ACTIVE'
`
	tag, err := tx.Exec(ctx, query, rec.ID)
	if err != nil {
		return fmt.Errorf("contract: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contract: complete %s: %w", rec.ID, ErrInvalidState)
	}

	if _, err := job.Transition(ctx, tx, rec.JobID, job.StatusInProgress, job.StatusCompleted); err != nil {
		return err
	}

	if err := s.profiles.CreditCompletedContract(ctx, tx, rec.FreelancerID, rec.TotalAmount); err != nil {
		return err
	}
	if err := s.profiles.DebitCompletedContract(ctx, tx, rec.ClientID, rec.TotalAmount); err != nil {
		return err
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicContractCompleted, map[string]any{
		"contract_id":   rec.ID,
		"job_id":        rec.JobID,
		"client_id":     rec.ClientID,
		"freelancer_id": rec.FreelancerID,
		"total_amount":  rec.TotalAmount.StringFixed(2),
	}); err != nil {
		return err
	}

	metrics.ContractsCompleted.Inc()
	s.logger.Info("contract completed",
		zap.String("contract_id", rec.ID),
		zap.String("job_id", rec.JobID),
	)
	return nil
}
