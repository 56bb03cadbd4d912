package proposal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gigflow/job"
	"gigflow/notify"
)

var (
	ErrNotFound = errors.New("proposal: not found")
	ErrForbidden = errors.New("proposal: forbidden")
	// ErrDuplicateProposal: one proposal per (job, freelancer).
	ErrDuplicateProposal = errors.New("proposal: already submitted for this job")
	// ErrJobNotOpen: the job is not accepting proposals.
	ErrJobNotOpen = errors.New("proposal: job is not accepting proposals")
	// ErrSelfProposal: posters cannot bid on their own jobs.
	ErrSelfProposal = errors.New("proposal: cannot bid on own job")
	// ErrInvalidState guards terminal proposals against further edits.
	ErrInvalidState = errors.New("proposal: invalid state for operation")
)

const selectColumns = `
id, job_id, freelancer_id, cover_letter, bid_amount, status::text, submitted_at, updated_at
`

type Service struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewService(pool *pgxpool.Pool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pool: pool, logger: logger}
}

// Submit records a new proposal with its milestone plan. The job row is
// locked so the OPEN check and the proposalCount increment agree with any
// concurrent acceptance.
func (s *Service) Submit(ctx context.Context, freelancerID string, params SubmitParams) (Record, error) {
	if params.BidAmount.Sign() <= 0 {
		return Record{}, fmt.Errorf("proposal: bid amount must be positive")
	}
	for _, m := range params.Milestones {
		if m.Title == "" || m.Amount.Sign() <= 0 {
			return Record{}, fmt.Errorf("proposal: milestone title and positive amount required")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var posterID string
	var jobStatus job.Status
	if err := tx.QueryRow(ctx, `SELECT poster_id, status::text FROM jobs WHERE id = $1 FOR UPDATE`, params.JobID).
		Scan(&posterID, &jobStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("proposal: job %s: %w", params.JobID, ErrNotFound)
		}
		return Record{}, fmt.Errorf("proposal: load job: %w", err)
	}
	if jobStatus != job.StatusOpen {
		return Record{}, ErrJobNotOpen
	}
	if posterID == freelancerID {
		return Record{}, ErrSelfProposal
	}

	const insertSQL = `
INSERT INTO proposals (job_id, freelancer_id, cover_letter, bid_amount)
VALUES ($1, $2, $3, $4)
RETURNING ` + selectColumns

	rec, err := scanRecord(tx.QueryRow(ctx, insertSQL, params.JobID, freelancerID, params.CoverLetter, params.BidAmount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateProposal
		}
		return Record{}, fmt.Errorf("proposal: insert: %w", err)
	}

	if err := insertMilestones(ctx, tx, rec.ID, params.Milestones); err != nil {
		return Record{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE jobs SET proposal_count = proposal_count + 1 WHERE id = $1`, params.JobID); err != nil {
		return Record{}, fmt.Errorf("proposal: bump proposal count: %w", err)
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicProposalSubmitted, map[string]any{
		"proposal_id":   rec.ID,
		"job_id":        params.JobID,
		"poster_id":     posterID,
		"freelancer_id": freelancerID,
		"bid_amount":    params.BidAmount.StringFixed(2),
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("proposal: commit submit: %w", err)
	}

	s.logger.Info("proposal submitted",
		zap.String("proposal_id", rec.ID),
		zap.String("job_id", params.JobID),
	)
	return rec, nil
}

// Update replaces the editable fields of a PENDING proposal owned by the actor.
func (s *Service) Update(ctx context.Context, proposalID, freelancerID string, params UpdateParams) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return Record{}, err
	}
	if rec.FreelancerID != freelancerID {
		return Record{}, ErrForbidden
	}
	if rec.Status != StatusPending {
		return Record{}, ErrInvalidState
	}

	const query = `
UPDATE proposals
SET cover_letter = COALESCE($2, cover_letter),
    bid_amount = COALESCE($3, bid_amount),
    updated_at = get_tx_timestamp()
WHERE id = $1
RETURNING ` + selectColumns

	updated, err := scanRecord(tx.QueryRow(ctx, query, proposalID, params.CoverLetter, params.BidAmount))
	if err != nil {
		return Record{}, fmt.Errorf("proposal: update: %w", err)
	}

	if params.Milestones != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM proposal_milestones WHERE proposal_id = $1`, proposalID); err != nil {
			return Record{}, fmt.Errorf("proposal: clear milestones: %w", err)
		}
		if err := insertMilestones(ctx, tx, proposalID, params.Milestones); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("proposal: commit update: %w", err)
	}
	return updated, nil
}

// Withdraw is the freelancer's terminal exit; the job's proposalCount drops
// with it.
func (s *Service) Withdraw(ctx context.Context, proposalID, freelancerID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock order is job then proposal everywhere that touches both, so a
	// withdraw racing an acceptance on the same job cannot deadlock.
	var jobID string
	if err := tx.QueryRow(ctx, `SELECT job_id FROM proposals WHERE id = $1`, proposalID).Scan(&jobID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("proposal: %s: %w", proposalID, ErrNotFound)
		}
		return fmt.Errorf("proposal: load job id: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM jobs WHERE id = $1 FOR UPDATE`, jobID); err != nil {
		return fmt.Errorf("proposal: lock job: %w", err)
	}

	rec, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return err
	}
	if rec.FreelancerID != freelancerID {
		return ErrForbidden
	}
	if rec.Status != StatusPending && rec.Status != StatusShortlisted {
		return ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `UPDATE proposals SET status = 'WITHDRAWN', updated_at = get_tx_timestamp() WHERE id = $1`, proposalID); err != nil {
		return fmt.Errorf("proposal: withdraw: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE jobs SET proposal_count = GREATEST(proposal_count - 1, 0) WHERE id = $1`, rec.JobID); err != nil {
		return fmt.Errorf("proposal: drop proposal count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("proposal: commit withdraw: %w", err)
	}
	return nil
}

// Shortlist marks a PENDING proposal SHORTLISTED; poster only.
func (s *Service) Shortlist(ctx context.Context, proposalID, posterID string) (Record, error) {
	return s.posterTransition(ctx, proposalID, posterID, StatusShortlisted, StatusPending)
}

// Reject is the poster's terminal rejection of a live proposal.
func (s *Service) Reject(ctx context.Context, proposalID, posterID string) (Record, error) {
	return s.posterTransition(ctx, proposalID, posterID, StatusRejected, StatusPending, StatusShortlisted)
}

func (s *Service) posterTransition(ctx context.Context, proposalID, posterID string, next Status, allowed ...Status) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return Record{}, err
	}

	var jobPoster string
	if err := tx.QueryRow(ctx, `SELECT poster_id FROM jobs WHERE id = $1`, rec.JobID).Scan(&jobPoster); err != nil {
		return Record{}, fmt.Errorf("proposal: load job poster: %w", err)
	}
	if jobPoster != posterID {
		return Record{}, ErrForbidden
	}

	ok := false
	for _, st := range allowed {
		if rec.Status == st {
			ok = true
			break
		}
	}
	if !ok {
		return Record{}, ErrInvalidState
	}

	const query = `
UPDATE proposals
SET status = $2::proposal_status,
    updated_at = get_tx_timestamp()
WHERE id = $1
RETURNING ` + selectColumns

	updated, err := scanRecord(tx.QueryRow(ctx, query, proposalID, next))
	if err != nil {
		return Record{}, fmt.Errorf("proposal: transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("proposal: commit transition: %w", err)
	}
	return updated, nil
}

// ListForJob returns a job's proposals for its poster.
func (s *Service) ListForJob(ctx context.Context, jobID, posterID string) ([]Record, error) {
	var jobPoster string
	if err := s.pool.QueryRow(ctx, `SELECT poster_id FROM jobs WHERE id = $1`, jobID).Scan(&jobPoster); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("proposal: job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("proposal: load job: %w", err)
	}
	if jobPoster != posterID {
		return nil, ErrForbidden
	}
	return s.list(ctx, `job_id = $1`, jobID)
}

// ListMine returns the freelancer's own proposals.
func (s *Service) ListMine(ctx context.Context, freelancerID string) ([]Record, error) {
	return s.list(ctx, `freelancer_id = $1`, freelancerID)
}

// Milestones returns the proposal's milestone plan in order. Only the
// proposal's freelancer and the job poster may read a plan; bids are not
// visible to competitors.
func (s *Service) Milestones(ctx context.Context, proposalID, actorID string) ([]ProposedMilestone, error) {
	var freelancerID, posterID string
	err := s.pool.QueryRow(ctx, `
SELECT p.freelancer_id, j.poster_id
FROM proposals p
JOIN jobs j ON j.id = p.job_id
WHERE p.id = $1
`, proposalID).Scan(&freelancerID, &posterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("proposal: %s: %w", proposalID, ErrNotFound)
		}
		return nil, fmt.Errorf("proposal: load owners: %w", err)
	}
	if actorID != freelancerID && actorID != posterID {
		return nil, ErrForbidden
	}

	const query = `
SELECT id, proposal_id, title, description, amount, ord
FROM proposal_milestones
WHERE proposal_id = $1
ORDER BY ord
`
	rows, err := s.pool.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("proposal: list milestones: %w", err)
	}
	defer rows.Close()

	out := make([]ProposedMilestone, 0, 4)
	for rows.Next() {
		var m ProposedMilestone
		if err := rows.Scan(&m.ID, &m.ProposalID, &m.Title, &m.Description, &m.Amount, &m.Order); err != nil {
			return nil, fmt.Errorf("proposal: scan milestone: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposal: iterate milestones: %w", err)
	}
	return out, nil
}

func (s *Service) list(ctx context.Context, where string, arg any) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM proposals WHERE ` + where + ` ORDER BY submitted_at DESC`
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("proposal: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.FreelancerID, &rec.CoverLetter,
			&rec.BidAmount, &rec.Status, &rec.SubmittedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("proposal: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposal: iterate: %w", err)
	}
	return out, nil
}

func insertMilestones(ctx context.Context, tx pgx.Tx, proposalID string, milestones []MilestoneInput) error {
	for i, m := range milestones {
		const query = `
INSERT INTO proposal_milestones (proposal_id, title, description, amount, ord)
VALUES ($1, $2, $3, $4, $5)
`
		if _, err := tx.Exec(ctx, query, proposalID, m.Title, m.Description, m.Amount, i); err != nil {
			return fmt.Errorf("proposal: insert milestone: %w", err)
		}
	}
	return nil
}

func lockProposal(ctx context.Context, tx pgx.Tx, proposalID string) (Record, error) {
	const query = `SELECT ` + selectColumns + ` FROM proposals WHERE id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRow(ctx, query, proposalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("proposal: lock: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.JobID, &rec.FreelancerID, &rec.CoverLetter,
		&rec.BidAmount, &rec.Status, &rec.SubmittedAt, &rec.UpdatedAt)
	return rec, err
}
