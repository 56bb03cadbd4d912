package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gigflow/notify"
	"gigflow/profile"
)

// Service orchestrates contract-level status, the milestone state machine,
// and completion side effects.
type Service struct {
	pool     *pgxpool.Pool
	profiles *profile.Repository
	logger   *zap.Logger
}

func NewService(pool *pgxpool.Pool, profiles *profile.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pool: pool, profiles: profiles, logger: logger}
}

// Get returns the contract for one of its participants.
func (s *Service) Get(ctx context.Context, contractID, actorID string) (Record, error) {
	const query = `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	rec, err := scanContract(s.pool.QueryRow(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("contract: get: %w", err)
	}
	if err := Authorize(rec, actorID, RoleAny); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the actor's contracts on the given side, optionally filtered
// by status.
func (s *Service) List(ctx context.Context, actorID string, side Role, status Status) ([]Record, error) {
	where := `(client_id = $1 OR freelancer_id = $1)`
	switch side {
	case RoleClient:
		where = `client_id = $1`
	case RoleFreelancer:
		where = `freelancer_id = $1`
	}

	query := `SELECT ` + contractColumns + ` FROM contracts WHERE ` + where
	args := []any{actorID}
	if status != "" {
		query += ` AND status = $2::contract_status`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("contract: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.ProposalID, &rec.ClientID, &rec.FreelancerID,
			&rec.Title, &rec.ContractType, &rec.TotalAmount, &rec.PaidAmount,
			&rec.Status, &rec.CompletedAt, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("contract: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate: %w", err)
	}
	return out, nil
}

// Milestones lists a contract's milestones in order for a participant.
func (s *Service) Milestones(ctx context.Context, contractID, actorID string) ([]Milestone, error) {
	if _, err := s.Get(ctx, contractID, actorID); err != nil {
		return nil, err
	}

	const query = `SELECT ` + milestoneColumns + ` FROM milestones WHERE contract_id = $1 ORDER BY ord`
	rows, err := s.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("contract: list milestones: %w", err)
	}
	defer rows.Close()

	out := make([]Milestone, 0, 4)
	for rows.Next() {
		var ms Milestone
		if err := rows.Scan(
			&ms.ID, &ms.ContractID, &ms.Title, &ms.Description, &ms.Amount,
			&ms.Status, &ms.Order, &ms.CompletedAt, &ms.ApprovedAt,
		); err != nil {
			return nil, fmt.Errorf("contract: scan milestone: %w", err)
		}
		out = append(out, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate milestones: %w", err)
	}
	return out, nil
}

// AdminSetStatus applies an externally driven administrative transition
// (PAUSED, DISPUTED, CANCELLED, or back to ACTIVE). COMPLETED contracts are
// immutable.
func (s *Service) AdminSetStatus(ctx context.Context, contractID string, next Status) (Record, error) {
	switch next {
	case StatusActive, StatusPaused, StatusCancelled, StatusDisputed:
	default:
		return Record{}, fmt.Errorf("contract: administrative status %s: %w", next, ErrInvalidState)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("contract: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := Lock(ctx, tx, contractID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status == StatusCompleted {
		return Record{}, ErrInvalidState
	}

	const query = `
UPDATE contracts
SET status = $2::contract_status,
    updated_at = get_tx_timestamp()
WHERE id = $1
RETURNING ` + contractColumns

	updated, err := scanContract(tx.QueryRow(ctx, query, contractID, next))
	if err != nil {
		return Record{}, fmt.Errorf("contract: set status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("contract: commit status: %w", err)
	}

	s.logger.Info("contract status set",
		zap.String("contract_id", contractID),
		zap.String("from", string(rec.Status)),
		zap.String("to", string(next)),
	)
	return updated, nil
}

// AddTimeEntry records hours against an HOURLY contract; freelancer only.
func (s *Service) AddTimeEntry(ctx context.Context, contractID, actorID, description string, hours decimal.Decimal, entryDate time.Time) (TimeEntry, error) {
	rec, err := s.Get(ctx, contractID, actorID)
	if err != nil {
		return TimeEntry{}, err
	}
	if err := Authorize(rec, actorID, RoleFreelancer); err != nil {
		return TimeEntry{}, err
	}
	if rec.ContractType != "HOURLY" {
		return TimeEntry{}, fmt.Errorf("contract: time entries only for hourly contracts: %w", ErrInvalidState)
	}
	if !rec.Payable() {
		return TimeEntry{}, ErrInvalidState
	}
	if hours.Sign() <= 0 {
		return TimeEntry{}, fmt.Errorf("contract: hours must be positive")
	}

	const query = `
INSERT INTO time_entries (contract_id, description, hours, entry_date)
VALUES ($1, $2, $3, $4)
RETURNING id, contract_id, description, hours, entry_date, created_at
`
	var entry TimeEntry
	if err := s.pool.QueryRow(ctx, query, contractID, description, hours, entryDate).Scan(
		&entry.ID, &entry.ContractID, &entry.Description, &entry.Hours, &entry.EntryDate, &entry.CreatedAt,
	); err != nil {
		return TimeEntry{}, fmt.Errorf("contract: add time entry: %w", err)
	}
	return entry, nil
}

// TimeEntries lists logged hours for a participant.
func (s *Service) TimeEntries(ctx context.Context, contractID, actorID string) ([]TimeEntry, error) {
	if _, err := s.Get(ctx, contractID, actorID); err != nil {
		return nil, err
	}

	const query = `
SELECT id, contract_id, description, hours, entry_date, created_at
FROM time_entries
WHERE contract_id = $1
ORDER BY entry_date DESC
`
	rows, err := s.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("contract: list time entries: %w", err)
	}
	defer rows.Close()

	out := make([]TimeEntry, 0, 8)
	for rows.Next() {
		var entry TimeEntry
		if err := rows.Scan(&entry.ID, &entry.ContractID, &entry.Description, &entry.Hours, &entry.EntryDate, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("contract: scan time entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate time entries: %w", err)
	}
	return out, nil
}

// SubmitReview records a post-completion review and refreshes the target's
// rating aggregate in the same transaction.
func (s *Service) SubmitReview(ctx context.Context, contractID, actorID string, rating int, title, comment string) (Review, error) {
	if rating < 1 || rating > 5 {
		return Review{}, fmt.Errorf("contract: rating must be between 1 and 5")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Review{}, fmt.Errorf("contract: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := Lock(ctx, tx, contractID)
	if err != nil {
		return Review{}, err
	}
	if err := Authorize(rec, actorID, RoleAny); err != nil {
		return Review{}, err
	}
	if rec.Status != StatusCompleted {
		return Review{}, fmt.Errorf("contract: reviews require a completed contract: %w", ErrInvalidState)
	}

	targetID := rec.FreelancerID
	if actorID == rec.FreelancerID {
		targetID = rec.ClientID
	}

	const query = `
INSERT INTO reviews (contract_id, author_id, target_id, rating, title, comment)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (contract_id, author_id) DO NOTHING
RETURNING id, contract_id, author_id, target_id, rating, title, comment, created_at
`
	var review Review
	err = tx.QueryRow(ctx, query, contractID, actorID, targetID, rating, title, comment).Scan(
		&review.ID, &review.ContractID, &review.AuthorID, &review.TargetID,
		&review.Rating, &review.Title, &review.Comment, &review.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Review{}, fmt.Errorf("contract: review already submitted: %w", ErrInvalidState)
		}
		return Review{}, fmt.Errorf("contract: insert review: %w", err)
	}

	if err := s.profiles.RefreshRating(ctx, tx, targetID); err != nil {
		return Review{}, err
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicReviewReceived, map[string]any{
		"contract_id": contractID,
		"author_id":   actorID,
		"target_id":   targetID,
		"rating":      rating,
	}); err != nil {
		return Review{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Review{}, fmt.Errorf("contract: commit review: %w", err)
	}
	return review, nil
}
