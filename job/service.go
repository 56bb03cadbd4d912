package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("job: not found")
	// ErrForbidden is returned when the actor is not the job poster.
	ErrForbidden = errors.New("job: forbidden")
	// ErrInvalidState guards edits and deletes against jobs that already
	// entered contract work or a terminal status.
	ErrInvalidState = errors.New("job: invalid state for operation")
)

const selectColumns = `
id, poster_id, title, description, category, job_type::text,
budget_min, budget_max, status::text, proposal_count, view_count,
created_at, updated_at
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

func (s *Service) Create(ctx context.Context, posterID string, params CreateParams) (Record, error) {
	if params.Title == "" {
		return Record{}, fmt.Errorf("job: title required")
	}
	if params.JobType == "" {
		params.JobType = TypeFixedPrice
	}
	status := StatusOpen
	if params.Draft {
		status = StatusDraft
	}

	const query = `
INSERT INTO jobs (poster_id, title, description, category, job_type, budget_min, budget_max, status)
VALUES ($1, $2, $3, $4, $5::job_type, $6, $7, $8::job_status)
RETURNING ` + selectColumns

	rec, err := scanRecord(s.pool.QueryRow(ctx, query,
		posterID, params.Title, params.Description, params.Category,
		params.JobType, params.BudgetMin, params.BudgetMax, status,
	))
	if err != nil {
		return Record{}, fmt.Errorf("job: create: %w", err)
	}

	s.logger.Info("job posted",
		zap.String("job_id", rec.ID),
		zap.String("poster_id", posterID),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

// Get returns the job and bumps its view counter.
func (s *Service) Get(ctx context.Context, jobID string) (Record, error) {
	const query = `
UPDATE jobs
SET view_count = view_count + 1
WHERE id = $1
RETURNING ` + selectColumns

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("job: get: %w", err)
	}
	return rec, nil
}

func (s *Service) Update(ctx context.Context, jobID, actorID string, params UpdateParams) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("job: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return Record{}, err
	}
	if rec.PosterID != actorID {
		return Record{}, ErrForbidden
	}
	if rec.Status == StatusInProgress || rec.Status == StatusCompleted || rec.Status == StatusCancelled {
		return Record{}, ErrInvalidState
	}

	const query = `
UPDATE jobs
SET title = COALESCE($2, title),
    description = COALESCE($3, description),
    category = COALESCE($4, category),
    budget_min = COALESCE($5, budget_min),
    budget_max = COALESCE($6, budget_max),
    updated_at = get_tx_timestamp()
WHERE id = $1
RETURNING ` + selectColumns

	updated, err := scanRecord(tx.QueryRow(ctx, query, jobID,
		params.Title, params.Description, params.Category, params.BudgetMin, params.BudgetMax))
	if err != nil {
		return Record{}, fmt.Errorf("job: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("job: commit update: %w", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, jobID, actorID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("job: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if rec.PosterID != actorID {
		return ErrForbidden
	}
	if rec.Status != StatusDraft && rec.Status != StatusOpen {
		return ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `DELETE FROM proposal_milestones WHERE proposal_id IN (SELECT id FROM proposals WHERE job_id = $1)`, jobID); err != nil {
		return fmt.Errorf("job: delete proposal milestones: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM proposals WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("job: delete proposals: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("job: delete: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("job: commit delete: %w", err)
	}

	s.logger.Info("job deleted", zap.String("job_id", jobID))
	return nil
}

func (s *Service) Cancel(ctx context.Context, jobID, actorID string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("job: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return Record{}, err
	}
	if rec.PosterID != actorID {
		return Record{}, ErrForbidden
	}

	updated, err := Transition(ctx, tx, jobID, rec.Status, StatusCancelled)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("job: commit cancel: %w", err)
	}
	return updated, nil
}

// Publish moves a draft to OPEN so freelancers can bid on it.
func (s *Service) Publish(ctx context.Context, jobID, actorID string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("job: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return Record{}, err
	}
	if rec.PosterID != actorID {
		return Record{}, ErrForbidden
	}

	updated, err := Transition(ctx, tx, jobID, rec.Status, StatusOpen)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("job: commit publish: %w", err)
	}

	s.logger.Info("job published", zap.String("job_id", jobID))
	return updated, nil
}

// ListOpen pages the public board of jobs accepting proposals.
func (s *Service) ListOpen(ctx context.Context, category string, page, limit int) ([]Record, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + selectColumns + ` FROM jobs WHERE status = 'OPEN'`
	args := []any{limit, (page - 1) * limit}
	if category != "" {
		query += ` AND category = $3`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("job: list open: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("job: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job: iterate: %w", err)
	}
	return out, nil
}

// Transition advances the job status inside the caller's transaction after
// validating the move against the SQL transition graph. Callers in the
// proposal and contract packages use this to flip OPEN -> IN_PROGRESS and
// IN_PROGRESS -> COMPLETED without duplicating the guard.
func Transition(ctx context.Context, tx pgx.Tx, jobID string, current, next Status) (Record, error) {
	var ok bool
	if err := tx.QueryRow(ctx, `SELECT job_validate_transition($1::job_status, $2::job_status)`, current, next).Scan(&ok); err != nil {
		return Record{}, fmt.Errorf("job: validate transition: %w", err)
	}
	if !ok {
		return Record{}, fmt.Errorf("job: %s -> %s: %w", current, next, ErrInvalidState)
	}

	const query = `
UPDATE jobs
SET status = $2::job_status,
    updated_at = get_tx_timestamp()
WHERE id = $1 AND status = $3::job_status
RETURNING ` + selectColumns

	rec, err := scanRecord(tx.QueryRow(ctx, query, jobID, next, current))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// lost the race: someone moved the job first
			return Record{}, fmt.Errorf("job: %s -> %s: %w", current, next, ErrInvalidState)
		}
		return Record{}, fmt.Errorf("job: transition: %w", err)
	}
	return rec, nil
}

func lockJob(ctx context.Context, tx pgx.Tx, jobID string) (Record, error) {
	const query = `SELECT ` + selectColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("job: lock: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.PosterID, &rec.Title, &rec.Description, &rec.Category,
		&rec.JobType, &rec.BudgetMin, &rec.BudgetMax, &rec.Status,
		&rec.ProposalCount, &rec.ViewCount, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}
