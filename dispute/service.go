package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gigflow/contract"
	"gigflow/notify"
)

var (
	ErrNotFound  = errors.New("dispute: not found")
	ErrForbidden = errors.New("dispute: forbidden")
	// ErrAlreadyOpen guards against stacking disputes on one contract.
	ErrAlreadyOpen = errors.New("dispute: contract already disputed")
	ErrResolved    = errors.New("dispute: already resolved")
)

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

// Open freezes a contract while the parties argue. Either participant can
// open one; the contract moves to DISPUTED in the same transaction, which
// locks out funding and release until resolution.
func (s *Service) Open(ctx context.Context, actorID, contractID, reason string) (Record, error) {
	if reason == "" {
		return Record{}, fmt.Errorf("dispute: reason is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := contract.Lock(ctx, tx, contractID)
	if err != nil {
		return Record{}, err
	}
	if err := contract.Authorize(rec, actorID, contract.RoleAny); err != nil {
		return Record{}, err
	}
	switch rec.Status {
	case contract.StatusDisputed:
		return Record{}, ErrAlreadyOpen
	case contract.StatusActive, contract.StatusPaused:
	default:
		return Record{}, contract.ErrInvalidState
	}

	const insert = `
INSERT INTO disputes (contract_id, opened_by, reason)
VALUES ($1, $2, $3)
RETURNING id, contract_id, opened_by, reason, status::text, created_at, resolved_at
`
	d, err := scanRecord(tx.QueryRow(ctx, insert, contractID, actorID, reason))
	if err != nil {
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE contracts SET status = 'DISPUTED' WHERE id = $1`, contractID); err != nil {
		return Record{}, fmt.Errorf("dispute: mark contract disputed: %w", err)
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicDisputeOpened, map[string]any{
		"dispute_id":  d.ID,
		"contract_id": contractID,
		"opened_by":   actorID,
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit tx: %w", err)
	}

	s.logger.Info("dispute opened",
		zap.String("dispute_id", d.ID),
		zap.String("contract_id", contractID))
	return d, nil
}

// Resolve closes a dispute. RESUME returns the contract to ACTIVE, CANCEL
// ends it. Admin only; the caller's role is checked at the transport layer.
func (s *Service) Resolve(ctx context.Context, disputeID string, outcome Outcome) (Record, error) {
	var next contract.Status
	switch outcome {
	case OutcomeResume:
		next = contract.StatusActive
	case OutcomeCancel:
		next = contract.StatusCancelled
	default:
		return Record{}, fmt.Errorf("dispute: unknown outcome %q", outcome)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const lock = `
SELECT id, contract_id, opened_by, reason, status::text, created_at, resolved_at
FROM disputes
WHERE id = $1
FOR UPDATE
`
	d, err := scanRecord(tx.QueryRow(ctx, lock, disputeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: lock: %w", err)
	}
	if d.Status == StatusResolved {
		return Record{}, ErrResolved
	}

	const resolve = `
UPDATE disputes
SET status = 'RESOLVED', resolved_at = get_tx_timestamp()
WHERE id = $1
RETURNING id, contract_id, opened_by, reason, status::text, created_at, resolved_at
`
	d, err = scanRecord(tx.QueryRow(ctx, resolve, disputeID))
	if err != nil {
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	const move = `UPDATE contracts SET status = $2 WHERE id = $1 AND status = 'DISPUTED'`
	if _, err := tx.Exec(ctx, move, d.ContractID, next); err != nil {
		return Record{}, fmt.Errorf("dispute: restore contract: %w", err)
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicDisputeResolved, map[string]any{
		"dispute_id":  d.ID,
		"contract_id": d.ContractID,
		"outcome":     string(outcome),
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit tx: %w", err)
	}

	s.logger.Info("dispute resolved",
		zap.String("dispute_id", d.ID),
		zap.String("outcome", string(outcome)))
	return d, nil
}

// ListForContract returns a contract's disputes, newest first. Participants
// only.
func (s *Service) ListForContract(ctx context.Context, actorID, contractID string) ([]Record, error) {
	const query = `
SELECT d.id, d.contract_id, d.opened_by, d.reason, d.status::text, d.created_at, d.resolved_at
FROM disputes d
JOIN contracts c ON c.id = d.contract_id
WHERE d.contract_id = $1 AND (c.client_id = $2 OR c.freelancer_id = $2)
ORDER BY d.created_at DESC
`
	rows, err := s.pool.Query(ctx, query, contractID, actorID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ContractID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.CreatedAt, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}
