package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gigflow/contract"
	"gigflow/gateway"
	"gigflow/metrics"
	"gigflow/notify"
)

var (
	// ErrAlreadyFunded: the escrow left PENDING already.
	ErrAlreadyFunded = errors.New("ledger: escrow already funded")
	// ErrNotApproved: release requires an APPROVED milestone.
	ErrNotApproved = errors.New("ledger: milestone not approved")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrPayoutNotConfigured = errors.New("ledger: payout destination not configured or unverified")
	ErrEscrowNotFound      = errors.New("ledger: escrow not found")
)

const escrowColumns = `
id, contract_id, total_amount, held_amount, released_amount, status::text, funded_at
`

const txColumns = `
id, user_id, escrow_id, milestone_id, type::text, amount, fee, net_amount,
status::text, payment_method, reference, description, created_at
`

// Service is the single source of truth for how much money is where. Every
// mutation holds a transaction scoped to the contract aggregate.
type Service struct {
	pool    *pgxpool.Pool
	gateway gateway.Gateway
	fees    FeePolicy
	logger  *zap.Logger
}

func NewService(pool *pgxpool.Pool, gw gateway.Gateway, fees FeePolicy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pool: pool, gateway: gw, fees: fees, logger: logger}
}

// FundEscrow charges the client and moves the contract's escrow from PENDING
// to FUNDED. The charge happens before any mutation; a gateway failure leaves
// the ledger untouched.
func (s *Service) FundEscrow(ctx context.Context, actorID, contractID, paymentMethod string) (Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := contract.Lock(ctx, tx, contractID)
	if err != nil {
		return Transaction{}, err
	}
	if err := contract.Authorize(rec, actorID, contract.RoleClient); err != nil {
		return Transaction{}, err
	}
	// A contract can complete on approvals alone, so funding stays legal on
	// COMPLETED; the freelancer still needs the escrow to get paid.
	if rec.Status != contract.StatusActive && rec.Status != contract.StatusCompleted {
		return Transaction{}, contract.ErrInvalidState
	}

	escrow, err := lockEscrow(ctx, tx, contractID)
	if err != nil {
		return Transaction{}, err
	}
	if escrow.Status != EscrowPending {
		return Transaction{}, ErrAlreadyFunded
	}

	ref, err := s.gateway.Charge(ctx, paymentMethod, escrow.TotalAmount)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: charge: %w", err)
	}

	const fundSQL = `
UPDATE escrows
SET status = 'FUNDED',
    held_amount = total_amount,
    funded_at = get_tx_timestamp()
WHERE id = $1
`
	if _, err := tx.Exec(ctx, fundSQL, escrow.ID); err != nil {
		return Transaction{}, fmt.Errorf("ledger: mark funded: %w", err)
	}

	fee, net := s.fees.Split(escrow.TotalAmount)
	txn, err := insertTransaction(ctx, tx, insertTxParams{
		UserID:        actorID,
		EscrowID:      &escrow.ID,
		Type:          TxEscrowFund,
		Amount:        escrow.TotalAmount,
		Fee:           fee,
		Net:           net,
		Status:        TxCompleted,
		PaymentMethod: &paymentMethod,
		Reference:     (*string)(&ref),
		Description:   "Escrow funding for contract: " + rec.Title,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicEscrowFunded, map[string]any{
		"contract_id":   contractID,
		"escrow_id":     escrow.ID,
		"freelancer_id": rec.FreelancerID,
		"amount":        escrow.TotalAmount.StringFixed(2),
	}); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("ledger: commit funding: %w", err)
	}

	metrics.RecordTransaction(string(TxEscrowFund), string(TxCompleted))
	s.logger.Info("escrow funded",
		zap.String("contract_id", contractID),
		zap.String("amount", escrow.TotalAmount.StringFixed(2)),
	)
	return txn, nil
}

// ReleaseMilestone pays an APPROVED milestone out of escrow. The milestone
// flips to PAID and the escrow counters move in one atomic unit, so
// heldAmount + releasedAmount stays equal to totalAmount.
func (s *Service) ReleaseMilestone(ctx context.Context, actorID, contractID, milestoneID string) (Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := contract.Lock(ctx, tx, contractID)
	if err != nil {
		return Transaction{}, err
	}
	if err := contract.Authorize(rec, actorID, contract.RoleClient); err != nil {
		return Transaction{}, err
	}
	// Release is legal on a completed contract; only CANCELLED/DISPUTED
	// (and PAUSED) block payouts.
	if rec.Status != contract.StatusActive && rec.Status != contract.StatusCompleted {
		return Transaction{}, contract.ErrInvalidState
	}

	ms, err := contract.LockMilestone(ctx, tx, contractID, milestoneID)
	if err != nil {
		return Transaction{}, err
	}
	if ms.Status != contract.MilestoneApproved {
		return Transaction{}, ErrNotApproved
	}

	escrow, err := lockEscrow(ctx, tx, contractID)
	if err != nil {
		return Transaction{}, err
	}
	if escrow.Status != EscrowFunded && escrow.Status != EscrowPartiallyReleased {
		return Transaction{}, fmt.Errorf("ledger: escrow %s not releasable: %w", escrow.Status, contract.ErrInvalidState)
	}
	if escrow.HeldAmount.LessThan(ms.Amount) {
		return Transaction{}, fmt.Errorf("ledger: escrow holds %s, milestone needs %s: %w",
			escrow.HeldAmount.StringFixed(2), ms.Amount.StringFixed(2), contract.ErrInvalidState)
	}

	if err := contract.ValidateMilestoneTransition(ctx, tx, ms.Status, contract.MilestonePaid); err != nil {
		return Transaction{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE milestones SET status = 'PAID' WHERE id = $1`, milestoneID); err != nil {
		return Transaction{}, fmt.Errorf("ledger: mark paid: %w", err)
	}

	const releaseSQL = `
UPDATE escrows
SET held_amount = held_amount - $2,
    released_amount = released_amount + $2,
    status = CASE WHEN held_amount - $2 = 0 THEN 'RELEASED'::escrow_status
                  ELSE 'PARTIALLY_RELEASED'::escrow_status END
WHERE id = $1
`
	if _, err := tx.Exec(ctx, releaseSQL, escrow.ID, ms.Amount); err != nil {
		return Transaction{}, fmt.Errorf("ledger: move escrow funds: %w", err)
	}

	fee, net := s.fees.Split(ms.Amount)
	txn, err := insertTransaction(ctx, tx, insertTxParams{
		UserID:      rec.FreelancerID,
		EscrowID:    &escrow.ID,
		MilestoneID: &milestoneID,
		Type:        TxEscrowRelease,
		Amount:      ms.Amount,
		Fee:         fee,
		Net:         net,
		Status:      TxCompleted,
		Description: "Payment for milestone: " + ms.Title,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := notify.Enqueue(ctx, tx, notify.TopicPaymentReleased, map[string]any{
		"contract_id":   contractID,
		"milestone_id":  milestoneID,
		"freelancer_id": rec.FreelancerID,
		"amount":        ms.Amount.StringFixed(2),
		"net_amount":    net.StringFixed(2),
	}); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("ledger: commit release: %w", err)
	}

	metrics.RecordTransaction(string(TxEscrowRelease), string(TxCompleted))
	released, _ := ms.Amount.Float64()
	metrics.EscrowReleasedAmount.Add(released)
	s.logger.Info("milestone payment released",
		zap.String("contract_id", contractID),
		zap.String("milestone_id", milestoneID),
		zap.String("amount", ms.Amount.StringFixed(2)),
	)
	return txn, nil
}

// Escrow returns the escrow backing a contract for one of its participants.
func (s *Service) Escrow(ctx context.Context, contractID, actorID string) (Escrow, error) {
	var clientID, freelancerID string
	if err := s.pool.QueryRow(ctx, `SELECT client_id, freelancer_id FROM contracts WHERE id = $1`, contractID).
		Scan(&clientID, &freelancerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, contract.ErrNotFound
		}
		return Escrow{}, fmt.Errorf("ledger: load contract: %w", err)
	}
	if actorID != clientID && actorID != freelancerID {
		return Escrow{}, contract.ErrForbidden
	}

	const query = `SELECT ` + escrowColumns + ` FROM escrows WHERE contract_id = $1`
	esc, err := scanEscrow(s.pool.QueryRow(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrEscrowNotFound
		}
		return Escrow{}, fmt.Errorf("ledger: get escrow: %w", err)
	}
	return esc, nil
}

func lockEscrow(ctx context.Context, tx pgx.Tx, contractID string) (Escrow, error) {
	const query = `SELECT ` + escrowColumns + ` FROM escrows WHERE contract_id = $1 FOR UPDATE`
	esc, err := scanEscrow(tx.QueryRow(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrEscrowNotFound
		}
		return Escrow{}, fmt.Errorf("ledger: lock escrow: %w", err)
	}
	return esc, nil
}

func scanEscrow(row pgx.Row) (Escrow, error) {
	var esc Escrow
	err := row.Scan(&esc.ID, &esc.ContractID, &esc.TotalAmount, &esc.HeldAmount,
		&esc.ReleasedAmount, &esc.Status, &esc.FundedAt)
	return esc, err
}
