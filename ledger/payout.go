package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gigflow/metrics"
)

// SetupPayout stores or replaces a user's payout destination. A changed
// destination always resets verification.
func (s *Service) SetupPayout(ctx context.Context, userID, method, destination string, verified bool) (PayoutSettings, error) {
	const query = `
INSERT INTO payout_settings (user_id, payout_method, destination, is_verified)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET payout_method = EXCLUDED.payout_method,
    destination = EXCLUDED.destination,
    is_verified = EXCLUDED.is_verified,
    updated_at = get_tx_timestamp()
RETURNING user_id, payout_method, destination, is_verified, updated_at
`
	var ps PayoutSettings
	err := s.pool.QueryRow(ctx, query, userID, method, destination, verified).
		Scan(&ps.UserID, &ps.PayoutMethod, &ps.Destination, &ps.IsVerified, &ps.UpdatedAt)
	if err != nil {
		return PayoutSettings{}, fmt.Errorf("ledger: setup payout: %w", err)
	}
	return ps, nil
}

func (s *Service) PayoutSettings(ctx context.Context, userID string) (PayoutSettings, error) {
	const query = `
SELECT user_id, payout_method, destination, is_verified, updated_at
FROM payout_settings
WHERE user_id = $1
`
	var ps PayoutSettings
	err := s.pool.QueryRow(ctx, query, userID).
		Scan(&ps.UserID, &ps.PayoutMethod, &ps.Destination, &ps.IsVerified, &ps.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayoutSettings{}, ErrPayoutNotConfigured
		}
		return PayoutSettings{}, fmt.Errorf("ledger: payout settings: %w", err)
	}
	return ps, nil
}

// RequestPayout moves part of a freelancer's realised earnings out of the
// platform. The available balance is total earnings minus every payout that
// has not FAILED, so a PROCESSING payout keeps blocking its amount until the
// gateway settles it one way or the other.
func (s *Service) RequestPayout(ctx context.Context, userID string, amount decimal.Decimal) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, fmt.Errorf("ledger: payout amount must be positive")
	}

	settings, err := s.PayoutSettings(ctx, userID)
	if err != nil {
		return Transaction{}, err
	}
	if !settings.IsVerified {
		return Transaction{}, ErrPayoutNotConfigured
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The profile row lock serialises concurrent payout requests for one user.
	var total decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT total_earnings FROM profiles WHERE user_id = $1 FOR UPDATE`, userID).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrInsufficientBalance
		}
		return Transaction{}, fmt.Errorf("ledger: lock profile: %w", err)
	}

	var blocked decimal.Decimal
	err = tx.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0)
FROM transactions
WHERE user_id = $1 AND type = 'PAYOUT' AND status <> 'FAILED'
`, userID).Scan(&blocked)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: sum payouts: %w", err)
	}

	if total.Sub(blocked).LessThan(amount) {
		return Transaction{}, ErrInsufficientBalance
	}

	description := fmt.Sprintf("Payout to %s", settings.PayoutMethod)
	txn, err := insertTransaction(ctx, tx, insertTxParams{
		UserID:        userID,
		Type:          TxPayout,
		Amount:        amount,
		Fee:           decimal.Zero,
		Net:           amount,
		Status:        TxProcessing,
		PaymentMethod: &settings.PayoutMethod,
		Description:   description,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("ledger: commit tx: %w", err)
	}

	ref, gwErr := s.gateway.Payout(ctx, settings.Destination, amount)
	if gwErr != nil {
		if _, failErr := s.pool.Exec(ctx, `UPDATE transactions SET status = 'FAILED' WHERE id = $1`, txn.ID); failErr != nil {
			s.logger.Error("mark payout failed",
				zap.String("transaction_id", txn.ID),
				zap.Error(failErr))
		}
		metrics.RecordTransaction(string(TxPayout), string(TxFailed))
		return Transaction{}, fmt.Errorf("ledger: payout: %w", gwErr)
	}

	refStr := string(ref)
	if _, err := s.pool.Exec(ctx, `UPDATE transactions SET reference = $2 WHERE id = $1`, txn.ID, refStr); err != nil {
		s.logger.Error("store payout reference",
			zap.String("transaction_id", txn.ID),
			zap.Error(err))
	}
	txn.Reference = &refStr

	metrics.RecordTransaction(string(TxPayout), string(TxProcessing))
	s.logger.Info("payout requested",
		zap.String("user_id", userID),
		zap.String("transaction_id", txn.ID),
		zap.String("amount", amount.StringFixed(2)))
	return txn, nil
}

// Earnings computes a freelancer's money position. Pending is what sits in
// funded escrows on their active contracts and is not withdrawable yet.
func (s *Service) Earnings(ctx context.Context, userID string) (Earnings, error) {
	var out Earnings

	err := s.pool.QueryRow(ctx, `SELECT total_earnings FROM profiles WHERE user_id = $1`, userID).Scan(&out.TotalEarnings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Earnings{
				TotalEarnings:   decimal.Zero,
				PendingEarnings: decimal.Zero,
				PaidOut:         decimal.Zero,
				Available:       decimal.Zero,
			}, nil
		}
		return Earnings{}, fmt.Errorf("ledger: total earnings: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(e.held_amount), 0)
FROM escrows e
JOIN contracts c ON c.id = e.contract_id
WHERE c.freelancer_id = $1 AND e.status IN ('FUNDED', 'PARTIALLY_RELEASED')
`, userID).Scan(&out.PendingEarnings)
	if err != nil {
		return Earnings{}, fmt.Errorf("ledger: pending earnings: %w", err)
	}

	var blocked decimal.Decimal
	err = s.pool.QueryRow(ctx, `
SELECT
    COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED'), 0),
    COALESCE(SUM(amount) FILTER (WHERE status <> 'FAILED'), 0)
FROM transactions
WHERE user_id = $1 AND type = 'PAYOUT'
`, userID).Scan(&out.PaidOut, &blocked)
	if err != nil {
		return Earnings{}, fmt.Errorf("ledger: payout totals: %w", err)
	}
	out.Available = out.TotalEarnings.Sub(blocked)
	return out, nil
}
