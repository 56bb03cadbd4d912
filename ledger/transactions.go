package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type insertTxParams struct {
	UserID        string
	EscrowID      *string
	MilestoneID   *string
	Type          TransactionType
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Net           decimal.Decimal
	Status        TransactionStatus
	PaymentMethod *string
	Reference     *string
	Description   string
}

func insertTransaction(ctx context.Context, tx pgx.Tx, params insertTxParams) (Transaction, error) {
	const query = `
INSERT INTO transactions (user_id, escrow_id, milestone_id, type, amount, fee, net_amount, status, payment_method, reference, description)
VALUES ($1, $2, $3, $4::transaction_type, $5, $6, $7, $8::transaction_status, $9, $10, $11)
RETURNING ` + txColumns

	txn, err := scanTransaction(tx.QueryRow(ctx, query,
		params.UserID, params.EscrowID, params.MilestoneID, params.Type,
		params.Amount, params.Fee, params.Net, params.Status,
		params.PaymentMethod, params.Reference, params.Description,
	))
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: insert transaction: %w", err)
	}
	return txn, nil
}

// History pages a user's ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID string, page, limit int) ([]Transaction, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	const query = `
SELECT ` + txColumns + `
FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`
	rows, err := s.pool.Query(ctx, query, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: history: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		var txn Transaction
		if err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.EscrowID, &txn.MilestoneID, &txn.Type,
			&txn.Amount, &txn.Fee, &txn.NetAmount, &txn.Status,
			&txn.PaymentMethod, &txn.Reference, &txn.Description, &txn.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("ledger: scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ledger: iterate transactions: %w", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ledger: count transactions: %w", err)
	}
	return out, total, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.EscrowID, &txn.MilestoneID, &txn.Type,
		&txn.Amount, &txn.Fee, &txn.NetAmount, &txn.Status,
		&txn.PaymentMethod, &txn.Reference, &txn.Description, &txn.CreatedAt,
	)
	return txn, err
}
