package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// An Oracle is an invariant expressed as a query that must return zero rows.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_accepted_proposal",
			SQL: `SELECT job_id, COUNT(*) FROM proposals
                  WHERE status = 'ACCEPTED'
                  GROUP BY job_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_single_contract_per_job",
			SQL: `SELECT job_id, COUNT(*) FROM contracts
                  GROUP BY job_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_no_pending_bids_on_taken_jobs",
			SQL: `SELECT p.id FROM proposals p
                  JOIN jobs j ON j.id = p.job_id
                  WHERE j.status IN ('IN_PROGRESS','COMPLETED')
                    AND p.status IN ('PENDING','SHORTLISTED')`,
		},
		{
			Name: "O4_escrow_conservation",
			SQL: `SELECT id, held_amount, released_amount, total_amount FROM escrows
                  WHERE status <> 'PENDING'
                    AND (held_amount + released_amount <> total_amount
                         OR held_amount < 0 OR released_amount < 0)`,
		},
		{
			Name: "O5_escrow_status_matches_balance",
			SQL: `SELECT id, status, held_amount FROM escrows
                  WHERE (status = 'RELEASED' AND held_amount <> 0)
                     OR (status = 'FUNDED' AND held_amount <> total_amount)`,
		},
		{
			Name: "O6_paid_amount_tracks_milestones",
			SQL: `SELECT c.id, c.paid_amount, COALESCE(SUM(m.amount) FILTER (WHERE m.status IN ('APPROVED','PAID')), 0)
                  FROM contracts c
                  LEFT JOIN milestones m ON m.contract_id = c.id
                  GROUP BY c.id
                  HAVING c.paid_amount <> COALESCE(SUM(m.amount) FILTER (WHERE m.status IN ('APPROVED','PAID')), 0)`,
		},
		{
			Name: "O7_release_only_from_funded_escrow",
			SQL: `SELECT m.id FROM milestones m
                  JOIN escrows e ON e.contract_id = m.contract_id
                  WHERE m.status = 'PAID' AND e.status = 'PENDING'`,
		},
		{
			Name: "O8_completed_contract_all_approved",
			SQL: `SELECT c.id FROM contracts c
                  JOIN milestones m ON m.contract_id = c.id
                  WHERE c.status = 'COMPLETED' AND m.status NOT IN ('APPROVED','PAID')`,
		},
		{
			Name: "O9_completed_contract_closes_job",
			SQL: `SELECT c.id FROM contracts c
                  JOIN jobs j ON j.id = c.job_id
                  WHERE c.status = 'COMPLETED' AND j.status <> 'COMPLETED'`,
		},
		{
			Name: "O10_transaction_amounts_balance",
			SQL: `SELECT id, amount, fee, net_amount FROM transactions
                  WHERE fee + net_amount <> amount OR amount <= 0 OR fee < 0`,
		},
		{
			Name: "O11_outbox_not_wedged",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a sample
// row) or an empty name if every invariant held.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
