package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("profile: not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, userID string) (Record, error) {
	const query = `
SELECT user_id, completed_jobs, total_earnings, total_spent, avg_rating, total_reviews, updated_at
FROM profiles
WHERE user_id = $1
`
	var rec Record
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID, &rec.CompletedJobs, &rec.TotalEarnings, &rec.TotalSpent,
		&rec.AvgRating, &rec.TotalReviews, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("profile: get: %w", err)
	}
	return rec, nil
}

// CreditCompletedContract applies the freelancer side of contract completion.
// It runs inside the caller's transaction so the contract, job, and both
// profiles commit or roll back as one unit.
func (r *Repository) CreditCompletedContract(ctx context.Context, tx pgx.Tx, freelancerID string, amount decimal.Decimal) error {
	const query = `
UPDATE profiles
SET completed_jobs = completed_jobs + 1,
    total_earnings = total_earnings + $2,
    updated_at = get_tx_timestamp()
WHERE user_id = $1
`
	tag, err := tx.Exec(ctx, query, freelancerID, amount)
	if err != nil {
		return fmt.Errorf("profile: credit freelancer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile: credit freelancer %s: %w", freelancerID, ErrNotFound)
	}
	return nil
}

// DebitCompletedContract applies the client side of contract completion.
func (r *Repository) DebitCompletedContract(ctx context.Context, tx pgx.Tx, clientID string, amount decimal.Decimal) error {
	const query = `
UPDATE profiles
SET total_spent = total_spent + $2,
    updated_at = get_tx_timestamp()
WHERE user_id = $1
`
	tag, err := tx.Exec(ctx, query, clientID, amount)
	if err != nil {
		return fmt.Errorf("profile: debit client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile: debit client %s: %w", clientID, ErrNotFound)
	}
	return nil
}

// RefreshRating recomputes the review aggregate for a user from the reviews
// table inside the caller's transaction.
func (r *Repository) RefreshRating(ctx context.Context, tx pgx.Tx, userID string) error {
	const query = `
UPDATE profiles
SET avg_rating = sub.avg_rating,
    total_reviews = sub.total,
    updated_at = get_tx_timestamp()
FROM (
    SELECT COALESCE(ROUND(AVG(rating)::numeric, 2), 0) AS avg_rating, COUNT(*) AS total
    FROM reviews
    WHERE target_id = $1
) sub
WHERE user_id = $1
`
	if _, err := tx.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("profile: refresh rating: %w", err)
	}
	return nil
}
