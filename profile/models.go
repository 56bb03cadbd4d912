package profile

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record mirrors the profiles table. Earnings and spend aggregates are only
// mutated inside contract-completion transactions.
type Record struct {
	UserID        string
	CompletedJobs int
	TotalEarnings decimal.Decimal
	TotalSpent    decimal.Decimal
	AvgRating     decimal.Decimal
	TotalReviews  int
	UpdatedAt     time.Time
}
