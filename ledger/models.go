package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	EscrowPending           EscrowStatus = "PENDING"
	EscrowFunded            EscrowStatus = "FUNDED"
	EscrowPartiallyReleased EscrowStatus = "PARTIALLY_RELEASED"
	EscrowReleased          EscrowStatus = "RELEASED"
)

// Escrow is the held-funds ledger entity backing a contract. Once funded,
// heldAmount + releasedAmount always equals totalAmount.
type Escrow struct {
	ID             string
	ContractID     string
	TotalAmount    decimal.Decimal
	HeldAmount     decimal.Decimal
	ReleasedAmount decimal.Decimal
	Status         EscrowStatus
	FundedAt       *time.Time
}

type TransactionType string

const (
	TxEscrowFund    TransactionType = "ESCROW_FUND"
	TxEscrowRelease TransactionType = "ESCROW_RELEASE"
	TxPayout        TransactionType = "PAYOUT"
	TxFee           TransactionType = "FEE"
)

type TransactionStatus string

const (
	TxProcessing TransactionStatus = "PROCESSING"
	TxCompleted  TransactionStatus = "COMPLETED"
	TxFailed     TransactionStatus = "FAILED"
)

// Transaction is an append-only audit entry; rows never mutate after
// reaching COMPLETED or FAILED.
type Transaction struct {
	ID            string
	UserID        string
	EscrowID      *string
	MilestoneID   *string
	Type          TransactionType
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	NetAmount     decimal.Decimal
	Status        TransactionStatus
	PaymentMethod *string
	Reference     *string
	Description   string
	CreatedAt     time.Time
}

// PayoutSettings holds a user's payout destination. Payouts require a
// verified destination.
type PayoutSettings struct {
	UserID       string
	PayoutMethod string
	Destination  string
	IsVerified   bool
	UpdatedAt    time.Time
}

// Earnings summarises a freelancer's money position.
type Earnings struct {
	TotalEarnings   decimal.Decimal
	PendingEarnings decimal.Decimal
	PaidOut         decimal.Decimal
	Available       decimal.Decimal
}
