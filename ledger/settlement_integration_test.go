package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gigflow/contract"
	"gigflow/db"
	"gigflow/gateway"
	"gigflow/job"
	"gigflow/profile"
	"gigflow/proposal"
)

// TestSettlementFlow_Integration drives one contract from acceptance through
// funding, milestone delivery and release, and checks that the escrow
// counters, the contract, and both profiles all land where they should.
func TestSettlementFlow_Integration(t *testing.T) {
	pool := settlementPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := seedLedgerUser(t, ctx, pool, "client")
	freelancer := seedLedgerUser(t, ctx, pool, "freelancer")

	fees, err := NewFeePolicy("0.10")
	if err != nil {
		t.Fatalf("fee policy: %v", err)
	}
	jobs := job.NewService(pool, nil)
	proposals := proposal.NewService(pool, nil)
	contracts := contract.NewService(pool, profile.NewRepository(pool), nil)
	ledger := NewService(pool, gateway.Simulated{}, fees, nil)

	posted, err := jobs.Create(ctx, client, job.CreateParams{
		Title:   fmt.Sprintf("settlement job %d", time.Now().UnixNano()),
		JobType: job.TypeMilestone,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	bid, err := proposals.Submit(ctx, freelancer, proposal.SubmitParams{
		JobID:     posted.ID,
		BidAmount: decimal.RequireFromString("500.00"),
		Milestones: []proposal.MilestoneInput{
			{Title: "design", Amount: decimal.RequireFromString("200.00")},
			{Title: "build", Amount: decimal.RequireFromString("300.00")},
		},
	})
	if err != nil {
		t.Fatalf("submit proposal: %v", err)
	}
	res, err := proposals.Accept(ctx, bid.ID, client)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	contractID := res.Contract.ID

	// Releasing before funding must fail regardless of milestone state.
	if _, err := ledger.ReleaseMilestone(ctx, client, contractID, res.Milestones[0].ID); err == nil {
		t.Fatal("release on unfunded escrow succeeded")
	}

	if _, err := ledger.FundEscrow(ctx, freelancer, contractID, "card_123"); !errors.Is(err, contract.ErrForbidden) {
		t.Fatalf("freelancer funding escrow: want ErrForbidden, got %v", err)
	}
	deposit, err := ledger.FundEscrow(ctx, client, contractID, "card_123")
	if err != nil {
		t.Fatalf("fund escrow: %v", err)
	}
	if deposit.Type != TxEscrowFund || deposit.Status != TxCompleted {
		t.Errorf("deposit = %s/%s, want ESCROW_FUND/COMPLETED", deposit.Type, deposit.Status)
	}
	if _, err := ledger.FundEscrow(ctx, client, contractID, "card_123"); !errors.Is(err, ErrAlreadyFunded) {
		t.Fatalf("double fund: want ErrAlreadyFunded, got %v", err)
	}

	esc, err := ledger.Escrow(ctx, contractID, freelancer)
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	if esc.Status != EscrowFunded || !esc.HeldAmount.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("escrow after funding = %s held %s", esc.Status, esc.HeldAmount)
	}

	for i, ms := range res.Milestones {
		if _, err := contracts.StartMilestone(ctx, contractID, ms.ID, freelancer); err != nil {
			t.Fatalf("start milestone %d: %v", i, err)
		}
		if _, err := contracts.SubmitMilestone(ctx, contractID, ms.ID, freelancer, contract.SubmitDeliverableParams{
			Title: "deliverable " + ms.Title,
		}); err != nil {
			t.Fatalf("submit milestone %d: %v", i, err)
		}

		// Release needs approval first.
		if _, err := ledger.ReleaseMilestone(ctx, client, contractID, ms.ID); !errors.Is(err, ErrNotApproved) {
			t.Fatalf("release before approval: want ErrNotApproved, got %v", err)
		}
		if _, err := contracts.ApproveMilestone(ctx, contractID, ms.ID, freelancer); !errors.Is(err, contract.ErrForbidden) {
			t.Fatalf("freelancer approving own work: want ErrForbidden, got %v", err)
		}
		if _, err := contracts.ApproveMilestone(ctx, contractID, ms.ID, client); err != nil {
			t.Fatalf("approve milestone %d: %v", i, err)
		}

		payment, err := ledger.ReleaseMilestone(ctx, client, contractID, ms.ID)
		if err != nil {
			t.Fatalf("release milestone %d: %v", i, err)
		}
		if payment.UserID != freelancer {
			t.Errorf("payment credited to %s, want freelancer", payment.UserID)
		}
		if !payment.Fee.Add(payment.NetAmount).Equal(payment.Amount) {
			t.Errorf("fee %s + net %s != amount %s", payment.Fee, payment.NetAmount, payment.Amount)
		}
	}

	esc, err = ledger.Escrow(ctx, contractID, client)
	if err != nil {
		t.Fatalf("get escrow after release: %v", err)
	}
	if esc.Status != EscrowReleased {
		t.Errorf("escrow status = %s, want RELEASED", esc.Status)
	}
	if !esc.HeldAmount.IsZero() || !esc.ReleasedAmount.Equal(esc.TotalAmount) {
		t.Errorf("escrow counters held %s released %s total %s", esc.HeldAmount, esc.ReleasedAmount, esc.TotalAmount)
	}

	done, err := contracts.Get(ctx, contractID, client)
	if err != nil {
		t.Fatalf("reload contract: %v", err)
	}
	if done.Status != contract.StatusCompleted {
		t.Errorf("contract status = %s, want COMPLETED", done.Status)
	}
	if !done.PaidAmount.Equal(done.TotalAmount) {
		t.Errorf("paid %s, want %s", done.PaidAmount, done.TotalAmount)
	}

	earnings, err := ledger.Earnings(ctx, freelancer)
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if !earnings.TotalEarnings.Equal(decimal.RequireFromString("500.00")) {
		t.Errorf("total earnings = %s, want 500.00", earnings.TotalEarnings)
	}
	if !earnings.PendingEarnings.IsZero() {
		t.Errorf("pending earnings = %s, want 0", earnings.PendingEarnings)
	}

	history, total, err := ledger.History(ctx, freelancer, 1, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 2 || len(history) != 2 {
		t.Fatalf("history = %d rows (total %d), want 2 releases", len(history), total)
	}
}

// TestFundAfterCompletion_Integration covers the late-funding path: a client
// who approves every milestone before funding completes the contract with the
// escrow still PENDING, and must still be able to fund and release.
func TestFundAfterCompletion_Integration(t *testing.T) {
	pool := settlementPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := seedLedgerUser(t, ctx, pool, "client")
	freelancer := seedLedgerUser(t, ctx, pool, "freelancer")

	fees, err := NewFeePolicy("0.10")
	if err != nil {
		t.Fatalf("fee policy: %v", err)
	}
	jobs := job.NewService(pool, nil)
	proposals := proposal.NewService(pool, nil)
	contracts := contract.NewService(pool, profile.NewRepository(pool), nil)
	ledger := NewService(pool, gateway.Simulated{}, fees, nil)

	posted, err := jobs.Create(ctx, client, job.CreateParams{
		Title: fmt.Sprintf("late funding job %d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	bid, err := proposals.Submit(ctx, freelancer, proposal.SubmitParams{
		JobID:     posted.ID,
		BidAmount: decimal.RequireFromString("100.00"),
	})
	if err != nil {
		t.Fatalf("submit proposal: %v", err)
	}
	res, err := proposals.Accept(ctx, bid.ID, client)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	contractID := res.Contract.ID
	msID := res.Milestones[0].ID

	// Work through the whole milestone machine without ever funding.
	if _, err := contracts.StartMilestone(ctx, contractID, msID, freelancer); err != nil {
		t.Fatalf("start milestone: %v", err)
	}
	if _, err := contracts.SubmitMilestone(ctx, contractID, msID, freelancer, contract.SubmitDeliverableParams{Title: "done"}); err != nil {
		t.Fatalf("submit milestone: %v", err)
	}
	if _, err := contracts.ApproveMilestone(ctx, contractID, msID, client); err != nil {
		t.Fatalf("approve milestone: %v", err)
	}

	done, err := contracts.Get(ctx, contractID, client)
	if err != nil {
		t.Fatalf("reload contract: %v", err)
	}
	if done.Status != contract.StatusCompleted {
		t.Fatalf("contract status = %s, want COMPLETED", done.Status)
	}

	if _, err := ledger.FundEscrow(ctx, client, contractID, "card_123"); err != nil {
		t.Fatalf("fund completed contract: %v", err)
	}
	payment, err := ledger.ReleaseMilestone(ctx, client, contractID, msID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !payment.Amount.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("payment amount = %s, want 100.00", payment.Amount)
	}

	esc, err := ledger.Escrow(ctx, contractID, freelancer)
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	if esc.Status != EscrowReleased || !esc.HeldAmount.IsZero() {
		t.Errorf("escrow = %s held %s, want RELEASED/0", esc.Status, esc.HeldAmount)
	}
}

func TestRequestPayout_Integration(t *testing.T) {
	pool := settlementPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userID := seedLedgerUser(t, ctx, pool, "freelancer")
	if _, err := pool.Exec(ctx, `UPDATE profiles SET total_earnings = 300.00 WHERE user_id = $1`, userID); err != nil {
		t.Fatalf("seed earnings: %v", err)
	}

	fees, err := NewFeePolicy("0.10")
	if err != nil {
		t.Fatalf("fee policy: %v", err)
	}
	ledger := NewService(pool, gateway.Simulated{}, fees, nil)

	if _, err := ledger.RequestPayout(ctx, userID, decimal.RequireFromString("100.00")); !errors.Is(err, ErrPayoutNotConfigured) {
		t.Fatalf("payout without settings: want ErrPayoutNotConfigured, got %v", err)
	}

	if _, err := ledger.SetupPayout(ctx, userID, "bank_transfer", "DE0012345", true); err != nil {
		t.Fatalf("setup payout: %v", err)
	}

	txn, err := ledger.RequestPayout(ctx, userID, decimal.RequireFromString("100.00"))
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if txn.Type != TxPayout || txn.Status != TxProcessing {
		t.Errorf("payout = %s/%s, want PAYOUT/PROCESSING", txn.Type, txn.Status)
	}
	if txn.Reference == nil {
		t.Error("payout reference not stored")
	}

	// 300 earned, 100 already in flight.
	if _, err := ledger.RequestPayout(ctx, userID, decimal.RequireFromString("250.00")); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-withdrawal: want ErrInsufficientBalance, got %v", err)
	}

	earnings, err := ledger.Earnings(ctx, userID)
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if !earnings.Available.Equal(decimal.RequireFromString("200.00")) {
		t.Errorf("available = %s, want 200.00", earnings.Available)
	}
}

func settlementPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'escrows')`).Scan(&exists); err != nil || !exists {
		t.Skip("database schema missing; apply the files under migrations/ first")
	}
	return pool
}

func seedLedgerUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3) RETURNING id`,
		fmt.Sprintf("%s+%d@example.com", role, time.Now().UnixNano()), "Integration User", role,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, id); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return id
}
