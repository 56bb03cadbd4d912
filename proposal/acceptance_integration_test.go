package proposal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gigflow/contract"
	"gigflow/db"
	"gigflow/job"
)

// TestAccept_Integration runs the acceptance workflow against a real
// PostgreSQL via DATABASE_URL: one proposal wins, siblings are rejected, the
// job closes, and the contract appears with its pending escrow.
func TestAccept_Integration(t *testing.T) {
	pool := integrationPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := seedUser(t, ctx, pool, "client")
	first := seedUser(t, ctx, pool, "freelancer")
	second := seedUser(t, ctx, pool, "freelancer")

	jobs := job.NewService(pool, nil)
	proposals := NewService(pool, nil)

	posted, err := jobs.Create(ctx, client, job.CreateParams{
		Title:   fmt.Sprintf("integration job %d", time.Now().UnixNano()),
		JobType: job.TypeMilestone,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	winner, err := proposals.Submit(ctx, first, SubmitParams{
		JobID:     posted.ID,
		BidAmount: decimal.RequireFromString("500.00"),
		Milestones: []MilestoneInput{
			{Title: "design", Amount: decimal.RequireFromString("200.00")},
			{Title: "build", Amount: decimal.RequireFromString("300.00")},
		},
	})
	if err != nil {
		t.Fatalf("submit winner: %v", err)
	}
	loser, err := proposals.Submit(ctx, second, SubmitParams{
		JobID:     posted.ID,
		BidAmount: decimal.RequireFromString("450.00"),
	})
	if err != nil {
		t.Fatalf("submit loser: %v", err)
	}

	if _, err := proposals.Submit(ctx, first, SubmitParams{JobID: posted.ID, BidAmount: decimal.RequireFromString("1.00")}); !errors.Is(err, ErrDuplicateProposal) {
		t.Fatalf("second bid from same freelancer: want ErrDuplicateProposal, got %v", err)
	}
	if _, err := proposals.Submit(ctx, client, SubmitParams{JobID: posted.ID, BidAmount: decimal.RequireFromString("1.00")}); !errors.Is(err, ErrSelfProposal) {
		t.Fatalf("poster bidding own job: want ErrSelfProposal, got %v", err)
	}

	res, err := proposals.Accept(ctx, winner.ID, client)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Proposal.Status != StatusAccepted {
		t.Errorf("winner status = %s, want ACCEPTED", res.Proposal.Status)
	}
	if res.Contract.Status != contract.StatusActive {
		t.Errorf("contract status = %s, want ACTIVE", res.Contract.Status)
	}
	if !res.Contract.TotalAmount.Equal(winner.BidAmount) {
		t.Errorf("contract total = %s, want %s", res.Contract.TotalAmount, winner.BidAmount)
	}
	if len(res.Milestones) != 2 {
		t.Fatalf("milestone count = %d, want 2", len(res.Milestones))
	}

	var escrowStatus string
	var escrowTotal decimal.Decimal
	if err := pool.QueryRow(ctx, `SELECT status::text, total_amount FROM escrows WHERE contract_id = $1`, res.Contract.ID).
		Scan(&escrowStatus, &escrowTotal); err != nil {
		t.Fatalf("load escrow: %v", err)
	}
	if escrowStatus != "PENDING" || !escrowTotal.Equal(winner.BidAmount) {
		t.Errorf("escrow = %s/%s, want PENDING/%s", escrowStatus, escrowTotal, winner.BidAmount)
	}

	refreshed, err := jobs.Get(ctx, posted.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if refreshed.Status != job.StatusInProgress {
		t.Errorf("job status = %s, want IN_PROGRESS", refreshed.Status)
	}

	var loserStatus string
	if err := pool.QueryRow(ctx, `SELECT status::text FROM proposals WHERE id = $1`, loser.ID).Scan(&loserStatus); err != nil {
		t.Fatalf("load loser: %v", err)
	}
	if loserStatus != "REJECTED" {
		t.Errorf("loser status = %s, want REJECTED", loserStatus)
	}

	if _, err := proposals.Accept(ctx, loser.ID, client); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("accept on closed job: want ErrInvalidState, got %v", err)
	}
}

// TestAccept_ConcurrentSingleWinner fires parallel accepts for every proposal
// on one job and expects exactly one contract.
func TestAccept_ConcurrentSingleWinner(t *testing.T) {
	pool := integrationPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := seedUser(t, ctx, pool, "client")
	jobs := job.NewService(pool, nil)
	proposals := NewService(pool, nil)

	posted, err := jobs.Create(ctx, client, job.CreateParams{
		Title: fmt.Sprintf("race job %d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	const contenders = 8
	ids := make([]string, contenders)
	for i := range ids {
		freelancer := seedUser(t, ctx, pool, "freelancer")
		rec, err := proposals.Submit(ctx, freelancer, SubmitParams{
			JobID:     posted.ID,
			BidAmount: decimal.NewFromInt(int64(100 + i)),
		})
		if err != nil {
			t.Fatalf("submit contender %d: %v", i, err)
		}
		ids[i] = rec.ID
	}

	var wg sync.WaitGroup
	wins := make(chan string, contenders)
	for _, id := range ids {
		wg.Add(1)
		go func(proposalID string) {
			defer wg.Done()
			if res, err := proposals.Accept(ctx, proposalID, client); err == nil {
				wins <- res.Contract.ID
			}
		}(id)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("winner count = %d, want exactly 1 (%v)", len(winners), winners)
	}

	var contracts int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM contracts WHERE job_id = $1`, posted.ID).Scan(&contracts); err != nil {
		t.Fatalf("count contracts: %v", err)
	}
	if contracts != 1 {
		t.Fatalf("contracts for job = %d, want 1", contracts)
	}
}

// TestMilestonesAccess_Integration checks milestone plans stay hidden from
// everyone but the bidding freelancer and the job poster.
func TestMilestonesAccess_Integration(t *testing.T) {
	pool := integrationPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := seedUser(t, ctx, pool, "client")
	freelancer := seedUser(t, ctx, pool, "freelancer")
	competitor := seedUser(t, ctx, pool, "freelancer")

	jobs := job.NewService(pool, nil)
	proposals := NewService(pool, nil)

	posted, err := jobs.Create(ctx, client, job.CreateParams{
		Title: fmt.Sprintf("plan access job %d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	bid, err := proposals.Submit(ctx, freelancer, SubmitParams{
		JobID:     posted.ID,
		BidAmount: decimal.RequireFromString("300.00"),
		Milestones: []MilestoneInput{
			{Title: "phase one", Amount: decimal.RequireFromString("300.00")},
		},
	})
	if err != nil {
		t.Fatalf("submit proposal: %v", err)
	}

	for _, allowed := range []string{freelancer, client} {
		plan, err := proposals.Milestones(ctx, bid.ID, allowed)
		if err != nil {
			t.Fatalf("milestones for participant: %v", err)
		}
		if len(plan) != 1 {
			t.Errorf("plan length = %d, want 1", len(plan))
		}
	}
	if _, err := proposals.Milestones(ctx, bid.ID, competitor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("competitor reading plan: want ErrForbidden, got %v", err)
	}
	if _, err := proposals.Milestones(ctx, uuid.NewString(), freelancer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing proposal: want ErrNotFound, got %v", err)
	}
}

// TestWithdrawDuringAccept_Integration races withdrawals against acceptances
// on the same job. Both paths take the job lock before any proposal lock, so
// every call must finish with either success or a domain sentinel, never a
// deadlock abort.
func TestWithdrawDuringAccept_Integration(t *testing.T) {
	pool := integrationPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := seedUser(t, ctx, pool, "client")
	jobs := job.NewService(pool, nil)
	proposals := NewService(pool, nil)

	for round := 0; round < 5; round++ {
		posted, err := jobs.Create(ctx, client, job.CreateParams{
			Title: fmt.Sprintf("withdraw race %d-%d", round, time.Now().UnixNano()),
		})
		if err != nil {
			t.Fatalf("create job: %v", err)
		}

		accepted := seedUser(t, ctx, pool, "freelancer")
		target, err := proposals.Submit(ctx, accepted, SubmitParams{JobID: posted.ID, BidAmount: decimal.NewFromInt(100)})
		if err != nil {
			t.Fatalf("submit target: %v", err)
		}

		withdrawers := make([]struct{ userID, proposalID string }, 4)
		for i := range withdrawers {
			freelancer := seedUser(t, ctx, pool, "freelancer")
			rec, err := proposals.Submit(ctx, freelancer, SubmitParams{JobID: posted.ID, BidAmount: decimal.NewFromInt(int64(200 + i))})
			if err != nil {
				t.Fatalf("submit withdrawer %d: %v", i, err)
			}
			withdrawers[i] = struct{ userID, proposalID string }{freelancer, rec.ID}
		}

		var wg sync.WaitGroup
		errc := make(chan error, len(withdrawers)+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := proposals.Accept(ctx, target.ID, client); err != nil {
				errc <- fmt.Errorf("accept: %w", err)
			}
		}()
		for _, w := range withdrawers {
			wg.Add(1)
			go func(userID, proposalID string) {
				defer wg.Done()
				err := proposals.Withdraw(ctx, proposalID, userID)
				// Losing the race to the sibling fan-out is fine.
				if err != nil && !errors.Is(err, ErrInvalidState) {
					errc <- fmt.Errorf("withdraw: %w", err)
				}
			}(w.userID, w.proposalID)
		}
		wg.Wait()
		close(errc)
		for err := range errc {
			t.Errorf("round %d: %v", round, err)
		}
	}
}

func integrationPool(t *testing.T) *pgxpool.Pool {
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
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'proposals')`).Scan(&exists); err != nil || !exists {
		t.Skip("database schema missing; apply the files under migrations/ first")
	}
	return pool
}

func seedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role string) string {
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
