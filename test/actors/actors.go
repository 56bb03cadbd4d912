package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gigflow/contract"
	"gigflow/dispute"
	"gigflow/job"
	"gigflow/ledger"
	"gigflow/notify"
	"gigflow/proposal"
)

// Actors drive the real services concurrently. Domain rejections
// (ErrJobNotOpen, ErrAlreadyFunded, lost races on FOR UPDATE rows) are the
// expected noise of contention and are swallowed; only context cancellation
// stops an actor. The oracles decide afterwards whether the invariants held.

type Services struct {
	Jobs      *job.Service
	Proposals *proposal.Service
	Contracts *contract.Service
	Ledger    *ledger.Service
	Disputes  *dispute.Service
}

func pause(minMs, spreadMs int) {
	time.Sleep(time.Duration(minMs+rand.Intn(spreadMs)) * time.Millisecond)
}

func done(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Poster keeps fresh OPEN jobs flowing onto the board.
func Poster(ctx context.Context, svc *Services, clientID string, stop <-chan struct{}) error {
	for i := 0; ; i++ {
		if done(ctx, stop) {
			return nil
		}
		_, _ = svc.Jobs.Create(ctx, clientID, job.CreateParams{
			Title:       fmt.Sprintf("stress job %d-%d", rand.Int63(), i),
			Description: "generated under load",
			Category:    "stress",
			JobType:     job.TypeMilestone,
		})
		pause(150, 150)
	}
}

// Bidder submits bids from a pool of freelancers onto random OPEN jobs.
// Duplicate and late bids are expected to bounce.
func Bidder(ctx context.Context, pool *pgxpool.Pool, svc *Services, freelancerIDs []string, stop <-chan struct{}) error {
	for {
		if done(ctx, stop) {
			return nil
		}
		var jobID string
		err := pool.QueryRow(ctx, `SELECT id FROM jobs WHERE status='OPEN' ORDER BY random() LIMIT 1`).Scan(&jobID)
		if err == nil {
			freelancer := freelancerIDs[rand.Intn(len(freelancerIDs))]
			bid := int64(100 + rand.Intn(900))
			_, _ = svc.Proposals.Submit(ctx, freelancer, proposal.SubmitParams{
				JobID:       jobID,
				CoverLetter: "pick me",
				BidAmount:   decimal.NewFromInt(bid),
				Milestones: []proposal.MilestoneInput{
					{Title: "first half", Amount: decimal.NewFromInt(bid / 2)},
					{Title: "second half", Amount: decimal.NewFromInt(bid - bid/2)},
				},
			})
		}
		pause(10, 30)
	}
}

// Accepter races other Accepters to accept pending proposals. The job row
// lock guarantees at most one winner per job no matter how many run.
func Accepter(ctx context.Context, pool *pgxpool.Pool, svc *Services, clientID string, stop <-chan struct{}) error {
	for {
		if done(ctx, stop) {
			return nil
		}
		var proposalID string
		err := pool.QueryRow(ctx, `
SELECT p.id FROM proposals p
JOIN jobs j ON j.id = p.job_id
WHERE p.status IN ('PENDING','SHORTLISTED') AND j.status = 'OPEN'
ORDER BY random() LIMIT 1`).Scan(&proposalID)
		if err == nil {
			_, _ = svc.Proposals.Accept(ctx, proposalID, clientID)
		}
		pause(15, 35)
	}
}

// Funder charges and funds pending escrows on active contracts.
func Funder(ctx context.Context, pool *pgxpool.Pool, svc *Services, clientID string, stop <-chan struct{}) error {
	for {
		if done(ctx, stop) {
			return nil
		}
		var contractID string
		err := pool.QueryRow(ctx, `
SELECT c.id FROM contracts c
JOIN escrows e ON e.contract_id = c.id
WHERE c.status = 'ACTIVE' AND e.status = 'PENDING'
ORDER BY random() LIMIT 1`).Scan(&contractID)
		if err == nil {
			_, _ = svc.Ledger.FundEscrow(ctx, clientID, contractID, "card_stress")
		}
		pause(20, 40)
	}
}

// Worker plays the freelancer side: start pending milestones, submit the ones
// in progress.
func Worker(ctx context.Context, pool *pgxpool.Pool, svc *Services, stop <-chan struct{}) error {
	for {
		if done(ctx, stop) {
			return nil
		}
		var contractID, milestoneID, freelancerID, status string
		err := pool.QueryRow(ctx, `
SELECT m.contract_id, m.id, c.freelancer_id, m.status::text
FROM milestones m
JOIN contracts c ON c.id = m.contract_id
WHERE c.status = 'ACTIVE' AND m.status IN ('PENDING','IN_PROGRESS','REVISION_REQUESTED')
ORDER BY random() LIMIT 1`).Scan(&contractID, &milestoneID, &freelancerID, &status)
		if err == nil {
			switch status {
			case "PENDING":
				_, _ = svc.Contracts.StartMilestone(ctx, contractID, milestoneID, freelancerID)
			default:
				_, _ = svc.Contracts.SubmitMilestone(ctx, contractID, milestoneID, freelancerID, contract.SubmitDeliverableParams{
					Title: "work bundle",
				})
			}
		}
		pause(15, 35)
	}
}

// Approver plays the client side: approve submitted milestones, then release
// payment on approved ones. Approving the last milestone completes the
// contract inside the same transaction; releases against the completed
// contract must still succeed.
func Approver(ctx context.Context, pool *pgxpool.Pool, svc *Services, clientID string, stop <-chan struct{}) error {
	for {
		if done(ctx, stop) {
			return nil
		}
		var contractID, milestoneID, status string
		err := pool.QueryRow(ctx, `
SELECT m.contract_id, m.id, m.status::text
FROM milestones m
JOIN contracts c ON c.id = m.contract_id
JOIN escrows e ON e.contract_id = c.id
WHERE c.client_id = $1
  AND e.status IN ('FUNDED','PARTIALLY_RELEASED')
  AND m.status IN ('SUBMITTED','APPROVED')
ORDER BY random() LIMIT 1`, clientID).Scan(&contractID, &milestoneID, &status)
		if err == nil {
			if status == "SUBMITTED" {
				if rand.Intn(10) == 0 {
					_, _ = svc.Contracts.RequestRevision(ctx, contractID, milestoneID, clientID, "tighten it up")
				} else {
					_, _ = svc.Contracts.ApproveMilestone(ctx, contractID, milestoneID, clientID)
				}
			} else {
				_, _ = svc.Ledger.ReleaseMilestone(ctx, clientID, contractID, milestoneID)
			}
		}
		pause(20, 40)
	}
}

// OutboxWorker relays pending outbox rows through the dispatcher exactly as
// production does, against a publisher that occasionally fails.
func OutboxWorker(ctx context.Context, dispatcher *notify.Dispatcher, stop <-chan struct{}) error {
	for {
		if done(ctx, stop) {
			return nil
		}
		_ = dispatcher.DispatchPending(ctx)
		pause(80, 80)
	}
}

// Disputer opens disputes on random active contracts and resolves them back
// to ACTIVE, exercising the DISPUTED payment freeze both ways.
func Disputer(ctx context.Context, pool *pgxpool.Pool, svc *Services, stop <-chan struct{}) error {
	for {
		if done(ctx, stop) {
			return nil
		}
		var contractID, clientID string
		err := pool.QueryRow(ctx, `SELECT id, client_id FROM contracts WHERE status='ACTIVE' ORDER BY random() LIMIT 1`).Scan(&contractID, &clientID)
		if err == nil {
			if d, err := svc.Disputes.Open(ctx, clientID, contractID, "stress disagreement"); err == nil {
				pause(50, 100)
				_, _ = svc.Disputes.Resolve(ctx, d.ID, dispute.OutcomeResume)
			}
		}
		pause(200, 200)
	}
}
