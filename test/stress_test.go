package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"gigflow/contract"
	"gigflow/dispute"
	"gigflow/gateway"
	"gigflow/job"
	"gigflow/ledger"
	"gigflow/notify"
	"gigflow/profile"
	"gigflow/proposal"
	"gigflow/test/actors"
	"gigflow/test/chaos"
	"gigflow/test/infra"
	"gigflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors per role")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// flakyPublisher drops roughly one publish in ten to force the dispatcher
// through its retry path.
type flakyPublisher struct{}

var _ notify.Publisher = flakyPublisher{}

func (flakyPublisher) Publish(topic string, body []byte) error {
	if rand.Intn(10) == 0 {
		return fmt.Errorf("synthetic publish failure for %s", topic)
	}
	return nil
}

func (flakyPublisher) Close() {}

func TestMarketplaceConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("GIGFLOW_TEST_PG_DSN") != "":
		dsn = os.Getenv("GIGFLOW_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no docker and no local postgres: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	profiles := profile.NewRepository(pool)
	svc := &actors.Services{
		Jobs:      job.NewService(pool, nil),
		Proposals: proposal.NewService(pool, nil),
		Contracts: contract.NewService(pool, profiles, nil),
		Ledger:    ledger.NewService(pool, gateway.Simulated{}, ledger.DefaultFeePolicy(), nil),
		Disputes:  dispute.NewService(pool, nil),
	}
	dispatcher := notify.NewDispatcher(pool, flakyPublisher{}, nil, nil)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	g.Go(func() error { return actors.Poster(ctx2, svc, seedData.clientID, stop) })
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Bidder(ctx2, pool, svc, seedData.freelancerIDs, stop) })
		g.Go(func() error { return actors.Accepter(ctx2, pool, svc, seedData.clientID, stop) })
	}
	g.Go(func() error { return actors.Funder(ctx2, pool, svc, seedData.clientID, stop) })
	g.Go(func() error { return actors.Worker(ctx2, pool, svc, stop) })
	g.Go(func() error { return actors.Worker(ctx2, pool, svc, stop) })
	g.Go(func() error { return actors.Approver(ctx2, pool, svc, seedData.clientID, stop) })
	g.Go(func() error { return actors.OutboxWorker(ctx2, dispatcher, stop) })
	g.Go(func() error { return actors.Disputer(ctx2, pool, svc, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	clientID      string
	freelancerIDs []string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs

	newUser := func(role string) string {
		var id string
		err := pool.QueryRow(ctx,
			`INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3) RETURNING id`,
			fmt.Sprintf("u%d@example.com", rand.Int63()), "Stress User", role,
		).Scan(&id)
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, id); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
		return id
	}

	s.clientID = newUser("client")
	for i := 0; i < 6; i++ {
		s.freelancerIDs = append(s.freelancerIDs, newUser("freelancer"))
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"contracts", `SELECT id, job_id, status, total_amount, paid_amount FROM contracts ORDER BY created_at DESC LIMIT 50`},
		{"milestones", `SELECT id, contract_id, status, amount FROM milestones ORDER BY id DESC LIMIT 50`},
		{"escrows", `SELECT id, contract_id, status, held_amount, released_amount FROM escrows ORDER BY id DESC LIMIT 50`},
		{"transactions", `SELECT id, user_id, type, status, amount, fee FROM transactions ORDER BY created_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
