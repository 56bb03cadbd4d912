package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gigflow/metrics"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 50
	maxAttempts         = 5
	dedupeTTL           = time.Hour
)

// Dispatcher relays pending outbox rows to the publisher. Dispatch is
// at-most-once per attempt window: a Redis SETNX claim on the outbox id keeps
// a second dispatcher instance from double-publishing the same row.
type Dispatcher struct {
	pool      *pgxpool.Pool
	publisher Publisher
	rdb       *redis.Client
	logger    *zap.Logger

	PollInterval time.Duration
	BatchSize    int
}

func NewDispatcher(pool *pgxpool.Pool, publisher Publisher, rdb *redis.Client, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		pool:         pool,
		publisher:    publisher,
		rdb:          rdb,
		logger:       logger,
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
	}
}

// Run polls until ctx is cancelled. Errors on individual messages are logged
// and counted; they never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(d.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := d.DispatchPending(ctx); err != nil {
					d.logger.Error("outbox dispatch pass failed", zap.Error(err))
				}
			}
		}
	})
	return g.Wait()
}

// DispatchPending publishes one batch of pending messages.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	msgs, err := d.loadPending(ctx)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		claimed, err := d.claim(ctx, msg.ID)
		if err != nil {
			d.logger.Warn("outbox claim failed", zap.String("outbox_id", msg.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		if err := d.publisher.Publish(msg.Topic, msg.Payload); err != nil {
			metrics.RecordOutboxDispatch(msg.Topic, "failed", msg.CreatedAt)
			d.logger.Warn("outbox publish failed",
				zap.String("outbox_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err),
			)
			if err := d.markFailed(ctx, msg); err != nil {
				d.logger.Error("outbox mark failed", zap.String("outbox_id", msg.ID), zap.Error(err))
			}
			continue
		}

		metrics.RecordOutboxDispatch(msg.Topic, "sent", msg.CreatedAt)
		if err := d.markSent(ctx, msg.ID); err != nil {
			d.logger.Error("outbox mark sent", zap.String("outbox_id", msg.ID), zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) loadPending(ctx context.Context) ([]Message, error) {
	const query = `
SELECT id, topic, payload, status, attempts, created_at, sent_at
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
`
	rows, err := d.pool.Query(ctx, query, d.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("notify: load pending: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, d.BatchSize)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt, &m.SentAt); err != nil {
			return nil, fmt.Errorf("notify: scan outbox row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate outbox: %w", err)
	}
	return msgs, nil
}

// claim reserves the message for this dispatcher instance. Without Redis the
// single-instance deployment claims everything.
func (d *Dispatcher) claim(ctx context.Context, outboxID string) (bool, error) {
	if d.rdb == nil {
		return true, nil
	}
	return d.rdb.SetNX(ctx, "outbox:claim:"+outboxID, 1, dedupeTTL).Result()
}

func (d *Dispatcher) markSent(ctx context.Context, outboxID string) error {
	const query = `
UPDATE outbox
SET status = 'sent', attempts = attempts + 1, sent_at = now()
WHERE id = $1
`
	_, err := d.pool.Exec(ctx, query, outboxID)
	return err
}

func (d *Dispatcher) markFailed(ctx context.Context, msg Message) error {
	status := "pending"
	if msg.Attempts+1 >= maxAttempts {
		status = "failed"
	}
	const query = `
UPDATE outbox
SET status = $2, attempts = attempts + 1
WHERE id = $1
`
	_, err := d.pool.Exec(ctx, query, msg.ID, status)
	if err == nil && d.rdb != nil && status == "pending" {
		// release the claim so a retry pass can pick it up
		d.rdb.Del(ctx, "outbox:claim:"+msg.ID)
	}
	return err
}
