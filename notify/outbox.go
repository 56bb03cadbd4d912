package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Topics published by the core. Downstream consumers fan these out to email,
// push, and the in-app notification feed.
const (
	TopicProposalSubmitted = "proposal.submitted"
	TopicProposalAccepted  = "proposal.accepted"
	TopicEscrowFunded      = "payment.escrow_funded"
	TopicPaymentReleased   = "payment.released"
	TopicRevisionRequested = "milestone.revision_requested"
	TopicContractCompleted = "contract.completed"
	TopicReviewReceived    = "review.received"
	TopicDisputeOpened     = "dispute.opened"
	TopicDisputeResolved   = "dispute.resolved"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
	SentAt    *time.Time
}

// Enqueue appends a message to the outbox inside the caller's transaction so
// the notification commits or rolls back with the state change it describes.
// Delivery happens later via the Dispatcher and can never affect the caller.
func Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("notify: enqueue outbox: %w", err)
	}
	return nil
}
