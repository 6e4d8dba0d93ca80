package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"
)

// Action mirrors the change-feed verbs exposed to clients.
type Action string

const (
	ActionCreate Action = "onCreate"
	ActionUpdate Action = "onUpdate"
	ActionDelete Action = "onDelete"
)

// Model names used in change events.
const (
	ModelLedgerEntry               = "LedgerEntry"
	ModelCurrentAccountTransaction = "CurrentAccountTransaction"
	ModelAccountStatus             = "AccountStatus"
)

// ChangeEvent is the envelope published for every ledger mutation.
// Clients recompute derived balances whenever one arrives.
type ChangeEvent struct {
	Action Action          `json:"action"`
	Model  string          `json:"model"`
	Owner  string          `json:"owner"`
	Item   json.RawMessage `json:"item,omitempty"`
}

// Publisher fans mutations out over redis pub/sub, one channel per
// owner. A nil redis client makes every publish a no-op so flows never
// fail because the feed is down.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{redis: rdb}
}

// Channel returns the pub/sub channel carrying one owner's events.
func Channel(owner string) string {
	return "changefeed:" + owner
}

// Publish emits a change event for the given owner. Failures are logged
// and swallowed; the feed is advisory and never blocks a write.
func (p *Publisher) Publish(ctx context.Context, action Action, model, owner string, item any) {
	if p == nil || p.redis == nil {
		return
	}

	raw, err := json.Marshal(item)
	if err != nil {
		log.Printf("[EVENTS] Failed to marshal %s item: %v", model, err)
		return
	}

	payload, err := json.Marshal(ChangeEvent{
		Action: action,
		Model:  model,
		Owner:  owner,
		Item:   raw,
	})
	if err != nil {
		log.Printf("[EVENTS] Failed to marshal event envelope: %v", err)
		return
	}

	if err := p.redis.Publish(ctx, Channel(owner), payload).Err(); err != nil {
		log.Printf("[EVENTS] Failed to publish %s %s for owner %s: %v", action, model, owner, err)
	}
}
