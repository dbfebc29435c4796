package risk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReviewRecord is enqueued whenever the gate returns ManualReview. An
// operator or downstream automation resolves it by calling the
// orchestrator's resolve-review entrypoint with the swap ID and decision.
type ReviewRecord struct {
	SwapID         uuid.UUID       `json:"swap_id"`
	UserID         uuid.UUID       `json:"user_id"`
	RiskScore      float64         `json:"risk_score"`
	Priority       float64         `json:"priority"`
	Reason         string          `json:"reason"`
	ContextSnapshot json.RawMessage `json:"context_snapshot"`
}

// ReviewQueue is the external collaborator the gate enqueues onto: enqueue,
// dequeue, and mark-decided, nothing more.
type ReviewQueue interface {
	Enqueue(ctx context.Context, record ReviewRecord) error
	Dequeue(ctx context.Context) (*ReviewRecord, error)
	MarkDecided(ctx context.Context, swapID uuid.UUID) error
}

const reviewQueueKey = "bridge:review_queue"

// redisReviewQueue is a ReviewQueue backed by a Redis sorted set, scored by
// priority so the highest-priority review is always dequeued first.
type redisReviewQueue struct {
	client *redis.Client
}

// NewRedisReviewQueue returns a ReviewQueue backed by client.
func NewRedisReviewQueue(client *redis.Client) ReviewQueue {
	return &redisReviewQueue{client: client}
}

func (q *redisReviewQueue) Enqueue(ctx context.Context, record ReviewRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("risk: encode review record: %w", err)
	}
	return q.client.ZAdd(ctx, reviewQueueKey, redis.Z{
		Score:  record.Priority,
		Member: payload,
	}).Err()
}

// Dequeue pops the highest-priority pending review, or nil if the queue is
// empty.
func (q *redisReviewQueue) Dequeue(ctx context.Context) (*ReviewRecord, error) {
	results, err := q.client.ZPopMax(ctx, reviewQueueKey, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("risk: dequeue review: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	member, ok := results[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("risk: review queue member was not a string")
	}

	var record ReviewRecord
	if err := json.Unmarshal([]byte(member), &record); err != nil {
		return nil, fmt.Errorf("risk: decode review record: %w", err)
	}
	return &record, nil
}

// MarkDecided removes swapID's pending review entry, if still present (a
// review already dequeued and acted on is a no-op here).
func (q *redisReviewQueue) MarkDecided(ctx context.Context, swapID uuid.UUID) error {
	members, err := q.client.ZRange(ctx, reviewQueueKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("risk: list review queue: %w", err)
	}
	for _, m := range members {
		var record ReviewRecord
		if err := json.Unmarshal([]byte(m), &record); err != nil {
			continue
		}
		if record.SwapID == swapID {
			return q.client.ZRem(ctx, reviewQueueKey, m).Err()
		}
	}
	return nil
}
