package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list notifications are queued on.
const DefaultQueueKey = "giftdrive:notify"

// Envelope wraps a queued event with its delivery history.
type Envelope struct {
	Event      domain.ClaimEvent `json:"event"`
	Attempts   int               `json:"attempts"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	LastError  string            `json:"last_error,omitempty"`
	// Sent lists the templates already delivered for Event. A retry skips
	// them so a recipient is mailed once even when another part fails.
	Sent []string `json:"sent,omitempty"`
}

// promoteScript moves up to ARGV[2] members of the retry set whose score is
// at most ARGV[1] onto the queue list.
var promoteScript = redis.NewScript(`
	local due = redis.call("zrangebyscore", KEYS[1], "-inf", ARGV[1], "limit", 0, ARGV[2])
	for _, v in ipairs(due) do
		redis.call("zrem", KEYS[1], v)
		redis.call("lpush", KEYS[2], v)
	end
	return #due
`)

// Queue is a FIFO of envelopes on a Redis list: LPUSH to enqueue, BRPOP
// to dequeue. Failed envelopes wait in a sorted set scored by their retry
// time until PromoteDue puts them back on the list.
type Queue struct {
	rdb *redis.Client
	key string
}

// NewQueue returns a queue on key, or DefaultQueueKey if key is empty.
func NewQueue(rdb *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{rdb: rdb, key: key}
}

// Key returns the list name.
func (q *Queue) Key() string { return q.key }

// DeadKey returns the dead-letter list name.
func (q *Queue) DeadKey() string { return q.key + ":dead" }

// RetryKey returns the sorted set of envelopes waiting to be retried.
func (q *Queue) RetryKey() string { return q.key + ":retry" }

// Push appends env to the queue.
func (q *Queue) Push(ctx context.Context, env Envelope) error {
	return q.push(ctx, q.key, env)
}

// Bury moves env to the dead-letter list.
func (q *Queue) Bury(ctx context.Context, env Envelope) error {
	return q.push(ctx, q.DeadKey(), env)
}

// Defer schedules env to rejoin the queue once due has passed.
func (q *Queue) Defer(ctx context.Context, env Envelope, due time.Time) error {
	b, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	z := redis.Z{Score: float64(due.UnixMilli()), Member: b}
	if err := q.rdb.ZAdd(ctx, q.RetryKey(), z).Err(); err != nil {
		return fmt.Errorf("defer %s: %w", q.RetryKey(), err)
	}
	return nil
}

// PromoteDue moves at most limit envelopes whose retry time is at or before
// now back onto the queue. It returns how many were moved.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time, limit int) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb, []string{q.RetryKey(), q.key}, now.UnixMilli(), limit).Int()
	if err != nil {
		return 0, fmt.Errorf("promote %s: %w", q.RetryKey(), err)
	}
	return n, nil
}

// Waiting reports the number of envelopes scheduled for a retry.
func (q *Queue) Waiting(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.RetryKey()).Result()
}

func (q *Queue) push(ctx context.Context, key string, env Envelope) error {
	b, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Pop waits up to timeout for the oldest envelope. It returns nil, nil
// when the wait times out with the queue still empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", q.key, err)
	}
	// res is [key, value].
	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		// BRPOP already removed it; keep the raw payload for inspection.
		if derr := q.rdb.LPush(ctx, q.DeadKey(), res[1]).Err(); derr != nil {
			return nil, fmt.Errorf("decode envelope: %w (dead-letter failed: %v)", err, derr)
		}
		return nil, fmt.Errorf("decode envelope, moved to %s: %w", q.DeadKey(), err)
	}
	return &env, nil
}

// Len reports the number of queued envelopes.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
