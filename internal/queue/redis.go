package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/model"
)

// Options configures a RedisQueue.
type Options struct {
	// Namespace prefixes every key. Default: "councils".
	Namespace string
	// VisibilityTimeout is how long a delivery may stay unsettled before
	// Reap hands it out again. Default: 15m.
	VisibilityTimeout time.Duration
	// MaxDeliveries is the number of deliveries after which a failing task
	// is dead-lettered. Default: 3.
	MaxDeliveries int
}

// RedisQueue implements Queue on Redis lists.
//
// Keys, for namespace ns:
//
//	ns:pending     list of task payloads waiting for a worker
//	ns:processing  list of payloads currently delivered
//	ns:inflight    zset of delivered payloads scored by visibility deadline
//	ns:deliveries  hash of task id to delivery count
//	ns:dead        list of dead-lettered payloads
type RedisQueue struct {
	rdb  redis.UniversalClient
	opts Options
	now  func() time.Time
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue over rdb.
func NewRedisQueue(rdb redis.UniversalClient, opts Options) *RedisQueue {
	if opts.Namespace == "" {
		opts.Namespace = "councils"
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 15 * time.Minute
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 3
	}
	return &RedisQueue{rdb: rdb, opts: opts, now: time.Now}
}

func (q *RedisQueue) key(name string) string {
	return q.opts.Namespace + ":" + name
}

// Ping verifies Redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Publish implements Publisher.
func (q *RedisQueue) Publish(ctx context.Context, task model.QueuedTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "queue: marshal task")
	}
	if err := q.rdb.LPush(ctx, q.key("pending"), payload).Err(); err != nil {
		return eris.Wrapf(err, "queue: publish %s", task.Council)
	}
	return nil
}

// receiveScript moves the oldest pending payload into flight, sets its
// visibility deadline and bumps its delivery count in one step, so a task
// is never in processing without an inflight score.
//
// KEYS: pending, processing, inflight, deliveries. ARGV: deadline (ms).
// Returns {payload, deliveries}; deliveries is 0 for an undecodable payload.
var receiveScript = redis.NewScript(`
local payload = redis.call('LMOVE', KEYS[1], KEYS[2], 'RIGHT', 'LEFT')
if not payload then
  return false
end
redis.call('ZADD', KEYS[3], ARGV[1], payload)
local ok, task = pcall(cjson.decode, payload)
if not ok or type(task) ~= 'table' or type(task['id']) ~= 'string' then
  return {payload, 0}
end
local n = redis.call('HINCRBY', KEYS[4], task['id'], 1)
return {payload, n}
`)

// Receive moves the oldest pending task into flight. It returns ErrEmpty
// when nothing is pending.
func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	deadline := q.now().Add(q.opts.VisibilityTimeout).UnixMilli()
	keys := []string{q.key("pending"), q.key("processing"), q.key("inflight"), q.key("deliveries")}

	res, err := receiveScript.Run(ctx, q.rdb, keys, deadline).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: receive")
	}
	if len(res) != 2 {
		return nil, eris.Errorf("queue: receive: unexpected reply %v", res)
	}
	payload, _ := res[0].(string)
	attempts, _ := res[1].(int64)

	var task model.QueuedTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil || attempts == 0 {
		if err == nil {
			err = errors.New("task has no id")
		}
		// A payload that cannot be decoded will never succeed.
		if dlErr := q.release(ctx, payload, "", true); dlErr != nil {
			zap.L().Error("queue: failed to dead-letter undecodable payload", zap.Error(dlErr))
		}
		return nil, eris.Wrap(err, "queue: decode task")
	}

	return &Delivery{Task: task, Attempt: int(attempts), payload: payload}, nil
}

// Ack settles a delivery as done.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("processing"), 1, d.payload)
		pipe.ZRem(ctx, q.key("inflight"), d.payload)
		pipe.HDel(ctx, q.key("deliveries"), d.Task.ID)
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "queue: ack %s", d.Task.ID)
	}
	return nil
}

// Nack implements Consumer.
func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) (bool, error) {
	dead := d.Attempt >= q.opts.MaxDeliveries
	if err := q.release(ctx, d.payload, d.Task.ID, dead); err != nil {
		return false, eris.Wrapf(err, "queue: nack %s", d.Task.ID)
	}
	return dead, nil
}

// release takes payload out of flight and either requeues or dead-letters it.
func (q *RedisQueue) release(ctx context.Context, payload, id string, dead bool) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("processing"), 1, payload)
		pipe.ZRem(ctx, q.key("inflight"), payload)
		if dead {
			if id != "" {
				pipe.HDel(ctx, q.key("deliveries"), id)
			}
			pipe.LPush(ctx, q.key("dead"), payload)
		} else {
			pipe.LPush(ctx, q.key("pending"), payload)
		}
		return nil
	})
	return err
}

// Reap redelivers every in-flight task whose visibility deadline has
// passed, dead-lettering those already delivered MaxDeliveries times. It
// returns how many tasks it released.
func (q *RedisQueue) Reap(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(q.now().UnixMilli(), 10)
	expired, err := q.rdb.ZRangeByScore(ctx, q.key("inflight"), &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, eris.Wrap(err, "queue: list expired")
	}

	reaped := 0
	for _, payload := range expired {
		var task model.QueuedTask
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			zap.L().Warn("queue: dead-lettering undecodable in-flight payload", zap.Error(err))
			if err := q.release(ctx, payload, "", true); err != nil {
				return reaped, eris.Wrap(err, "queue: reap undecodable payload")
			}
			continue
		}

		n, err := q.rdb.HGet(ctx, q.key("deliveries"), task.ID).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return reaped, eris.Wrapf(err, "queue: delivery count %s", task.ID)
		}
		dead := n >= q.opts.MaxDeliveries
		if err := q.release(ctx, payload, task.ID, dead); err != nil {
			return reaped, eris.Wrapf(err, "queue: reap %s", task.ID)
		}
		zap.L().Warn("queue: visibility timeout expired",
			zap.String("task_id", task.ID),
			zap.String("council", task.Council),
			zap.Int("deliveries", n),
			zap.Bool("dead_lettered", dead),
		)
		reaped++
	}
	return reaped, nil
}

// DeadLetters lists dead-lettered tasks, oldest first.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]model.QueuedTask, error) {
	payloads, err := q.rdb.LRange(ctx, q.key("dead"), 0, -1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "queue: list dead letters")
	}

	tasks := make([]model.QueuedTask, 0, len(payloads))
	for i := len(payloads) - 1; i >= 0; i-- {
		var task model.QueuedTask
		if err := json.Unmarshal([]byte(payloads[i]), &task); err != nil {
			zap.L().Warn("queue: undecodable dead letter", zap.Error(err))
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Requeue moves every dead-lettered task back to pending with a fresh
// delivery count. It returns how many were moved.
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		payload, err := q.rdb.LMove(ctx, q.key("dead"), q.key("pending"), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, eris.Wrap(err, "queue: requeue")
		}
		var task model.QueuedTask
		if json.Unmarshal([]byte(payload), &task) == nil {
			q.rdb.HDel(ctx, q.key("deliveries"), task.ID)
		}
		moved++
	}
}

// Depth implements Queue.
func (q *RedisQueue) Depth(ctx context.Context) (Depth, error) {
	var pending, processing, dead *redis.IntCmd
	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, q.key("pending"))
		processing = pipe.LLen(ctx, q.key("processing"))
		dead = pipe.LLen(ctx, q.key("dead"))
		return nil
	})
	if err != nil {
		return Depth{}, eris.Wrap(err, "queue: depth")
	}
	return Depth{Pending: pending.Val(), Processing: processing.Val(), Dead: dead.Val()}, nil
}
