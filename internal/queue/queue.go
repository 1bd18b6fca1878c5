// Package queue is the at-least-once work queue between the dispatcher and
// the workers. Deliveries stay in flight until acked; a delivery that is
// neither acked nor nacked before its visibility deadline is redelivered by
// Reap, and a task delivered too many times is moved to a dead-letter list.
package queue

import (
	"context"
	"errors"

	"github.com/sells-group/council-scraper/internal/model"
)

// ErrEmpty is returned by Receive when nothing is pending.
var ErrEmpty = errors.New("queue: empty")

// Publisher accepts new tasks.
type Publisher interface {
	Publish(ctx context.Context, task model.QueuedTask) error
}

// Consumer receives and settles tasks.
type Consumer interface {
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Nack returns the task for redelivery, or dead-letters it when it has
	// been delivered the maximum number of times. It reports which.
	Nack(ctx context.Context, d *Delivery) (deadLettered bool, err error)
	Reap(ctx context.Context) (int, error)
}

// Queue is a full work queue.
type Queue interface {
	Publisher
	Consumer
	DeadLetters(ctx context.Context) ([]model.QueuedTask, error)
	Requeue(ctx context.Context) (int, error)
	Depth(ctx context.Context) (Depth, error)
}

// Delivery is one received task.
type Delivery struct {
	Task model.QueuedTask
	// Attempt counts deliveries of this task, starting at 1.
	Attempt int

	payload string
}

// Depth is a snapshot of queue sizes.
type Depth struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Dead       int64 `json:"dead"`
}
