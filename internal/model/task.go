package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskOptions are per-task overrides set by the dispatcher.
type TaskOptions struct {
	Verbose bool     `json:"verbose,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// QueuedTask is one unit of dispatched work: scrape this council now.
type QueuedTask struct {
	ID         string      `json:"id"`
	Council    string      `json:"council_identifier"`
	Options    TaskOptions `json:"options"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// NewTask creates a task with a fresh id.
func NewTask(council string, opts TaskOptions) QueuedTask {
	return QueuedTask{
		ID:         uuid.New().String(),
		Council:    council,
		Options:    opts,
		EnqueuedAt: time.Now().UTC(),
	}
}
