// Package queue holds the durable retry queue: mutations that failed to
// reach the remote store (or were issued offline) wait here until a drain
// pass replays them.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	"driftboard/internal/model"

	"github.com/google/uuid"
)

const DefaultMaxRetries = 5

// Persister is the durable backing for queue items. The store implements it;
// items must survive process restarts or offline mutations silently vanish.
type Persister interface {
	AppendRetryItem(model.RetryItem) error
	UpdateRetryItem(model.RetryItem) error
	DeleteRetryItem(id string) error
	LoadRetryItems() ([]model.RetryItem, error)
}

// RetryQueue is a FIFO of pending mutations. Drains follow a
// snapshot-then-clear discipline so an item is never simultaneously
// "in flight" and "re-enqueued".
type RetryQueue struct {
	mu         sync.Mutex
	items      []model.RetryItem
	persist    Persister
	maxRetries int

	// onDrop fires when an item exhausts its retries and is dropped. Data
	// loss at this point is real and must be surfaced, not hidden.
	onDrop func(model.RetryItem)
}

func New(persist Persister, maxRetries int, onDrop func(model.RetryItem)) (*RetryQueue, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	q := &RetryQueue{persist: persist, maxRetries: maxRetries, onDrop: onDrop}
	if persist != nil {
		items, err := persist.LoadRetryItems()
		if err != nil {
			return nil, err
		}
		q.items = items
	}
	return q, nil
}

// Enqueue appends a new pending mutation. payload is marshalled once so the
// queued copy cannot alias caller state.
func (q *RetryQueue) Enqueue(entity model.EntityType, op model.Operation, projectID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	it := model.RetryItem{
		ID:         uuid.NewString(),
		EntityType: entity,
		Operation:  op,
		Payload:    raw,
		ProjectID:  projectID,
		CreatedAt:  time.Now().UTC(),
	}
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	if q.persist != nil {
		return q.persist.AppendRetryItem(it)
	}
	return nil
}

func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the pending items, oldest first.
func (q *RetryQueue) Items() []model.RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.RetryItem{}, q.items...)
}

// BeginDrain snapshots the live queue and clears it. Durable rows stay put
// until Resolve or Retry decides each item's fate, so a crash mid-drain
// loses nothing.
func (q *RetryQueue) BeginDrain() []model.RetryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := q.items
	q.items = nil
	return snap
}

// Resolve marks an item successfully replayed and removes its durable row.
func (q *RetryQueue) Resolve(it model.RetryItem) error {
	if q.persist != nil {
		return q.persist.DeleteRetryItem(it.ID)
	}
	return nil
}

// Retry handles a failed replay: the item is re-enqueued with a bumped
// retry count unless it has exhausted maxRetries, in which case it is
// dropped for good and onDrop fires.
func (q *RetryQueue) Retry(it model.RetryItem) (requeued bool, err error) {
	it.RetryCount++
	if it.RetryCount >= q.maxRetries {
		if q.persist != nil {
			err = q.persist.DeleteRetryItem(it.ID)
		}
		if q.onDrop != nil {
			q.onDrop(it)
		}
		return false, err
	}
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	if q.persist != nil {
		err = q.persist.UpdateRetryItem(it)
	}
	return true, err
}

// MaxRetries returns the configured retry ceiling.
func (q *RetryQueue) MaxRetries() int { return q.maxRetries }
