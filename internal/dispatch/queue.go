package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/logging"
)

var (
	ErrQueueFull    = errors.New("dispatch queue full")
	ErrStopped      = errors.New("dispatch queue stopped")
	ErrTaskNotFound = errors.New("task not found")
)

const (
	queueDepth    = 100
	retainedTasks = 100
)

type entry struct {
	task     *Task
	fn       TaskFunc
	onCancel func()
}

// EnqueueOption configures a single task.
type EnqueueOption func(*entry)

// WithOnCancel registers f to run once if the task ends cancelled, whether
// it was still pending or already running.
func WithOnCancel(f func()) EnqueueOption {
	return func(e *entry) { e.onCancel = f }
}

// Queue runs tasks on a fixed pool of worker goroutines, off the caller's
// goroutine, and keeps the most recent tasks for inspection.
type Queue struct {
	mu      sync.RWMutex
	pending chan *entry
	cancels map[string]context.CancelFunc
	entries map[string]*entry // unfinished tasks
	tasks   map[string]*Task
	order   []string // creation order, oldest first
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

// NewQueue creates and starts a queue with the given number of workers
func NewQueue(workers int, logger *zap.SugaredLogger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		pending: make(chan *entry, queueDepth),
		cancels: make(map[string]context.CancelFunc),
		entries: make(map[string]*entry),
		tasks:   make(map[string]*Task),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.OrNop(logger),
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue registers a task and hands it to the workers
func (q *Queue) Enqueue(taskType TaskType, label string, fn TaskFunc, opts ...EnqueueOption) (*Task, error) {
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Label:     label,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, ErrStopped
	}

	e := &entry{task: task, fn: fn}
	for _, opt := range opts {
		opt(e)
	}

	select {
	case q.pending <- e:
	default:
		return nil, ErrQueueFull
	}

	q.entries[task.ID] = e
	q.tasks[task.ID] = task
	q.order = append(q.order, task.ID)
	q.prune()

	snapshot := *task
	return &snapshot, nil
}

// GetTask returns a copy of the task with the given ID
func (q *Queue) GetTask(id string) (*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	snapshot := *t
	return &snapshot, nil
}

// ListTasks returns retained tasks ordered by creation time (newest first)
func (q *Queue) ListTasks() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Task, 0, len(q.order))
	for i := len(q.order) - 1; i >= 0; i-- {
		snapshot := *q.tasks[q.order[i]]
		out = append(out, &snapshot)
	}
	return out
}

// CancelTask cancels a pending or running task. Finished tasks are left as is.
func (q *Queue) CancelTask(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	if cancelFn, ok := q.cancels[id]; ok {
		cancelFn()
		delete(q.cancels, id)
	}
	var hook func()
	if !t.Status.Finished() {
		hook = q.finish(t, StatusCancelled, "")
	}
	q.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Stop cancels running tasks and waits for the workers to exit
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case e := <-q.pending:
			q.process(e)
		}
	}
}

func (q *Queue) process(e *entry) {
	ctx, cancelFn := context.WithCancel(q.ctx)
	defer cancelFn()

	q.mu.Lock()
	// Skip if cancelled while pending
	if e.task.Status != StatusPending {
		q.mu.Unlock()
		return
	}
	now := time.Now()
	e.task.Status = StatusRunning
	e.task.StartedAt = &now
	q.cancels[e.task.ID] = cancelFn
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- e.fn(ctx)
	}()

	select {
	case <-ctx.Done():
		q.logger.Infow("task cancelled", "task", e.task.ID, "type", e.task.Type)
		var hook func()
		q.mu.Lock()
		if !e.task.Status.Finished() {
			hook = q.finish(e.task, StatusCancelled, "")
		}
		q.mu.Unlock()
		if hook != nil {
			hook()
		}
	case err := <-done:
		q.mu.Lock()
		if !e.task.Status.Finished() {
			if err != nil {
				q.finish(e.task, StatusFailed, err.Error())
				q.logger.Warnw("task failed", "task", e.task.ID, "type", e.task.Type, "error", err)
			} else {
				q.finish(e.task, StatusCompleted, "")
			}
		}
		q.mu.Unlock()
	}

	q.mu.Lock()
	delete(q.cancels, e.task.ID)
	q.mu.Unlock()
}

// finish must be called with q.mu held. It returns the cancel hook to run
// once the lock is released, if any.
func (q *Queue) finish(t *Task, status TaskStatus, errMsg string) func() {
	now := time.Now()
	t.Status = status
	t.Error = errMsg
	t.CompletedAt = &now

	e := q.entries[t.ID]
	delete(q.entries, t.ID)
	if status == StatusCancelled && e != nil {
		return e.onCancel
	}
	return nil
}

// prune drops the oldest finished tasks beyond the retention limit.
// Must be called with q.mu held.
func (q *Queue) prune() {
	excess := len(q.order) - retainedTasks
	if excess <= 0 {
		return
	}
	kept := q.order[:0]
	for _, id := range q.order {
		if excess > 0 && q.tasks[id].Status.Finished() {
			delete(q.tasks, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}
