// Package loop provides a serial event loop: tasks run one at a time on a
// single goroutine, in the order they were submitted.
package loop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Kaplaugher/vizume/internal/logging"
)

var log = logging.L("loop")

// ErrStopped is returned when a task is posted after StopAccepting or Drain.
var ErrStopped = errors.New("loop: not accepting tasks")

// Task is a unit of work run on the loop goroutine.
type Task func()

// Loop delivers tasks serially. The zero value is not usable; call New.
type Loop struct {
	name      string
	queue     chan Task
	wg        sync.WaitGroup
	mu        sync.RWMutex // guards sends against close(queue)
	accepting atomic.Bool
	closeOnce sync.Once
	exited    chan struct{}
}

// New starts a loop with a queue of queueSize pending tasks.
func New(name string, queueSize int) *Loop {
	if queueSize < 1 {
		queueSize = 1
	}

	l := &Loop{
		name:   name,
		queue:  make(chan Task, queueSize),
		exited: make(chan struct{}),
	}
	l.accepting.Store(true)

	go l.run()

	log.Debug("event loop started", "loop", name, "queueSize", queueSize)
	return l
}

// Post enqueues a task, blocking while the queue is full. It fails with
// ErrStopped after StopAccepting, or with the context error.
func (l *Loop) Post(ctx context.Context, task Task) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.accepting.Load() {
		return ErrStopped
	}

	// wg.Add before enqueue so Drain cannot miss the task.
	l.wg.Add(1)
	select {
	case l.queue <- task:
		return nil
	case <-ctx.Done():
		l.wg.Done()
		return ctx.Err()
	}
}

// StopAccepting prevents new tasks from being submitted.
func (l *Loop) StopAccepting() {
	l.accepting.Store(false)
}

// Drain stops accepting tasks and waits for queued ones to finish, respecting
// the context deadline. The loop goroutine exits once the queue is empty.
func (l *Loop) Drain(ctx context.Context) {
	l.StopAccepting()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("event loop drained", "loop", l.name)
	case <-ctx.Done():
		log.Warn("event loop drain timed out", "loop", l.name)
	}

	l.closeOnce.Do(func() {
		l.mu.Lock()
		close(l.queue)
		l.mu.Unlock()
	})
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.exited
}

func (l *Loop) run() {
	defer close(l.exited)
	for task := range l.queue {
		l.runTask(task)
	}
}

// runTask executes a single task with panic recovery. wg.Done matches the
// wg.Add in Post.
func (l *Loop) runTask(task Task) {
	defer l.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "loop", l.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
