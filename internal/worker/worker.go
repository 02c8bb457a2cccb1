// Package worker abstracts background task execution. Call sites submit
// named tasks and never care whether they run inline (tests), on a
// goroutine (single instance), or through a Redis queue (multi-instance).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"vixogram/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Task is a unit of background work. Payload must be JSON-serializable for
// queue-backed workers.
type Task struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Handler executes one task. Errors are logged, never retried by the
// worker itself; handlers that need retries wrap themselves.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker accepts tasks for asynchronous execution.
type Worker interface {
	Submit(ctx context.Context, name string, payload interface{}) error
	Register(name string, h Handler)
	Shutdown(ctx context.Context) error
}

var ErrUnknownTask = errors.New("worker: no handler registered for task")

type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func (r *registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]Handler)
	}
	r.handlers[name] = h
}

func (r *registry) dispatch(ctx context.Context, t Task) error {
	r.mu.RLock()
	h, ok := r.handlers[t.Name]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownTask
	}
	defer func() {
		if rec := recover(); rec != nil {
			observability.Logger.Error("task panicked",
				slog.String("task", t.Name),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	if err := h(ctx, t.Payload); err != nil {
		observability.Logger.Warn("task failed",
			slog.String("task", t.Name),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func encode(name string, payload interface{}) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}
	return Task{Name: name, Payload: raw}, nil
}

// Inline runs tasks synchronously in the caller. For tests.
type Inline struct {
	registry
}

func NewInline() *Inline { return &Inline{} }

func (w *Inline) Submit(ctx context.Context, name string, payload interface{}) error {
	t, err := encode(name, payload)
	if err != nil {
		return err
	}
	return w.dispatch(ctx, t)
}

func (w *Inline) Shutdown(context.Context) error { return nil }

// Pool runs tasks on a bounded goroutine pool. Used when no broker is
// configured.
type Pool struct {
	registry
	tasks chan Task
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts n consumer goroutines with a buffered queue.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{tasks: make(chan Task, 256)}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				_ = p.dispatch(context.Background(), t)
			}
		}()
	}
	return p
}

func (w *Pool) Submit(_ context.Context, name string, payload interface{}) error {
	t, err := encode(name, payload)
	if err != nil {
		return err
	}
	select {
	case w.tasks <- t:
		return nil
	default:
		return errors.New("worker: queue full")
	}
}

func (w *Pool) Shutdown(ctx context.Context) error {
	w.once.Do(func() { close(w.tasks) })
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const queueKey = "worker:tasks"

// Queue pushes tasks into a Redis list consumed by every instance. The
// consumer loop starts on Run and stops with its context.
type Queue struct {
	registry
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (w *Queue) Submit(ctx context.Context, name string, payload interface{}) error {
	t, err := encode(name, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return w.rdb.LPush(ctx, queueKey, data).Err()
}

// Run consumes tasks until ctx is cancelled. Call it once per instance.
func (w *Queue) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := w.rdb.BRPop(ctx, time.Second, queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			observability.Logger.Warn("worker queue pop failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			observability.Logger.Warn("worker: malformed task", slog.String("error", err.Error()))
			continue
		}
		_ = w.dispatch(ctx, t)
	}
}

func (w *Queue) Shutdown(context.Context) error { return nil }
