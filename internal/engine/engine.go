// Package engine owns the in-memory fire queue and drives reminder fires.
//
// All queue mutations happen under a single mutex; the tick loop is the only
// goroutine that fires reminders, so two fires of the same reminder can never
// run concurrently. Notification delivery happens outside the lock and after
// the durable advance (write-before-fire).
package engine

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/store"
	"remindbot/pkg/logx"
)

// Delivery is one outbound notification request.
type Delivery struct {
	Reminder *store.Reminder
	// AlarmRepeat marks a repeat fire of a sounding alarm, which is worded
	// differently from the reminder itself.
	AlarmRepeat bool
}

// Deliverer hands a fired notification to the chat transport. Delivery is
// best-effort: an error is logged and the schedule still advances.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Config controls the engine.
type Config struct {
	// Tick is the wake granularity of the scheduling loop.
	Tick time.Duration
	// AlarmInterval is the default repeat interval for alarms whose
	// record does not carry its own.
	AlarmInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.AlarmInterval <= 0 {
		c.AlarmInterval = 5 * time.Minute
	}
	return c
}

// Engine schedules pending reminders and fires the due ones.
type Engine struct {
	cfg     Config
	clk     clock.Clock
	store   store.Store
	deliver Deliverer
	log     logx.Logger

	mu      sync.Mutex
	q       fireQueue
	entries map[entryKey]*entry

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a stopped engine. The clock is injected so tests can drive
// time deterministically.
func New(cfg Config, st store.Store, d Deliverer, clk clock.Clock, log logx.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		clk:     clk,
		store:   st,
		deliver: d,
		log:     log,
		entries: map[entryKey]*entry{},
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the scheduling loop.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopCh != nil {
		e.mu.Unlock()
		return
	}
	e.stopCh = make(chan struct{})
	stop := e.stopCh
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop(ctx, stop)
	e.log.Info("engine started", logx.Duration("tick", e.cfg.Tick))
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	close(e.stopCh)
	e.stopCh = nil
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info("engine stopped")
}

func (e *Engine) loop(ctx context.Context, stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := e.clk.Ticker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			e.Tick(ctx)
		case <-e.wake:
			e.Tick(ctx)
		}
	}
}

// poke triggers an immediate check without waiting for the next tick.
// Non-blocking if one is already pending.
func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Schedule enqueues the reminder's pending occurrence. Reminders without a
// next fire instant are ignored (terminal, or dormant cron).
func (e *Engine) Schedule(r *store.Reminder) {
	if r == nil || r.NextFireAt == nil {
		return
	}
	e.mu.Lock()
	e.upsertLocked(&entry{id: r.ID, at: *r.NextFireAt})
	e.mu.Unlock()
	e.poke()
}

// Cancel removes every pending occurrence of the reminder. Cancelling an id
// with nothing queued is a no-op, which makes cancellation idempotent
// against a reminder that fired or was removed concurrently.
func (e *Engine) Cancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(entryKey{id: id})
	e.removeLocked(entryKey{id: id, repeat: true})
}

// upsertLocked inserts the entry, replacing a queued occurrence of the same
// kind for the same reminder.
func (e *Engine) upsertLocked(n *entry) {
	e.removeLocked(n.key())
	e.entries[n.key()] = n
	heap.Push(&e.q, n)
}

func (e *Engine) removeLocked(k entryKey) {
	if old, ok := e.entries[k]; ok {
		e.q.remove(old)
		delete(e.entries, k)
	}
}

// popDueLocked removes and returns every entry due at or before now.
func (e *Engine) popDueLocked(now time.Time) []*entry {
	var due []*entry
	for {
		head := e.q.peek()
		if head == nil || head.at.After(now) {
			return due
		}
		heap.Pop(&e.q)
		delete(e.entries, head.key())
		due = append(due, head)
	}
}

// Pending returns the number of queued occurrences.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.q)
}

// PendingAt reports the queued fire time for a reminder's occurrence.
func (e *Engine) PendingAt(id string, repeat bool) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if en, ok := e.entries[entryKey{id: id, repeat: repeat}]; ok {
		return en.at, true
	}
	return time.Time{}, false
}
