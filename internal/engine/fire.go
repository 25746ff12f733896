package engine

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/store"
	"remindbot/pkg/logx"
)

// Tick fires every occurrence due at or before the injected clock's now.
// The loop calls it once per wake; tests call it directly after advancing
// the mock clock.
func (e *Engine) Tick(ctx context.Context) {
	now := e.clk.Now()

	e.mu.Lock()
	due := e.popDueLocked(now)
	e.mu.Unlock()

	for _, en := range due {
		e.fire(ctx, en, now)
	}
}

func (e *Engine) fire(ctx context.Context, en *entry, now time.Time) {
	r, err := e.store.Get(ctx, en.id)
	if errors.Is(err, store.ErrNotFound) {
		// Cancelled while queued.
		return
	}
	if err != nil {
		// Transient read failure: keep the occurrence and try again on
		// the next wake.
		e.log.Warn("reminder load failed, keeping occurrence queued",
			logx.String("id", en.id), logx.Err(err))
		e.mu.Lock()
		e.upsertLocked(en)
		e.mu.Unlock()
		return
	}

	if en.repeat {
		e.fireAlarmRepeat(ctx, r, now)
		return
	}
	e.fireNormal(ctx, r, en, now)
}

// fireNormal handles one due occurrence of the reminder's own schedule:
// persist the advance, re-enqueue, then deliver. If the engine woke late
// the occurrence still fires exactly once and the follow-up is the next
// occurrence strictly after now, never a replay of the backlog.
func (e *Engine) fireNormal(ctx context.Context, r *store.Reminder, en *entry, now time.Time) {
	spec, err := r.Spec()
	if err != nil {
		e.log.Error("stored recurrence is unreadable, parking reminder",
			logx.String("id", r.ID), logx.Err(err))
		return
	}

	var next *time.Time
	if spec.Recurs() {
		if n := spec.NextAfter(en.at, now, r.Location()); !n.IsZero() {
			next = &n
		}
	}

	if err := e.persistAdvance(ctx, r.ID, next); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Error("persist failed, halting schedule for reminder",
				logx.String("id", r.ID), logx.Err(err))
		}
		return
	}
	r.NextFireAt = next

	if r.Alarm {
		// A fresh fire re-arms the alarm even if a previous cycle was
		// silenced; silence does not outlive the occurrence it stopped.
		if r.Silenced {
			if err := e.store.SetSilenced(ctx, r.ID, false); err != nil {
				e.log.Warn("unsilence failed", logx.String("id", r.ID), logx.Err(err))
			} else {
				r.Silenced = false
			}
		}
		e.armAlarm(r, now)
	}

	if next != nil {
		e.mu.Lock()
		e.upsertLocked(&entry{id: r.ID, at: *next})
		e.mu.Unlock()
	} else if !r.Alarm && !spec.Recurs() {
		// Completed one-off with nothing left to silence: drop the record.
		// Recurring reminders without an upcoming match stay dormant;
		// startup recovery re-checks them once the resolver's scan window
		// has moved forward.
		if err := e.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("completed reminder cleanup failed",
				logx.String("id", r.ID), logx.Err(err))
		}
	}

	e.dispatch(ctx, Delivery{Reminder: r})
}

// persistAdvance durably records the new next fire instant before any
// notification goes out. One immediate retry; after that the reminder is
// parked rather than re-enqueued with stale state.
func (e *Engine) persistAdvance(ctx context.Context, id string, next *time.Time) error {
	err := e.store.UpdateNextFire(ctx, id, next)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return err
	}
	e.log.Warn("persist advance failed, retrying", logx.String("id", id), logx.Err(err))
	return e.store.UpdateNextFire(ctx, id, next)
}

// dispatch hands the notification to the transport outside the queue lock.
// Failures are reported but never roll back the schedule.
func (e *Engine) dispatch(ctx context.Context, d Delivery) {
	if e.deliver == nil {
		return
	}
	if err := e.deliver.Deliver(ctx, d); err != nil {
		e.log.Warn("notification delivery failed",
			logx.String("id", d.Reminder.ID),
			logx.String("room", d.Reminder.RoomID),
			logx.Bool("alarm_repeat", d.AlarmRepeat),
			logx.Err(err))
	}
}
