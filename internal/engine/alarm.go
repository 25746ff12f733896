package engine

import (
	"context"
	"time"

	"remindbot/internal/store"
)

// Alarm repeat policy: once an alarm reminder fires, it keeps re-firing at a
// fixed short interval until silenced. The repeat path is independent of the
// reminder's own recurrence, which continues to advance on its own schedule.
// Repeat occurrences live only in the queue; after a restart an alarm sounds
// again when its recurrence next fires.

// armAlarm queues the next alarm-repeat occurrence unless one is already
// pending.
func (e *Engine) armAlarm(r *store.Reminder, now time.Time) {
	iv := r.AlarmInterval
	if iv <= 0 {
		iv = e.cfg.AlarmInterval
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[entryKey{id: r.ID, repeat: true}]; ok {
		return
	}
	e.upsertLocked(&entry{id: r.ID, at: now.Add(iv), repeat: true})
}

// fireAlarmRepeat re-fires a sounding alarm. The follow-up occurrence is
// queued before delivery so a slow transport cannot stall the repeat cycle.
func (e *Engine) fireAlarmRepeat(ctx context.Context, r *store.Reminder, now time.Time) {
	if !r.Alarm || r.Silenced {
		// Silenced (or downgraded) while this occurrence was queued.
		return
	}
	e.armAlarm(r, now)
	e.dispatch(ctx, Delivery{Reminder: r, AlarmRepeat: true})
}

// Silence persists the silenced flag and drops the pending repeat
// occurrence. The reminder's own recurrence is untouched.
func (e *Engine) Silence(ctx context.Context, id string) error {
	if err := e.store.SetSilenced(ctx, id, true); err != nil {
		return err
	}
	e.mu.Lock()
	e.removeLocked(entryKey{id: id, repeat: true})
	e.mu.Unlock()
	return nil
}

// Sounding reports whether the alarm currently has a repeat occurrence
// queued, i.e. it fired and has not been silenced.
func (e *Engine) Sounding(id string) bool {
	_, ok := e.PendingAt(id, true)
	return ok
}
