package reminders

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/store"
	"remindbot/pkg/logx"
)

// Recover rebuilds the engine queue from the store after a restart.
//
// Policy per reminder:
//   - next fire in the future: enqueue as-is.
//   - next fire in the past, recurring: re-aim at the next occurrence
//     strictly after now (the missed window counts as a single late wake;
//     the backlog is never replayed as fires).
//   - next fire in the past, one-off: it can never fire correctly anymore;
//     the stale row is dropped.
//   - null next fire, recurring: the schedule is dormant, not dead. The
//     cron resolver only scans a bounded window ahead, so a schedule with
//     no match earlier can be in range by now; re-check and wake it up.
//   - null next fire, one-off: alarms are kept listable, anything else
//     left over is cleaned up.
//
// Running recovery repeatedly before any due time elapses produces the same
// queue every time.
func (s *Service) Recover(ctx context.Context) (int, error) {
	rows, err := s.st.List(ctx, "")
	if err != nil {
		return 0, err
	}

	now := s.clk.Now()
	scheduled := 0
	for _, r := range rows {
		if r.NextFireAt == nil {
			spec, err := r.Spec()
			if err != nil {
				s.log.Error("stored recurrence is unreadable, skipping",
					logx.String("id", r.ID), logx.Err(err))
				continue
			}
			if !spec.Recurs() {
				if !r.Alarm {
					s.deleteStale(ctx, r, "terminal leftover")
				}
				continue
			}
			if next := spec.NextAfter(now, now, r.Location()); !next.IsZero() {
				if err := s.st.UpdateNextFire(ctx, r.ID, &next); err != nil {
					s.log.Error("recovery persist failed, reminder not scheduled",
						logx.String("id", r.ID), logx.Err(err))
					continue
				}
				r.NextFireAt = &next
				s.eng.Schedule(r)
				scheduled++
			}
			continue
		}

		at := *r.NextFireAt
		if at.After(now) {
			s.eng.Schedule(r)
			scheduled++
			continue
		}

		spec, err := r.Spec()
		if err != nil {
			s.log.Error("stored recurrence is unreadable, skipping",
				logx.String("id", r.ID), logx.Err(err))
			continue
		}
		if !spec.Recurs() {
			s.deleteStale(ctx, r, "missed one-off")
			continue
		}

		next := spec.NextAfter(at, now, r.Location())
		if next.IsZero() {
			// No upcoming match; keep the row dormant so a later restart
			// can bring the schedule back into range.
			if err := s.st.UpdateNextFire(ctx, r.ID, nil); err != nil {
				s.log.Error("recovery persist failed", logx.String("id", r.ID), logx.Err(err))
			}
			continue
		}
		if err := s.st.UpdateNextFire(ctx, r.ID, &next); err != nil {
			s.log.Error("recovery persist failed, reminder not scheduled",
				logx.String("id", r.ID), logx.Err(err))
			continue
		}
		r.NextFireAt = &next
		s.eng.Schedule(r)
		scheduled++
	}

	s.log.Info("recovery complete",
		logx.Int("loaded", len(rows)),
		logx.Int("scheduled", scheduled),
		logx.Time("now", now))
	return scheduled, nil
}

func (s *Service) deleteStale(ctx context.Context, r *store.Reminder, why string) {
	if err := s.st.Delete(ctx, r.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("stale reminder cleanup failed",
			logx.String("id", r.ID), logx.String("reason", why), logx.Err(err))
		return
	}
	s.log.Debug("dropped stale reminder",
		logx.String("id", r.ID),
		logx.String("room", r.RoomID),
		logx.String("reason", why),
		logx.Time("was_due", derefTime(r.NextFireAt)))
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
