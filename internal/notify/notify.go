// Package notify turns engine deliveries into chat messages.
package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"remindbot/internal/engine"
	"remindbot/internal/recurrence"
	"remindbot/internal/store"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type Config struct {
	// RatePerSec caps outbound sends; chat APIs throttle aggressively.
	RatePerSec int
}

// Service implements engine.Deliverer over a transport adapter with a
// token-bucket rate limit.
type Service struct {
	adapter transport.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

func (n *Service) Deliver(ctx context.Context, d engine.Delivery) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	text := Compose(d)
	err := n.adapter.SendText(ctx, d.Reminder.RoomID, text)
	if err == nil {
		n.log.Debug("notification sent",
			logx.String("room", d.Reminder.RoomID),
			logx.Bool("alarm_repeat", d.AlarmRepeat))
	}
	return err
}

// Compose renders the notification body. The creator is always referenced:
// directly for user-targeted reminders, as an attribution for room-wide
// ones.
func Compose(d engine.Delivery) string {
	r := d.Reminder
	if d.AlarmRepeat {
		return fmt.Sprintf("Alarm: %s %s (use /silence to stop it)", r.CreatorID, r.Text)
	}

	var text string
	switch r.Target {
	case store.TargetRoom:
		text = fmt.Sprintf("Reminder: %s (set by %s)", r.Text, r.CreatorID)
	default:
		text = fmt.Sprintf("%s %s", r.CreatorID, r.Text)
	}
	if r.Alarm {
		text += fmt.Sprintf(" (this reminder has an alarm; it will sound every %s until silenced)",
			recurrence.FormatDuration(r.AlarmInterval))
	}
	return text
}
