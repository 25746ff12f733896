// Package bot routes parsed chat commands to the reminder service and
// composes the replies.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/benbjohnson/clock"

	"remindbot/internal/recurrence"
	"remindbot/internal/reminders"
	"remindbot/internal/store"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type Router struct {
	svc     *reminders.Service
	adapter transport.Adapter
	clk     clock.Clock
	log     logx.Logger
}

func NewRouter(svc *reminders.Service, adapter transport.Adapter, clk clock.Clock, log logx.Logger) *Router {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{svc: svc, adapter: adapter, clk: clk, log: log}
}

// Run consumes inbound messages until the context ends.
func (rt *Router) Run(ctx context.Context, in <-chan transport.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			rt.handle(ctx, m)
		}
	}
}

func (rt *Router) handle(ctx context.Context, m transport.Message) {
	cmd, args, ok := splitCommand(m.Text)
	if !ok {
		return
	}

	var reply string
	switch cmd {
	case "remind", "remindme", "r":
		reply = rt.create(ctx, m, args, store.TargetUser, false)
	case "remindroom", "rr":
		reply = rt.create(ctx, m, args, store.TargetRoom, false)
	case "alarm", "alarmme", "a":
		reply = rt.create(ctx, m, args, store.TargetUser, true)
	case "alarmroom", "ar":
		reply = rt.create(ctx, m, args, store.TargetRoom, true)
	case "list", "listreminders", "l":
		reply = rt.list(ctx, m)
	case "cancel", "cancelreminder", "c":
		reply = rt.cancel(ctx, m, args)
	case "silence", "s":
		reply = rt.silence(ctx, m, args)
	case "help", "start", "h":
		reply = helpText
	default:
		return
	}

	if reply == "" {
		return
	}
	if err := rt.adapter.SendText(ctx, m.RoomID, reply); err != nil {
		rt.log.Warn("reply failed", logx.String("room", m.RoomID), logx.Err(err))
	}
}

// splitCommand extracts "/cmd args", tolerating the /cmd@botname form used
// in group chats.
func splitCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	head = strings.ToLower(head)
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}

func (rt *Router) create(ctx context.Context, m transport.Message, args string, target store.Target, alarm bool) string {
	parsed, err := parseCreateArgs(args, rt.clk.Now(), rt.svc.Location())
	if err != nil {
		return errorReply(err)
	}

	r, err := rt.svc.Create(ctx, reminders.CreateRequest{
		RoomID:    m.RoomID,
		CreatorID: m.SenderMention,
		Target:    target,
		Text:      parsed.Text,
		Kind:      parsed.Kind,
		Every:     parsed.Every,
		CronTab:   parsed.CronTab,
		StartAt:   parsed.StartAt,
		Alarm:     alarm,
	})
	if err != nil {
		return errorReply(err)
	}
	return confirmReply(r)
}

func (rt *Router) list(ctx context.Context, m transport.Message) string {
	rows, err := rt.svc.List(ctx, m.RoomID)
	if err != nil {
		return errorReply(err)
	}
	return listReply(rows)
}

func (rt *Router) cancel(ctx context.Context, m transport.Message, args string) string {
	if strings.TrimSpace(args) == "" {
		return "Usage: /cancel <reminder text or id>"
	}
	r, err := rt.svc.Cancel(ctx, m.RoomID, args)
	if err != nil {
		return errorReply(err)
	}
	return "Reminder '" + r.Text + "' cancelled."
}

func (rt *Router) silence(ctx context.Context, m transport.Message, args string) string {
	r, err := rt.svc.Silence(ctx, m.RoomID, args)
	switch {
	case errors.Is(err, reminders.ErrNoAlarm):
		return "The reminder '" + r.Text + "' has no alarm attached."
	case err != nil:
		if errors.Is(err, reminders.ErrNotFound) && strings.TrimSpace(args) == "" {
			return "No alarms are currently sounding in this room."
		}
		return errorReply(err)
	}
	return "Alarm '" + r.Text + "' silenced."
}

func errorReply(err error) string {
	var amb *reminders.AmbiguousError
	switch {
	case errors.As(err, &amb):
		var b strings.Builder
		b.WriteString("That matches several reminders; cancel or silence by id instead:\n")
		for _, r := range amb.Matches {
			b.WriteString("- " + r.ID + ": \"" + r.Text + "\"\n")
		}
		return strings.TrimRight(b.String(), "\n")
	case errors.Is(err, reminders.ErrNotFound):
		return "I don't know that reminder."
	case errors.Is(err, ErrSyntax):
		return "I couldn't parse that. " + usageText
	case errors.Is(err, recurrence.ErrInvalidSchedule),
		errors.Is(err, recurrence.ErrInvalidRecurrence):
		return "I can't schedule that: " + err.Error()
	}
	return "Something went wrong, please try again."
}
