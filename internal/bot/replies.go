package bot

import (
	"fmt"
	"strings"

	"remindbot/internal/recurrence"
	"remindbot/internal/store"
)

const displayTime = "Jan 02 2006, 15:04"

const usageText = "Usage: /remind [every <repeat>;] <start>; <text>, " +
	"e.g. /remind 10m; take out the trash"

const helpText = `I am a reminder bot.

Reminders:
  /remind [every <repeat>;] <start>; <text>   remind you
  /remindroom ...                             remind the whole room
  /remind cron <m> <h> <dom> <mon> <dow>; <text>

Alarms (re-fire every few minutes after going off, until silenced):
  /alarm ... and /alarmroom ...               same syntax as /remind
  /silence [<text>]                           stop a sounding alarm

Housekeeping:
  /list                                       list this room's reminders
  /cancel <text or id>                        delete a reminder

Start times: "10m", "1h30m", "18:30", "2026-09-01 18:30" or "now".`

// confirmReply mirrors the created reminder back to the user.
func confirmReply(r *store.Reminder) string {
	if r.Kind == recurrence.Cron {
		if r.NextFireAt == nil {
			return "OK, I will remind you! (the schedule `" + r.CronTab + "` has no upcoming match yet)"
		}
		return fmt.Sprintf("OK, I will remind you! Next run %s.",
			r.NextFireAt.In(r.Location()).Format(displayTime))
	}

	who := "you"
	if r.Target == store.TargetRoom {
		who = "everyone in the room"
	}
	text := fmt.Sprintf("OK, I will remind %s at %s", who,
		r.StartAt.In(r.Location()).Format(displayTime))
	if r.Kind == recurrence.Interval {
		text += ", and again every " + recurrence.FormatDuration(r.Every)
	}
	text += "!"

	if r.Alarm {
		text += fmt.Sprintf("\n\nWhen this reminder goes off, an alarm will sound every %s until silenced with /silence.",
			recurrence.FormatDuration(r.AlarmInterval))
	}
	return text
}

// listReply groups the room's reminders by recurrence kind, one-time first.
func listReply(rows []*store.Reminder) string {
	var once, cron, repeating []string
	for _, r := range rows {
		line := "- "
		if r.Alarm {
			line += "(alarm) "
		}
		line += describeNext(r) + `; "` + r.Text + `"`

		switch r.Kind {
		case recurrence.Cron:
			cron = append(cron, line)
		case recurrence.Interval:
			repeating = append(repeating, line)
		default:
			once = append(once, line)
		}
	}

	if len(once)+len(cron)+len(repeating) == 0 {
		return "There are no reminders for this room."
	}

	var b strings.Builder
	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(title + "\n" + strings.Join(lines, "\n"))
	}
	section("One-time reminders:", once)
	section("Cron reminders:", cron)
	section("Repeating reminders:", repeating)
	return b.String()
}

func describeNext(r *store.Reminder) string {
	spec, err := r.Spec()
	desc := ""
	if err == nil && spec.Recurs() {
		desc = spec.Describe() + "; "
	}
	if r.NextFireAt == nil {
		if r.Alarm && r.Silenced {
			return desc + "silenced"
		}
		return desc + "no upcoming run"
	}
	return desc + "next run " + r.NextFireAt.In(r.Location()).Format(displayTime)
}
