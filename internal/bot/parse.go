package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/recurrence"
)

// ErrSyntax marks a command whose arguments could not be parsed; the reply
// shows the command usage.
var ErrSyntax = errors.New("bad command syntax")

// createArgs is the parsed argument list of a /remind-style command:
//
//	[every <repeat>;] <start>; <text>
//	cron <m> <h> <dom> <mon> <dow>; <text>
type createArgs struct {
	Kind    recurrence.Kind
	Every   time.Duration
	CronTab string
	StartAt time.Time
	Text    string
}

func parseCreateArgs(raw string, now time.Time, loc *time.Location) (createArgs, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return createArgs{}, ErrSyntax
	}

	if rest, ok := cutPrefixFold(raw, "cron"); ok {
		tab, text, found := strings.Cut(rest, ";")
		if !found || strings.TrimSpace(text) == "" {
			return createArgs{}, ErrSyntax
		}
		return createArgs{
			Kind:    recurrence.Cron,
			CronTab: strings.TrimSpace(tab),
			Text:    strings.TrimSpace(text),
		}, nil
	}

	out := createArgs{Kind: recurrence.Once}

	head, rest, found := strings.Cut(raw, ";")
	if !found {
		return createArgs{}, ErrSyntax
	}

	if everyStr, ok := cutPrefixFold(strings.TrimSpace(head), "every"); ok {
		every, err := time.ParseDuration(strings.TrimSpace(everyStr))
		if err != nil {
			return createArgs{}, fmt.Errorf("%w: bad repeat interval %q", ErrSyntax, everyStr)
		}
		out.Kind = recurrence.Interval
		out.Every = every

		head, rest, found = strings.Cut(rest, ";")
		if !found {
			return createArgs{}, ErrSyntax
		}
	}

	start, err := parseStart(strings.TrimSpace(head), now, loc)
	if err != nil {
		return createArgs{}, err
	}
	out.StartAt = start
	out.Text = strings.TrimSpace(rest)
	if out.Text == "" {
		return createArgs{}, ErrSyntax
	}
	return out, nil
}

// parseStart accepts "now", a Go duration offset ("10m", "1h30m"), a
// wall-clock time ("18:30", next occurrence), or a full timestamp
// ("2026-09-01 18:30"), all in the bot's timezone.
func parseStart(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return time.Time{}, ErrSyntax
	}
	if s == "now" {
		return now, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("%w: offset %q is negative", ErrSyntax, s)
		}
		return now.Add(d), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", s, loc); err == nil {
		n := now.In(loc)
		t = time.Date(n.Year(), n.Month(), n.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot understand time %q", ErrSyntax, s)
}

// cutPrefixFold strips a case-insensitive word prefix followed by a space
// boundary.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) <= len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	rest := s[len(prefix):]
	if rest[0] != ' ' && rest[0] != '\t' {
		return s, false
	}
	return strings.TrimSpace(rest), true
}
