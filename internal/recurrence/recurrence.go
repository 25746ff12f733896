// Package recurrence computes reminder fire instants.
//
// All resolution is pure: callers pass the reference instant and the
// IANA location explicitly, so behavior is deterministic under test.
// Cron expressions are evaluated in the reminder's own timezone, which
// keeps literal wall-clock times ("9am") stable across DST transitions.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidRecurrence marks a recurrence spec that can never be
	// scheduled (non-positive interval, malformed cron tab).
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrInvalidSchedule marks a spec whose first fire would land in the
	// past. Surfaced at creation time, never at fire time.
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Kind determines how the next fire instant is computed.
type Kind string

const (
	Once     Kind = "once"
	Interval Kind = "interval"
	Cron     Kind = "cron"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Once:
		return Once, nil
	case Interval:
		return Interval, nil
	case Cron:
		return Cron, nil
	}
	return "", fmt.Errorf("unknown recurrence kind %q", s)
}

// Standard 5-field crontab: minute hour dom month dow.
// Supports ranges, steps and month/day name lists; no seconds field.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Spec is a validated recurrence specification.
type Spec struct {
	Kind    Kind
	Every   time.Duration // Interval only
	CronTab string        // Cron only

	sched cron.Schedule
}

// NewOnce returns the spec for a single fire at the reminder's start time.
func NewOnce() Spec { return Spec{Kind: Once} }

// NewInterval validates a fixed repeat duration.
func NewInterval(every time.Duration) (Spec, error) {
	if every <= 0 {
		return Spec{}, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidRecurrence, every)
	}
	return Spec{Kind: Interval, Every: every}, nil
}

// NewCron validates and compiles a standard 5-field crontab.
func NewCron(tab string) (Spec, error) {
	tab = strings.TrimSpace(tab)
	sched, err := cronParser.Parse(tab)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	return Spec{Kind: Cron, CronTab: tab, sched: sched}, nil
}

// New rebuilds a Spec from its stored fields.
func New(kind Kind, every time.Duration, cronTab string) (Spec, error) {
	switch kind {
	case Once:
		return NewOnce(), nil
	case Interval:
		return NewInterval(every)
	case Cron:
		return NewCron(cronTab)
	}
	return Spec{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRecurrence, kind)
}

// Recurs reports whether the spec produces more than one occurrence.
func (s Spec) Recurs() bool { return s.Kind != Once }

// First resolves the first fire instant for a reminder created at now.
//
// For Once and Interval specs the first fire is the requested start time.
// For Cron specs start is advisory and the earliest matching instant
// strictly after now is used instead.
//
// A first fire earlier than now minus grace fails with ErrInvalidSchedule.
// A cron spec with no matching instant (e.g. Feb 30) yields the zero time
// and no error: the reminder is created dormant rather than rejected.
func (s Spec) First(start, now time.Time, loc *time.Location, grace time.Duration) (time.Time, error) {
	var fire time.Time
	switch s.Kind {
	case Cron:
		fire = s.sched.Next(now.In(loc))
		if fire.IsZero() {
			return time.Time{}, nil
		}
	default:
		fire = start.In(loc).Truncate(time.Second)
	}
	if fire.Before(now.Add(-grace)) {
		return time.Time{}, fmt.Errorf("%w: first fire %s is in the past", ErrInvalidSchedule, fire.Format(time.RFC3339))
	}
	return fire, nil
}

// Next resolves the occurrence strictly after prior. The zero time means
// the spec is exhausted.
func (s Spec) Next(prior time.Time, loc *time.Location) time.Time {
	switch s.Kind {
	case Interval:
		return prior.Add(s.Every)
	case Cron:
		return s.sched.Next(prior.In(loc))
	}
	return time.Time{}
}

// NextAfter resolves the earliest occurrence strictly after both prior and
// floor. It implements the late-wake policy: when the process slept past
// several occurrences, scheduling resumes at the next future one instead of
// replaying the backlog.
func (s Spec) NextAfter(prior, floor time.Time, loc *time.Location) time.Time {
	switch s.Kind {
	case Interval:
		next := prior.Add(s.Every)
		if next.After(floor) {
			return next
		}
		// Skip whole periods, preserving the original phase.
		missed := floor.Sub(prior) / s.Every
		next = prior.Add((missed + 1) * s.Every)
		if !next.After(floor) {
			next = next.Add(s.Every)
		}
		return next
	case Cron:
		ref := prior
		if floor.After(ref) {
			ref = floor
		}
		return s.sched.Next(ref.In(loc))
	}
	return time.Time{}
}

// Describe renders the recurrence for chat output.
func (s Spec) Describe() string {
	switch s.Kind {
	case Interval:
		return "every " + FormatDuration(s.Every)
	case Cron:
		return "cron `" + s.CronTab + "`"
	}
	return "one-time"
}

// FormatDuration renders a duration in words for chat output: "5 minutes",
// "1 hour 30 minutes", "2 days".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return plural(int(d/time.Second), "second")
	}
	var parts []string
	if days := d / (24 * time.Hour); days > 0 {
		parts = append(parts, plural(int(days), "day"))
		d -= days * 24 * time.Hour
	}
	if h := d / time.Hour; h > 0 {
		parts = append(parts, plural(int(h), "hour"))
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		parts = append(parts, plural(int(m), "minute"))
		d -= m * time.Minute
	}
	if sec := d / time.Second; sec > 0 {
		parts = append(parts, plural(int(sec), "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
