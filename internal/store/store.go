// Package store persists reminder records.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindbot/internal/recurrence"
	"remindbot/pkg/logx"
)

var ErrNotFound = errors.New("reminder not found")

// Target selects who a fired notification addresses.
type Target string

const (
	TargetUser Target = "user" // ping only the creator
	TargetRoom Target = "room" // mention the whole room
)

// Reminder is the persisted scheduling record.
//
// NextFireAt is the authoritative next fire instant and the only field the
// engine orders by. nil means no fire is scheduled: the reminder is either
// terminal (a completed one-off alarm kept listable and silenceable) or
// dormant (a recurring schedule with no match inside the resolver's scan
// window, re-checked on startup).
type Reminder struct {
	ID        string
	RoomID    string
	CreatorID string
	Target    Target
	Text      string

	Kind    recurrence.Kind
	Every   time.Duration // Interval only
	CronTab string        // Cron only

	// Timezone is the IANA zone the reminder was created in. Cron fields
	// are evaluated against it so wall-clock times survive DST shifts.
	Timezone string

	StartAt    time.Time
	NextFireAt *time.Time

	Alarm         bool
	AlarmInterval time.Duration
	Silenced      bool

	CreatedAt time.Time
}

// Spec rebuilds the reminder's recurrence spec from its stored fields.
func (r *Reminder) Spec() (recurrence.Spec, error) {
	return recurrence.New(r.Kind, r.Every, r.CronTab)
}

// Location resolves the reminder's timezone, falling back to UTC.
func (r *Reminder) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// MatchesText reports whether the reminder's text matches ref,
// case-insensitively. Cancel/silence commands address reminders this way
// when no id is given.
func (r *Reminder) MatchesText(ref string) bool {
	return strings.EqualFold(strings.TrimSpace(r.Text), strings.TrimSpace(ref))
}

// Store is the persistence API consumed by the engine and command surface.
//
// Every method is atomic with respect to a single reminder row. List returns
// a consistent snapshot, which startup recovery relies on.
type Store interface {
	Create(ctx context.Context, r *Reminder) error
	Get(ctx context.Context, id string) (*Reminder, error)

	// List returns reminders for one room, or every reminder when roomID
	// is empty, ordered by creation time.
	List(ctx context.Context, roomID string) ([]*Reminder, error)

	// UpdateNextFire durably records the advance. nil marks the reminder
	// terminal.
	UpdateNextFire(ctx context.Context, id string, at *time.Time) error

	SetSilenced(ctx context.Context, id string, silenced bool) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Config configures the store backend.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Open initializes the SQLite-backed store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
