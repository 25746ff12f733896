// Package reminders is the command surface and lifecycle manager for the
// scheduling core: it validates and creates reminders, resolves cancel and
// silence references, and rebuilds the engine's queue after a restart.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"remindbot/internal/engine"
	"remindbot/internal/recurrence"
	"remindbot/internal/store"
	"remindbot/pkg/logx"
)

var (
	// ErrNotFound mirrors store.ErrNotFound for text references too.
	ErrNotFound = store.ErrNotFound

	// ErrNoAlarm marks a silence request against a reminder that has no
	// alarm attached.
	ErrNoAlarm = errors.New("reminder has no alarm")
)

// AmbiguousError reports a text reference matching several reminders in the
// room. No mutation is performed; the caller shows the candidates instead.
type AmbiguousError struct {
	Ref     string
	Matches []*store.Reminder
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q matches %d reminders", e.Ref, len(e.Matches))
}

// Config controls reminder creation defaults.
type Config struct {
	// Timezone is the IANA zone new reminders are created in.
	Timezone string
	// Grace is how far in the past a first fire may land before creation
	// is rejected.
	Grace time.Duration
	// AlarmInterval is the repeat interval recorded on new alarms.
	AlarmInterval time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "Etc/UTC"
	}
	if c.Grace <= 0 {
		c.Grace = 30 * time.Second
	}
	if c.AlarmInterval <= 0 {
		c.AlarmInterval = 5 * time.Minute
	}
	return c
}

type Service struct {
	cfg Config
	loc *time.Location
	st  store.Store
	eng *engine.Engine
	clk clock.Clock
	log logx.Logger
}

func New(cfg Config, st store.Store, eng *engine.Engine, clk clock.Clock, log logx.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, loc: loc, st: st, eng: eng, clk: clk, log: log}, nil
}

// Location is the timezone new reminders are created and displayed in.
func (s *Service) Location() *time.Location { return s.loc }

// CreateRequest is a parsed "create reminder" command.
type CreateRequest struct {
	RoomID    string
	CreatorID string
	Target    store.Target
	Text      string

	Kind    recurrence.Kind
	Every   time.Duration // Interval
	CronTab string        // Cron
	StartAt time.Time     // first fire; ignored for Cron

	Alarm bool
}

// Create validates the request, persists the reminder and enqueues its
// first occurrence. Validation failures leave no state behind.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*store.Reminder, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: reminder text is empty", recurrence.ErrInvalidSchedule)
	}

	spec, err := recurrence.New(req.Kind, req.Every, req.CronTab)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	first, err := spec.First(req.StartAt, now, s.loc, s.cfg.Grace)
	if err != nil {
		return nil, err
	}

	r := &store.Reminder{
		ID:        uuid.NewString(),
		RoomID:    req.RoomID,
		CreatorID: req.CreatorID,
		Target:    req.Target,
		Text:      text,
		Kind:      spec.Kind,
		Every:     spec.Every,
		CronTab:   spec.CronTab,
		Timezone:  s.cfg.Timezone,
		StartAt:   first,
		Alarm:     req.Alarm,
		CreatedAt: now.UTC(),
	}
	if !first.IsZero() {
		at := first
		r.NextFireAt = &at
	}
	if req.Alarm {
		r.AlarmInterval = s.cfg.AlarmInterval
	}

	if err := s.st.Create(ctx, r); err != nil {
		return nil, err
	}
	s.eng.Schedule(r)

	s.log.Info("reminder created",
		logx.String("id", r.ID),
		logx.String("room", r.RoomID),
		logx.String("kind", string(r.Kind)),
		logx.Bool("alarm", r.Alarm))
	return r, nil
}

// List returns the room's reminders in creation order.
func (s *Service) List(ctx context.Context, roomID string) ([]*store.Reminder, error) {
	return s.st.List(ctx, roomID)
}

// Cancel deletes the referenced reminder and drops its queued occurrences.
// ref is either an id or the reminder text.
func (s *Service) Cancel(ctx context.Context, roomID, ref string) (*store.Reminder, error) {
	r, err := s.resolve(ctx, roomID, ref)
	if err != nil {
		return nil, err
	}
	s.eng.Cancel(r.ID)
	if err := s.st.Delete(ctx, r.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	s.log.Info("reminder cancelled", logx.String("id", r.ID), logx.String("room", roomID))
	return r, nil
}

// Silence stops the referenced alarm's repeat fires. With an empty ref it
// targets the room's currently sounding alarm, erroring if there are none
// or several.
func (s *Service) Silence(ctx context.Context, roomID, ref string) (*store.Reminder, error) {
	var r *store.Reminder
	var err error
	if strings.TrimSpace(ref) == "" {
		r, err = s.soundingIn(ctx, roomID)
	} else {
		r, err = s.resolve(ctx, roomID, ref)
	}
	if err != nil {
		return nil, err
	}
	if !r.Alarm {
		return r, ErrNoAlarm
	}
	if err := s.eng.Silence(ctx, r.ID); err != nil {
		return nil, err
	}
	r.Silenced = true
	s.log.Info("alarm silenced", logx.String("id", r.ID), logx.String("room", roomID))
	return r, nil
}

// Sounding reports whether the reminder's alarm is currently repeating.
func (s *Service) Sounding(id string) bool { return s.eng.Sounding(id) }

// resolve finds a reminder by id or, failing that, by case-insensitive text
// within the room. Several text matches yield AmbiguousError; the store
// never guesses.
func (s *Service) resolve(ctx context.Context, roomID, ref string) (*store.Reminder, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNotFound
	}

	if r, err := s.st.Get(ctx, ref); err == nil {
		if r.RoomID != roomID {
			// Reminders are never actionable outside their room.
			return nil, ErrNotFound
		}
		return r, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rows, err := s.st.List(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var matches []*store.Reminder
	for _, r := range rows {
		if r.MatchesText(ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0], nil
	}
	return nil, &AmbiguousError{Ref: ref, Matches: matches}
}

// soundingIn finds the room's single currently repeating alarm.
func (s *Service) soundingIn(ctx context.Context, roomID string) (*store.Reminder, error) {
	rows, err := s.st.List(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var matches []*store.Reminder
	for _, r := range rows {
		if r.Alarm && s.eng.Sounding(r.ID) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0], nil
	}
	return nil, &AmbiguousError{Ref: "", Matches: matches}
}
