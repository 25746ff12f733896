package reminders_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/engine"
	"remindbot/internal/recurrence"
	"remindbot/internal/reminders"
	"remindbot/internal/store"
	"remindbot/pkg/logx"
)

type fixture struct {
	clk *clock.Mock
	st  store.Store
	eng *engine.Engine
	svc *reminders.Service
}

type discard struct{}

func (discard) Deliver(context.Context, engine.Delivery) error { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	st, err := store.Open(store.Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := engine.New(engine.Config{}, st, discard{}, clk, logx.Nop())
	svc, err := reminders.New(reminders.Config{Timezone: "Etc/UTC"}, st, eng, clk, logx.Nop())
	require.NoError(t, err)
	return &fixture{clk: clk, st: st, eng: eng, svc: svc}
}

func (f *fixture) createOnce(t *testing.T, text string, in time.Duration) *store.Reminder {
	t.Helper()
	r, err := f.svc.Create(context.Background(), reminders.CreateRequest{
		RoomID:    "room",
		CreatorID: "@alice",
		Target:    store.TargetUser,
		Text:      text,
		Kind:      recurrence.Once,
		StartAt:   f.clk.Now().Add(in),
	})
	require.NoError(t, err)
	return r
}

func TestCreateSchedulesFirstFire(t *testing.T) {
	f := newFixture(t)
	r := f.createOnce(t, "call mom", time.Hour)

	require.NotNil(t, r.NextFireAt)
	assert.True(t, r.NextFireAt.Equal(f.clk.Now().Add(time.Hour)))

	at, ok := f.eng.PendingAt(r.ID, false)
	require.True(t, ok)
	assert.True(t, at.Equal(*r.NextFireAt))

	got, err := f.st.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "call mom", got.Text)
}

func TestCreateRejectsPastStart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "too late", Kind: recurrence.Once,
		StartAt: f.clk.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, recurrence.ErrInvalidSchedule)

	// Rejected creation leaves no state behind.
	rows, lerr := f.st.List(context.Background(), "room")
	require.NoError(t, lerr)
	assert.Empty(t, rows)
	assert.Zero(t, f.eng.Pending())
}

func TestCreateRejectsBadRecurrence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "x", Kind: recurrence.Interval, Every: 0,
		StartAt: f.clk.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, recurrence.ErrInvalidRecurrence)

	_, err = f.svc.Create(ctx, reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "x", Kind: recurrence.Cron, CronTab: "bogus",
	})
	assert.ErrorIs(t, err, recurrence.ErrInvalidRecurrence)
}

func TestCreateDormantCron(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Create(context.Background(), reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "leap day party", Kind: recurrence.Cron, CronTab: "0 0 30 2 *",
	})
	require.NoError(t, err)
	assert.Nil(t, r.NextFireAt)
	assert.Zero(t, f.eng.Pending())
}

func TestCancelByText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createOnce(t, "Take Out Trash", time.Hour)

	got, err := f.svc.Cancel(ctx, "room", "take out trash")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = f.st.Get(ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, f.eng.Pending())
}

func TestCancelAmbiguousText(t *testing.T) {
	f := newFixture(t)
	f.createOnce(t, "standup", time.Hour)
	f.createOnce(t, "Standup", 2*time.Hour)

	_, err := f.svc.Cancel(context.Background(), "room", "standup")
	var amb *reminders.AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Matches, 2)

	// Nothing was deleted.
	rows, err := f.st.List(context.Background(), "room")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCancelRespectsRoomBoundary(t *testing.T) {
	f := newFixture(t)
	r := f.createOnce(t, "secret", time.Hour)

	_, err := f.svc.Cancel(context.Background(), "other-room", r.ID)
	assert.ErrorIs(t, err, reminders.ErrNotFound)
}

func TestSilenceRequiresAlarm(t *testing.T) {
	f := newFixture(t)
	r := f.createOnce(t, "not an alarm", time.Hour)

	_, err := f.svc.Silence(context.Background(), "room", r.ID)
	assert.ErrorIs(t, err, reminders.ErrNoAlarm)
}

func TestSilenceSoundingAlarmWithoutRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "wake up", Kind: recurrence.Once,
		StartAt: f.clk.Now().Add(time.Minute), Alarm: true,
	})
	require.NoError(t, err)

	f.clk.Add(time.Minute)
	f.eng.Tick(ctx)
	require.True(t, f.svc.Sounding(r.ID))

	got, err := f.svc.Silence(ctx, "room", "")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.False(t, f.svc.Sounding(r.ID))

	// Nothing sounding anymore.
	_, err = f.svc.Silence(ctx, "room", "")
	assert.ErrorIs(t, err, reminders.ErrNotFound)
}

func TestRecoverIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOnce(t, "future once", time.Hour)
	_, err := f.svc.Create(ctx, reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "hydrate", Kind: recurrence.Interval, Every: 10 * time.Minute,
		StartAt: f.clk.Now().Add(10 * time.Minute),
	})
	require.NoError(t, err)

	rebuild := func() *engine.Engine {
		eng := engine.New(engine.Config{}, f.st, discard{}, f.clk, logx.Nop())
		svc, err := reminders.New(reminders.Config{Timezone: "Etc/UTC"}, f.st, eng, f.clk, logx.Nop())
		require.NoError(t, err)
		n, err := svc.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return eng
	}

	first := rebuild()
	second := rebuild()
	assert.Equal(t, first.Pending(), second.Pending())
}

func TestRecoverDropsStaleOneOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createOnce(t, "missed it", time.Minute)

	// The process was down past the fire time.
	f.clk.Add(time.Hour)

	eng := engine.New(engine.Config{}, f.st, discard{}, f.clk, logx.Nop())
	svc, err := reminders.New(reminders.Config{Timezone: "Etc/UTC"}, f.st, eng, f.clk, logx.Nop())
	require.NoError(t, err)

	n, err := svc.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.st.Get(ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, eng.Pending())
}

func TestRecoverKeepsDormantCron(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "leap day party", Kind: recurrence.Cron, CronTab: "0 0 30 2 *",
	})
	require.NoError(t, err)
	require.Nil(t, r.NextFireAt)

	eng := engine.New(engine.Config{}, f.st, discard{}, f.clk, logx.Nop())
	svc, err := reminders.New(reminders.Config{Timezone: "Etc/UTC"}, f.st, eng, f.clk, logx.Nop())
	require.NoError(t, err)

	n, err := svc.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Still there: dormant, listable, cancelable.
	got, err := f.st.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextFireAt)
	assert.Zero(t, eng.Pending())
}

func TestRecoverWakesDormantCronBackInRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The next Feb 29 after 2097 is in 2104 (2100 is not a leap year),
	// which is beyond the cron resolver's scan window: created dormant.
	f.clk.Set(time.Date(2097, 3, 1, 12, 0, 0, 0, time.UTC))
	r, err := f.svc.Create(ctx, reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "leap day party", Kind: recurrence.Cron, CronTab: "0 0 29 2 *",
	})
	require.NoError(t, err)
	require.Nil(t, r.NextFireAt)

	// Years later the match is within the window again.
	f.clk.Set(time.Date(2100, 1, 1, 12, 0, 0, 0, time.UTC))
	eng := engine.New(engine.Config{}, f.st, discard{}, f.clk, logx.Nop())
	svc, err := reminders.New(reminders.Config{Timezone: "Etc/UTC"}, f.st, eng, f.clk, logx.Nop())
	require.NoError(t, err)

	n, err := svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.st.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextFireAt)
	want := time.Date(2104, 2, 29, 0, 0, 0, 0, time.UTC)
	assert.True(t, got.NextFireAt.Equal(want), "next fire = %v, want %v", got.NextFireAt, want)
	assert.Equal(t, 1, eng.Pending())
}

func TestRecoverReaimsPastRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, reminders.CreateRequest{
		RoomID: "room", CreatorID: "@alice", Target: store.TargetUser,
		Text: "hydrate", Kind: recurrence.Interval, Every: 15 * time.Minute,
		StartAt: f.clk.Now().Add(15 * time.Minute),
	})
	require.NoError(t, err)

	f.clk.Add(2 * time.Hour)

	eng := engine.New(engine.Config{}, f.st, discard{}, f.clk, logx.Nop())
	svc, err := reminders.New(reminders.Config{Timezone: "Etc/UTC"}, f.st, eng, f.clk, logx.Nop())
	require.NoError(t, err)

	n, err := svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.st.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextFireAt)
	assert.True(t, got.NextFireAt.After(f.clk.Now()))

	// Phase is preserved: still on a 15-minute boundary of the original start.
	offset := got.NextFireAt.Sub(r.StartAt) % (15 * time.Minute)
	assert.Zero(t, offset)
}
