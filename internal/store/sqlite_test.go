package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/recurrence"
	"remindbot/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleReminder(id, room string) *Reminder {
	next := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return &Reminder{
		ID:         id,
		RoomID:     room,
		CreatorID:  "@alice",
		Target:     TargetUser,
		Text:       "water the plants",
		Kind:       recurrence.Interval,
		Every:      24 * time.Hour,
		Timezone:   "Etc/UTC",
		StartAt:    next,
		NextFireAt: &next,
		CreatedAt:  time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	want := sampleReminder("r1", "room-a")
	require.NoError(t, st.Create(ctx, want))

	got, err := st.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.RoomID, got.RoomID)
	assert.Equal(t, want.CreatorID, got.CreatorID)
	assert.Equal(t, want.Target, got.Target)
	assert.Equal(t, want.Text, got.Text)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.Every, got.Every)
	assert.Equal(t, want.Timezone, got.Timezone)
	assert.True(t, want.StartAt.Equal(got.StartAt))
	require.NotNil(t, got.NextFireAt)
	assert.True(t, want.NextFireAt.Equal(*got.NextFireAt))
	assert.False(t, got.Alarm)
	assert.False(t, got.Silenced)
}

func TestGetMissing(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByRoom(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, sampleReminder("r1", "room-a")))
	require.NoError(t, st.Create(ctx, sampleReminder("r2", "room-a")))
	require.NoError(t, st.Create(ctx, sampleReminder("r3", "room-b")))

	roomA, err := st.List(ctx, "room-a")
	require.NoError(t, err)
	assert.Len(t, roomA, 2)

	all, err := st.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty, err := st.List(ctx, "room-c")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateNextFire(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, sampleReminder("r1", "room-a")))

	later := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpdateNextFire(ctx, "r1", &later))

	got, err := st.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got.NextFireAt)
	assert.True(t, later.Equal(*got.NextFireAt))

	// Dormant reminders carry a null next fire.
	require.NoError(t, st.UpdateNextFire(ctx, "r1", nil))
	got, err = st.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got.NextFireAt)

	assert.ErrorIs(t, st.UpdateNextFire(ctx, "nope", &later), ErrNotFound)
}

func TestSetSilenced(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	r := sampleReminder("r1", "room-a")
	r.Alarm = true
	r.AlarmInterval = 5 * time.Minute
	require.NoError(t, st.Create(ctx, r))

	require.NoError(t, st.SetSilenced(ctx, "r1", true))
	got, err := st.Get(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.Silenced)
	assert.True(t, got.Alarm)
	assert.Equal(t, 5*time.Minute, got.AlarmInterval)

	require.NoError(t, st.SetSilenced(ctx, "r1", false))
	got, err = st.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.Silenced)

	assert.ErrorIs(t, st.SetSilenced(ctx, "nope", true), ErrNotFound)
}

func TestDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, sampleReminder("r1", "room-a")))
	require.NoError(t, st.Delete(ctx, "r1"))

	_, err := st.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "r1"), ErrNotFound)
}

func TestCronFieldsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	r := sampleReminder("r1", "room-a")
	r.Kind = recurrence.Cron
	r.Every = 0
	r.CronTab = "0 9 * * 1-5"
	require.NoError(t, st.Create(ctx, r))

	got, err := st.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, recurrence.Cron, got.Kind)
	assert.Equal(t, "0 9 * * 1-5", got.CronTab)
	assert.Zero(t, got.Every)

	spec, err := got.Spec()
	require.NoError(t, err)
	assert.Equal(t, recurrence.Cron, spec.Kind)
}
