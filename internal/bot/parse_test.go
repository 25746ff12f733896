package bot

import (
	"errors"
	"testing"
	"time"

	"remindbot/internal/recurrence"
)

func TestParseCreateArgs(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, loc)

	tests := []struct {
		name string
		raw  string
		want createArgs
		err  bool
	}{
		{
			name: "once with offset",
			raw:  "30m; take the pizza out",
			want: createArgs{
				Kind:    recurrence.Once,
				StartAt: now.Add(30 * time.Minute),
				Text:    "take the pizza out",
			},
		},
		{
			name: "once now",
			raw:  "now; ping",
			want: createArgs{Kind: recurrence.Once, StartAt: now, Text: "ping"},
		},
		{
			name: "once wall clock later today",
			raw:  "18:30; dinner",
			want: createArgs{
				Kind:    recurrence.Once,
				StartAt: time.Date(2026, 5, 1, 18, 30, 0, 0, loc),
				Text:    "dinner",
			},
		},
		{
			name: "once wall clock already passed rolls to tomorrow",
			raw:  "09:00; standup",
			want: createArgs{
				Kind:    recurrence.Once,
				StartAt: time.Date(2026, 5, 2, 9, 0, 0, 0, loc),
				Text:    "standup",
			},
		},
		{
			name: "once full timestamp",
			raw:  "2026-09-01 18:30; renew passport",
			want: createArgs{
				Kind:    recurrence.Once,
				StartAt: time.Date(2026, 9, 1, 18, 30, 0, 0, loc),
				Text:    "renew passport",
			},
		},
		{
			name: "interval",
			raw:  "every 1h30m; 14:00; stretch",
			want: createArgs{
				Kind:    recurrence.Interval,
				Every:   90 * time.Minute,
				StartAt: time.Date(2026, 5, 1, 14, 0, 0, 0, loc),
				Text:    "stretch",
			},
		},
		{
			name: "cron",
			raw:  "cron 0 9 * * 1-5; standup",
			want: createArgs{Kind: recurrence.Cron, CronTab: "0 9 * * 1-5", Text: "standup"},
		},
		{
			name: "cron keyword is case-insensitive",
			raw:  "CRON 0 9 * * *; morning",
			want: createArgs{Kind: recurrence.Cron, CronTab: "0 9 * * *", Text: "morning"},
		},
		{name: "empty", raw: "", err: true},
		{name: "missing text", raw: "10m;", err: true},
		{name: "missing semicolon", raw: "10m take the pizza out", err: true},
		{name: "bad interval", raw: "every fortnight; 10m; x", err: true},
		{name: "negative offset", raw: "-10m; x", err: true},
		{name: "unparseable time", raw: "next tuesday; x", err: true},
		{name: "cron without text", raw: "cron 0 9 * * *;", err: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCreateArgs(tt.raw, now, loc)
			if tt.err {
				if !errors.Is(err, ErrSyntax) {
					t.Fatalf("got err %v, want ErrSyntax", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCreateArgs(%q): %v", tt.raw, err)
			}
			if got.Kind != tt.want.Kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if got.Every != tt.want.Every {
				t.Errorf("Every = %v, want %v", got.Every, tt.want.Every)
			}
			if got.CronTab != tt.want.CronTab {
				t.Errorf("CronTab = %q, want %q", got.CronTab, tt.want.CronTab)
			}
			if !got.StartAt.Equal(tt.want.StartAt) {
				t.Errorf("StartAt = %v, want %v", got.StartAt, tt.want.StartAt)
			}
			if got.Text != tt.want.Text {
				t.Errorf("Text = %q, want %q", got.Text, tt.want.Text)
			}
		})
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, cmd, args string
		ok            bool
	}{
		{"/remindme 10m; tea", "remindme", "10m; tea", true},
		{"/remindme@remindbot 10m; tea", "remindme", "10m; tea", true},
		{"/list", "list", "", true},
		{"/LIST", "list", "", true},
		{"hello there", "", "", false},
		{"/", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := splitCommand(tt.in)
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Errorf("splitCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, cmd, args, ok, tt.cmd, tt.args, tt.ok)
		}
	}
}
