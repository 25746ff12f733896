package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/recurrence"
	"remindbot/pkg/logx"
)

//go:embed schema.sql
var schemaFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const reminderCols = `id, room_id, creator_id, target, text, kind, every_s, cron_tab,
	timezone, start_at, next_fire_at, alarm, alarm_every_s, silenced, created_at`

func (s *sqliteStore) Create(ctx context.Context, r *Reminder) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+reminderCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.RoomID, r.CreatorID, string(r.Target), r.Text, string(r.Kind),
		nullSeconds(r.Every), nullStr(r.CronTab), r.Timezone,
		encodeTime(r.StartAt), encodeTimePtr(r.NextFireAt),
		boolInt(r.Alarm), nullSeconds(r.AlarmInterval), boolInt(r.Silenced),
		encodeTime(r.CreatedAt),
	)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) List(ctx context.Context, roomID string) ([]*Reminder, error) {
	q := `SELECT ` + reminderCols + ` FROM reminders ORDER BY created_at, id`
	args := []any{}
	if roomID != "" {
		q = `SELECT ` + reminderCols + ` FROM reminders WHERE room_id = ? ORDER BY created_at, id`
		args = append(args, roomID)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateNextFire(ctx context.Context, id string, at *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET next_fire_at = ? WHERE id = ?`, encodeTimePtr(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) SetSilenced(ctx context.Context, id string, silenced bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET silenced = ? WHERE id = ?`, boolInt(silenced), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(row scanner) (*Reminder, error) {
	var (
		r                    Reminder
		target, kind         string
		everyS, alarmEveryS  sql.NullInt64
		cronTab, nextFire    sql.NullString
		startAt, createdAt   string
		alarmInt, silenceInt int
	)
	err := row.Scan(&r.ID, &r.RoomID, &r.CreatorID, &target, &r.Text, &kind,
		&everyS, &cronTab, &r.Timezone, &startAt, &nextFire,
		&alarmInt, &alarmEveryS, &silenceInt, &createdAt)
	if err != nil {
		return nil, err
	}

	r.Target = Target(target)
	k, err := recurrence.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	r.Kind = k
	if everyS.Valid {
		r.Every = time.Duration(everyS.Int64) * time.Second
	}
	if cronTab.Valid {
		r.CronTab = cronTab.String
	}
	if r.StartAt, err = decodeTime(startAt); err != nil {
		return nil, err
	}
	if nextFire.Valid {
		t, err := decodeTime(nextFire.String)
		if err != nil {
			return nil, err
		}
		r.NextFireAt = &t
	}
	r.Alarm = alarmInt != 0
	if alarmEveryS.Valid {
		r.AlarmInterval = time.Duration(alarmEveryS.Int64) * time.Second
	}
	r.Silenced = silenceInt != 0
	if r.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullSeconds(d time.Duration) any {
	if d <= 0 {
		return nil
	}
	return int64(d / time.Second)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
