package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	trigger "nudge/internal/trigger"
	logx "nudge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
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

const triggerCols = `t.id, t.owner_id, t.action_id, t.name, t.name_slug,
	t.fire_time, t.fire_date, t.recurrences, t.time_of_day, t.frequency,
	t.start_when_selected, t.relative_value, t.relative_unit,
	t.stop_on_complete, t.disabled, COALESCE(p.timezone, '')`

func (s *sqliteStore) ListActive(ctx context.Context) ([]*trigger.Trigger, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+triggerCols+`
		 FROM triggers t LEFT JOIN profiles p ON p.user_id = t.owner_id
		 WHERE t.disabled = 0
		 ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trigger.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			// A single malformed row shouldn't take the sweep down.
			if !s.log.IsZero() {
				s.log.Warn("skipping malformed trigger row", logx.Err(err))
			}
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (*trigger.Trigger, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+triggerCols+`
		 FROM triggers t LEFT JOIN profiles p ON p.user_id = t.owner_id
		 WHERE t.id = ?`, id)
	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) Put(ctx context.Context, t *trigger.Trigger) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if t == nil {
		return errors.New("nil trigger")
	}
	t.Normalize()

	var ownerID any
	if t.Owner != nil {
		ownerID = t.Owner.ID
	}
	var fireTime, fireDate, recur any
	if t.Time != nil {
		fireTime = t.Time.String()
	}
	if t.Date != nil {
		fireDate = t.Date.String()
	}
	if t.Recurrence != nil {
		recur = t.Recurrence.Serialize()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triggers(id, owner_id, action_id, name, name_slug,
			fire_time, fire_date, recurrences, time_of_day, frequency,
			start_when_selected, relative_value, relative_unit,
			stop_on_complete, disabled)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			owner_id=excluded.owner_id, action_id=excluded.action_id,
			name=excluded.name, name_slug=excluded.name_slug,
			fire_time=excluded.fire_time, fire_date=excluded.fire_date,
			recurrences=excluded.recurrences, time_of_day=excluded.time_of_day,
			frequency=excluded.frequency,
			start_when_selected=excluded.start_when_selected,
			relative_value=excluded.relative_value,
			relative_unit=excluded.relative_unit,
			stop_on_complete=excluded.stop_on_complete,
			disabled=excluded.disabled`,
		t.ID, ownerID, t.ActionID, t.Name, t.NameSlug,
		fireTime, fireDate, recur, nullStr(string(t.TimeOfDay)), nullStr(string(t.Frequency)),
		boolInt(t.StartWhenSelected), t.RelativeValue, nullStr(string(t.RelativeUnit)),
		boolInt(t.StopOnComplete), boolInt(t.Disabled),
	)
	if err != nil {
		return err
	}

	// Keep the owner's profile timezone in sync when it rides along.
	if t.Owner != nil && strings.TrimSpace(t.Owner.Timezone) != "" {
		return s.SetTimezone(ctx, t.Owner.ID, t.Owner.Timezone)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) SetTimezone(ctx context.Context, userID int64, zone string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles(user_id, timezone) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET timezone=excluded.timezone`,
		userID, strings.TrimSpace(zone),
	)
	return err
}

func (s *sqliteStore) TimezoneFor(ctx context.Context, userID int64) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	var zone string
	err := s.db.QueryRowContext(ctx,
		`SELECT timezone FROM profiles WHERE user_id = ?`, userID).Scan(&zone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return zone, err
}

func (s *sqliteStore) SetCompleted(ctx context.Context, userID, actionID int64, done bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions(user_id, action_id, completed) VALUES(?,?,?)
		 ON CONFLICT(user_id, action_id) DO UPDATE SET completed=excluded.completed`,
		userID, actionID, boolInt(done),
	)
	return err
}

func (s *sqliteStore) HasCompletedAction(ctx context.Context, userID, actionID int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	var done int
	err := s.db.QueryRowContext(ctx,
		`SELECT completed FROM completions WHERE user_id = ? AND action_id = ?`,
		userID, actionID).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return done != 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*trigger.Trigger, error) {
	var (
		t        trigger.Trigger
		ownerID  sql.NullInt64
		fireTime sql.NullString
		fireDate sql.NullString
		recur    sql.NullString
		tod      sql.NullString
		freq     sql.NullString
		relUnit  sql.NullString
		ownerTZ  string
		sws      int
		stop     int
		disabled int
	)
	err := row.Scan(&t.ID, &ownerID, &t.ActionID, &t.Name, &t.NameSlug,
		&fireTime, &fireDate, &recur, &tod, &freq,
		&sws, &t.RelativeValue, &relUnit,
		&stop, &disabled, &ownerTZ)
	if err != nil {
		return nil, err
	}

	if ownerID.Valid {
		t.Owner = &trigger.User{ID: ownerID.Int64, Timezone: ownerTZ}
	}
	if fireTime.Valid && fireTime.String != "" {
		c, err := trigger.ParseClock(fireTime.String)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", t.ID, err)
		}
		t.Time = &c
	}
	if fireDate.Valid && fireDate.String != "" {
		d, err := trigger.ParseDate(fireDate.String)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", t.ID, err)
		}
		t.Date = &d
	}
	if recur.Valid && recur.String != "" {
		r, err := trigger.ParseRecurrence(recur.String)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", t.ID, err)
		}
		t.Recurrence = r
	}
	t.TimeOfDay = trigger.TimeOfDay(tod.String)
	t.Frequency = trigger.Frequency(freq.String)
	t.RelativeUnit = trigger.RelativeUnit(relUnit.String)
	t.StartWhenSelected = sws != 0
	t.StopOnComplete = stop != 0
	t.Disabled = disabled != 0

	t.Normalize()
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
