package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultTable = "hydromon_settings"

var tableName = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)

type postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres returns a store that keeps settings as key/value rows in a
// PostgreSQL table. The table is created if it does not exist.
func NewPostgres(ctx context.Context, psqlInfo, table string) (Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid settings table name: %s", table)
	}
	pool, err := pgxpool.New(ctx, psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to settings database: %w", err)
	}
	s := &postgres{pool: pool, table: table}
	if _, err := pool.Exec(ctx, s.createTableQuery()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}
	return s, nil
}

func (s *postgres) createTableQuery() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL DEFAULT now())", s.table)
}

func (s *postgres) upsertQuery() string {
	builder := new(strings.Builder)
	builder.WriteString(fmt.Sprintf("INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())", s.table))
	builder.WriteString(" ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at")
	return builder.String()
}

func (s *postgres) get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT value FROM %s WHERE key = $1", s.table), key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *postgres) set(ctx context.Context, key, value string) error {
	if _, err := s.pool.Exec(ctx, s.upsertQuery(), key, value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

func (s *postgres) NotificationsEnabled(ctx context.Context) (bool, error) {
	v, ok, err := s.get(ctx, KeyNotificationsEnabled)
	if err != nil || !ok {
		return true, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true, fmt.Errorf("invalid value for %s: %q", KeyNotificationsEnabled, v)
	}
	return enabled, nil
}

func (s *postgres) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return s.set(ctx, KeyNotificationsEnabled, strconv.FormatBool(enabled))
}

func (s *postgres) LastNotificationSent(ctx context.Context) (time.Time, error) {
	v, ok, err := s.get(ctx, KeyLastNotificationTime)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid value for %s: %q", KeyLastNotificationTime, v)
	}
	return fromMillis(ms), nil
}

func (s *postgres) SetLastNotificationSent(ctx context.Context, t time.Time) error {
	return s.set(ctx, KeyLastNotificationTime, strconv.FormatInt(toMillis(t), 10))
}

func (s *postgres) Close() error {
	s.pool.Close()
	return nil
}
