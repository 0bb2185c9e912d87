package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"tiffinbill/internal/store"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	defaultTable = "app_state"

	sqliteFull = 13
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store persists records as rows of a single key/value table. The same
// queries serve sqlite and postgres through sqlx rebinding.
type Store struct {
	db     *sqlx.DB
	driver string
	table  string
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open(DriverPostgres, databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	return open(ctx, db, DriverPostgres)
}

// OpenSQLite opens (creating if needed) the sqlite database file at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; one connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	return open(ctx, db, DriverSQLite)
}

func open(ctx context.Context, db *sqlx.DB, driver string) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, driver: driver, table: defaultTable}
	if err := s.migrate(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s store: %w", driver, err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			state_key TEXT PRIMARY KEY,
			state_value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, s.table))
	return err
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind(fmt.Sprintf(`SELECT state_value FROM %s WHERE state_key = ?`, s.table)), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query := s.db.Rebind(fmt.Sprintf(`
		INSERT INTO %s (state_key, state_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (state_key) DO UPDATE SET state_value = excluded.state_value, updated_at = excluded.updated_at
	`, s.table))
	if _, err := s.db.ExecContext(ctx, query, key, string(value), time.Now().UTC()); err != nil {
		return s.classify(fmt.Errorf("set %s: %w", key, err))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE state_key IN (?)`, s.table), keys)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

// classify maps engine-specific "out of space" failures onto ErrQuotaExceeded.
func (s *Store) classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "53100", "54000":
			return fmt.Errorf("%w: %w", store.ErrQuotaExceeded, err)
		}
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqliteFull {
		return fmt.Errorf("%w: %w", store.ErrQuotaExceeded, err)
	}
	return err
}
