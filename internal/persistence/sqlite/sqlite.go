package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/persistence/sqlite/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const defaultPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// goose keeps its configuration in package globals.
var migrateMu sync.Mutex

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// Storage is the SQLite cache shared by every repository. Writers take the
// lock exclusively while readers share it.
type Storage struct {
	mu    sync.RWMutex
	db    *sqlx.DB
	retry RetryConfig
	now   func() time.Time
}

var (
	_ persistence.UserRepository     = (*Storage)(nil)
	_ persistence.ImageRepository    = (*Storage)(nil)
	_ persistence.CalendarRepository = (*Storage)(nil)
	_ persistence.BoardRepository    = (*Storage)(nil)
	_ persistence.EventRepository    = (*Storage)(nil)
	_ persistence.SnapshotRepository = (*Storage)(nil)
	_ persistence.SyncRunRepository  = (*Storage)(nil)
	_ persistence.SalesRepository    = (*Storage)(nil)
)

// Open connects to the SQLite database at dsn. Connection pragmas enabling
// foreign keys, a busy timeout and WAL journaling are appended unless the dsn
// already carries its own.
func Open(dsn string) (*Storage, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: dsn is required")
	}

	db, err := sqlx.Open(driverName, withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	if strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: would otherwise see its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", dsn, err)
	}

	return &Storage{db: db, retry: DefaultRetryConfig(), now: time.Now}, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + defaultPragmas
	}
	return dsn + "?" + defaultPragmas
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies every pending embedded migration.
func (s *Storage) Migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: select migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, "."); err != nil {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return nil
}

// replaceAll deletes every row of table and inserts the new rows produced by
// fill inside one transaction, so readers never see a partially synced table.
func (s *Storage) replaceAll(ctx context.Context, table string, fill TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", table, err)
		}
		return fill(tx)
	})
}

func insertRows[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return err
		}
	}
	return nil
}
