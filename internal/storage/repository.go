package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// dsn enables foreign keys and makes every transaction take the write lock at BEGIN,
// so concurrent writers queue on busy_timeout instead of failing on lock upgrade.
func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepository(db), nil
}

// NewRepository wraps an already opened and migrated database.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable; used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Queries returns the non-transactional statements.
func (r *SQLiteRepository) Queries() *Queries {
	return r.queries
}

// Tx runs fn inside one transaction, committing only when fn returns nil.
func (r *SQLiteRepository) Tx(ctx context.Context, fn func(q *Queries) error) error {
	return runTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(r.queries.WithTx(tx))
	})
}

// Scoped returns the household-bound view of the store.
func (r *SQLiteRepository) Scoped(householdID int64) *Scope {
	return &Scope{db: r.db, householdID: householdID}
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Scope carries a household id; every statement issued through it filters on that household.
type Scope struct {
	db          *sql.DB
	householdID int64
}

func (s *Scope) HouseholdID() int64 { return s.householdID }

// Tx runs fn in one transaction.
func (s *Scope) Tx(ctx context.Context, fn func(u *UnitOfWork) error) error {
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&UnitOfWork{db: tx, householdID: s.householdID})
	})
}

// View runs fn without a transaction, for reads.
func (s *Scope) View(ctx context.Context, fn func(u *UnitOfWork) error) error {
	return fn(&UnitOfWork{db: s.db, householdID: s.householdID})
}

// UnitOfWork is the household-bound statement set of one Scope.Tx or Scope.View call.
type UnitOfWork struct {
	db          DBTX
	householdID int64
}

func (u *UnitOfWork) HouseholdID() int64 { return u.householdID }

// ForHousehold binds the current connection or transaction to a household,
// used when a household is created and seeded in the same transaction.
func (q *Queries) ForHousehold(householdID int64) *UnitOfWork {
	return &UnitOfWork{db: q.db, householdID: householdID}
}
