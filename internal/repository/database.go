package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrStorageConflict marks a concurrent write conflict (serialization failure
// or deadlock) detected at the transaction boundary. InTx retries it once; the
// single-writer pipeline should never hit it twice.
var ErrStorageConflict = errors.New("storage conflict")

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// repository works both on the pool and inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// repos bundles the per-table repositories bound to one Querier.
type repos struct {
	Meta    *MetaRepository
	Teams   *TeamRepository
	Players *PlayerRepository
	Rosters *RosterRepository
	Games   *GameRepository
	Drives  *DriveRepository
	Plays   *PlayRepository
	Stats   *StatRepository
}

func newRepos(q Querier) repos {
	return repos{
		Meta:    &MetaRepository{q: q},
		Teams:   &TeamRepository{q: q},
		Players: &PlayerRepository{q: q},
		Rosters: &RosterRepository{q: q},
		Games:   &GameRepository{q: q},
		Drives:  &DriveRepository{q: q},
		Plays:   &PlayRepository{q: q},
		Stats:   &StatRepository{q: q},
	}
}

// Database holds the connection pool and pool-scoped repositories. Reads run
// directly on the pool; pipeline writes go through InTx so one poll cycle
// commits atomically or not at all.
type Database struct {
	Pool *pgxpool.Pool
	repos
}

// Tx exposes the same repositories bound to a single transaction.
type Tx struct {
	tx pgx.Tx
	repos
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDatabase creates a new database connection pool and initializes repositories
func NewDatabase(ctx context.Context, cfg Config) (*Database, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Successfully connected to database")

	return &Database{
		Pool:  pool,
		repos: newRepos(pool),
	}, nil
}

// InTx runs fn inside a transaction, committing only if fn returns nil.
// Serialization failures and deadlocks surface as ErrStorageConflict and are
// retried once before being returned.
func (db *Database) InTx(ctx context.Context, fn func(*Tx) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = db.runTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrStorageConflict) {
			return err
		}
		log.Warn().Err(err).Msg("Storage conflict, retrying transaction")
	}
	return err
}

func (db *Database) runTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Tx{tx: tx, repos: newRepos(tx)}); err != nil {
		return asConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return asConflict(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// asConflict maps Postgres serialization_failure and deadlock_detected onto
// ErrStorageConflict, preserving the original error chain.
func asConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", ErrStorageConflict, err)
		}
	}
	return err
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Health checks if the database is healthy
func (db *Database) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// PoolStats returns database pool statistics
func (db *Database) PoolStats() map[string]interface{} {
	stat := db.Pool.Stat()
	return map[string]interface{}{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
	}
}
