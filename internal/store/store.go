// Package store implements the Entity Store Adapters (spec §4.10, C10):
// typed Postgres repositories with create/get/list/update per entity.
// Grounded on the teacher's internal/repository/message_repository.go
// (database/sql + lib/pq + pkg/errors + promauto metrics, prepared
// statements for hot paths), generalized from one messages table to the
// gateway's entity set (spec §6.2) and carrying golang-migrate for schema
// bootstrap (the teacher's go.mod already required it, unused).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keyquest/wa-gateway/internal/config"
)

var (
	storeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wagw_store_operations_total",
			Help: "Total number of store operations by repository, operation, and status.",
		},
		[]string{"repo", "operation", "status"},
	)

	storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wagw_store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"repo", "operation"},
	)
)

const defaultQueryTimeout = 10 * time.Second

// Store aggregates all entity repositories over a single connection pool.
type Store struct {
	db *sql.DB

	Workflows          *WorkflowRepository
	Templates          *TemplateRepository
	ContactLists       *ContactListRepository
	Bankers            *BankerRepository
	Valuations         *ValuationRepository
	Broadcasts         *BroadcastRepository
}

// Open connects to Postgres, applies pending migrations, and wires every
// repository over the shared pool.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to reach database")
	}

	if cfg.MigrationsPath != "" {
		if err := applyMigrations(db, cfg.MigrationsPath); err != nil {
			return nil, errors.Wrap(err, "failed to apply migrations")
		}
	}

	return &Store{
		db:           db,
		Workflows:    &WorkflowRepository{db: db},
		Templates:    &TemplateRepository{db: db},
		ContactLists: &ContactListRepository{db: db},
		Bankers:      &BankerRepository{db: db},
		Valuations:   &ValuationRepository{db: db},
		Broadcasts:   &BroadcastRepository{db: db},
	}, nil
}

// NewWithDB wires every repository over an already-open *sql.DB, skipping
// the connect/migrate steps Open performs. Intended for tests that inject a
// sqlmock.New() connection.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:           db,
		Workflows:    &WorkflowRepository{db: db},
		Templates:    &TemplateRepository{db: db},
		ContactLists: &ContactListRepository{db: db},
		Bankers:      &BankerRepository{db: db},
		Valuations:   &ValuationRepository{db: db},
		Broadcasts:   &BroadcastRepository{db: db},
	}
}

func applyMigrations(db *sql.DB, sourceURL string) error {
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to construct migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to construct migrator")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports store health for the /health endpoint (spec §6.3).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func observe(repo, op string, start time.Time, err error) {
	storeOpDuration.WithLabelValues(repo, op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	storeOps.WithLabelValues(repo, op, status).Inc()
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505). No repository calls it: the contact and
// broadcast-execution inserts treat duplicate keys as idempotent success
// through ON CONFLICT ... DO NOTHING instead (spec §7, StoreError note).
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return pqErr.Code == "23505"
}
