// Package database persists the per-attempt audit trail to Postgres.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"lead-submitter/pkg/models"
)

type DB struct {
	*bun.DB
}

func NewDB() (*DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		viper.GetString("database.user"),
		viper.GetString("database.password"),
		viper.GetString("database.host"),
		viper.GetInt("database.port"),
		viper.GetString("database.dbname"),
		viper.GetString("database.sslmode"),
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &DB{db}, nil
}

// InitSchema creates the attempts table and its indexes if they don't exist.
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.NewCreateTable().
		Model((*models.Attempt)(nil)).
		IfNotExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create attempts table: %v", err)
	}

	_, err = db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = 'attempts' AND indexname = 'attempts_submission_id_idx') THEN
				CREATE INDEX attempts_submission_id_idx ON attempts (submission_id);
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = 'attempts' AND indexname = 'attempts_zip_idx') THEN
				CREATE INDEX attempts_zip_idx ON attempts (zip);
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = 'attempts' AND indexname = 'attempts_started_at_idx') THEN
				CREATE INDEX attempts_started_at_idx ON attempts (started_at);
			END IF;
		END $$;
	`)

	if err != nil {
		return fmt.Errorf("failed to create indexes: %v", err)
	}

	return nil
}

// InsertAttempt saves one sealed attempt record.
func (db *DB) InsertAttempt(ctx context.Context, attempt *models.Attempt) error {
	_, err := db.NewInsert().
		Model(attempt).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error inserting attempt: %v", err)
	}

	return nil
}

// RecentAttempts returns the latest attempts, optionally filtered to one
// zip, newest first.
func (db *DB) RecentAttempts(ctx context.Context, zip string, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}

	var attempts []models.Attempt
	q := db.NewSelect().Model(&attempts)
	if zip != "" {
		q = q.Where("zip = ?", zip)
	}
	err := q.Order("started_at DESC").Limit(limit).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting recent attempts: %v", err)
	}

	return attempts, nil
}

// FailureStats returns attempt counts grouped by failure kind over the
// given window.
func (db *DB) FailureStats(ctx context.Context, window time.Duration) (map[string]int, error) {
	var rows []struct {
		FailureKind string `bun:"failure_kind"`
		Count       int    `bun:"count"`
	}
	err := db.NewSelect().
		Model((*models.Attempt)(nil)).
		Column("failure_kind").
		ColumnExpr("count(*) as count").
		Where("started_at > ?", time.Now().Add(-window)).
		Group("failure_kind").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("error getting failure stats: %v", err)
	}

	stats := make(map[string]int, len(rows))
	for _, r := range rows {
		kind := r.FailureKind
		if kind == "" {
			kind = "success"
		}
		stats[kind] = r.Count
	}
	return stats, nil
}
