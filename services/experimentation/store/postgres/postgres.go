// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package postgres implements the experiment store on PostgreSQL via pgx.
//
// The unique index on assignments(experiment_id, user_id) is what serializes
// first-time assignment: PutAssignment inserts with ON CONFLICT DO NOTHING
// and reads the winner back, so concurrent requests for the same user always
// converge on one variant. Backend errors are classified into the store
// sentinel errors at this boundary; pgx error text never reaches callers.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
	"github.com/AleutianAI/fawkes/services/experimentation/store"
)

// uniqueViolation is the Postgres error code for duplicate unique keys.
const uniqueViolation = "23505"

// schema is applied on startup. CREATE IF NOT EXISTS keeps it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	id                 text PRIMARY KEY,
	name               text NOT NULL,
	description        text NOT NULL,
	hypothesis         text NOT NULL,
	status             text NOT NULL DEFAULT 'draft',
	variants           jsonb NOT NULL,
	metrics            jsonb NOT NULL,
	target_sample_size int NOT NULL,
	significance_level double precision NOT NULL,
	traffic_allocation double precision NOT NULL,
	created_at         timestamptz NOT NULL,
	started_at         timestamptz,
	stopped_at         timestamptz
);
CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments (status);

CREATE TABLE IF NOT EXISTS assignments (
	experiment_id text NOT NULL REFERENCES experiments (id) ON DELETE CASCADE,
	user_id       text NOT NULL,
	variant       text NOT NULL,
	context       jsonb,
	assigned_at   timestamptz NOT NULL,
	PRIMARY KEY (experiment_id, user_id)
);

CREATE TABLE IF NOT EXISTS events (
	id            bigserial PRIMARY KEY,
	experiment_id text NOT NULL REFERENCES experiments (id) ON DELETE CASCADE,
	user_id       text NOT NULL,
	variant       text NOT NULL,
	event_name    text NOT NULL,
	value         double precision NOT NULL DEFAULT 1.0,
	ts            timestamptz NOT NULL,
	FOREIGN KEY (experiment_id, user_id) REFERENCES assignments (experiment_id, user_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_experiment ON events (experiment_id, variant);
`

// DB implements store.Store on a pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres, applies the schema, and returns the store.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	logger.Info("connected to experiment store", "backend", "postgres")
	return &DB{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) CreateExperiment(ctx context.Context, exp *datatypes.Experiment) error {
	if err := datatypes.ValidateVariants(exp.Variants); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	variants, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("postgres: encode variants: %w", err)
	}
	metrics, err := json.Marshal(exp.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: encode metrics: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO experiments
		 (id, name, description, hypothesis, status, variants, metrics,
		  target_sample_size, significance_level, traffic_allocation,
		  created_at, started_at, stopped_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		exp.ID, exp.Name, exp.Description, exp.Hypothesis, exp.Status,
		variants, metrics, exp.TargetSampleSize, exp.SignificanceLevel,
		exp.TrafficAllocation, exp.CreatedAt, exp.StartedAt, exp.StoppedAt,
	)
	return db.classify(err, "create experiment")
}

func (db *DB) GetExperiment(ctx context.Context, id string) (*datatypes.Experiment, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, name, description, hypothesis, status, variants, metrics,
		        target_sample_size, significance_level, traffic_allocation,
		        created_at, started_at, stopped_at
		 FROM experiments WHERE id = $1`, id)
	exp, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: experiment %s", store.ErrNotFound, id)
		}
		return nil, db.classify(err, "get experiment")
	}
	return exp, nil
}

func (db *DB) ListExperiments(ctx context.Context, filter store.ListFilter) ([]datatypes.Experiment, int, error) {
	var total int
	countQ := `SELECT count(*) FROM experiments`
	listQ := `SELECT id, name, description, hypothesis, status, variants, metrics,
	                 target_sample_size, significance_level, traffic_allocation,
	                 created_at, started_at, stopped_at
	          FROM experiments`

	args := []any{}
	if filter.Status != "" {
		countQ += ` WHERE status = $1`
		listQ += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	if err := db.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, db.classify(err, "count experiments")
	}

	listQ += fmt.Sprintf(` ORDER BY created_at OFFSET $%d`, len(args)+1)
	args = append(args, filter.Skip)
	if filter.Limit > 0 {
		listQ += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, filter.Limit)
	}

	rows, err := db.pool.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, db.classify(err, "list experiments")
	}
	defer rows.Close()

	var out []datatypes.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, 0, db.classify(err, "scan experiment")
		}
		out = append(out, *exp)
	}
	return out, total, rows.Err()
}

func (db *DB) UpdateExperiment(ctx context.Context, exp *datatypes.Experiment) error {
	if err := datatypes.ValidateVariants(exp.Variants); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	variants, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("postgres: encode variants: %w", err)
	}
	metrics, err := json.Marshal(exp.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: encode metrics: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE experiments SET
		   name=$2, description=$3, hypothesis=$4, status=$5, variants=$6,
		   metrics=$7, target_sample_size=$8, significance_level=$9,
		   traffic_allocation=$10, started_at=$11, stopped_at=$12
		 WHERE id = $1`,
		exp.ID, exp.Name, exp.Description, exp.Hypothesis, exp.Status,
		variants, metrics, exp.TargetSampleSize, exp.SignificanceLevel,
		exp.TrafficAllocation, exp.StartedAt, exp.StoppedAt,
	)
	if err != nil {
		return db.classify(err, "update experiment")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: experiment %s", store.ErrNotFound, exp.ID)
	}
	return nil
}

func (db *DB) DeleteExperiment(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM experiments WHERE id = $1`, id)
	if err != nil {
		return db.classify(err, "delete experiment")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: experiment %s", store.ErrNotFound, id)
	}
	return nil
}

func (db *DB) GetAssignment(ctx context.Context, experimentID, userID string) (*datatypes.Assignment, error) {
	var a datatypes.Assignment
	var rawCtx []byte
	err := db.pool.QueryRow(ctx,
		`SELECT experiment_id, user_id, variant, context, assigned_at
		 FROM assignments WHERE experiment_id = $1 AND user_id = $2`,
		experimentID, userID,
	).Scan(&a.ExperimentID, &a.UserID, &a.Variant, &rawCtx, &a.AssignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: assignment %s/%s", store.ErrNotFound, experimentID, userID)
		}
		return nil, db.classify(err, "get assignment")
	}
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &a.Context); err != nil {
			return nil, fmt.Errorf("postgres: decode assignment context: %w", err)
		}
	}
	return &a, nil
}

func (db *DB) PutAssignment(ctx context.Context, a *datatypes.Assignment) (*datatypes.Assignment, error) {
	rawCtx, err := json.Marshal(a.Context)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode assignment context: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO assignments (experiment_id, user_id, variant, context, assigned_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (experiment_id, user_id) DO NOTHING`,
		a.ExperimentID, a.UserID, a.Variant, rawCtx, a.AssignedAt,
	)
	if err != nil {
		return nil, db.classify(err, "put assignment")
	}

	// The insert may have lost the race; the stored row is authoritative.
	return db.GetAssignment(ctx, a.ExperimentID, a.UserID)
}

func (db *DB) AppendEvent(ctx context.Context, e *datatypes.Event) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO events (experiment_id, user_id, variant, event_name, value, ts)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ExperimentID, e.UserID, e.Variant, e.EventName, e.Value, e.Timestamp,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign key violation
		return fmt.Errorf("%w: %s/%s", store.ErrOrphanEvent, e.ExperimentID, e.UserID)
	}
	return db.classify(err, "append event")
}

func (db *DB) SummarizePerVariant(ctx context.Context, experimentID string, metrics []string) (map[string]datatypes.VariantSummary, error) {
	if _, err := db.GetExperiment(ctx, experimentID); err != nil {
		return nil, err
	}

	summaries := make(map[string]datatypes.VariantSummary)

	rows, err := db.pool.Query(ctx,
		`SELECT variant, count(*) FROM assignments
		 WHERE experiment_id = $1 GROUP BY variant`, experimentID)
	if err != nil {
		return nil, db.classify(err, "summarize assignments")
	}
	defer rows.Close()
	for rows.Next() {
		var variant string
		var n int
		if err := rows.Scan(&variant, &n); err != nil {
			return nil, db.classify(err, "scan assignment counts")
		}
		sum := summaries[variant]
		sum.SampleSize = n
		summaries[variant] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, db.classify(err, "summarize assignments")
	}

	convRows, err := db.pool.Query(ctx,
		`SELECT variant, count(DISTINCT user_id) FROM events
		 WHERE experiment_id = $1 AND event_name = ANY($2) GROUP BY variant`,
		experimentID, metrics)
	if err != nil {
		return nil, db.classify(err, "summarize conversions")
	}
	defer convRows.Close()
	for convRows.Next() {
		var variant string
		var n int
		if err := convRows.Scan(&variant, &n); err != nil {
			return nil, db.classify(err, "scan conversions")
		}
		sum := summaries[variant]
		sum.Conversions = n
		summaries[variant] = sum
	}
	if err := convRows.Err(); err != nil {
		return nil, db.classify(err, "summarize conversions")
	}

	valRows, err := db.pool.Query(ctx,
		`SELECT variant, value FROM events
		 WHERE experiment_id = $1 AND event_name = ANY($2)`,
		experimentID, metrics)
	if err != nil {
		return nil, db.classify(err, "summarize values")
	}
	defer valRows.Close()
	for valRows.Next() {
		var variant string
		var value float64
		if err := valRows.Scan(&variant, &value); err != nil {
			return nil, db.classify(err, "scan values")
		}
		sum := summaries[variant]
		sum.Values = append(sum.Values, value)
		summaries[variant] = sum
	}
	return summaries, valRows.Err()
}

// classify folds pgx errors into the store's sentinel kinds. The original
// error is logged, not returned, so backend text never leaks to callers.
func (db *DB) classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, op)
	}
	db.logger.Error("experiment store operation failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s", store.ErrUnavailable, op)
}

// scanExperiment decodes one experiments row from either a Row or Rows.
func scanExperiment(row pgx.Row) (*datatypes.Experiment, error) {
	var exp datatypes.Experiment
	var variants, metrics []byte
	err := row.Scan(&exp.ID, &exp.Name, &exp.Description, &exp.Hypothesis,
		&exp.Status, &variants, &metrics, &exp.TargetSampleSize,
		&exp.SignificanceLevel, &exp.TrafficAllocation,
		&exp.CreatedAt, &exp.StartedAt, &exp.StoppedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variants, &exp.Variants); err != nil {
		return nil, fmt.Errorf("decode variants: %w", err)
	}
	if err := json.Unmarshal(metrics, &exp.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &exp, nil
}
