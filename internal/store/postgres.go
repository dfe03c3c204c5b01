package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/tendant/simple-curator/internal/jobs"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id VARCHAR(32) PRIMARY KEY,
	query TEXT NOT NULL,
	request_limit INTEGER NOT NULL,
	out_dir TEXT NOT NULL,
	status VARCHAR(32) NOT NULL,
	count INTEGER,
	error TEXT,
	log TEXT,
	started_at TEXT,
	finished_at TEXT
)`

const upsertJob = `
INSERT INTO jobs (id, query, request_limit, out_dir, status, count, error, log, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	query = EXCLUDED.query,
	request_limit = EXCLUDED.request_limit,
	out_dir = EXCLUDED.out_dir,
	status = EXCLUDED.status,
	count = EXCLUDED.count,
	error = EXCLUDED.error,
	log = EXCLUDED.log,
	started_at = EXCLUDED.started_at,
	finished_at = EXCLUDED.finished_at`

// OpenPool connects to PostgreSQL. An empty url falls back to the PG*
// environment variables. withVector creates the vector extension and
// registers its types on every connection.
func OpenPool(ctx context.Context, url string, withVector bool) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if withVector {
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
				return fmt.Errorf("create vector extension: %w", err)
			}
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Postgres stores jobs in the jobs table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres ensures the jobs table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, jobsSchema); err != nil {
		return nil, fmt.Errorf("create jobs table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) List(ctx context.Context) ([]jobs.Job, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, query, request_limit, out_dir, status, count, error, log, started_at, finished_at
		FROM jobs`)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		var (
			j                 jobs.Job
			status            string
			count             *int32
			errText, logText  *string
			started, finished *string
		)
		if err := rows.Scan(&j.ID, &j.Query, &j.Limit, &j.OutDir, &status, &count, &errText, &logText, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Status = jobs.Status(status)
		if count != nil {
			c := int(*count)
			j.Count = &c
		}
		j.Error = deref(errText)
		j.Log = deref(logText)
		if started != nil {
			if t, err := parseTimestamp(*started); err == nil {
				j.StartedAt = t
			}
		}
		if finished != nil {
			if t, err := parseTimestamp(*finished); err == nil {
				j.FinishedAt = &t
			}
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return sortedSlice(out), nil
}

func (p *Postgres) UpsertAll(ctx context.Context, records []jobs.Job) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, j := range records {
		batch.Queue(upsertJob, jobArgs(j)...)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	return nil
}

func (p *Postgres) MigrateLegacyIfEmpty(ctx context.Context, legacyPath string) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	legacy, err := LoadLegacy(legacyPath)
	if err != nil || len(legacy) == 0 {
		return 0, err
	}
	if err := p.UpsertAll(ctx, legacy); err != nil {
		return 0, fmt.Errorf("import legacy jobs: %w", err)
	}
	return len(legacy), nil
}

func jobArgs(j jobs.Job) []any {
	var count *int
	if j.Count != nil {
		c := *j.Count
		count = &c
	}
	var errText, logText *string
	if j.Error != "" {
		errText = &j.Error
	}
	if j.Log != "" {
		logText = &j.Log
	}
	var finished *string
	if j.FinishedAt != nil {
		f := formatTimestamp(*j.FinishedAt)
		finished = &f
	}
	return []any{
		j.ID, j.Query, j.Limit, j.OutDir, string(j.Status),
		count, errText, logText, formatTimestamp(j.StartedAt), finished,
	}
}

func sortedSlice(list []jobs.Job) []jobs.Job {
	m := make(map[string]jobs.Job, len(list))
	for _, j := range list {
		m[j.ID] = j
	}
	return sortedJobs(m)
}
