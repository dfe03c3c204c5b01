package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Item is one kept image with its unit-norm embedding.
type Item struct {
	JobID     string
	Query     string
	File      string
	SourceURL string
	Embedding []float32
}

// ItemIndex stores kept images and their embeddings in the curated_images
// table. The pool must have pgvector types registered.
type ItemIndex struct {
	pool *pgxpool.Pool
}

// NewItemIndex creates the curated_images table when missing. The
// embedding column is left unsized so any embedder dimension fits.
func NewItemIndex(ctx context.Context, pool *pgxpool.Pool) (*ItemIndex, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS curated_images (
			job_id VARCHAR(32) NOT NULL,
			file TEXT NOT NULL,
			query TEXT NOT NULL,
			source_url TEXT NOT NULL,
			embedding vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (job_id, file)
		)`); err != nil {
		return nil, fmt.Errorf("create curated_images table: %w", err)
	}
	return &ItemIndex{pool: pool}, nil
}

// StoreItems writes items in one transaction.
func (x *ItemIndex) StoreItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO curated_images (job_id, file, query, source_url, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (job_id, file) DO UPDATE SET
				query = EXCLUDED.query, source_url = EXCLUDED.source_url,
				embedding = EXCLUDED.embedding, created_at = NOW()
		`, it.JobID, it.File, it.Query, it.SourceURL, pgvector.NewVector(it.Embedding))
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
