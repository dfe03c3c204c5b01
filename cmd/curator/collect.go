package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tendant/simple-curator/internal/curate"
	"github.com/tendant/simple-curator/internal/download"
	"github.com/tendant/simple-curator/internal/embed"
	"github.com/tendant/simple-curator/internal/source"
	"github.com/tendant/simple-curator/internal/store"
	"github.com/tendant/simple-curator/internal/supervise"
)

// runCollect executes one curation run. Logs go to stderr; stdout carries
// only the done marker.
func runCollect(ctx context.Context, cfg config, req curate.Request, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, cfg.LogFormat, cfg.LogLevel).With("job_id", req.JobID)

	p, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("build pipeline", "err", err)
		return err
	}
	defer cleanup()

	logger.Info("collection started", "query", req.Query, "limit", req.Limit, "out_dir", req.OutDir)
	res, err := p.Run(ctx, req)
	if err != nil {
		logger.Error("collection failed", "err", err)
		return err
	}
	logger.Info("collection finished",
		"candidates", res.Candidates,
		"downloaded", res.Downloaded,
		"accepted", res.Accepted,
		"embedded", res.Embedded,
		"clusters", res.Clusters,
		"kept", res.Kept,
		"no_coherent_group", res.NoCoherentGroup,
	)
	fmt.Fprintln(stdout, curate.DoneMarker(res.Kept, req.OutDir))
	return nil
}

func buildPipeline(ctx context.Context, cfg config, logger *slog.Logger) (*curate.Pipeline, func(), error) {
	var src source.Source
	if cfg.SourceList != "" {
		list, err := source.LoadList(cfg.SourceList, cfg.SourceName)
		if err != nil {
			return nil, nil, err
		}
		src = list
	} else {
		src = source.NewHTML(cfg.SearchURL, cfg.SourceName)
	}

	var emb embed.Embedder
	if cfg.EmbedEndpoint != "" {
		emb = embed.NewHTTP(cfg.EmbedEndpoint, cfg.EmbedAPIKey, cfg.EmbedModel)
	} else {
		logger.Warn("EMBED_ENDPOINT not set, clustering on pixel embeddings")
		emb = embed.NewPixel()
	}

	opts := []curate.Option{
		curate.WithFilter(cfg.qualityFilter()),
		curate.WithClustering(cfg.ClusterEps, cfg.MinClusterSize),
		curate.WithLogger(logger),
	}
	cleanup := func() {}
	if cfg.IndexEmbeddings {
		pool, err := store.OpenPool(ctx, cfg.DatabaseURL, true)
		if err != nil {
			return nil, nil, fmt.Errorf("open item index: %w", err)
		}
		idx, err := store.NewItemIndex(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		opts = append(opts, curate.WithSink(idx))
		cleanup = pool.Close
	}

	dl := download.NewClient(download.WithRate(cfg.DownloadRate))
	return curate.New(src, dl, emb, opts...), cleanup, nil
}

// collectTask runs collections in-process for CURATOR_RUNNER=task.
func collectTask(cfg config) supervise.TaskFunc {
	return func(ctx context.Context, req supervise.Request, stdout, stderr io.Writer) error {
		return runCollect(ctx, cfg, curate.Request{
			JobID:  req.JobID,
			Query:  req.Query,
			Limit:  req.Limit,
			OutDir: req.OutDir,
		}, stdout, stderr)
	}
}
