// Package curate turns a search query into a folder of visually coherent
// images. Candidates are downloaded, quality filtered and embedded; the
// embeddings are clustered and only the largest cluster is kept.
package curate

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tendant/simple-curator/internal/download"
	"github.com/tendant/simple-curator/internal/embed"
	"github.com/tendant/simple-curator/internal/img"
	"github.com/tendant/simple-curator/internal/source"
	"github.com/tendant/simple-curator/internal/store"
	"github.com/tendant/simple-curator/pkg/schema"
)

const (
	DefaultEps        = 0.18
	DefaultMinSamples = 3
)

// Downloader fetches one candidate.
type Downloader interface {
	Fetch(ctx context.Context, url string) (*download.Image, error)
}

// ItemSink receives the kept images of a run.
type ItemSink interface {
	StoreItems(ctx context.Context, items []store.Item) error
}

type Request struct {
	JobID  string
	Query  string
	Limit  int
	OutDir string
}

type Result struct {
	Candidates int
	Downloaded int
	Accepted   int
	Embedded   int
	Clusters   int
	// Label is the kept cluster, or Noise when nothing was kept.
	Label           int
	Kept            int
	NoCoherentGroup bool
	Entries         []schema.ManifestEntry
}

type Pipeline struct {
	source     source.Source
	downloader Downloader
	embedder   embed.Embedder
	filter     img.QualityFilter
	eps        float64
	minSamples int
	sink       ItemSink
	logger     *slog.Logger
}

type Option func(*Pipeline)

func WithFilter(f img.QualityFilter) Option {
	return func(p *Pipeline) { p.filter = f }
}

func WithClustering(eps float64, minSamples int) Option {
	return func(p *Pipeline) {
		if eps > 0 {
			p.eps = eps
		}
		if minSamples > 0 {
			p.minSamples = minSamples
		}
	}
}

func WithSink(s ItemSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(src source.Source, dl Downloader, emb embed.Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:     src,
		downloader: dl,
		embedder:   emb,
		filter:     img.DefaultQualityFilter(),
		eps:        DefaultEps,
		minSamples: DefaultMinSamples,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type item struct {
	candidate schema.Candidate
	image     image.Image
	unit      []float32
	vector    []float64
}

// Run executes one collection. Only a source failure, a cancelled context or
// a write failure is an error; a run that keeps nothing is not.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{Label: Noise}
	logger := p.logger.With("query", req.Query)
	if req.Limit <= 0 {
		return res, fmt.Errorf("limit must be positive")
	}

	candidates, err := p.source.Fetch(ctx, req.Query, 2*req.Limit)
	if err != nil {
		return res, fmt.Errorf("fetch candidates: %w", err)
	}
	res.Candidates = len(candidates)
	logger.Info("candidates found", "count", len(candidates), "source", p.source.Name())

	var items []item
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		it, ok := p.prepare(ctx, c, &res)
		if !ok {
			continue
		}
		items = append(items, it)
		logger.Debug("candidate embedded", "url", c.URL, "processed", len(items))
	}
	res.Embedded = len(items)

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	mf, err := CreateManifest(req.OutDir)
	if err != nil {
		return res, err
	}
	err = p.keep(ctx, req, items, mf, &res)
	if cerr := mf.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close manifest: %w", cerr)
	}
	return res, err
}

// keep clusters the embedded items and saves the majority cluster, appending
// each saved file to the manifest.
func (p *Pipeline) keep(ctx context.Context, req Request, items []item, mf *ManifestWriter, res *Result) error {
	logger := p.logger.With("query", req.Query)
	if len(items) == 0 {
		logger.Warn("no usable images")
		return nil
	}

	vectors := make([][]float64, len(items))
	for i, it := range items {
		vectors[i] = it.vector
	}
	labels := DBSCAN(vectors, p.eps, p.minSamples)
	res.Clusters = ClusterCount(labels)

	best, ok := Majority(labels)
	if !ok {
		res.NoCoherentGroup = true
		logger.Warn("no coherent group found", "embedded", len(items))
		return nil
	}
	res.Label = best
	logger.Info("majority cluster selected", "label", best, "clusters", res.Clusters)

	var kept []store.Item
	for i, it := range items {
		if res.Kept >= req.Limit {
			break
		}
		if labels[i] != best {
			continue
		}
		name := ImageName(res.Kept + 1)
		if err := img.SaveJPEG(it.image, filepath.Join(req.OutDir, name)); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		entry := schema.ManifestEntry{
			Query:  req.Query,
			File:   name,
			Source: p.source.Name(),
		}
		if err := mf.Append(entry); err != nil {
			return err
		}
		res.Kept++
		res.Entries = append(res.Entries, entry)
		kept = append(kept, store.Item{
			JobID:     req.JobID,
			Query:     req.Query,
			File:      name,
			SourceURL: it.candidate.URL,
			Embedding: it.unit,
		})
	}

	if p.sink != nil && len(kept) > 0 {
		if err := p.sink.StoreItems(ctx, kept); err != nil {
			logger.Warn("index kept items failed", "err", err)
		}
	}
	return nil
}

// prepare downloads, filters and embeds one candidate. Any failure drops the
// candidate.
func (p *Pipeline) prepare(ctx context.Context, c schema.Candidate, res *Result) (item, bool) {
	dl, err := p.downloader.Fetch(ctx, c.URL)
	if err != nil {
		return item{}, false
	}
	decoded, err := img.DecodeBytes(dl.Data)
	if err != nil {
		return item{}, false
	}
	res.Downloaded++

	if !p.filter.Accept(decoded) {
		return item{}, false
	}
	res.Accepted++

	raw, err := p.embedder.Embed(ctx, decoded)
	if err != nil {
		return item{}, false
	}
	vec, ok := Normalize(raw)
	if !ok {
		return item{}, false
	}

	unit := make([]float32, len(vec))
	for i, v := range vec {
		unit[i] = float32(v)
	}
	return item{candidate: c, image: decoded, unit: unit, vector: vec}, true
}
