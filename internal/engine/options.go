package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-curator/internal/metrics"
	"github.com/tendant/simple-curator/pkg/schema"
)

const (
	DefaultOutBase     = "data/collected"
	DefaultWorkers     = 2
	DefaultMaxLimit    = 500
	DefaultRunTimeout  = 600 * time.Second
	DefaultCancelGrace = 10 * time.Second
)

type Config struct {
	// Root is the project directory. Job output must resolve inside it.
	Root           string
	DefaultOutBase string
	Workers        int
	MaxLimit       int
	RunTimeout     time.Duration
	CancelGrace    time.Duration
	// LegacyPath is imported into an empty store on Open when set.
	LegacyPath string
}

func (c Config) withDefaults() Config {
	if c.Root == "" {
		c.Root = "."
	}
	if c.DefaultOutBase == "" {
		c.DefaultOutBase = DefaultOutBase
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = DefaultCancelGrace
	}
	return c
}

// Notifier receives every job status change.
type Notifier interface {
	Notify(evt schema.JobEvent)
}

type NotifierFunc func(evt schema.JobEvent)

func (f NotifierFunc) Notify(evt schema.JobEvent) { f(evt) }

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces the default eight character random id.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
