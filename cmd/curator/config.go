package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-curator/internal/curate"
	"github.com/tendant/simple-curator/internal/engine"
	"github.com/tendant/simple-curator/internal/img"
	"github.com/tendant/simple-curator/internal/source"
)

type config struct {
	Root        string
	OutBase     string
	Workers     int
	MaxLimit    int
	RunTimeout  time.Duration
	CancelGrace time.Duration
	Runner      string

	StoreBackend    string
	DatabaseURL     string
	JobsFile        string
	LegacyJobsFile  string
	IndexEmbeddings bool

	NATSURL        string
	ControlSubject string
	ControlQueue   string
	EventsSubject  string
	HTTPAddr       string

	LogFormat string
	LogLevel  string

	SearchURL     string
	SourceName    string
	SourceList    string
	EmbedEndpoint string
	EmbedModel    string
	EmbedAPIKey   string

	MinImageSize   int
	BlurThreshold  float64
	ClusterEps     float64
	MinClusterSize int
	DownloadRate   float64
}

func loadConfig() (config, error) {
	cfg := config{
		Root:           getenv("CURATOR_ROOT", "."),
		OutBase:        getenv("CURATOR_OUT_DIR", engine.DefaultOutBase),
		Runner:         strings.ToLower(getenv("CURATOR_RUNNER", "exec")),
		StoreBackend:   strings.ToLower(getenv("STORE_BACKEND", "postgres")),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		JobsFile:       getenv("JOBS_FILE", "data/jobs.json"),
		LegacyJobsFile: getenv("LEGACY_JOBS_FILE", ""),
		NATSURL:        getenv("NATS_URL", "nats://127.0.0.1:4222"),
		ControlSubject: getenv("CONTROL_SUBJECT", "curator.control"),
		ControlQueue:   getenv("CONTROL_QUEUE", "curator"),
		EventsSubject:  getenv("EVENTS_SUBJECT", "curator.jobs"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		LogFormat:      strings.ToLower(getenv("CURATOR_LOG_FORMAT", "text")),
		LogLevel:       getenv("CURATOR_LOG_LEVEL", "info"),
		SearchURL:      getenv("SEARCH_URL", source.DefaultSearchURL),
		SourceName:     getenv("SOURCE_NAME", source.DefaultName),
		SourceList:     getenv("SOURCE_LIST", ""),
		EmbedEndpoint:  getenv("EMBED_ENDPOINT", ""),
		EmbedModel:     getenv("EMBED_MODEL", "clip-vit-base-patch32"),
		EmbedAPIKey:    getenv("EMBED_API_KEY", ""),
	}
	cfg.IndexEmbeddings = getenvBool("INDEX_EMBEDDINGS", false)

	var err error
	if cfg.Workers, err = parsePositiveInt(getenv("CURATOR_WORKERS", strconv.Itoa(engine.DefaultWorkers)), "CURATOR_WORKERS"); err != nil {
		return config{}, err
	}
	if cfg.MaxLimit, err = parsePositiveInt(getenv("CURATOR_MAX_LIMIT", strconv.Itoa(engine.DefaultMaxLimit)), "CURATOR_MAX_LIMIT"); err != nil {
		return config{}, err
	}
	if cfg.RunTimeout, err = parseDuration(getenv("CURATOR_RUN_TIMEOUT", engine.DefaultRunTimeout.String()), "CURATOR_RUN_TIMEOUT"); err != nil {
		return config{}, err
	}
	if cfg.CancelGrace, err = parseDuration(getenv("CURATOR_CANCEL_GRACE", engine.DefaultCancelGrace.String()), "CURATOR_CANCEL_GRACE"); err != nil {
		return config{}, err
	}

	filter := img.DefaultQualityFilter()
	if cfg.MinImageSize, err = parsePositiveInt(getenv("MIN_IMAGE_SIZE", strconv.Itoa(filter.MinWidth)), "MIN_IMAGE_SIZE"); err != nil {
		return config{}, err
	}
	if cfg.BlurThreshold, err = parseFloat(getenv("BLUR_THRESHOLD", "50"), "BLUR_THRESHOLD"); err != nil {
		return config{}, err
	}
	if cfg.ClusterEps, err = parseFloat(getenv("CLUSTER_EPS", strconv.FormatFloat(curate.DefaultEps, 'f', -1, 64)), "CLUSTER_EPS"); err != nil {
		return config{}, err
	}
	if cfg.ClusterEps <= 0 || cfg.ClusterEps > 2 {
		return config{}, fmt.Errorf("CLUSTER_EPS must be in (0, 2] (got %g)", cfg.ClusterEps)
	}
	if cfg.MinClusterSize, err = parsePositiveInt(getenv("MIN_CLUSTER_SIZE", strconv.Itoa(curate.DefaultMinSamples)), "MIN_CLUSTER_SIZE"); err != nil {
		return config{}, err
	}
	if cfg.DownloadRate, err = parseFloat(getenv("DOWNLOAD_RATE", "0"), "DOWNLOAD_RATE"); err != nil {
		return config{}, err
	}

	switch cfg.Runner {
	case "exec", "task":
	default:
		return config{}, fmt.Errorf("CURATOR_RUNNER must be exec or task (got %q)", cfg.Runner)
	}
	switch cfg.StoreBackend {
	case "postgres", "file":
	default:
		return config{}, fmt.Errorf("STORE_BACKEND must be postgres or file (got %q)", cfg.StoreBackend)
	}
	if cfg.IndexEmbeddings && cfg.StoreBackend != "postgres" {
		return config{}, fmt.Errorf("INDEX_EMBEDDINGS requires STORE_BACKEND=postgres")
	}
	return cfg, nil
}

func (c config) engineConfig() engine.Config {
	return engine.Config{
		Root:           c.Root,
		DefaultOutBase: c.OutBase,
		Workers:        c.Workers,
		MaxLimit:       c.MaxLimit,
		RunTimeout:     c.RunTimeout,
		CancelGrace:    c.CancelGrace,
		LegacyPath:     c.LegacyJobsFile,
	}
}

func (c config) qualityFilter() img.QualityFilter {
	return img.QualityFilter{
		MinWidth:      c.MinImageSize,
		MinHeight:     c.MinImageSize,
		BlurThreshold: c.BlurThreshold,
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseFloat(value string, name string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %g)", name, v)
	}
	return v, nil
}

func parseDuration(value string, name string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %s)", name, d)
	}
	return d, nil
}
