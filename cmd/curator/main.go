// cmd/curator runs the collection job engine and its collect workload.
//
// Usage:
//
//	curator serve
//	curator collect --query "red fox" --limit 20 --out-dir data/collected/manual
//	curator migrate --from jobs.json
//	curator ctl list '{"page":1}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/tendant/simple-curator/internal/bus"
	"github.com/tendant/simple-curator/internal/control"
	"github.com/tendant/simple-curator/internal/curate"
	"github.com/tendant/simple-curator/internal/engine"
	"github.com/tendant/simple-curator/internal/metrics"
	"github.com/tendant/simple-curator/internal/store"
	"github.com/tendant/simple-curator/internal/supervise"
	"github.com/tendant/simple-curator/pkg/schema"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "curator",
		Usage: "collect visually coherent image datasets from search queries",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the job engine with NATS control and an HTTP image endpoint",
				Action: serveAction,
			},
			{
				Name:  "collect",
				Usage: "run one collection and print the done marker",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Usage: "search query", Required: true},
					&cli.IntFlag{Name: "limit", Usage: "maximum images to keep", Value: control.DefaultLimit},
					&cli.StringFlag{Name: "out-dir", Usage: "output directory", Required: true},
					&cli.StringFlag{Name: "job-id", Usage: "job id used in logs and the item index"},
				},
				Action: collectAction,
			},
			{
				Name:  "migrate",
				Usage: "import a legacy jobs.json into an empty job store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "legacy jobs file", Value: "jobs.json"},
				},
				Action: migrateAction,
			},
			{
				Name:      "ctl",
				Usage:     "send one control request over NATS",
				ArgsUsage: "<submit|cancel|get|list|delete|clear|images> [json]",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Usage: "request timeout", Value: 10 * time.Second},
				},
				Action: ctlAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fatal(slog.Default(), "curator failed", err)
	}
}

func serveAction(ctx context.Context, _ *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("curator starting", "root", cfg.Root, "runner", cfg.Runner, "store", cfg.StoreBackend, "nats_url", cfg.NATSURL, "workers", cfg.Workers)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}

	nc, err := bus.Connect(cfg.NATSURL, "curator")
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng, err := engine.Open(ctx, repo, runner,
		engine.WithConfig(cfg.engineConfig()),
		engine.WithLogger(logger),
		engine.WithNotifier(bus.NewEventNotifier(nc, cfg.EventsSubject, logger)),
		engine.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	sub, err := control.NewHandler(eng, logger).Serve(nc, cfg.ControlSubject, cfg.ControlQueue)
	if err != nil {
		return fmt.Errorf("subscribe control: %w", err)
	}
	logger.Info("listening for control requests", "subject", cfg.ControlSubject+".*", "queue", cfg.ControlQueue)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler(reg))
		mux.Handle("GET /jobs/", control.ImageHandler(eng, logger))
		srv = &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server stopped", "err", err)
			}
		}()
		logger.Info("http listening", "addr", cfg.HTTPAddr)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	_ = sub.Drain()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.CancelGrace+5*time.Second)
	defer cancel()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	return eng.Shutdown(shutdownCtx)
}

func collectAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel))

	req := curate.Request{
		JobID:  cmd.String("job-id"),
		Query:  cmd.String("query"),
		Limit:  int(cmd.Int("limit")),
		OutDir: cmd.String("out-dir"),
	}
	return runCollect(ctx, cfg, req, os.Stdout, os.Stderr)
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	from := cmd.String("from")
	n, err := repo.MigrateLegacyIfEmpty(ctx, from)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", from, err)
	}
	logger.Info("legacy migration finished", "from", from, "imported", n, "store", cfg.StoreBackend)
	return nil
}

func ctlAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("operation is required")
	}
	op := cmd.Args().Get(0)
	body := json.RawMessage(`{}`)
	if cmd.NArg() > 1 {
		body = json.RawMessage(cmd.Args().Get(1))
		if !json.Valid(body) {
			return fmt.Errorf("request body is not valid JSON")
		}
	}

	nc, err := bus.Connect(getenv("NATS_URL", "nats://127.0.0.1:4222"), "curator-ctl")
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	reqCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	var reply schema.Reply
	subject := getenv("CONTROL_SUBJECT", "curator.control") + "." + op
	if err := nc.RequestJSON(reqCtx, subject, body, &reply); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("%s: %s", reply.Code, reply.Error)
	}
	return nil
}

func openRepository(ctx context.Context, cfg config) (store.Repository, func(), error) {
	if cfg.StoreBackend == "file" {
		return store.NewFile(cfg.JobsFile), func() {}, nil
	}
	pool, err := store.OpenPool(ctx, cfg.DatabaseURL, cfg.IndexEmbeddings)
	if err != nil {
		return nil, nil, err
	}
	repo, err := store.NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool.Close, nil
}

func newRunner(cfg config) (supervise.Runner, error) {
	if cfg.Runner == "task" {
		return supervise.NewTaskRunner(collectTask(cfg)), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate curator executable: %w", err)
	}
	return supervise.NewCollectRunner(exe, cfg.Root, nil), nil
}
