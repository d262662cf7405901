package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	carbon "energy-costing/internal/carbon/domain"
	"energy-costing/internal/config"
	"energy-costing/internal/observability/metrics"
	siteapp "energy-costing/internal/site/application"
	site "energy-costing/internal/site/domain"
	sitepostgres "energy-costing/internal/site/infrastructure/postgres"
	siteinterfaces "energy-costing/internal/site/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code once every deferred close has run.
func run() int {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Printf("config error: %v", err)
		return 1
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Printf("db open error: %v", err)
		return 1
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Printf("db ping error: %v", err)
		return 1
	}

	metrics.Init(db, logger)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	repo := sitepostgres.NewRepository(db)
	levies, err := cfg.LevyTable()
	if err != nil {
		logger.Printf("levy table error: %v", err)
		return 1
	}

	runnerOpts := []siteapp.Option{
		siteapp.WithLevyTable(levies),
		siteapp.WithValidation(cfg.ValidationMode()),
		siteapp.WithLogger(logger),
	}
	if cfg.GridIntensityMPXN != "" {
		series, err := repo.LoadSeries(ctx, cfg.GridIntensityMPXN)
		if err != nil {
			logger.Printf("grid intensity load error: %v", err)
			return 1
		}
		runnerOpts = append(runnerOpts, siteapp.WithGridIntensity(carbon.NewGridIntensity(series)))
	}
	runner, err := siteapp.NewRunner(repo, runnerOpts...)
	if err != nil {
		logger.Printf("runner init error: %v", err)
		return 1
	}

	sinks := make([]siteapp.ResultSink, 0, 2)
	exporter, err := siteinterfaces.NewFileExportSink(cfg.ExportDir)
	if err != nil {
		logger.Printf("export sink error: %v", err)
		return 1
	}
	sinks = append(sinks, exporter)
	if cfg.Influx.Enabled() {
		influx, err := siteinterfaces.DialInflux(ctx, siteinterfaces.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			logger.Printf("influx sink error: %v", err)
			return 1
		}
		defer influx.Close()
		sinks = append(sinks, influx)
	}

	batch, err := siteapp.NewBatch(runner,
		siteapp.WithWorkers(cfg.Workers),
		siteapp.WithSinks(sinks...),
		siteapp.WithBatchLogger(logger),
	)
	if err != nil {
		logger.Printf("batch init error: %v", err)
		return 1
	}

	sites, err := selectSites(ctx, repo, cfg.Sites)
	if err != nil {
		logger.Printf("site listing error: %v", err)
		return 1
	}

	summary, err := batch.Run(ctx, sites)
	if err != nil {
		logger.Printf("batch aborted: %v", err)
		return 1
	}
	for _, failure := range summary.Failed {
		logger.Printf("event=site_failed site=%d action=%s reason=%s err=%v", failure.SiteURN, failure.Action, failure.Reason, failure.Err)
	}
	if len(summary.Failed) > 0 || summary.SinkFailures > 0 {
		return 1
	}
	return 0
}

func selectSites(ctx context.Context, repo site.Repository, urns []int64) ([]site.Site, error) {
	if len(urns) == 0 {
		return repo.ListSites(ctx)
	}
	sites := make([]site.Site, 0, len(urns))
	for _, urn := range urns {
		s, err := repo.GetSite(ctx, urn)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("%w: urn %d", site.ErrSiteNotFound, urn)
		}
		sites = append(sites, *s)
	}
	return sites, nil
}

func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: addr, Handler: mux}
	logger.Printf("metrics listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("event=metrics_server_error err=%v", err)
	}
}
