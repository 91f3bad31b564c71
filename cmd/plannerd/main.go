package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/fabric-planner/core"
	"github.com/signalsfoundry/fabric-planner/internal/api"
	"github.com/signalsfoundry/fabric-planner/internal/logging"
	"github.com/signalsfoundry/fabric-planner/internal/observability"
	"github.com/signalsfoundry/fabric-planner/internal/store/sqlite"
	"github.com/signalsfoundry/fabric-planner/inventory"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "TCP address the planner HTTP API listens on")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	dbPath := flag.String("db", "", "Path to the SQLite inventory database (empty runs in-memory)")
	topologyPath := flag.String("topology", "", "Optional YAML topology to seed the store with at startup")
	minRedundancy := flag.Int("min-redundancy", 0, "Override the dual-homing floor (0 keeps the default of 2)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	collector, err := observability.NewPlannerCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	store, closeStore, err := openStore(*dbPath, collector)
	if err != nil {
		log.Error(ctx, "failed to open inventory store", logging.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	if *topologyPath != "" {
		seedTopology(ctx, log, store, *topologyPath)
	}

	var opts []core.Option
	opts = append(opts, core.WithMetrics(collector))
	if *minRedundancy > 0 {
		opts = append(opts, core.WithMinRedundancy(*minRedundancy))
	}
	planner := core.New(store, log, opts...)

	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	srv := &http.Server{
		Addr:    *httpAddr,
		Handler: api.NewServer(planner, log).Handler(collector),
	}

	log.Info(ctx, "starting planner HTTP server", logging.String("addr", *httpAddr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down planner")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

// plannerStore is the store surface the daemon needs: planner
// reads/writes plus topology seeding.
type plannerStore interface {
	inventory.Store
	inventory.Seeder
}

// openStore returns the SQLite store when a path is given, otherwise a
// process-local in-memory store.
func openStore(path string, collector *observability.PlannerCollector) (plannerStore, func(), error) {
	if path == "" {
		return inventory.NewMemoryStore(inventory.WithMetricsRecorder(collector)), func() {}, nil
	}
	st, err := sqlite.New(path, sqlite.WithMetricsRecorder(collector))
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func seedTopology(ctx context.Context, log logging.Logger, store plannerStore, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Error(ctx, "failed to open topology file", logging.String("path", path), logging.Err(err))
		os.Exit(1)
	}
	defer f.Close()

	summary, err := core.LoadTopology(ctx, store, f)
	if err != nil {
		log.Error(ctx, "failed to seed topology", logging.String("path", path), logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "seeded topology",
		logging.String("path", path),
		logging.Int("racks", len(summary.Racks)),
		logging.Int("devices", len(summary.Devices)),
		logging.Int("interfaces", summary.Interfaces),
		logging.Int("cables", summary.Cables),
	)
}

func serveMetrics(addr string, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
