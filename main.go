package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"p9e.in/lakewatch/config"
	"p9e.in/lakewatch/handlers"
	"p9e.in/lakewatch/middleware"
	"p9e.in/lakewatch/pkg/i18n"
	"p9e.in/lakewatch/pkg/metrics"
	"p9e.in/lakewatch/pkg/observations"
	"p9e.in/lakewatch/pkg/projection"
	"p9e.in/lakewatch/pkg/store"
	"p9e.in/lakewatch/pkg/taxonomy"
	"p9e.in/lakewatch/routes"
	"p9e.in/lakewatch/utils"
)

var (
	Version   = "dev"
	BuildTime = ""
)

// backend is the persistence selected by STORE_DRIVER.
type backend struct {
	observations store.ObservationStore
	rois         store.RoiLookup
	seed         config.RoiSaver
	ping         handlers.Pinger
	close        func(ctx context.Context) error
}

func main() {

	versionFlag := flag.Bool("version", false, "Print version info and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("Version:   %s\n", Version)
		fmt.Printf("BuildTime: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tax, err := taxonomy.Load(cfg.TaxonomyFile)
	if err != nil {
		return err
	}
	proj, err := projection.Load(cfg.ProjectionsFile)
	if err != nil {
		return err
	}
	tr, err := i18n.New(cfg.DefaultLocale)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := be.close(closeCtx); err != nil {
			log.Warn("closing store", "error", err)
		}
	}()
	if _, err := config.SeedRois(ctx, be.seed, cfg.RoiSeedFile, log); err != nil {
		return fmt.Errorf("seed rois: %w", err)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	pipeline, err := observations.New(observations.Config{
		Store:       be.observations,
		Rois:        be.rois,
		Taxonomy:    tax,
		Projections: proj,
		Translate:   tr.T,
		Logger:      log,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	handler := routes.RegisterRoutes(routes.Deps{
		Observations: handlers.NewObservationHandler(pipeline, tr, log, m),
		Auth:         middleware.NewAuth(cfg.JWTSecret),
		Logger:       log,
		Metrics:      m,
		Gatherer:     prometheus.DefaultGatherer,
		Ping:         be.ping,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           enableCORS(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.StoreDriver == config.DriverMongo {
		client, db, err := config.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		obs := store.NewMongoStore(db)
		rois := store.NewMongoRoiLookup(db)
		if err := obs.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		if err := rois.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return &backend{
			observations: obs,
			rois:         rois,
			seed:         rois,
			ping:         func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
			close:        client.Disconnect,
		}, nil
	}

	db, err := config.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	rois := store.NewGormRoiLookup(db)
	return &backend{
		observations: store.NewGormStore(db),
		rois:         rois,
		seed:         rois,
		ping:         sqlDB.PingContext,
		close:        func(context.Context) error { return sqlDB.Close() },
	}, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Required CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language, X-Requested-With")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		// Handle preflight (OPTIONS)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
