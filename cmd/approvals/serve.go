package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/txn-review/approvals/src/config"
	"github.com/txn-review/approvals/src/logging"
	"github.com/txn-review/approvals/src/server/fixtures"
	"github.com/txn-review/approvals/src/server/handlers"
	"github.com/txn-review/approvals/src/server/storage"
	"github.com/txn-review/approvals/src/server/store"
	"github.com/txn-review/approvals/src/server/store/postgres"
	"github.com/txn-review/approvals/src/server/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve employees and transactions from fixtures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(cfg.LogLevel)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&cfg.Port, "port", cfg.Port, "listen port")
	f.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "memory, sqlite or postgres")
	f.StringVar(&cfg.FixturesKey, "fixtures", cfg.FixturesKey, "fixture file key in fixture storage")
	f.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "transactions per page")
	f.DurationVar(&cfg.APILatency, "latency", cfg.APILatency, "artificial delay before each data response")
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}

	objects, err := newObjectStorage(cfg)
	if err != nil {
		return err
	}

	st, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	doc, err := fixtures.Load(ctx, objects, cfg.FixturesKey)
	if err != nil {
		return err
	}
	if err := fixtures.Seed(st, doc); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.NewRouter(handlers.RouterConfig{
			Store:       st,
			Storage:     objects,
			PageSize:    cfg.PageSize,
			Latency:     cfg.APILatency,
			CORSOrigins: cfg.CORSOrigins,
			Logger:      slog.Default(),
			Registry:    reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Dev API listening",
			"addr", srv.Addr,
			"store", cfg.StoreBackend,
			"fixtures_source", cfg.FixturesSource,
			"page_size", cfg.PageSize,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newObjectStorage(cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.FixturesSource {
	case "local":
		return storage.NewLocal(cfg.FixturesDir)
	case "s3":
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" {
			return nil, errors.New("S3_ENDPOINT and S3_BUCKET are required for FIXTURES_SOURCE=s3")
		}
		return storage.NewS3(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown fixtures source %q", cfg.FixturesSource)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newStore(cfg *config.Config) (store.Store, io.Closer, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), nopCloser{}, nil
	case "sqlite":
		s, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for STORE_BACKEND=postgres")
		}
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
