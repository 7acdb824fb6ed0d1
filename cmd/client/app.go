package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	gosync "sync"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iudanet/gophsync/internal/client/api"
	"github.com/iudanet/gophsync/internal/client/collection"
	"github.com/iudanet/gophsync/internal/client/config"
	"github.com/iudanet/gophsync/internal/client/push"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/boltdb"
	"github.com/iudanet/gophsync/internal/client/storage/sqlite"
	"github.com/iudanet/gophsync/internal/client/sync"
	"github.com/iudanet/gophsync/internal/models"
)

const (
	backendBolt   = "bolt"
	backendSQLite = "sqlite"
)

type options struct {
	configPath  string
	dbPath      string
	backend     string
	serverURL   string
	pushPath    string
	token       string
	metricsAddr string
	registerer  prometheus.Registerer
}

type app struct {
	logger      *slog.Logger
	cfg         *config.Config
	registry    *collection.Registry
	coordinator *sync.Coordinator
	subscriber  *push.Subscriber
	metrics     *http.Server
	databases   []storage.Database
	closeOnce   gosync.Once
}

func newLogger(file, level string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if file == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), func() {}, nil
	}

	// Ротация логов для долгоживущего процесса
	w := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	return logger, func() { _ = w.Close() }, nil
}

func openDatabase(backend, path string) (storage.Database, error) {
	switch backend {
	case backendBolt:
		return boltdb.New(path), nil
	case backendSQLite:
		return sqlite.New(path), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

func newApp(ctx context.Context, opts options, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.serverURL != "" {
		cfg.Server = opts.serverURL
	}
	if opts.pushPath != "" {
		cfg.PushPath = opts.pushPath
	}
	if cfg.Server == "" {
		return nil, errors.New("server URL is not configured")
	}

	client := api.NewClient(cfg.Server)
	subscriber := push.NewSubscriber(cfg.Server, logger.With("component", "push"))
	if opts.token != "" {
		client.SetAccessToken(opts.token)
		subscriber.SetAccessToken(opts.token)
	}

	a := &app{
		logger:     logger,
		cfg:        cfg,
		registry:   collection.NewRegistry(),
		subscriber: subscriber,
	}

	groups, byGroup := cfg.Groups()
	for _, group := range groups {
		path := config.DatabasePath(opts.dbPath, group)
		db, err := openDatabase(opts.backend, path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.databases = append(a.databases, db)

		for _, coll := range byGroup[group] {
			if err := a.addCollection(db, client, coll); err != nil {
				a.close()
				return nil, err
			}
		}
		logger.Debug("Database prepared", "group", group, "path", path, "collections", len(byGroup[group]))
	}

	if err := a.registry.OpenAll(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open collections: %w", err)
	}

	a.coordinator = sync.NewCoordinator(a.registry, client, sync.Config{
		Metrics:         sync.NewMetrics(opts.registerer),
		FullSyncWorkers: cfg.Sync.FullSyncWorkers,
		Debounce:        cfg.Sync.Debounce,
		MaxDelay:        cfg.Sync.MaxDelay,
	}, logger.With("component", "sync"))

	if opts.metricsAddr != "" {
		a.serveMetrics(opts.metricsAddr)
	}

	return a, nil
}

func (a *app) addCollection(db storage.Database, client api.ClientAPI, coll config.Collection) error {
	rules, err := coll.BuildRules()
	if err != nil {
		return err
	}
	ctrl, err := collection.New[models.Document](db, client, coll.CollectionSchema, collection.Options{
		Rules:  rules,
		Logger: a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", coll.Name, err)
	}
	return a.registry.Register(ctrl)
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("Metrics server listening", "addr", addr)
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()
}

// run синхронизирует коллекции, пока не отменён контекст
func (a *app) run(ctx context.Context) error {
	a.logger.Info("Starting sync client",
		"server", a.cfg.Server,
		"collections", a.registry.Len())

	err := a.coordinator.Run(ctx, a.subscriber, a.cfg.PushPath)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("Sync client stopped")
		return nil
	}
	return err
}

func (a *app) syncOnce(ctx context.Context, w io.Writer) error {
	res, err := a.coordinator.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Sync completed in %s\n", res.Duration.Round(time.Millisecond))
	printList(w, "Up to date", res.UpToDate)
	printList(w, "Delta", res.Delta)
	printList(w, "Full", res.Full)
	printList(w, "Skipped", res.Skipped)

	if len(res.Failed) > 0 {
		fmt.Fprintf(w, "Failed:\n")
		for name, ferr := range res.Failed {
			fmt.Fprintf(w, "  %s: %v\n", name, ferr)
		}
		return fmt.Errorf("%d collection(s) failed to sync", len(res.Failed))
	}
	return nil
}

func (a *app) printStatus(ctx context.Context, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tVERSION\tSTATUS\tLAST SYNC")
	for _, c := range a.registry.All() {
		d, err := c.Descriptor(ctx)
		if err != nil {
			return fmt.Errorf("collection %s: %w", c.Name(), err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.Name(), c.Schema().Version, c.Status(), d.LocalLastUpdated)
	}
	return tw.Flush()
}

func printList(w io.Writer, title string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", title, strings.Join(names, ", "))
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.metrics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.metrics.Shutdown(ctx); err != nil {
				a.logger.Error("failed to stop metrics server", "error", err)
			}
			cancel()
		}
		for _, db := range a.databases {
			if err := db.Close(); err != nil {
				a.logger.Error("failed to close database", "error", err)
			}
		}
	})
}
