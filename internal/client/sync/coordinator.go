// Package sync decides, for every registered collection, the cheapest way to
// reconcile it with the server and drives the collection controllers.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/gophsync/internal/client/api"
	"github.com/iudanet/gophsync/internal/client/collection"
	"github.com/iudanet/gophsync/internal/models"
	wire "github.com/iudanet/gophsync/pkg/api"
)

// Значения по умолчанию
const (
	DefaultFullSyncWorkers = 4
	DefaultDebounce        = time.Second
	DefaultMaxDelay        = 5 * time.Second
)

// State of the coordinator
type State int

const (
	StateIdle State = iota
	StateSyncing
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	if s == StateSyncing {
		return "syncing"
	}
	return "idle"
}

// Config configures a Coordinator
type Config struct {
	// Metrics defaults to unregistered collectors
	Metrics *Metrics
	// FullSyncWorkers bounds concurrent full resyncs
	FullSyncWorkers int
	// Debounce is the quiet period after a push notification
	Debounce time.Duration
	// MaxDelay caps the total delay of a notification burst
	MaxDelay time.Duration
}

// Result contains sync pass results
type Result struct {
	Failed   map[string]error // коллекции, которые не удалось синхронизировать
	UpToDate []string         // коллекции без изменений
	Delta    []string         // коллекции с применённой дельтой
	Full     []string         // коллекции, перезагруженные целиком
	Skipped  []string         // коллекции без ответа сервера
	Duration time.Duration
	Queued   bool // проход уже выполнялся, запрошен ещё один
}

// Stats is a snapshot of the coordinator state
type Stats struct {
	LastPassAt time.Time
	LastResult Result
	Passes     int
	State      State
	Pending    bool
}

// Coordinator runs sync passes over every collection of a registry
type Coordinator struct {
	lastAt   time.Time
	registry *collection.Registry
	client   api.ClientAPI
	metrics  *Metrics
	logger   *slog.Logger
	last     Result
	cfg      Config
	passes   int
	state    State
	pending  bool
	mu       gosync.Mutex
}

// NewCoordinator creates a coordinator over registry
func NewCoordinator(registry *collection.Registry, client api.ClientAPI, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.FullSyncWorkers <= 0 {
		cfg.FullSyncWorkers = DefaultFullSyncWorkers
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.Debounce {
		cfg.MaxDelay = cfg.Debounce
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		registry: registry,
		client:   client,
		cfg:      cfg,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Sync runs a sync pass.
// If a pass is already running, a single follow-up pass is requested and
// Sync returns immediately with Result.Queued set. The running caller executes
// the follow-up before returning and gets the result of the last pass.
func (c *Coordinator) Sync(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.state == StateSyncing {
		c.pending = true
		c.mu.Unlock()
		c.logger.Debug("Sync pass already running, follow-up requested")
		return Result{Queued: true}, nil
	}
	c.state = StateSyncing
	c.mu.Unlock()

	for {
		res, err := c.pass(ctx)

		c.mu.Lock()
		c.last = res
		c.lastAt = time.Now()
		c.passes++
		if c.pending && ctx.Err() == nil {
			c.pending = false
			c.mu.Unlock()
			continue
		}
		c.pending = false
		c.state = StateIdle
		c.mu.Unlock()

		return res, err
	}
}

// Stats returns the current state of the coordinator
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:      c.state,
		Pending:    c.pending,
		Passes:     c.passes,
		LastResult: c.last,
		LastPassAt: c.lastAt,
	}
}

type classified struct {
	coll   collection.Collection
	result wire.SyncCheckResult
	strat  models.SyncStrategy
}

func (c *Coordinator) pass(ctx context.Context) (res Result, err error) {
	start := time.Now()
	res.Failed = make(map[string]error)
	defer func() {
		res.Duration = time.Since(start)
		c.metrics.Passes.Inc()
		c.metrics.PassDuration.Observe(res.Duration.Seconds())
	}()

	c.logger.Info("Starting sync pass")

	// 1. Собираем дескрипторы всех коллекций
	var (
		colls []collection.Collection
		req   wire.SyncCheckRequest
	)
	for _, coll := range c.registry.All() {
		d, err := coll.Descriptor(ctx)
		if err != nil {
			c.fail(&res, coll.Name(), err)
			continue
		}
		colls = append(colls, coll)
		req.Collections = append(req.Collections, wire.CollectionState{
			CollectionID:     d.CollectionID,
			LocalLastUpdated: d.LocalLastUpdated,
		})
	}
	if len(colls) == 0 {
		return res, nil
	}

	// 2. Один батч-запрос на все коллекции
	resp, err := c.client.BatchSyncCheck(ctx, req)
	if err != nil {
		c.metrics.Failures.WithLabelValues("*").Inc()
		return res, fmt.Errorf("sync check failed: %w", err)
	}

	// 3. Классификация
	var work []classified
	for _, coll := range colls {
		r, ok := resp.Results[coll.Name()]
		strat := models.SyncStrategy(r.Strategy)

		switch {
		case coll.NeedsFullSync():
			strat = models.StrategyFull
		case !ok:
			c.logger.Warn("No sync decision for collection", "collection", coll.Name())
			res.Skipped = append(res.Skipped, coll.Name())
			continue
		case !strat.Valid():
			c.fail(&res, coll.Name(), fmt.Errorf("unknown strategy %q", r.Strategy))
			continue
		}

		work = append(work, classified{coll: coll, result: r, strat: strat})
	}

	// 4. Сначала дешёвые стратегии
	slices.SortStableFunc(work, func(a, b classified) int {
		return strategyCost(a.strat) - strategyCost(b.strat)
	})

	var full []collection.Collection
	for _, w := range work {
		name := w.coll.Name()
		c.metrics.Strategies.WithLabelValues(string(w.strat)).Inc()

		switch w.strat {
		case models.StrategyUpToDate:
			if err := w.coll.ApplyUpToDate(ctx); err != nil {
				c.fail(&res, name, err)
				continue
			}
			res.UpToDate = append(res.UpToDate, name)
		case models.StrategyDelta:
			if err := w.coll.ApplyDelta(ctx, w.result.ToUpdate, w.result.ToDelete); err != nil {
				c.fail(&res, name, err)
				continue
			}
			res.Delta = append(res.Delta, name)
		case models.StrategyFull:
			full = append(full, w.coll)
		}
	}

	c.runFull(ctx, full, &res)

	c.logger.Info("Sync pass completed",
		"up_to_date", len(res.UpToDate),
		"delta", len(res.Delta),
		"full", len(res.Full),
		"skipped", len(res.Skipped),
		"failed", len(res.Failed),
		"server_timestamp", resp.Timestamp)

	return res, nil
}

// runFull выполняет полные ресинки на ограниченном пуле
func (c *Coordinator) runFull(ctx context.Context, colls []collection.Collection, res *Result) {
	if len(colls) == 0 {
		return
	}

	var (
		g  errgroup.Group
		mu gosync.Mutex
	)
	g.SetLimit(c.cfg.FullSyncWorkers)

	for _, coll := range colls {
		g.Go(func() error {
			c.metrics.FullInFlight.Inc()
			defer c.metrics.FullInFlight.Dec()

			err := coll.ApplyFull(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.fail(res, coll.Name(), err)
				return nil
			}
			res.Full = append(res.Full, coll.Name())
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Coordinator) fail(res *Result, name string, err error) {
	c.logger.Warn("Failed to sync collection", "collection", name, "error", err)
	c.metrics.Failures.WithLabelValues(name).Inc()
	res.Failed[name] = err
}

func strategyCost(s models.SyncStrategy) int {
	switch s {
	case models.StrategyUpToDate:
		return 0
	case models.StrategyDelta:
		return 1
	default:
		return 2
	}
}
