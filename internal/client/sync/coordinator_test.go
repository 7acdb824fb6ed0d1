package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/api"
	"github.com/iudanet/gophsync/internal/client/collection"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/boltdb"
	"github.com/iudanet/gophsync/internal/models"
	wire "github.com/iudanet/gophsync/pkg/api"
)

// fakeCollection записывает вызовы координатора
type fakeCollection struct {
	fullErr   error
	deltaErr  error
	upErr     error
	inFlight  *atomic.Int32
	maxFlight *atomic.Int32
	name      string
	calls     []string
	fullDelay time.Duration
	lastSync  int64
	status    atomic.Int32
	mu        gosync.Mutex
	needsFull bool
}

func newFake(name string) *fakeCollection {
	return &fakeCollection{name: name}
}

func (f *fakeCollection) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCollection) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCollection) Name() string { return f.name }

func (f *fakeCollection) Schema() models.CollectionSchema {
	return models.CollectionSchema{Name: f.name, Version: "1"}
}

func (f *fakeCollection) Status() models.DataStatus { return models.DataStatus(f.status.Load()) }

func (f *fakeCollection) Open(ctx context.Context) error { return nil }

func (f *fakeCollection) Reset(ctx context.Context) error {
	f.status.Store(int32(models.NoData))
	return nil
}

func (f *fakeCollection) Descriptor(ctx context.Context) (models.SyncDescriptor, error) {
	return models.SyncDescriptor{CollectionID: f.name, LocalLastUpdated: f.lastSync}, nil
}

func (f *fakeCollection) NeedsFullSync() bool { return f.needsFull }

func (f *fakeCollection) ApplyUpToDate(ctx context.Context) error {
	f.record("upToDate")
	if f.upErr != nil {
		return f.upErr
	}
	f.status.Store(int32(models.ContainsData))
	return nil
}

func (f *fakeCollection) ApplyDelta(ctx context.Context, toUpdate, toDelete []json.RawMessage) error {
	f.record(fmt.Sprintf("delta:%d:%d", len(toUpdate), len(toDelete)))
	if f.deltaErr != nil {
		return f.deltaErr
	}
	f.status.Store(int32(models.ContainsData))
	return nil
}

func (f *fakeCollection) ApplyFull(ctx context.Context) error {
	f.record("full")
	if f.inFlight != nil {
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			seen := f.maxFlight.Load()
			if n <= seen || f.maxFlight.CompareAndSwap(seen, n) {
				break
			}
		}
	}
	if f.fullDelay > 0 {
		time.Sleep(f.fullDelay)
	}
	if f.fullErr != nil {
		return f.fullErr
	}
	f.status.Store(int32(models.ContainsData))
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registryOf(t *testing.T, colls ...collection.Collection) *collection.Registry {
	t.Helper()
	r := collection.NewRegistry()
	for _, c := range colls {
		require.NoError(t, r.Register(c))
	}
	return r
}

func checkAll(results map[string]wire.SyncCheckResult) *api.ClientAPIMock {
	return &api.ClientAPIMock{
		BatchSyncCheckFunc: func(ctx context.Context, req wire.SyncCheckRequest) (*wire.SyncCheckResponse, error) {
			return &wire.SyncCheckResponse{Results: results, Timestamp: 1000}, nil
		},
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "syncing", StateSyncing.String())
}

func TestNewCoordinator_Defaults(t *testing.T) {
	c := NewCoordinator(collection.NewRegistry(), &api.ClientAPIMock{}, Config{}, nil)

	assert.Equal(t, DefaultFullSyncWorkers, c.cfg.FullSyncWorkers)
	assert.Equal(t, DefaultDebounce, c.cfg.Debounce)
	assert.Equal(t, DefaultMaxDelay, c.cfg.MaxDelay)
	assert.NotNil(t, c.metrics)
	assert.NotNil(t, c.logger)
}

func TestCoordinator_Classification(t *testing.T) {
	up := newFake("up")
	up.lastSync = 10
	delta := newFake("delta")
	delta.lastSync = 100
	full := newFake("full")

	client := checkAll(map[string]wire.SyncCheckResult{
		"up":    {Strategy: wire.StrategyUpToDate},
		"delta": {Strategy: wire.StrategyDelta, ToUpdate: []json.RawMessage{json.RawMessage(`{"_id":"a"}`)}},
		"full":  {Strategy: wire.StrategyFull},
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	c := NewCoordinator(registryOf(t, full, delta, up), client, Config{Metrics: metrics}, testLogger())
	res, err := c.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"up"}, res.UpToDate)
	assert.Equal(t, []string{"delta"}, res.Delta)
	assert.Equal(t, []string{"full"}, res.Full)
	assert.Empty(t, res.Failed)
	assert.False(t, res.Queued)

	assert.Equal(t, []string{"upToDate"}, up.Calls())
	assert.Equal(t, []string{"delta:1:0"}, delta.Calls())
	assert.Equal(t, []string{"full"}, full.Calls())

	calls := client.BatchSyncCheckCalls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []wire.CollectionState{
		{CollectionID: "full", LocalLastUpdated: 0},
		{CollectionID: "delta", LocalLastUpdated: 100},
		{CollectionID: "up", LocalLastUpdated: 10},
	}, calls[0].Req.Collections)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Passes))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Strategies.WithLabelValues("delta")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.FullInFlight))

	st := c.Stats()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 1, st.Passes)
	assert.False(t, st.Pending)
	assert.Equal(t, []string{"full"}, st.LastResult.Full)
}

func TestCoordinator_FullSyncPoolBound(t *testing.T) {
	var inFlight, maxFlight atomic.Int32

	results := make(map[string]wire.SyncCheckResult)
	var colls []collection.Collection
	var fakes []*fakeCollection
	for i := 0; i < 10; i++ {
		f := newFake(fmt.Sprintf("c%d", i))
		f.inFlight = &inFlight
		f.maxFlight = &maxFlight
		f.fullDelay = 20 * time.Millisecond
		results[f.name] = wire.SyncCheckResult{Strategy: wire.StrategyFull}
		colls = append(colls, f)
		fakes = append(fakes, f)
	}

	c := NewCoordinator(registryOf(t, colls...), checkAll(results), Config{FullSyncWorkers: 4}, testLogger())
	res, err := c.Sync(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Full, 10)
	assert.LessOrEqual(t, maxFlight.Load(), int32(4))
	assert.Positive(t, maxFlight.Load())
	for _, f := range fakes {
		assert.Equal(t, []string{"full"}, f.Calls())
		assert.Equal(t, models.ContainsData, f.Status())
	}
}

func TestCoordinator_FailureIsolation(t *testing.T) {
	boom := errors.New("apply failed")

	bad := newFake("bad")
	bad.deltaErr = boom
	bad.status.Store(int32(models.NoData))
	badFull := newFake("bad-full")
	badFull.fullErr = boom
	good := newFake("good")
	other := newFake("other")

	client := checkAll(map[string]wire.SyncCheckResult{
		"bad":      {Strategy: wire.StrategyDelta},
		"bad-full": {Strategy: wire.StrategyFull},
		"good":     {Strategy: wire.StrategyDelta},
		"other":    {Strategy: wire.StrategyFull},
	})
	metrics := NewMetrics(nil)
	c := NewCoordinator(registryOf(t, bad, badFull, good, other), client, Config{Metrics: metrics}, testLogger())

	res, err := c.Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed["bad"], boom)
	assert.ErrorIs(t, res.Failed["bad-full"], boom)
	assert.Equal(t, []string{"good"}, res.Delta)
	assert.Equal(t, []string{"other"}, res.Full)

	assert.Equal(t, models.NoData, bad.Status())
	assert.Equal(t, models.ContainsData, good.Status())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Failures.WithLabelValues("bad")))
}

func TestCoordinator_UnknownAndMissing(t *testing.T) {
	odd := newFake("odd")
	missing := newFake("missing")
	forced := newFake("forced")
	forced.needsFull = true

	client := checkAll(map[string]wire.SyncCheckResult{
		"odd":    {Strategy: "sideways"},
		"forced": {Strategy: wire.StrategyUpToDate},
	})
	c := NewCoordinator(registryOf(t, odd, missing, forced), client, Config{}, testLogger())

	res, err := c.Sync(context.Background())
	require.NoError(t, err)

	assert.Contains(t, res.Failed, "odd")
	assert.Equal(t, []string{"missing"}, res.Skipped)
	assert.Empty(t, missing.Calls())

	// смена версии схемы важнее решения сервера
	assert.Equal(t, []string{"forced"}, res.Full)
	assert.Equal(t, []string{"full"}, forced.Calls())
}

func TestCoordinator_BatchCheckFailure(t *testing.T) {
	boom := errors.New("network down")
	f := newFake("a")
	client := &api.ClientAPIMock{
		BatchSyncCheckFunc: func(ctx context.Context, req wire.SyncCheckRequest) (*wire.SyncCheckResponse, error) {
			return nil, boom
		},
	}
	c := NewCoordinator(registryOf(t, f), client, Config{}, testLogger())

	_, err := c.Sync(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.Calls())
	assert.Equal(t, StateIdle, c.Stats().State)
}

func TestCoordinator_EmptyRegistry(t *testing.T) {
	client := &api.ClientAPIMock{}
	c := NewCoordinator(collection.NewRegistry(), client, Config{}, testLogger())

	res, err := c.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Empty(t, client.BatchSyncCheckCalls())
}

func TestCoordinator_Reentrancy(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var checks atomic.Int32

	client := &api.ClientAPIMock{
		BatchSyncCheckFunc: func(ctx context.Context, req wire.SyncCheckRequest) (*wire.SyncCheckResponse, error) {
			if checks.Add(1) == 1 {
				started <- struct{}{}
				<-release
			}
			return &wire.SyncCheckResponse{Results: map[string]wire.SyncCheckResult{
				"a": {Strategy: wire.StrategyUpToDate},
			}}, nil
		},
	}
	f := newFake("a")
	c := NewCoordinator(registryOf(t, f), client, Config{}, testLogger())

	done := make(chan Result, 1)
	go func() {
		res, err := c.Sync(context.Background())
		assert.NoError(t, err)
		done <- res
	}()
	<-started

	for i := 0; i < 3; i++ {
		res, err := c.Sync(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Queued)
	}
	st := c.Stats()
	assert.Equal(t, StateSyncing, st.State)
	assert.True(t, st.Pending)

	close(release)
	select {
	case res := <-done:
		assert.Equal(t, []string{"a"}, res.UpToDate)
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not finish")
	}

	// три запроса во время прохода схлопываются в один дополнительный
	assert.Equal(t, int32(2), checks.Load())
	assert.Equal(t, 2, c.Stats().Passes)
	assert.Equal(t, StateIdle, c.Stats().State)
}

type doc = models.Document

func TestCoordinator_WithControllers(t *testing.T) {
	ctx := context.Background()
	db := boltdb.New(filepath.Join(t.TempDir(), "sync.db"))
	t.Cleanup(func() { _ = db.Close() })

	client := &api.ClientAPIMock{
		BatchSyncCheckFunc: func(ctx context.Context, req wire.SyncCheckRequest) (*wire.SyncCheckResponse, error) {
			return &wire.SyncCheckResponse{Results: map[string]wire.SyncCheckResult{
				"widgets": {
					Strategy: wire.StrategyDelta,
					ToUpdate: []json.RawMessage{json.RawMessage(`{"_id":"a","__updated":150,"color":"red"}`)},
				},
				"gadgets": {Strategy: wire.StrategyFull},
			}}, nil
		},
		FetchAllFunc: func(ctx context.Context, collection string) (*wire.FetchAllResponse, error) {
			assert.Equal(t, "gadgets", collection)
			return &wire.FetchAllResponse{Records: []json.RawMessage{
				json.RawMessage(`{"_id":"g1","__updated":7,"name":"gear"}`),
			}}, nil
		},
	}

	widgets, err := collection.New[doc](db, client, models.CollectionSchema{Name: "widgets", Group: "test", Version: "1.0.0"}, collection.Options{Logger: testLogger()})
	require.NoError(t, err)
	gadgets, err := collection.New[doc](db, client, models.CollectionSchema{Name: "gadgets", Group: "test", Version: "1.0.0"}, collection.Options{Logger: testLogger()})
	require.NoError(t, err)

	reg := registryOf(t, widgets, gadgets)
	require.NoError(t, reg.OpenAll(ctx))

	first := models.Document{Meta: models.Meta{ID: "b", Updated: 100}}
	require.NoError(t, widgets.OnFullSyncDelivered(ctx, []doc{first}))

	c := NewCoordinator(reg, client, Config{}, testLogger())
	res, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, res.Delta)
	assert.Equal(t, []string{"gadgets"}, res.Full)

	a, ok := widgets.Unique("a")
	require.True(t, ok)
	assert.Equal(t, int64(150), a.Version())
	assert.Equal(t, models.ContainsData, widgets.Status())

	d, err := widgets.Descriptor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(150), d.LocalLastUpdated)

	// статус ContainsData означает, что кэш совпадает с хранилищем
	for _, ctl := range []*collection.Controller[doc]{widgets, gadgets} {
		assert.Equal(t, models.ContainsData, ctl.Status())
		stored, err := ctl.Query(ctx, storage.Query{})
		require.NoError(t, err)
		assert.ElementsMatch(t, stored, ctl.All())
	}
}
