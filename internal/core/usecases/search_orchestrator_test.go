package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
	"github.com/samirrijal/gapfinder/internal/pkg/geospatial"
)

// --- Fake clock ---

type fakeTimer struct {
	at   time.Time
	f    func()
	done bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	c.mu.Unlock()

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.done {
			return false
		}
		t.done = true
		return true
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		go t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// --- Mock collaborators ---

type mockPlaces struct {
	nearbyFn func(ctx context.Context, c domain.SearchCriteria) ([]domain.Business, error)
	calls    int32
}

func (m *mockPlaces) Nearby(ctx context.Context, c domain.SearchCriteria) ([]domain.Business, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.nearbyFn != nil {
		return m.nearbyFn(ctx, c)
	}
	return nil, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.SearchEvent
}

func (m *mockPublisher) PublishSearchEvent(ctx context.Context, e *domain.SearchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *mockPublisher) states() []domain.SearchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SearchState, len(m.events))
	for i, e := range m.events {
		out[i] = e.State
	}
	return out
}

type mockSearchLog struct {
	mu      sync.Mutex
	entries []domain.SearchLogEntry
}

func (m *mockSearchLog) Record(ctx context.Context, e *domain.SearchLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockSearchLog) Recent(ctx context.Context, limit int) ([]domain.SearchLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SearchLogEntry(nil), m.entries...), nil
}

func (m *mockSearchLog) lastState() domain.SearchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return ""
	}
	return m.entries[len(m.entries)-1].State
}

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("miss")
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// recorder collects callbacks for one or more searches.
type recorder struct {
	mu           sync.Mutex
	results      []domain.SearchResults
	enrichment   map[string][]domain.BusinessDemographics
	errs         []error
	states       map[string][]domain.SearchState
	resultsCh    chan domain.SearchResults
	enrichmentCh chan string
}

func newRecorder() *recorder {
	return &recorder{
		enrichment:   make(map[string][]domain.BusinessDemographics),
		states:       make(map[string][]domain.SearchState),
		resultsCh:    make(chan domain.SearchResults, 10),
		enrichmentCh: make(chan string, 10),
	}
}

func (r *recorder) callbacks() usecases.SearchCallbacks {
	return usecases.SearchCallbacks{
		OnResults: func(res domain.SearchResults) {
			r.mu.Lock()
			r.results = append(r.results, res)
			r.mu.Unlock()
			r.resultsCh <- res
		},
		OnEnrichment: func(id string, d []domain.BusinessDemographics) {
			r.mu.Lock()
			r.enrichment[id] = d
			r.mu.Unlock()
			r.enrichmentCh <- id
		},
		OnError: func(id string, err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnStateChange: func(id string, s domain.SearchState) {
			r.mu.Lock()
			r.states[id] = append(r.states[id], s)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) statesOf(id string) []domain.SearchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SearchState(nil), r.states[id]...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func waitResults(t *testing.T, r *recorder) domain.SearchResults {
	t.Helper()
	select {
	case res := <-r.resultsCh:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for results")
		return domain.SearchResults{}
	}
}

// waitResultsFor skips results of earlier searches.
func waitResultsFor(t *testing.T, r *recorder, id string) domain.SearchResults {
	t.Helper()
	for {
		if res := waitResults(t, r); res.SearchID == id {
			return res
		}
	}
}

var downtown = domain.GeoPoint{Lat: 40.7128, Lng: -74.0060}

func twoCafes() []domain.Business {
	rating := 4.5
	return []domain.Business{
		{ID: "cafe-1", Name: "Cafe One", Location: downtown, Rating: &rating},
		{ID: "cafe-2", Name: "Cafe Two", Location: geospatial.DestinationPoint(downtown, 90, 1000)},
	}
}

func criteria(keyword string) domain.SearchCriteria {
	return domain.SearchCriteria{Center: downtown, RadiusM: 3000, Type: "cafe", Keyword: keyword}
}

func noInterval(clock usecases.Clock) usecases.SearchOptions {
	opts := usecases.DefaultSearchOptions()
	opts.MinInterval = 0
	opts.Clock = clock
	return opts
}

// --- Tests ---

func TestSearchOrchestrator_ResultsThenEnrichment(t *testing.T) {
	places := &mockPlaces{nearbyFn: func(context.Context, domain.SearchCriteria) ([]domain.Business, error) {
		return twoCafes(), nil
	}}
	pub := &mockPublisher{}
	slog := &mockSearchLog{}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, pub, slog, noInterval(newFakeClock()))
	rec := newRecorder()

	h, err := o.RunSearch(context.Background(), criteria(""), rec.callbacks())
	require.NoError(t, err)

	res := waitResults(t, rec)
	assert.Equal(t, h.ID, res.SearchID)
	require.Len(t, res.Businesses, 2)
	require.Len(t, res.Overlaps, 1)
	assert.Equal(t, "cafe-1", res.Overlaps[0].IDA)
	require.Len(t, res.Heatmap, 2)
	assert.Equal(t, domain.DefaultCoverageRadius, res.Criteria.CoverageRadiusM)

	select {
	case id := <-rec.enrichmentCh:
		assert.Equal(t, h.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for enrichment")
	}

	require.Eventually(t, func() bool { return slog.lastState() == domain.SearchEnrichmentComplete }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.SearchEnrichmentComplete, o.State())
	assert.Equal(t, []domain.SearchState{domain.SearchSearching, domain.SearchSucceeded, domain.SearchEnrichmentComplete}, rec.statesOf(h.ID))
	assert.Equal(t, []domain.SearchState{domain.SearchSearching, domain.SearchSucceeded, domain.SearchEnrichmentComplete}, pub.states())

	rec.mu.Lock()
	demo := rec.enrichment[h.ID]
	rec.mu.Unlock()
	require.Len(t, demo, 2)
	assert.Equal(t, "cafe-1", demo[0].BusinessID)
	assert.True(t, demo[1].Demographics.IsSet())
	assert.Empty(t, rec.errors())
}

func TestSearchOrchestrator_RateLimitDefersNotDrops(t *testing.T) {
	clock := newFakeClock()
	dispatched := make(chan time.Time, 4)
	places := &mockPlaces{nearbyFn: func(context.Context, domain.SearchCriteria) ([]domain.Business, error) {
		dispatched <- clock.Now()
		return twoCafes(), nil
	}}
	opts := usecases.DefaultSearchOptions()
	opts.Clock = clock
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, nil, opts)
	rec := newRecorder()

	_, err := o.RunSearch(context.Background(), criteria("first"), rec.callbacks())
	require.NoError(t, err)
	first := <-dispatched

	clock.Advance(500 * time.Millisecond)
	h2, err := o.RunSearch(context.Background(), criteria("second"), rec.callbacks())
	require.NoError(t, err)

	select {
	case <-dispatched:
		t.Fatal("second search dispatched before the minimum interval")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(1499 * time.Millisecond)
	select {
	case <-dispatched:
		t.Fatal("second search dispatched before the minimum interval")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	var second time.Time
	select {
	case second = <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred search was dropped")
	}
	assert.GreaterOrEqual(t, second.Sub(first), 2*time.Second)

	res := waitResultsFor(t, rec, h2.ID)
	assert.Equal(t, "second", res.Criteria.Keyword)
	assert.Equal(t, int32(2), atomic.LoadInt32(&places.calls))
}

func TestSearchOrchestrator_OnlyLatestDeferredFires(t *testing.T) {
	clock := newFakeClock()
	var keywords sync.Map
	places := &mockPlaces{nearbyFn: func(_ context.Context, c domain.SearchCriteria) ([]domain.Business, error) {
		keywords.Store(c.Keyword, true)
		return twoCafes(), nil
	}}
	opts := usecases.DefaultSearchOptions()
	opts.Clock = clock
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, nil, opts)
	rec := newRecorder()

	_, err := o.RunSearch(context.Background(), criteria("a"), rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&places.calls) == 1 }, time.Second, time.Millisecond)

	clock.Advance(200 * time.Millisecond)
	_, err = o.RunSearch(context.Background(), criteria("b"), rec.callbacks())
	require.NoError(t, err)
	clock.Advance(200 * time.Millisecond)
	hc, err := o.RunSearch(context.Background(), criteria("c"), rec.callbacks())
	require.NoError(t, err)
	assert.Equal(t, 1, clock.pending())

	clock.Advance(5 * time.Second)
	for {
		res := waitResults(t, rec)
		if res.SearchID == hc.ID {
			break
		}
		assert.Equal(t, "a", res.Criteria.Keyword)
	}

	_, ranB := keywords.Load("b")
	assert.False(t, ranB, "superseded deferred search must not dispatch")
	assert.Equal(t, int32(2), atomic.LoadInt32(&places.calls))
}

func TestSearchOrchestrator_SupersededResultsNeverDelivered(t *testing.T) {
	release := make(chan struct{})
	firstDone := make(chan struct{})
	places := &mockPlaces{nearbyFn: func(ctx context.Context, c domain.SearchCriteria) ([]domain.Business, error) {
		if c.Keyword == "first" {
			defer close(firstDone)
			<-release // ignores cancellation, like a slow network response
			return []domain.Business{{ID: "stale", Location: downtown}}, nil
		}
		return twoCafes(), nil
	}}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, nil, noInterval(newFakeClock()))
	rec := newRecorder()

	h1, err := o.RunSearch(context.Background(), criteria("first"), rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&places.calls) == 1 }, time.Second, time.Millisecond)

	h2, err := o.RunSearch(context.Background(), criteria("second"), rec.callbacks())
	require.NoError(t, err)
	res := waitResults(t, rec)
	assert.Equal(t, h2.ID, res.SearchID)

	close(release)
	<-firstDone
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, r := range rec.results {
		assert.Equal(t, h2.ID, r.SearchID, "superseded search delivered results")
	}
	assert.Contains(t, rec.states[h1.ID], domain.SearchCancelled)
	assert.NotContains(t, rec.states[h1.ID], domain.SearchSucceeded)
}

func TestSearchOrchestrator_QuotaCooldown(t *testing.T) {
	clock := newFakeClock()
	var quota atomic.Bool
	quota.Store(true)
	places := &mockPlaces{nearbyFn: func(context.Context, domain.SearchCriteria) ([]domain.Business, error) {
		if quota.Load() {
			return nil, fmt.Errorf("nearby search: %w", domain.ErrQuotaExhausted)
		}
		return twoCafes(), nil
	}}
	slog := &mockSearchLog{}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, slog, noInterval(clock))
	rec := newRecorder()

	h, err := o.RunSearch(context.Background(), criteria(""), rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return slog.lastState() == domain.SearchQuotaCooldown }, time.Second, time.Millisecond)

	assert.Equal(t, domain.SearchQuotaCooldown, o.State())
	require.Len(t, rec.errors(), 1)
	assert.ErrorIs(t, rec.errors()[0], domain.ErrQuotaExhausted)

	_, err = o.RunSearch(context.Background(), criteria("again"), rec.callbacks())
	assert.ErrorIs(t, err, domain.ErrSearchSuppressed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&places.calls), "suppressed search must not be queued")

	quota.Store(false)
	clock.Advance(59 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, domain.SearchQuotaCooldown, o.State())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return o.State() == domain.SearchIdle }, time.Second, time.Millisecond)
	assert.Contains(t, rec.statesOf(h.ID), domain.SearchIdle)

	_, err = o.RunSearch(context.Background(), criteria("after"), rec.callbacks())
	require.NoError(t, err)
	res := waitResults(t, rec)
	assert.Equal(t, "after", res.Criteria.Keyword)
	assert.Equal(t, int32(2), atomic.LoadInt32(&places.calls))
}

func TestSearchOrchestrator_Failure(t *testing.T) {
	places := &mockPlaces{nearbyFn: func(context.Context, domain.SearchCriteria) ([]domain.Business, error) {
		return nil, errors.New("upstream 500")
	}}
	slog := &mockSearchLog{}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, slog, noInterval(newFakeClock()))
	rec := newRecorder()

	h, err := o.RunSearch(context.Background(), criteria(""), rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return slog.lastState() == domain.SearchFailed }, time.Second, time.Millisecond)

	assert.Equal(t, domain.SearchFailed, o.State())
	assert.Equal(t, []domain.SearchState{domain.SearchSearching, domain.SearchFailed}, rec.statesOf(h.ID))
	require.Len(t, rec.errors(), 1)
	assert.NotErrorIs(t, rec.errors()[0], domain.ErrQuotaExhausted)

	// A failed search does not block the next one.
	_, err = o.RunSearch(context.Background(), criteria("retry"), rec.callbacks())
	assert.NoError(t, err)
}

func TestSearchOrchestrator_CancelIsIdempotentAndSilent(t *testing.T) {
	places := &mockPlaces{nearbyFn: func(ctx context.Context, _ domain.SearchCriteria) ([]domain.Business, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	slog := &mockSearchLog{}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, slog, noInterval(newFakeClock()))
	rec := newRecorder()

	h, err := o.RunSearch(context.Background(), criteria(""), rec.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&places.calls) == 1 }, time.Second, time.Millisecond)

	h.Cancel()
	h.Cancel()

	assert.Equal(t, domain.SearchCancelled, o.State())
	require.Eventually(t, func() bool { return slog.lastState() == domain.SearchCancelled }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.errors(), "cancellation is not an error")
	assert.Equal(t, []domain.SearchState{domain.SearchSearching, domain.SearchCancelled}, rec.statesOf(h.ID))
}

func TestSearchOrchestrator_CachedPlaces(t *testing.T) {
	places := &mockPlaces{nearbyFn: func(context.Context, domain.SearchCriteria) ([]domain.Business, error) {
		return twoCafes(), nil
	}}
	cache := &memCache{}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), cache, nil, nil, noInterval(newFakeClock()))
	rec := newRecorder()

	_, err := o.RunSearch(context.Background(), criteria("x"), rec.callbacks())
	require.NoError(t, err)
	assert.False(t, waitResults(t, rec).FromCache)

	_, err = o.RunSearch(context.Background(), criteria("x"), rec.callbacks())
	require.NoError(t, err)
	res := waitResults(t, rec)
	assert.True(t, res.FromCache)
	assert.Len(t, res.Businesses, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&places.calls))
}

func TestSearchOrchestrator_Validation(t *testing.T) {
	o := usecases.NewSearchOrchestrator(&mockPlaces{}, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, nil, noInterval(newFakeClock()))

	_, err := o.RunSearch(context.Background(), domain.SearchCriteria{Center: downtown}, usecases.SearchCallbacks{})
	assert.ErrorIs(t, err, domain.ErrInvalidRadius)

	_, err = o.RunSearch(context.Background(), domain.SearchCriteria{Center: downtown, RadiusM: 1e6}, usecases.SearchCallbacks{})
	assert.ErrorIs(t, err, domain.ErrInvalidRadius)

	_, err = o.RunSearch(context.Background(), domain.SearchCriteria{Center: domain.GeoPoint{Lat: 91}, RadiusM: 10}, usecases.SearchCallbacks{})
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)
	assert.Equal(t, domain.SearchIdle, o.State())
}

func TestSearchOrchestrator_EvictsUnreadableCacheEntry(t *testing.T) {
	places := &mockPlaces{nearbyFn: func(context.Context, domain.SearchCriteria) ([]domain.Business, error) {
		return twoCafes(), nil
	}}
	cache := &memCache{}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), cache, nil, nil, noInterval(newFakeClock()))
	rec := newRecorder()

	_, err := o.RunSearch(context.Background(), criteria("x"), rec.callbacks())
	require.NoError(t, err)
	waitResults(t, rec)

	cache.mu.Lock()
	require.Len(t, cache.data, 1)
	for k := range cache.data {
		cache.data[k] = []byte("{not json")
	}
	cache.mu.Unlock()

	_, err = o.RunSearch(context.Background(), criteria("x"), rec.callbacks())
	require.NoError(t, err)
	res := waitResults(t, rec)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Businesses, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&places.calls))

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Len(t, cache.deleted, 1)
	for _, v := range cache.data {
		assert.True(t, json.Valid(v), "fresh result replaces the evicted entry")
	}
}

func TestSearchOrchestrator_ResultsCarryViewportBounds(t *testing.T) {
	places := &mockPlaces{nearbyFn: func(context.Context, domain.SearchCriteria) ([]domain.Business, error) {
		return twoCafes(), nil
	}}
	o := usecases.NewSearchOrchestrator(places, usecases.NewEnricher(&mockFetcher{}, 0), nil, nil, nil, noInterval(newFakeClock()))
	rec := newRecorder()

	c := criteria("x")
	_, err := o.RunSearch(context.Background(), c, rec.callbacks())
	require.NoError(t, err)
	res := waitResults(t, rec)

	b := res.Bounds
	assert.Less(t, b.MinLat, c.Center.Lat)
	assert.Greater(t, b.MaxLat, c.Center.Lat)
	assert.Less(t, b.MinLng, c.Center.Lng)
	assert.Greater(t, b.MaxLng, c.Center.Lng)
	assert.Equal(t, domain.BoundsAround(c.Center, c.RadiusM), b)
}
