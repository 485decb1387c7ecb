package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/ports"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
	"github.com/samirrijal/gapfinder/internal/pkg/metrics"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

// Clock abstracts time so rate limiting and cooldowns can be tested.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f in its own goroutine after d. The returned func stops
	// the timer and reports whether it was still pending.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SearchOptions tunes a SearchOrchestrator.
type SearchOptions struct {
	MinInterval     time.Duration // between two dispatches
	QuotaCooldown   time.Duration
	CoverageRadiusM float64 // per-business radius for overlap detection
	MaxRadiusM      float64
	CacheTTLSeconds int
	Clock           Clock
}

// DefaultSearchOptions returns the production tuning.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MinInterval:     2 * time.Second,
		QuotaCooldown:   60 * time.Second,
		CoverageRadiusM: domain.DefaultCoverageRadius,
		MaxRadiusM:      50000,
		CacheTTLSeconds: 300,
	}
}

// SearchCallbacks receive the lifecycle of one search. Any of them may be
// nil. They run on orchestrator goroutines and must not call back into the
// orchestrator synchronously.
type SearchCallbacks struct {
	OnResults     func(results domain.SearchResults)
	OnEnrichment  func(searchID string, demographics []domain.BusinessDemographics)
	OnError       func(searchID string, err error)
	OnStateChange func(searchID string, state domain.SearchState)
}

// SearchOrchestrator runs user-triggered searches one at a time: a new search
// supersedes the previous one, dispatches are spaced by MinInterval, and
// quota exhaustion suppresses searches for QuotaCooldown.
type SearchOrchestrator struct {
	places    ports.PlacesProvider
	enricher  *Enricher
	cache     ports.CacheService
	publisher ports.EventPublisher
	searchLog ports.SearchLogRepository
	opts      SearchOptions

	// deliverMu is held while a callback runs and while the current search
	// changes, so a superseded search can never deliver after RunSearch returns.
	deliverMu sync.Mutex

	mu         sync.Mutex
	limiter    *rate.Limiter
	state      domain.SearchState
	generation uint64
	current    *SearchHandle
	stopCool   func() bool
}

// NewSearchOrchestrator creates a new SearchOrchestrator. cache, publisher
// and searchLog may be nil.
func NewSearchOrchestrator(
	places ports.PlacesProvider,
	enricher *Enricher,
	cache ports.CacheService,
	publisher ports.EventPublisher,
	searchLog ports.SearchLogRepository,
	opts SearchOptions,
) *SearchOrchestrator {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.CoverageRadiusM <= 0 {
		opts.CoverageRadiusM = domain.DefaultCoverageRadius
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &SearchOrchestrator{
		places:    places,
		enricher:  enricher,
		cache:     cache,
		publisher: publisher,
		searchLog: searchLog,
		opts:      opts,
		limiter:   rate.NewLimiter(limit, 1),
		state:     domain.SearchIdle,
	}
}

// SearchHandle identifies one search and cancels it.
type SearchHandle struct {
	ID       string
	Criteria domain.SearchCriteria

	o          *SearchOrchestrator
	generation uint64
	callbacks  SearchCallbacks
	cancel     context.CancelFunc
	once       sync.Once

	// guarded by o.mu
	reservation *rate.Reservation
	stopTimer   func() bool
}

// Cancel stops the search. Nothing is delivered for it afterwards. Safe to
// call more than once.
func (h *SearchHandle) Cancel() {
	h.once.Do(func() {
		h.cancel()
		h.o.deliverMu.Lock()

		h.o.mu.Lock()
		wasCurrent := h.o.isCurrent(h)
		if wasCurrent {
			h.o.generation++
			h.o.current = nil
			h.o.state = domain.SearchCancelled
		}
		h.release()
		h.o.mu.Unlock()

		if wasCurrent {
			h.notifyState(domain.SearchCancelled)
		}
		h.o.deliverMu.Unlock()

		if wasCurrent {
			h.o.finish(h, domain.SearchCancelled, 0, 0, nil)
		}
	})
}

// release drops a pending deferred dispatch. Caller holds o.mu.
func (h *SearchHandle) release() {
	if h.stopTimer != nil && h.stopTimer() && h.reservation != nil {
		h.reservation.CancelAt(h.o.opts.Clock.Now())
	}
	h.stopTimer = nil
	h.reservation = nil
}

func (h *SearchHandle) notifyState(s domain.SearchState) {
	if h.callbacks.OnStateChange != nil {
		h.callbacks.OnStateChange(h.ID, s)
	}
}

// State returns the orchestrator's current state.
func (o *SearchOrchestrator) State() domain.SearchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunSearch starts a search, cancelling any previous one. If the previous
// dispatch was less than MinInterval ago the places lookup is deferred, not
// dropped. During quota cooldown it returns domain.ErrSearchSuppressed.
func (o *SearchOrchestrator) RunSearch(ctx context.Context, criteria domain.SearchCriteria, cb SearchCallbacks) (*SearchHandle, error) {
	if !criteria.Center.Valid() {
		return nil, domain.ErrInvalidLocation
	}
	if criteria.RadiusM <= 0 || (o.opts.MaxRadiusM > 0 && criteria.RadiusM > o.opts.MaxRadiusM) {
		return nil, fmt.Errorf("%w: %.0f m", domain.ErrInvalidRadius, criteria.RadiusM)
	}
	if criteria.CoverageRadiusM <= 0 {
		criteria.CoverageRadiusM = o.opts.CoverageRadiusM
	}

	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	if o.state == domain.SearchQuotaCooldown {
		o.mu.Unlock()
		return nil, domain.ErrSearchSuppressed
	}

	prev := o.current
	if prev != nil {
		prev.cancel()
		prev.release()
	}

	sctx, cancel := context.WithCancel(ctx)
	o.generation++
	h := &SearchHandle{
		ID:         uuid.NewString(),
		Criteria:   criteria,
		o:          o,
		generation: o.generation,
		callbacks:  cb,
		cancel:     cancel,
	}
	o.current = h
	o.state = domain.SearchSearching

	now := o.opts.Clock.Now()
	r := o.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay > 0 {
		h.reservation = r
		h.stopTimer = o.opts.Clock.AfterFunc(delay, func() { o.dispatch(sctx, h) })
	}
	o.mu.Unlock()

	if prev != nil {
		prev.notifyState(domain.SearchCancelled)
		go o.finish(prev, domain.SearchCancelled, 0, 0, nil)
	}

	logging.FromContext(ctx).Info("search requested",
		"search_id", h.ID,
		"lat", criteria.Center.Lat,
		"lng", criteria.Center.Lng,
		"radius_m", criteria.RadiusM,
		"deferred", delay.String(),
	)
	h.notifyState(domain.SearchSearching)
	o.publish(sctx, &domain.SearchEvent{SearchID: h.ID, State: domain.SearchSearching})

	if delay > 0 {
		metrics.SearchesDeferred.Inc()
	} else {
		go o.dispatch(sctx, h)
	}
	return h, nil
}

// isCurrent reports whether h is still the live search. Caller holds o.mu.
func (o *SearchOrchestrator) isCurrent(h *SearchHandle) bool {
	return o.current == h && o.generation == h.generation
}

// deliver runs fn only if h is still the live search.
func (o *SearchOrchestrator) deliver(h *SearchHandle, state domain.SearchState, fn func()) bool {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	if !o.isCurrent(h) {
		o.mu.Unlock()
		return false
	}
	o.state = state
	if state.Terminal() || state == domain.SearchQuotaCooldown {
		o.current = nil
	}
	o.mu.Unlock()

	if fn != nil {
		fn()
	}
	h.notifyState(state)
	return true
}

func (o *SearchOrchestrator) dispatch(ctx context.Context, h *SearchHandle) {
	o.mu.Lock()
	h.reservation, h.stopTimer = nil, nil
	live := o.isCurrent(h)
	o.mu.Unlock()
	if !live || ctx.Err() != nil {
		return
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSearch)
	defer span.End()
	span.SetAttributes(attribute.String("search.id", h.ID))
	log := logging.FromContext(ctx).With("search_id", h.ID)

	start := o.opts.Clock.Now()
	businesses, fromCache, err := o.nearby(ctx, h.Criteria)
	metrics.SearchDuration.Observe(o.opts.Clock.Now().Sub(start).Seconds())

	if err != nil {
		switch {
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			// superseded or cancelled; whoever cancelled owns the state
		case errors.Is(err, domain.ErrQuotaExhausted):
			log.Warn("places quota exhausted, entering cooldown", "cooldown", o.opts.QuotaCooldown.String())
			if o.deliver(h, domain.SearchQuotaCooldown, func() { o.notifyError(h, err) }) {
				o.startCooldown(h)
				o.finish(h, domain.SearchQuotaCooldown, 0, 0, err)
			}
		default:
			log.Error("search failed", "error", err)
			if o.deliver(h, domain.SearchFailed, func() { o.notifyError(h, err) }) {
				o.finish(h, domain.SearchFailed, 0, 0, err)
			}
		}
		return
	}

	overlaps := DetectOverlaps(EntitiesFromBusinesses(businesses, h.Criteria.CoverageRadiusM))
	results := domain.SearchResults{
		SearchID:   h.ID,
		Criteria:   h.Criteria,
		Businesses: businesses,
		Overlaps:   overlaps,
		Heatmap:    BuildHeatmap(businesses, overlaps),
		Bounds:     domain.BoundsAround(h.Criteria.Center, h.Criteria.RadiusM),
		FromCache:  fromCache,
		ReadyAt:    o.opts.Clock.Now(),
	}

	delivered := o.deliver(h, domain.SearchSucceeded, func() {
		if h.callbacks.OnResults != nil {
			h.callbacks.OnResults(results)
		}
	})
	if !delivered {
		return
	}
	metrics.OverlapsDetected.Add(float64(len(overlaps)))
	log.Info("search results ready", "businesses", len(businesses), "overlaps", len(overlaps), "from_cache", fromCache)
	o.publish(ctx, &domain.SearchEvent{SearchID: h.ID, State: domain.SearchSucceeded, Results: &results})

	demographics := o.enricher.EnrichBusinesses(ctx, businesses)
	if ctx.Err() != nil {
		return
	}

	delivered = o.deliver(h, domain.SearchEnrichmentComplete, func() {
		if h.callbacks.OnEnrichment != nil {
			h.callbacks.OnEnrichment(h.ID, demographics)
		}
	})
	if !delivered {
		return
	}
	o.publish(ctx, &domain.SearchEvent{SearchID: h.ID, State: domain.SearchEnrichmentComplete, Demographics: demographics})
	o.finish(h, domain.SearchEnrichmentComplete, len(businesses), len(overlaps), nil)
}

func (o *SearchOrchestrator) notifyError(h *SearchHandle, err error) {
	if h.callbacks.OnError != nil {
		h.callbacks.OnError(h.ID, err)
	}
}

// startCooldown returns the orchestrator to Idle once QuotaCooldown elapses.
func (o *SearchOrchestrator) startCooldown(h *SearchHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopCool != nil {
		o.stopCool()
	}
	o.stopCool = o.opts.Clock.AfterFunc(o.opts.QuotaCooldown, func() {
		o.mu.Lock()
		if o.state != domain.SearchQuotaCooldown {
			o.mu.Unlock()
			return
		}
		o.state = domain.SearchIdle
		o.stopCool = nil
		o.mu.Unlock()

		h.notifyState(domain.SearchIdle)
		slog.Info("quota cooldown elapsed, searches resumed")
	})
}

// nearby is a read-through cache in front of the places provider.
func (o *SearchOrchestrator) nearby(ctx context.Context, c domain.SearchCriteria) ([]domain.Business, bool, error) {
	cacheKey := fmt.Sprintf("places:nearby:%.4f:%.4f:%.0f:%s:%s", c.Center.Lat, c.Center.Lng, c.RadiusM, c.Type, c.Keyword)
	if o.cache != nil {
		if data, err := o.cache.Get(ctx, cacheKey); err == nil {
			var businesses []domain.Business
			if err := json.Unmarshal(data, &businesses); err == nil {
				metrics.CacheHits.WithLabelValues("places_nearby").Inc()
				return businesses, true, nil
			}
			// Unreadable entry: evict it so the fresh result replaces it.
			if err := o.cache.Delete(ctx, cacheKey); err != nil {
				logging.FromContext(ctx).Warn("evict places cache entry failed", "key", cacheKey, "error", err)
			}
		}
		metrics.CacheMisses.WithLabelValues("places_nearby").Inc()
	}

	businesses, err := o.places.Nearby(ctx, c)
	if err != nil {
		return nil, false, err
	}
	if businesses == nil {
		businesses = []domain.Business{}
	}

	if o.cache != nil && o.opts.CacheTTLSeconds > 0 {
		if data, err := json.Marshal(businesses); err == nil {
			_ = o.cache.Set(ctx, cacheKey, data, o.opts.CacheTTLSeconds)
		}
	}
	return businesses, false, nil
}

func (o *SearchOrchestrator) publish(ctx context.Context, event *domain.SearchEvent) {
	if o.publisher == nil {
		return
	}
	event.Time = o.opts.Clock.Now()
	if err := o.publisher.PublishSearchEvent(context.WithoutCancel(ctx), event); err != nil {
		logging.FromContext(ctx).Warn("publish search event failed", "search_id", event.SearchID, "error", err)
	}
}

// finish records a search's final state in the search log.
func (o *SearchOrchestrator) finish(h *SearchHandle, state domain.SearchState, businesses, overlaps int, err error) {
	metrics.SearchesTotal.WithLabelValues(string(state)).Inc()
	if state == domain.SearchCancelled {
		o.publish(context.Background(), &domain.SearchEvent{SearchID: h.ID, State: state})
	} else if err != nil {
		o.publish(context.Background(), &domain.SearchEvent{SearchID: h.ID, State: state, Error: err.Error()})
	}
	if o.searchLog == nil {
		return
	}

	entry := &domain.SearchLogEntry{
		ID:            h.ID,
		Criteria:      h.Criteria,
		State:         state,
		BusinessCount: businesses,
		OverlapCount:  overlaps,
		CreatedAt:     o.opts.Clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.searchLog.Record(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("record search log failed", "search_id", h.ID, "error", err)
	}
}
