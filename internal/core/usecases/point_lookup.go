package usecases

import (
	"context"
	"sync"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

// PointLookup tracks the latest demographics lookup of one caller, such as
// one map view. Callers sharing a point still share the upstream request
// through the DemographicsService's in-flight dedupe.
type PointLookup struct {
	fetcher DemographicsFetcher

	// deliverMu is held while deliver runs, so a cancelled lookup can
	// never deliver after Cancel returns.
	deliverMu sync.Mutex
	mu        sync.Mutex
	current   *LookupHandle
}

// NewPointLookup creates a tracker with no outstanding lookup.
func NewPointLookup(fetcher DemographicsFetcher) *PointLookup {
	return &PointLookup{fetcher: fetcher}
}

// LookupHandle is the live demographics lookup for a single map point.
type LookupHandle struct {
	Key string

	pl     *PointLookup
	cancel context.CancelFunc
	once   sync.Once
	done   bool // guarded by pl.mu
}

// Cancel abandons the lookup; its callback will not run. Safe to call more
// than once.
func (l *LookupHandle) Cancel() {
	l.once.Do(func() {
		l.cancel()
		l.pl.deliverMu.Lock()
		defer l.pl.deliverMu.Unlock()

		l.pl.mu.Lock()
		if l.pl.current == l {
			l.pl.current = nil
		}
		l.pl.mu.Unlock()
	})
}

// Lookup fetches demographics for one point, replacing the outstanding
// lookup. If a lookup for the same rounded coordinate is still outstanding
// no request is issued and that handle is returned with started=false.
// deliver is not called for a cancelled or replaced lookup.
func (pl *PointLookup) Lookup(
	ctx context.Context,
	point domain.GeoPoint,
	deliver func(domain.DemographicsResult),
) (handle *LookupHandle, started bool) {
	key := DemographicsKey(point)

	pl.mu.Lock()
	if cur := pl.current; cur != nil && !cur.done {
		if cur.Key == key {
			pl.mu.Unlock()
			return cur, false
		}
		cur.cancel()
	}
	lctx, cancel := context.WithCancel(ctx)
	l := &LookupHandle{Key: key, pl: pl, cancel: cancel}
	pl.current = l
	pl.mu.Unlock()

	go func() {
		defer cancel()
		res := pl.fetcher.Fetch(lctx, point)

		pl.deliverMu.Lock()
		defer pl.deliverMu.Unlock()

		pl.mu.Lock()
		live := pl.current == l && lctx.Err() == nil
		l.done = true
		pl.mu.Unlock()

		if !live || (res.Failure != nil && res.Failure.Cancelled()) {
			return
		}
		if deliver != nil {
			deliver(res)
		}
	}()
	return l, true
}

// Cancel abandons the outstanding lookup, if any.
func (pl *PointLookup) Cancel() {
	pl.mu.Lock()
	cur := pl.current
	pl.mu.Unlock()
	if cur != nil {
		cur.Cancel()
	}
}
