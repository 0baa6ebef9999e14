// Package dedupe decides whether a raw page visit counts as a new unique view.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

// Default window configuration constants.
const (
	defaultCastWindow = 24 * time.Hour // unique visitor per day
	defaultShopWindow = 1 * time.Hour  // coarse anti-refresh window
	defaultCacheSize  = 500_000
)

// RecentViewChecker reports whether a counted view already exists for the
// same (entity, viewer) after the cutoff. The durable store implements it.
type RecentViewChecker interface {
	HasViewSince(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey, cutoff time.Time) (bool, error)
}

// Deduper decides whether a visit becomes a counted ViewEvent.
type Deduper interface {
	// ShouldCount returns true when no prior counted view exists for the
	// same (entity, viewer) inside the entity kind's dedup window.
	// Anonymous viewers (no key at all) always count.
	ShouldCount(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey, now time.Time) (bool, error)

	// Forget drops the cached decision for a viewer, allowing a retry.
	// Used when a counted view failed to persist.
	Forget(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey)

	// Window returns the dedup window applied to the given entity kind.
	Window(entityType types.EntityType) time.Duration
}

// node is one entry of the bounded cache's eviction list.
type node struct {
	key     string
	counted time.Time
	next    *node
}

func (n *node) reset() {
	n.key = ""
	n.counted = time.Time{}
	n.next = nil
}

// windowDeduper implements Deduper with per-kind windows. A bounded
// in-process cache of last-counted instants short-circuits repeat visits
// without a store round trip; the store check stays authoritative.
type windowDeduper struct {
	checker RecentViewChecker

	castWindow time.Duration
	shopWindow time.Duration

	mu       sync.Mutex
	seen     map[string]*node
	head     *node
	maxSize  int
	nodePool sync.Pool
}

// NewWindowDeduper creates a deduper over the given store checker.
func NewWindowDeduper(checker RecentViewChecker, opts ...Option) Deduper {
	d := &windowDeduper{
		checker:    checker,
		castWindow: defaultCastWindow,
		shopWindow: defaultShopWindow,
		maxSize:    defaultCacheSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]*node)
	d.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}

	return d
}

// Window returns the dedup window applied to the given entity kind.
func (d *windowDeduper) Window(entityType types.EntityType) time.Duration {
	if entityType == types.EntityShop {
		return d.shopWindow
	}
	return d.castWindow
}

func cacheKey(entityType types.EntityType, entityID string, viewer model.ViewerKey) string {
	return string(entityType) + "|" + entityID + "|" + viewer.String()
}

// ShouldCount applies open-window semantics: only a prior view strictly
// inside (now-window, now] blocks; one exactly window old does not.
func (d *windowDeduper) ShouldCount(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey, now time.Time) (bool, error) {
	if viewer.Anonymous() {
		// Cannot distinguish anonymous visitors from one another.
		return true, nil
	}

	window := d.Window(entityType)
	cutoff := now.Add(-window)
	key := cacheKey(entityType, entityID, viewer)

	d.mu.Lock()
	if n, ok := d.seen[key]; ok && n.counted.After(cutoff) {
		d.mu.Unlock()
		return false, nil
	}
	d.mu.Unlock()

	recent, err := d.checker.HasViewSince(ctx, entityType, entityID, viewer, cutoff)
	if err != nil {
		return false, fmt.Errorf("dedup store check: %w", err)
	}
	if recent {
		return false, nil
	}

	d.remember(key, now)
	return true, nil
}

// Forget drops the cached decision for a viewer.
func (d *windowDeduper) Forget(_ context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey) {
	key := cacheKey(entityType, entityID, viewer)

	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.seen[key]
	if !ok {
		return
	}
	delete(d.seen, key)
	d.unlink(n)
	n.reset()
	d.nodePool.Put(n)
}

// remember records the counted instant, evicting the oldest entry when full.
func (d *windowDeduper) remember(key string, counted time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[key]; ok {
		n.counted = counted
		return
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictTail()
	}

	n := d.nodePool.Get().(*node)
	n.key = key
	n.counted = counted
	n.next = d.head
	d.head = n
	d.seen[key] = n
}

// unlink removes a node from the eviction list. Caller holds d.mu.
func (d *windowDeduper) unlink(n *node) {
	if d.head == n {
		d.head = n.next
		return
	}
	current := d.head
	for current != nil && current.next != n {
		current = current.next
	}
	if current != nil {
		current.next = n.next
	}
}

// evictTail removes the oldest entry. Caller holds d.mu.
func (d *windowDeduper) evictTail() {
	if d.head == nil {
		return
	}
	if d.head.next == nil {
		delete(d.seen, d.head.key)
		d.head.reset()
		d.nodePool.Put(d.head)
		d.head = nil
		return
	}

	var prev *node
	current := d.head
	for current.next != nil {
		prev = current
		current = current.next
	}
	prev.next = nil
	delete(d.seen, current.key)
	current.reset()
	d.nodePool.Put(current)
}

// Size returns the number of cached decisions (test hook).
func (d *windowDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
