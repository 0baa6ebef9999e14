// Package dedupe decides whether a raw page visit counts as a new unique view.
package dedupe

import (
	"time"

	"github.com/yorunavi/engine/internal/domain/types"
)

// Option applies a configuration option to the windowDeduper.
type Option func(*windowDeduper)

// WithWindow sets the dedup window for one entity kind.
func WithWindow(entityType types.EntityType, window time.Duration) Option {
	return func(d *windowDeduper) {
		if window <= 0 {
			return
		}
		switch entityType {
		case types.EntityShop:
			d.shopWindow = window
		case types.EntityCast:
			d.castWindow = window
		}
	}
}

// WithCacheSize bounds the in-process decision cache.
// size <= 0 disables the bound (no eviction).
func WithCacheSize(size int) Option {
	return func(d *windowDeduper) {
		d.maxSize = size
	}
}
