package cluster

import (
	"context"
	"log/slog"
	"time"
)

// StaticFeed is the minimal membership feed: it seeds the registry from a
// fixed peer list and refreshes LastSeen on an interval, standing in for an
// external discovery mechanism. Anything that can call Register and Touch
// (gossip, mDNS, a config reloader) can replace it.
type StaticFeed struct {
	registry *Registry
	peers    []Peer
	interval time.Duration
}

// NewStaticFeed creates a feed over a fixed peer list.
func NewStaticFeed(registry *Registry, peers []Peer, interval time.Duration) *StaticFeed {
	return &StaticFeed{
		registry: registry,
		peers:    peers,
		interval: interval,
	}
}

// Run seeds the registry, then keeps every seeded peer's LastSeen fresh
// until the context is cancelled. Blocks; run it in its own goroutine.
func (f *StaticFeed) Run(ctx context.Context) {
	f.seed()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range f.peers {
				if err := f.registry.Touch(p.ID); err != nil {
					// Re-register peers that were pruned while we slept.
					if err := f.registry.Register(p); err != nil {
						slog.Warn("Failed to refresh static peer", "id", p.ID, "error", err)
					}
				}
			}
		}
	}
}

func (f *StaticFeed) seed() {
	for _, p := range f.peers {
		if err := f.registry.Register(p); err != nil {
			slog.Warn("Skipping static peer", "id", p.ID, "error", err)
		}
	}
}
