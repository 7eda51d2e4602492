package cluster

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry holds the known remote peers, keyed by peer id. The local node is
// never stored here; callers inject it at read time so a remote announcement
// can never shadow the node's own view of itself.
//
// All access is serialized under one lock. Reads that feed a computation
// (election, targeting) copy the peer list out and work on the copy.
type Registry struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	selfID string
}

// NewRegistry creates an empty registry that rejects registrations for the
// given local peer id.
func NewRegistry(selfID string) *Registry {
	return &Registry{
		peers:  make(map[string]Peer),
		selfID: selfID,
	}
}

// Register inserts or refreshes a peer entry and stamps LastSeen. Attempts
// to register the local node's own id fail with ErrInvalidArgument; reusing
// an existing id from a different endpoint fails with ErrConflict rather
// than silently picking one of the claimants.
func (r *Registry) Register(p Peer) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty peer id", ErrInvalidArgument)
	}
	if p.ID == r.selfID {
		return fmt.Errorf("%w: refusing to register own id %s", ErrInvalidArgument, p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.peers[p.ID]; ok && !existing.SameEndpoint(p) {
		return fmt.Errorf("%w: id %s already registered at %s:%d",
			ErrConflict, p.ID, existing.Address, existing.Port)
	}

	p.LastSeen = time.Now()
	r.peers[p.ID] = p

	slog.Debug("Peer registered", "id", p.ID, "role", p.Role, "address", p.Address)
	return nil
}

// ReplaceAll swaps the entire registry for a full membership snapshot.
// Entries absent from the new list are dropped. Invalid entries (own id,
// duplicate ids within the snapshot) are skipped with a warning. Returns the
// number of peers retained.
func (r *Registry) ReplaceAll(peers []Peer) int {
	now := time.Now()
	next := make(map[string]Peer, len(peers))
	for _, p := range peers {
		if p.ID == "" || p.ID == r.selfID {
			slog.Warn("Dropping invalid peer from snapshot", "id", p.ID)
			continue
		}
		if existing, ok := next[p.ID]; ok && !existing.SameEndpoint(p) {
			slog.Warn("Dropping conflicting peer from snapshot",
				"id", p.ID,
				"address", p.Address,
			)
			continue
		}
		p.LastSeen = now
		next[p.ID] = p
	}

	r.mu.Lock()
	r.peers = next
	r.mu.Unlock()

	slog.Info("Peer set replaced", "peers", len(next))
	return len(next)
}

// Touch refreshes a peer's LastSeen stamp. Returns ErrNotFound for unknown
// peers.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return fmt.Errorf("peer %s: %w", id, ErrNotFound)
	}
	p.LastSeen = time.Now()
	r.peers[id] = p
	return nil
}

// Get looks up a single peer by id.
func (r *Registry) Get(id string) (Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, fmt.Errorf("peer %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// Snapshot returns a point-in-time copy of all registered peers.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// HealthCheck partitions the registry by liveness: peers seen within the
// window are healthy, the rest are not. The registry is not mutated; a
// transient partition should not silently erase membership.
func (r *Registry) HealthCheck(window time.Duration) (healthy, unhealthy []Peer) {
	cutoff := time.Now().Add(-window)
	for _, p := range r.Snapshot() {
		if p.LastSeen.Before(cutoff) {
			unhealthy = append(unhealthy, p)
		} else {
			healthy = append(healthy, p)
		}
	}
	return healthy, unhealthy
}

// PruneUnhealthy removes peers not seen within the window and returns how
// many were dropped. This is the explicit companion to HealthCheck.
func (r *Registry) PruneUnhealthy(window time.Duration) int {
	cutoff := time.Now().Add(-window)

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, p := range r.peers {
		if p.LastSeen.Before(cutoff) {
			delete(r.peers, id)
			slog.Info("Pruned stale peer", "id", id, "lastSeen", p.LastSeen)
			dropped++
		}
	}
	return dropped
}
