package cluster

import (
	"fmt"
	"log/slog"
	"sort"
)

// Coordinator decides who leads the cluster and which peers must replicate
// an operation. Election is pure selection, not consensus: every node runs
// the same deterministic sort over the same candidate list and converges on
// the same leader, assuming the external membership feed keeps registry
// views in sync.
type Coordinator struct {
	registry *Registry
	self     Peer
}

// NewCoordinator creates a coordinator for the local node. The self peer is
// implicitly part of every election and targeting computation even though it
// is never stored in the registry.
func NewCoordinator(registry *Registry, self Peer) *Coordinator {
	return &Coordinator{registry: registry, self: self}
}

// Self returns the local node's peer record.
func (c *Coordinator) Self() Peer {
	return c.self
}

// Registry returns the underlying peer registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// candidates returns a snapshot of the registry with the self peer injected.
func (c *Coordinator) candidates() []Peer {
	return append(c.registry.Snapshot(), c.self)
}

// ElectLeader deterministically picks the cluster leader: highest role
// priority wins, ties broken by descending peer id so every node with the
// same registry contents arrives at the same answer. Side-effect free.
func (c *Coordinator) ElectLeader() (Peer, error) {
	candidates := c.candidates()
	if len(candidates) == 0 {
		return Peer{}, fmt.Errorf("no election candidates: %w", ErrNotFound)
	}

	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Role.Priority(), candidates[j].Role.Priority()
		if pi != pj {
			return pi > pj
		}
		return candidates[i].ID > candidates[j].ID
	})
	return candidates[0], nil
}

// IsLeader reports whether the local node currently wins the election.
func (c *Coordinator) IsLeader() bool {
	leader, err := c.ElectLeader()
	if err != nil {
		return false
	}
	return leader.ID == c.self.ID
}

// AuthorizeWrite reports whether a role may originate replication or
// index-write operations. Only masters may; workers apply already-authorized
// instructions and leechers only read.
func (c *Coordinator) AuthorizeWrite(role Role) bool {
	return role == RoleMaster
}

// ReplicationTargets computes which peers must replicate the given content.
// Only the elected leader may call this; everyone else gets ErrNotAuthorized.
//
// When requested ids are given, each is resolved against the candidate set
// and unknown ids are dropped with a warning. Otherwise all master and
// worker candidates are targeted; leechers never are, since they make no
// durability promise.
func (c *Coordinator) ReplicationTargets(contentID string, requested []string) ([]Peer, error) {
	if !c.IsLeader() {
		return nil, fmt.Errorf("node %s is not the leader: %w", c.self.ID, ErrNotAuthorized)
	}

	candidates := c.candidates()

	if len(requested) > 0 {
		byID := make(map[string]Peer, len(candidates))
		for _, p := range candidates {
			byID[p.ID] = p
		}

		targets := make([]Peer, 0, len(requested))
		for _, id := range requested {
			p, ok := byID[id]
			if !ok {
				slog.Warn("Dropping unknown replication target",
					"peer", id,
					"contentId", contentID,
				)
				continue
			}
			targets = append(targets, p)
		}
		return targets, nil
	}

	targets := make([]Peer, 0, len(candidates))
	for _, p := range candidates {
		if p.Role == RoleMaster || p.Role == RoleWorker {
			targets = append(targets, p)
		}
	}
	return targets, nil
}
