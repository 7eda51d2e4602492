package cluster

import (
	"errors"
	"testing"
	"time"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry("self")

	err := r.Register(Peer{ID: "worker-1", Role: RoleWorker, Address: "10.0.0.2", Port: 4001})
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	p, err := r.Get("worker-1")
	if err != nil {
		t.Fatalf("Failed to get peer: %v", err)
	}
	if p.Role != RoleWorker {
		t.Errorf("Expected role worker, got %s", p.Role)
	}
	if p.LastSeen.IsZero() {
		t.Error("Expected LastSeen to be stamped on registration")
	}
}

func TestRegisterRejectsSelf(t *testing.T) {
	r := NewRegistry("self")

	err := r.Register(Peer{ID: "self", Role: RoleWorker})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for own id, got %v", err)
	}
	if r.Len() != 0 {
		t.Error("Expected registry to stay empty")
	}
}

func TestRegisterRejectsEmptyID(t *testing.T) {
	r := NewRegistry("self")

	if err := r.Register(Peer{Role: RoleWorker}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty id, got %v", err)
	}
}

func TestRegisterConflictingEndpoint(t *testing.T) {
	r := NewRegistry("self")

	if err := r.Register(Peer{ID: "worker-1", Role: RoleWorker, Address: "10.0.0.2", Port: 4001}); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	// Same id from a different endpoint is a misconfiguration, not a refresh.
	err := r.Register(Peer{ID: "worker-1", Role: RoleWorker, Address: "10.0.0.9", Port: 4001})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}

	// Same endpoint refreshes in place.
	if err := r.Register(Peer{ID: "worker-1", Role: RoleMaster, Address: "10.0.0.2", Port: 4001}); err != nil {
		t.Errorf("Expected re-registration from same endpoint to succeed: %v", err)
	}
	p, _ := r.Get("worker-1")
	if p.Role != RoleMaster {
		t.Errorf("Expected refreshed role master, got %s", p.Role)
	}
}

func TestReplaceAll(t *testing.T) {
	r := NewRegistry("self")

	if err := r.Register(Peer{ID: "old", Role: RoleWorker, Address: "10.0.0.2"}); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	kept := r.ReplaceAll([]Peer{
		{ID: "worker-1", Role: RoleWorker, Address: "10.0.0.3"},
		{ID: "self", Role: RoleMaster, Address: "10.0.0.4"}, // must be dropped
		{ID: "worker-2", Role: RoleWorker, Address: "10.0.0.5"},
	})
	if kept != 2 {
		t.Errorf("Expected 2 peers kept, got %d", kept)
	}
	if _, err := r.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected old peer to be dropped by snapshot replacement")
	}
	if _, err := r.Get("self"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected own id to be excluded from snapshot")
	}
	if r.Len() != 2 {
		t.Errorf("Expected registry size 2, got %d", r.Len())
	}
}

func TestTouchRefreshesLastSeen(t *testing.T) {
	r := NewRegistry("self")

	if err := r.Register(Peer{ID: "worker-1", Role: RoleWorker, Address: "10.0.0.2"}); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	before, _ := r.Get("worker-1")

	time.Sleep(2 * time.Millisecond)
	if err := r.Touch("worker-1"); err != nil {
		t.Fatalf("Failed to touch: %v", err)
	}

	after, _ := r.Get("worker-1")
	if !after.LastSeen.After(before.LastSeen) {
		t.Error("Expected Touch to advance LastSeen")
	}

	if err := r.Touch("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown peer, got %v", err)
	}
}

func TestHealthCheckPartitionsWithoutMutating(t *testing.T) {
	r := NewRegistry("self")

	r.Register(Peer{ID: "fresh", Role: RoleWorker, Address: "10.0.0.2"})
	r.Register(Peer{ID: "stale", Role: RoleWorker, Address: "10.0.0.3"})

	// Age the stale peer directly.
	r.mu.Lock()
	p := r.peers["stale"]
	p.LastSeen = time.Now().Add(-time.Hour)
	r.peers["stale"] = p
	r.mu.Unlock()

	healthy, unhealthy := r.HealthCheck(time.Minute)
	if len(healthy) != 1 || healthy[0].ID != "fresh" {
		t.Errorf("Expected [fresh] healthy, got %v", healthy)
	}
	if len(unhealthy) != 1 || unhealthy[0].ID != "stale" {
		t.Errorf("Expected [stale] unhealthy, got %v", unhealthy)
	}
	if r.Len() != 2 {
		t.Error("HealthCheck must not mutate the registry")
	}
}

func TestPruneUnhealthy(t *testing.T) {
	r := NewRegistry("self")

	r.Register(Peer{ID: "fresh", Role: RoleWorker, Address: "10.0.0.2"})
	r.Register(Peer{ID: "stale", Role: RoleWorker, Address: "10.0.0.3"})

	r.mu.Lock()
	p := r.peers["stale"]
	p.LastSeen = time.Now().Add(-time.Hour)
	r.peers["stale"] = p
	r.mu.Unlock()

	dropped := r.PruneUnhealthy(time.Minute)
	if dropped != 1 {
		t.Errorf("Expected 1 pruned peer, got %d", dropped)
	}
	if _, err := r.Get("stale"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected stale peer removed")
	}
	if _, err := r.Get("fresh"); err != nil {
		t.Errorf("Expected fresh peer retained: %v", err)
	}
}
