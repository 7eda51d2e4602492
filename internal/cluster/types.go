package cluster

import (
	"errors"
	"time"
)

// Role is a flat capability tag, not a hierarchy. Masters may originate
// writes, workers replicate, leechers only read.
type Role string

const (
	RoleMaster  Role = "master"
	RoleWorker  Role = "worker"
	RoleLeecher Role = "leecher"
)

// Priority returns the election weight of a role. Unknown roles rank below
// every known one.
func (r Role) Priority() int {
	switch r {
	case RoleMaster:
		return 3
	case RoleWorker:
		return 2
	case RoleLeecher:
		return 1
	}
	return 0
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Priority() > 0
}

// RoleFromString parses a role name, case-sensitively.
func RoleFromString(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", errors.New("unknown role: " + s)
	}
	return r, nil
}

// Peer describes one cluster member. Address and Port are opaque here; the
// coordinator never dials anyone.
type Peer struct {
	ID       string    `json:"id"`
	Role     Role      `json:"role"`
	Address  string    `json:"address"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"lastSeen"`
}

// SameEndpoint reports whether two records claim the same network location.
// Used to tell a heartbeat refresh apart from a conflicting registration.
func (p Peer) SameEndpoint(other Peer) bool {
	return p.Address == other.Address && p.Port == other.Port
}

var (
	// ErrNotFound is returned when a lookup names no known peer.
	ErrNotFound = errors.New("peer not found")

	// ErrInvalidArgument is returned for malformed registrations, including
	// attempts to register the local node's own id.
	ErrInvalidArgument = errors.New("invalid peer")

	// ErrConflict is returned when a registration reuses an existing peer id
	// from a different endpoint.
	ErrConflict = errors.New("peer id conflict")

	// ErrNotAuthorized is returned when a non-leader attempts a leader-only
	// action.
	ErrNotAuthorized = errors.New("not authorized")
)
