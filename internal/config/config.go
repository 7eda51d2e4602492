package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dkrasny/pinflow/internal/cluster"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultRequeueTimeout = 300 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultLivenessWindow = 60 * time.Second
	DefaultFeedRefresh    = 30 * time.Second
)

// NodeConf identifies the local node within the cluster.
type NodeConf struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// PeerConf describes one statically configured remote peer.
type PeerConf struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Config is the daemon's full configuration.
type Config struct {
	DataDir string     `json:"dataDir"`
	Node    NodeConf   `json:"node"`
	Peers   []PeerConf `json:"peers"`

	// Durations in seconds; zero means "use the default".
	RequeueTimeoutSeconds int `json:"requeueTimeoutSeconds,omitempty"`
	PollIntervalSeconds   int `json:"pollIntervalSeconds,omitempty"`
	LivenessWindowSeconds int `json:"livenessWindowSeconds,omitempty"`
	FeedRefreshSeconds    int `json:"feedRefreshSeconds,omitempty"`

	// Backends names the storage backends the daemon dispatches to.
	Backends []string `json:"backends,omitempty"`
}

// Load reads, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks structural requirements and role names.
func validate(cfg *Config) error {
	if cfg.Node.ID == "" {
		return fmt.Errorf("node has no id")
	}
	if _, err := cluster.RoleFromString(cfg.Node.Role); err != nil {
		return fmt.Errorf("node %s: %w", cfg.Node.ID, err)
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Peers {
		if p.ID == "" {
			return fmt.Errorf("peer %d has no id", i)
		}
		if p.ID == cfg.Node.ID {
			return fmt.Errorf("peer %d reuses the node's own id %s", i, p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate peer id: %s", p.ID)
		}
		seen[p.ID] = true

		if _, err := cluster.RoleFromString(p.Role); err != nil {
			return fmt.Errorf("peer %s: %w", p.ID, err)
		}
	}

	return nil
}

// SelfPeer builds the local node's peer record.
func (c *Config) SelfPeer() cluster.Peer {
	return cluster.Peer{
		ID:       c.Node.ID,
		Role:     cluster.Role(c.Node.Role),
		Address:  c.Node.Address,
		Port:     c.Node.Port,
		LastSeen: time.Now(),
	}
}

// ClusterPeers converts the static peer list into registry records.
func (c *Config) ClusterPeers() []cluster.Peer {
	peers := make([]cluster.Peer, 0, len(c.Peers))
	for _, p := range c.Peers {
		peers = append(peers, cluster.Peer{
			ID:      p.ID,
			Role:    cluster.Role(p.Role),
			Address: p.Address,
			Port:    p.Port,
		})
	}
	return peers
}

// RequeueTimeout returns the configured requeue timeout or its default.
func (c *Config) RequeueTimeout() time.Duration {
	return secondsOr(c.RequeueTimeoutSeconds, DefaultRequeueTimeout)
}

// PollInterval returns the daemon poll interval or its default.
func (c *Config) PollInterval() time.Duration {
	return secondsOr(c.PollIntervalSeconds, DefaultPollInterval)
}

// LivenessWindow returns the peer liveness window or its default.
func (c *Config) LivenessWindow() time.Duration {
	return secondsOr(c.LivenessWindowSeconds, DefaultLivenessWindow)
}

// FeedRefresh returns the membership refresh interval or its default.
func (c *Config) FeedRefresh() time.Duration {
	return secondsOr(c.FeedRefreshSeconds, DefaultFeedRefresh)
}

func secondsOr(s int, def time.Duration) time.Duration {
	if s <= 0 {
		return def
	}
	return time.Duration(s) * time.Second
}
