package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkrasny/pinflow/internal/cluster"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"dataDir": "/var/lib/pinflow",
		"node": {"id": "node-1", "role": "master", "address": "10.0.0.1", "port": 4001},
		"peers": [
			{"id": "node-2", "role": "worker", "address": "10.0.0.2", "port": 4001},
			{"id": "node-3", "role": "leecher", "address": "10.0.0.3", "port": 4001}
		],
		"requeueTimeoutSeconds": 120,
		"backends": ["local", "s3"]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Node.ID != "node-1" {
		t.Errorf("Expected node id node-1, got %s", cfg.Node.ID)
	}
	if len(cfg.Peers) != 2 {
		t.Errorf("Expected 2 peers, got %d", len(cfg.Peers))
	}
	if cfg.RequeueTimeout() != 120*time.Second {
		t.Errorf("Expected requeue timeout 120s, got %s", cfg.RequeueTimeout())
	}
	if len(cfg.Backends) != 2 {
		t.Errorf("Expected 2 backends, got %d", len(cfg.Backends))
	}

	self := cfg.SelfPeer()
	if self.Role != cluster.RoleMaster {
		t.Errorf("Expected self role master, got %s", self.Role)
	}

	peers := cfg.ClusterPeers()
	if len(peers) != 2 || peers[0].Role != cluster.RoleWorker {
		t.Errorf("Unexpected cluster peers: %v", peers)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"node": {"id": "node-1", "role": "worker"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.RequeueTimeout() != DefaultRequeueTimeout {
		t.Errorf("Expected default requeue timeout, got %s", cfg.RequeueTimeout())
	}
	if cfg.PollInterval() != DefaultPollInterval {
		t.Errorf("Expected default poll interval, got %s", cfg.PollInterval())
	}
	if cfg.LivenessWindow() != DefaultLivenessWindow {
		t.Errorf("Expected default liveness window, got %s", cfg.LivenessWindow())
	}
	if cfg.FeedRefresh() != DefaultFeedRefresh {
		t.Errorf("Expected default feed refresh, got %s", cfg.FeedRefresh())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no node id", `{"node": {"role": "worker"}}`},
		{"bad node role", `{"node": {"id": "node-1", "role": "admiral"}}`},
		{"peer without id", `{"node": {"id": "node-1", "role": "worker"}, "peers": [{"role": "worker"}]}`},
		{"peer reuses node id", `{"node": {"id": "node-1", "role": "worker"}, "peers": [{"id": "node-1", "role": "worker"}]}`},
		{"duplicate peer ids", `{"node": {"id": "node-1", "role": "worker"}, "peers": [{"id": "p", "role": "worker"}, {"id": "p", "role": "worker"}]}`},
		{"bad peer role", `{"node": {"id": "node-1", "role": "worker"}, "peers": [{"id": "p", "role": "pirate"}]}`},
		{"malformed json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Errorf("Expected validation error for %s", tc.name)
			}
		})
	}
}
