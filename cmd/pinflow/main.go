package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dkrasny/pinflow/internal/cluster"
	"github.com/dkrasny/pinflow/internal/config"
	"github.com/dkrasny/pinflow/internal/daemon"
	"github.com/dkrasny/pinflow/internal/oplog"
	"github.com/dkrasny/pinflow/internal/util"
)

const (
	envConfigKey = "PINFLOW_CONFIG"
	envDataKey   = "PINFLOW_DATA"

	indexFile = "index.db"
)

var (
	// version is set via ldflags during build
	version = "dev"
)

func main() {
	// Parse CLI flags
	configPath := flag.String("config", "", "Path to configuration file (overrides default)")
	dataDir := flag.String("data", "", "Path to operation log directory (overrides default)")
	rebuildIndex := flag.Bool("rebuild-index", false, "Rebuild the advisory index from the staging areas and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("pinflow version %s\n", version)
		os.Exit(0)
	}

	// Determine config file path with precedence: CLI flag > env var > XDG default
	finalConfigPath := *configPath
	if finalConfigPath == "" {
		if envPath := os.Getenv(envConfigKey); envPath != "" {
			finalConfigPath = envPath
		} else {
			finalConfigPath = util.GetDefaultConfigPath()
		}
	}

	// Set up logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	slog.Info("pinflow is starting...")
	slog.Info("Configuration", "path", finalConfigPath)

	// Load configuration
	cfg, err := config.Load(finalConfigPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Determine data directory with precedence: CLI flag > env var > config > XDG default
	finalDataDir := *dataDir
	if finalDataDir == "" {
		if envPath := os.Getenv(envDataKey); envPath != "" {
			finalDataDir = envPath
		} else if cfg.DataDir != "" {
			finalDataDir = cfg.DataDir
		} else {
			finalDataDir = util.GetDefaultDataPath()
		}
	}

	slog.Info("Operation log", "path", finalDataDir)

	if err := os.MkdirAll(finalDataDir, 0755); err != nil {
		slog.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Open the advisory index and the operation log
	index, err := oplog.OpenIndex(filepath.Join(finalDataDir, indexFile))
	if err != nil {
		slog.Error("Failed to open index", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	log, err := oplog.Open(finalDataDir, index)
	if err != nil {
		slog.Error("Failed to open operation log", "error", err)
		os.Exit(1)
	}

	// Handle index rebuild flag
	if *rebuildIndex {
		if err := log.RebuildIndex(); err != nil {
			slog.Error("Failed to rebuild index", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Set up the cluster coordinator and the static membership feed
	self := cfg.SelfPeer()
	registry := cluster.NewRegistry(self.ID)
	coord := cluster.NewCoordinator(registry, self)

	slog.Info("Node identity", "id", self.ID, "role", self.Role)
	for _, p := range cfg.ClusterPeers() {
		slog.Info("Peer configured", "id", p.ID, "role", p.Role, "address", p.Address, "port", p.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := cluster.NewStaticFeed(registry, cfg.ClusterPeers(), cfg.FeedRefresh())
	go feed.Run(ctx)

	// Configure backends; the null backend keeps a bare deployment runnable
	backendNames := cfg.Backends
	if len(backendNames) == 0 {
		backendNames = []string{"local"}
	}
	backends := make([]daemon.Backend, 0, len(backendNames))
	for _, name := range backendNames {
		backends = append(backends, daemon.NewNullBackend(name))
	}

	d := daemon.New(log, coord, backends, cfg.PollInterval(), cfg.RequeueTimeout())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Run(ctx)
	}()

	select {
	case <-sigChan:
		slog.Info("Shutdown signal received")
		cancel()
		if err := <-errChan; err != nil {
			slog.Error("Error during shutdown", "error", err)
			os.Exit(1)
		}
	case err := <-errChan:
		if err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("pinflow stopped gracefully")
}
