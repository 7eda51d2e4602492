package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/dkrasny/pinflow/internal/cluster"
	"github.com/dkrasny/pinflow/internal/oplog"
	"github.com/dkrasny/pinflow/internal/util"
)

// batchLimit caps how many pending operations one cycle picks up.
const batchLimit = 64

// Daemon drives the operation lifecycle: requeue orphans on startup, then
// repeatedly claim pending operations, ask the coordinator where they must
// replicate, dispatch to the backends, and report completion. A failed
// dispatch leaves the record in processing for a later requeue; work is
// never dropped.
type Daemon struct {
	log      *oplog.Log
	coord    *cluster.Coordinator
	backends []Backend

	pollInterval   time.Duration
	requeueTimeout time.Duration
}

// New creates a daemon over an operation log and a coordinator.
func New(log *oplog.Log, coord *cluster.Coordinator, backends []Backend, pollInterval, requeueTimeout time.Duration) *Daemon {
	return &Daemon{
		log:            log,
		coord:          coord,
		backends:       backends,
		pollInterval:   pollInterval,
		requeueTimeout: requeueTimeout,
	}
}

// Run blocks until the context is cancelled. New submissions wake the loop
// through a filesystem watch on the pending area; the poll ticker is the
// fallback when watch events are lost and the path by which orphaned work
// gets retried.
func (d *Daemon) Run(ctx context.Context) error {
	// Reclaim work orphaned by a previous claimant before touching anything
	// new.
	requeued, err := d.log.RequeueStale(d.requeueTimeout)
	if err != nil {
		return fmt.Errorf("failed to requeue stale operations: %w", err)
	}
	if requeued > 0 {
		slog.Info("Requeued operations from previous run", "count", requeued)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(d.log.Dir(oplog.StatusPending)); err != nil {
		return fmt.Errorf("failed to watch pending area: %w", err)
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	slog.Info("Daemon started", "pollInterval", d.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Daemon stopping")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				d.cycle(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

// cycle processes one batch of pending operations. Only the elected leader
// originates replication; everyone else leaves the queue alone.
func (d *Daemon) cycle(ctx context.Context) {
	if !d.coord.IsLeader() {
		slog.Debug("Not the leader, skipping cycle", "node", d.coord.Self().ID)
		return
	}

	pending, err := d.log.ListPending(batchLimit)
	if err != nil {
		slog.Error("Failed to list pending operations", "error", err)
		return
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		d.process(ctx, rec)
	}
}

// process claims and dispatches a single operation.
func (d *Daemon) process(ctx context.Context, rec oplog.Record) {
	claimed, err := d.log.Claim(rec.ID)
	if err != nil {
		slog.Error("Failed to claim operation", "id", rec.ID, "error", err)
		return
	}
	if !claimed {
		// Another claimant won the rename. Expected under contention.
		slog.Debug("Operation already claimed", "id", rec.ID)
		return
	}

	targets, err := d.coord.ReplicationTargets(rec.ContentID, nil)
	if err != nil {
		// Leadership changed between the cycle check and now. The record
		// stays in processing and a future requeue returns it to pending.
		slog.Warn("Targeting failed, leaving operation for requeue", "id", rec.ID, "error", err)
		return
	}

	backends, size := d.dispatch(ctx, rec, targets)
	if len(backends) == 0 {
		slog.Warn("All transfers failed, leaving operation for requeue", "id", rec.ID)
		return
	}

	done, err := d.log.Complete(rec.ID, backends, size)
	if err != nil {
		slog.Error("Failed to complete operation", "id", rec.ID, "error", err)
		return
	}
	if !done {
		slog.Debug("Operation already completed", "id", rec.ID)
	}
}

// dispatch fans the transfer out to every (backend, target) pair and
// reports which backends stored the content, plus the largest byte count
// any transfer observed.
func (d *Daemon) dispatch(ctx context.Context, rec oplog.Record, targets []cluster.Peer) ([]string, uint64) {
	var (
		mu        sync.Mutex
		succeeded = make(map[string]bool)
		maxSize   uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range d.backends {
		for _, target := range targets {
			backend, target := backend, target
			g.Go(func() error {
				var size int64
				err := util.Retry(gctx, util.QuickRetryConfig(), func() error {
					var terr error
					size, terr = backend.Transfer(gctx, rec.ContentID, target)
					return terr
				}, nil)
				if err != nil {
					slog.Warn("Transfer failed",
						"id", rec.ID,
						"backend", backend.Name(),
						"target", target.ID,
						"error", err,
					)
					// Partial success still completes the operation, so a
					// single failed pair does not cancel the group.
					return nil
				}

				mu.Lock()
				succeeded[backend.Name()] = true
				if uint64(size) > maxSize {
					maxSize = uint64(size)
				}
				mu.Unlock()
				return nil
			})
		}
	}
	g.Wait()

	names := make([]string, 0, len(d.backends))
	for _, backend := range d.backends {
		if succeeded[backend.Name()] {
			names = append(names, backend.Name())
		}
	}
	return names, maxSize
}
