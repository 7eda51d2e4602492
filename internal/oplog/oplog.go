package oplog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	recordExt = ".json"
	tmpPrefix = ".tmp-"

	// completedCacheSize bounds the in-memory cache of completed records.
	// Only completed records are cached; they never change again.
	completedCacheSize = 512
)

// ErrNotFound is returned when a requested operation exists in no staging
// area.
var ErrNotFound = errors.New("operation not found")

// Log is the durable pin-operation queue. Records live as one JSON file per
// operation inside three sibling staging directories; moving a file between
// directories is the only state transition, and the rename is the mutual
// exclusion primitive, so no in-process lock is held. Multiple processes may
// safely share one log directory.
type Log struct {
	root  string
	index *Index
	cache *lru.Cache[uuid.UUID, Record]
}

// Summary holds cheap per-area record counts.
type Summary struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

// Open prepares the staging directories under root and returns a Log. The
// index may be nil, in which case status queries fall back to directory
// scans.
func Open(root string, index *Index) (*Log, error) {
	for _, status := range Statuses {
		dir := filepath.Join(root, string(status))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create staging area %s: %w", dir, err)
		}
	}

	cache, err := lru.New[uuid.UUID, Record](completedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	return &Log{root: root, index: index, cache: cache}, nil
}

// Root returns the log's base directory.
func (l *Log) Root() string {
	return l.root
}

// Dir returns the staging directory backing a status.
func (l *Log) Dir(status Status) string {
	return filepath.Join(l.root, string(status))
}

func (l *Log) recordPath(status Status, id uuid.UUID) string {
	return filepath.Join(l.Dir(status), id.String()+recordExt)
}

// Submit durably stores a new pending operation and returns its id. The
// record is written to a temporary file and renamed into place, so a crash
// mid-write leaves no partial record behind.
func (l *Log) Submit(req SubmitRequest) (uuid.UUID, error) {
	if req.ContentID == "" {
		return uuid.Nil, errors.New("content id cannot be empty")
	}

	rec := newRecord(req, time.Now())
	if err := l.writeRecord(StatusPending, rec); err != nil {
		return uuid.Nil, fmt.Errorf("failed to submit operation %s: %w", rec.ID, err)
	}

	slog.Info("Operation submitted",
		"id", rec.ID,
		"contentId", rec.ContentID,
		"recursive", rec.Recursive,
	)

	l.appendIndex(rec)
	return rec.ID, nil
}

// ListPending returns pending operations sorted oldest-first. The daemon
// processes submissions in order to avoid starvation. A non-positive limit
// returns everything.
func (l *Log) ListPending(limit int) ([]Record, error) {
	return l.List(StatusPending, limit)
}

// List returns the records currently in a staging area, sorted ascending by
// creation time with the id as tie-break. Records that fail to parse are
// skipped with a warning so one corrupt file cannot take down the whole
// listing.
func (l *Log) List(status Status, limit int) ([]Record, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	dir := l.Dir(status)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging area %s: %w", dir, err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !isRecordName(entry.Name()) {
			continue
		}
		rec, err := readRecord(filepath.Join(dir, entry.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				// A racing claimant moved the record mid-listing.
				continue
			}
			slog.Warn("Skipping unreadable record",
				"area", status,
				"file", entry.Name(),
				"error", err,
			)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID.String() < records[j].ID.String()
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Claim moves an operation from pending to processing. Returns false when
// the record is not in pending, which is the normal outcome for the loser
// when several claimants race: the rename succeeds for exactly one of them.
func (l *Log) Claim(id uuid.UUID) (bool, error) {
	now := time.Now()
	return l.move(id, StatusPending, StatusProcessing, func(rec *Record) {
		rec.Status = StatusProcessing
		rec.UpdatedAt = now
	})
}

// Complete moves an operation from processing to completed, recording which
// backends stored the content and the transferred size. Returns false when
// the record is not in processing, making duplicate completion reports a
// safe no-op.
func (l *Log) Complete(id uuid.UUID, backends []string, sizeBytes uint64) (bool, error) {
	now := time.Now()
	moved, err := l.move(id, StatusProcessing, StatusCompleted, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.UpdatedAt = now
		rec.CompletedAt = &now
		rec.AssignedBackends = append([]string(nil), backends...)
		rec.Metadata.SizeBytes = sizeBytes
	})
	if err != nil || !moved {
		return moved, err
	}

	slog.Info("Operation completed",
		"id", id,
		"backends", backends,
		"sizeBytes", sizeBytes,
	)
	return true, nil
}

// RequeueStale moves processing records whose last update is older than the
// given age back to pending, reclaiming work orphaned by a crashed claimant.
// Returns how many records were requeued.
func (l *Log) RequeueStale(olderThan time.Duration) (int, error) {
	records, err := l.List(StatusProcessing, 0)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	count := 0
	for _, rec := range records {
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		now := time.Now()
		moved, err := l.move(rec.ID, StatusProcessing, StatusPending, func(r *Record) {
			r.Status = StatusPending
			r.UpdatedAt = now
		})
		if err != nil {
			return count, fmt.Errorf("failed to requeue operation %s: %w", rec.ID, err)
		}
		if moved {
			slog.Info("Requeued orphaned operation", "id", rec.ID, "idleSince", rec.UpdatedAt)
			count++
		}
	}
	return count, nil
}

// Summary counts the records in each staging area without parsing them.
func (l *Log) Summary() (Summary, error) {
	var sum Summary
	for _, status := range Statuses {
		entries, err := os.ReadDir(l.Dir(status))
		if err != nil {
			return Summary{}, fmt.Errorf("failed to read staging area %s: %w", status, err)
		}
		n := 0
		for _, entry := range entries {
			if isRecordName(entry.Name()) {
				n++
			}
		}
		switch status {
		case StatusPending:
			sum.Pending = n
		case StatusProcessing:
			sum.Processing = n
		case StatusCompleted:
			sum.Completed = n
		}
	}
	sum.Total = sum.Pending + sum.Processing + sum.Completed
	return sum, nil
}

// Get returns a single operation by id, wherever it currently resides.
// Completed records are served from an in-memory cache when possible; other
// lookups consult the index before falling back to scanning the staging
// areas. Returns ErrNotFound when no staging area holds the record.
func (l *Log) Get(id uuid.UUID) (*Record, error) {
	if rec, ok := l.cache.Get(id); ok {
		return &rec, nil
	}

	// The index is advisory: use it as a hint, verify against disk.
	if l.index != nil {
		if entry, err := l.index.Latest(id); err == nil {
			if rec, err := readRecord(l.recordPath(entry.Status, id)); err == nil {
				l.cacheCompleted(rec)
				return &rec, nil
			}
		}
	}

	for _, status := range Statuses {
		rec, err := readRecord(l.recordPath(status, id))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read operation %s: %w", id, err)
		}
		l.cacheCompleted(rec)
		return &rec, nil
	}
	return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
}

// RebuildIndex drops and repopulates the advisory index from the staging
// areas. Safe to run any time; the directories are authoritative.
func (l *Log) RebuildIndex() error {
	if l.index == nil {
		return errors.New("log has no index attached")
	}

	var all []Record
	for _, status := range Statuses {
		records, err := l.List(status, 0)
		if err != nil {
			return err
		}
		all = append(all, records...)
	}

	if err := l.index.Rebuild(all); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	slog.Info("Index rebuilt", "records", len(all))
	return nil
}

// move renames a record file from one staging area to another, then rewrites
// it with the mutation applied. The rename is atomic: when two callers race,
// exactly one rename succeeds and the loser observes the source missing and
// gets (false, nil).
func (l *Log) move(id uuid.UUID, from, to Status, mutate func(*Record)) (bool, error) {
	src := l.recordPath(from, id)
	dst := l.recordPath(to, id)

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to move operation %s from %s to %s: %w", id, from, to, err)
	}

	rec, err := readRecord(dst)
	if err != nil {
		return true, fmt.Errorf("operation %s moved to %s but is unreadable: %w", id, to, err)
	}
	mutate(&rec)

	if err := l.writeRecord(to, rec); err != nil {
		// The transition itself is durable; only the refreshed stamps are
		// missing. Presence in the directory stays authoritative.
		return true, fmt.Errorf("operation %s moved to %s but stamp rewrite failed: %w", id, to, err)
	}

	l.cacheCompleted(rec)
	l.appendIndex(rec)
	return true, nil
}

// writeRecord serializes a record into its staging area via a temporary file
// and an atomic rename, so readers never observe a partial write.
func (l *Log) writeRecord(status Status, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	dir := l.Dir(status)
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close record: %w", err)
	}

	if err := os.Rename(tmpName, l.recordPath(status, rec.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

// appendIndex mirrors a transition into the advisory index. Index failures
// never fail the caller; the staging directories remain authoritative and
// the index can be rebuilt.
func (l *Log) appendIndex(rec Record) {
	if l.index == nil {
		return
	}
	if err := l.index.Append(Entry{
		ID:         rec.ID,
		ContentID:  rec.ContentID,
		Status:     rec.Status,
		RecordedAt: rec.UpdatedAt,
	}); err != nil {
		slog.Warn("Index append failed", "id", rec.ID, "error", err)
	}
}

func (l *Log) cacheCompleted(rec Record) {
	if rec.Status == StatusCompleted {
		l.cache.Add(rec.ID, rec)
	}
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to parse record: %w", err)
	}
	return rec, nil
}

// isRecordName filters out temp files and foreign entries when scanning a
// staging directory.
func isRecordName(name string) bool {
	return strings.HasSuffix(name, recordExt) && !strings.HasPrefix(name, tmpPrefix)
}
