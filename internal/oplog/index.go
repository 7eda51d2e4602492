package oplog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	historyBucket = "history"
	statusBucket  = "status"
)

// Entry is one indexed state transition. The index mirrors every submit,
// claim and complete so status queries avoid scanning the staging
// directories.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	ContentID  string    `json:"contentId"`
	Status     Status    `json:"status"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Index is the append-only transition mirror, backed by BoltDB. It is
// strictly advisory: the staging directories stay authoritative and the
// whole index can be rebuilt from them at any time.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens (or creates) the index database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{historyBucket, statusBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index buckets: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the index database.
func (i *Index) Close() error {
	if i.db != nil {
		return i.db.Close()
	}
	return nil
}

// Append records a transition: a sequenced entry in the history bucket plus
// a latest-status snapshot keyed by operation id.
func (i *Index) Append(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize index entry: %w", err)
	}

	return i.db.Update(func(tx *bolt.Tx) error {
		history := tx.Bucket([]byte(historyBucket))
		seq, err := history.NextSequence()
		if err != nil {
			return err
		}
		if err := history.Put(seqKey(seq), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(statusBucket)).Put(entry.ID[:], data)
	})
}

// Latest returns the most recent indexed entry for an operation. Returns
// ErrNotFound when the operation was never indexed.
func (i *Index) Latest(id uuid.UUID) (Entry, error) {
	var entry Entry
	err := i.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(statusBucket)).Get(id[:])
		if data == nil {
			return fmt.Errorf("operation %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// History returns up to limit transitions in append order, oldest first. A
// non-positive limit returns the full history.
func (i *Index) History(limit int) ([]Entry, error) {
	var entries []Entry
	err := i.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(historyBucket)).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to parse index entry: %w", err)
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Len returns the number of operations with a latest-status snapshot.
func (i *Index) Len() (int, error) {
	var n int
	err := i.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(statusBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// Rebuild drops all index contents and refills the latest-status snapshots
// from the given records, which the caller read from the staging areas. The
// per-transition history cannot be recovered and restarts empty.
func (i *Index) Rebuild(records []Record) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{historyBucket, statusBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}

		status := tx.Bucket([]byte(statusBucket))
		for _, rec := range records {
			entry := Entry{
				ID:         rec.ID,
				ContentID:  rec.ContentID,
				Status:     rec.Status,
				RecordedAt: rec.UpdatedAt,
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to serialize index entry: %w", err)
			}
			if err := status.Put(rec.ID[:], data); err != nil {
				return err
			}
		}
		return nil
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
