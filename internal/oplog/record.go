package oplog

import (
	"time"

	"github.com/google/uuid"
)

// Status identifies which staging area currently holds a record. A record's
// presence in the matching directory is authoritative; this field mirrors it.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// Statuses lists every staging area in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted}

// Valid reports whether s names a known staging area.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

// Type is the kind of pin operation being requested.
type Type string

const (
	TypePinAdd Type = "pin_add"
	// TypePinRemove is reserved for unpin support.
	TypePinRemove Type = "pin_remove"
)

const (
	// DefaultPriority is assigned when a submission does not specify one.
	DefaultPriority = "normal"

	// maxDisplayName caps the auto-generated display name derived from a
	// content id.
	maxDisplayName = 24
)

// Metadata carries the optional, well-known extras attached to an operation.
// The known keys are finite, so this is a fixed struct rather than a map.
type Metadata struct {
	SizeBytes         uint64   `json:"sizeBytes,omitempty"`
	Priority          string   `json:"priority,omitempty"`
	ReplicationFactor int      `json:"replicationFactor,omitempty"`
	StorageTiers      []string `json:"storageTiers,omitempty"`
}

// Record is a single durable pin operation. One serialized Record lives in
// exactly one staging directory at any time, named by its ID.
type Record struct {
	ID               uuid.UUID  `json:"id"`
	Type             Type       `json:"type"`
	ContentID        string     `json:"contentId"`
	DisplayName      string     `json:"displayName"`
	Recursive        bool       `json:"recursive"`
	SourcePath       string     `json:"sourcePath,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Status           Status     `json:"status"`
	AssignedBackends []string   `json:"assignedBackends,omitempty"`
	Metadata         Metadata   `json:"metadata"`
}

// SubmitRequest describes a new pin operation. ContentID is the only
// required field.
type SubmitRequest struct {
	ContentID   string
	DisplayName string
	Recursive   bool
	SourcePath  string
	Priority    string
	Tiers       []string
}

// newRecord builds a pending Record from a submission, applying defaults.
func newRecord(req SubmitRequest, now time.Time) Record {
	name := req.DisplayName
	if name == "" {
		name = truncateContentID(req.ContentID)
	}

	priority := req.Priority
	if priority == "" {
		priority = DefaultPriority
	}

	tiers := req.Tiers
	if len(tiers) == 0 {
		tiers = []string{"local"}
	}

	return Record{
		ID:          uuid.New(),
		Type:        TypePinAdd,
		ContentID:   req.ContentID,
		DisplayName: name,
		Recursive:   req.Recursive,
		SourcePath:  req.SourcePath,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      StatusPending,
		Metadata: Metadata{
			Priority:     priority,
			StorageTiers: tiers,
		},
	}
}

// truncateContentID shortens a content id into a human-readable label.
func truncateContentID(cid string) string {
	if len(cid) <= maxDisplayName {
		return cid
	}
	return cid[:maxDisplayName] + "..."
}
