package daemon

import (
	"context"
	"log/slog"

	"github.com/dkrasny/pinflow/internal/cluster"
)

// Backend performs the actual content movement for one storage tier. The
// daemon only cares about the outcome: success or failure, plus how many
// bytes landed. Protocol details live entirely behind this interface.
type Backend interface {
	// Name identifies the backend in completed records.
	Name() string

	// Transfer ships the content to the target peer and returns the number
	// of bytes moved.
	Transfer(ctx context.Context, contentID string, target cluster.Peer) (int64, error)
}

// NullBackend acknowledges every transfer without moving anything. It keeps
// a single-node deployment runnable before any real backend is configured.
type NullBackend struct {
	name string
}

// NewNullBackend creates a no-op backend with the given name.
func NewNullBackend(name string) *NullBackend {
	return &NullBackend{name: name}
}

func (b *NullBackend) Name() string {
	return b.name
}

func (b *NullBackend) Transfer(_ context.Context, contentID string, target cluster.Peer) (int64, error) {
	slog.Debug("Null transfer acknowledged",
		"backend", b.name,
		"contentId", contentID,
		"target", target.ID,
	)
	return 0, nil
}
