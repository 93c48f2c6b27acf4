// Package statestore abstracts where persisted document snapshots live.
// The collaboration layer writes full replacement snapshots and reads at
// most once per document lifetime, so the interface is deliberately small.
package statestore

import "context"

// StateStore persists opaque document-state blobs keyed by organization and
// page. Load returns nil bytes when no snapshot exists.
type StateStore interface {
	Load(ctx context.Context, organizationID, pageID string) ([]byte, error)
	Save(ctx context.Context, organizationID, pageID string, state []byte, actorID string) error
}
