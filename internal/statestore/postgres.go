package statestore

import (
	"context"

	"inkwell/api/internal/store"
)

// Postgres keeps snapshots in the collab_state table. This is the default
// backend; row-level upserts give the last-writer-wins guarantee the
// persistence cycle relies on.
type Postgres struct {
	store *store.PostgresStore
}

func NewPostgres(s *store.PostgresStore) *Postgres {
	return &Postgres{store: s}
}

func (p *Postgres) Load(ctx context.Context, organizationID, pageID string) ([]byte, error) {
	return p.store.LoadCollabState(ctx, organizationID, pageID)
}

func (p *Postgres) Save(ctx context.Context, organizationID, pageID string, state []byte, actorID string) error {
	return p.store.SaveCollabState(ctx, organizationID, pageID, state, actorID)
}
