package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	var name, email sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id=$1`, userID).Scan(&user.ID, &name, &email)
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	user.Name = name.String
	user.Email = email.String
	return user, nil
}

// CheckPageAccess decides whether a user may open a page. Access is granted
// by direct page membership or by membership in the page's space; either
// grants at least view level. An unknown page denies rather than errors so
// the collaboration handshake can treat every negative uniformly.
func (s *PostgresStore) CheckPageAccess(ctx context.Context, pageID, userID string) (AccessDecision, error) {
	var page Page
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, space_id FROM pages WHERE id=$1 AND deleted_at IS NULL
	`, pageID).Scan(&page.ID, &page.OrganizationID, &page.SpaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return AccessDecision{HasAccess: false, PageID: pageID}, nil
	}
	if err != nil {
		return AccessDecision{}, fmt.Errorf("lookup page: %w", err)
	}

	var hasAccess bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM page_members WHERE page_id=$1 AND user_id=$2
			UNION
			SELECT 1 FROM space_members WHERE space_id=$3 AND user_id=$2
		)
	`, page.ID, userID, page.SpaceID).Scan(&hasAccess)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("check page access: %w", err)
	}

	return AccessDecision{
		HasAccess:      hasAccess,
		OrganizationID: page.OrganizationID,
		PageID:         page.ID,
	}, nil
}

// LoadCollabState returns the persisted document state for a page, or nil
// when no snapshot has been written yet.
func (s *PostgresStore) LoadCollabState(ctx context.Context, organizationID, pageID string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM collab_state WHERE organization_id=$1 AND page_id=$2
	`, organizationID, pageID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load collab state: %w", err)
	}
	return state, nil
}

// SaveCollabState writes a full replacement snapshot for a page. The upsert
// is last-writer-wins at the row level, which serializes concurrent writers
// from horizontally scaled instances.
func (s *PostgresStore) SaveCollabState(ctx context.Context, organizationID, pageID string, state []byte, updatedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collab_state (organization_id, page_id, state, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (organization_id, page_id)
		DO UPDATE SET state=EXCLUDED.state, updated_by=EXCLUDED.updated_by, updated_at=NOW()
	`, organizationID, pageID, state, nullable(updatedBy))
	if err != nil {
		return fmt.Errorf("save collab state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
