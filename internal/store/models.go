package store

import "time"

type User struct {
	ID    string
	Name  string
	Email string
}

type Page struct {
	ID             string
	OrganizationID string
	SpaceID        string
	Title          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AccessDecision is the outcome of a page access check. OrganizationID and
// PageID echo the checked resource so callers can key storage off the
// decision without re-parsing the document name.
type AccessDecision struct {
	HasAccess      bool
	OrganizationID string
	PageID         string
}

// CollabState is a persisted document-state snapshot.
type CollabState struct {
	OrganizationID string
	PageID         string
	State          []byte
	UpdatedBy      string
	UpdatedAt      time.Time
}
