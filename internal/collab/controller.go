package collab

import (
	"context"
	"log"

	"inkwell/api/internal/crdt"
	"inkwell/api/internal/docaddr"
	"inkwell/api/internal/statestore"
	"inkwell/api/internal/store"
)

// AccessChecker is the slice of the data store that decides page access.
type AccessChecker interface {
	CheckPageAccess(ctx context.Context, pageID, userID string) (store.AccessDecision, error)
}

// Archiver records persisted snapshots out of band. Optional.
type Archiver interface {
	ArchiveSnapshot(organizationID, pageID string, state []byte, actorID string) error
}

// SessionContext is the resolved context attached to a connection for the
// rest of its session. Never mutated after Authenticate returns it.
type SessionContext struct {
	UserID         string
	UserName       string
	OrganizationID string
	PageID         string
}

// Address returns the storage key for the session's document.
func (c SessionContext) Address() docaddr.Address {
	return docaddr.Address{OrganizationID: c.OrganizationID, PageID: c.PageID}
}

// Presence builds the awareness state for this session, falling back to the
// user id when the credential carried no display name.
func (c SessionContext) Presence() crdt.Presence {
	name := c.UserName
	if name == "" {
		name = c.UserID
	}
	return crdt.Presence{UserID: c.UserID, Name: name, Color: PresenceColor(c.UserID)}
}

// LoadOutcome reports how the initial document load went. A failed load
// still yields a usable empty document; callers decide only whether to log.
type LoadOutcome int

const (
	LoadedEmpty LoadOutcome = iota
	LoadedFromStore
	LoadFailed
)

// SaveOutcome reports a persistence cycle. There is no "must abort" variant:
// a failed save never tears down the session, the next cycle supersedes it.
type SaveOutcome int

const (
	Saved SaveOutcome = iota
	SaveFailed
)

// Hooks is the fixed set of callbacks the realtime engine drives for each
// document session. Every step that runs before document bytes move fails
// closed; every step after the session is live fails open.
type Hooks interface {
	Authenticate(ctx context.Context, documentName string, bundle CredentialBundle) (*SessionContext, error)
	LoadDocument(ctx context.Context, addr docaddr.Address) (*crdt.Document, LoadOutcome)
	StoreDocument(ctx context.Context, addr docaddr.Address, doc *crdt.Document, actorID string) SaveOutcome
	ConnectionClosed(ctx context.Context, addr docaddr.Address, identity Identity)
}

// Controller implements the collaboration session lifecycle around the
// realtime engine: authenticate and authorize the handshake, load persisted
// state into the shared document, and write snapshots back out.
type Controller struct {
	resolver *Resolver
	access   AccessChecker
	states   statestore.StateStore
	archive  Archiver
}

func NewController(resolver *Resolver, access AccessChecker, states statestore.StateStore) *Controller {
	return &Controller{resolver: resolver, access: access, states: states}
}

// WithArchive attaches a snapshot archiver to the persistence path.
func (c *Controller) WithArchive(archive Archiver) *Controller {
	c.archive = archive
	return c
}

// Authenticate gates the websocket handshake. The document name is parsed
// first, then the credential bundle is resolved, then the page access check
// runs; any failure rejects the connection before a single document byte is
// sent.
func (c *Controller) Authenticate(ctx context.Context, documentName string, bundle CredentialBundle) (*SessionContext, error) {
	var addr *docaddr.Address
	if parsed, ok := docaddr.Parse(documentName); ok {
		addr = &parsed
	}

	identity, err := c.resolver.Authenticate(ctx, bundle, addr)
	if err != nil {
		return nil, err
	}

	decision, err := c.access.CheckPageAccess(ctx, addr.PageID, identity.UserID)
	if err != nil {
		return nil, err
	}
	if !decision.HasAccess {
		return nil, ErrAccessDenied
	}
	// The document name's organization part doubles as the storage key, so
	// a page opened under a foreign organization would read and write state
	// belonging to that organization. The decision echoes the page's real
	// organization; a mismatch is a denial.
	if decision.OrganizationID != addr.OrganizationID {
		return nil, ErrAccessDenied
	}

	return &SessionContext{
		UserID:         identity.UserID,
		UserName:       identity.Name,
		OrganizationID: addr.OrganizationID,
		PageID:         addr.PageID,
	}, nil
}

// LoadDocument fetches persisted state for the first peer of an idle
// document and merges it into a fresh document. Storage or merge failures
// are absorbed: editing starts from a blank document rather than locking
// everyone out.
func (c *Controller) LoadDocument(ctx context.Context, addr docaddr.Address) (*crdt.Document, LoadOutcome) {
	doc := crdt.NewDocument()

	state, err := c.states.Load(ctx, addr.OrganizationID, addr.PageID)
	if err != nil {
		log.Printf("collab: load state for %s: %v", addr, err)
		return doc, LoadFailed
	}
	if len(state) == 0 {
		return doc, LoadedEmpty
	}
	if err := doc.ApplyUpdate(state); err != nil {
		log.Printf("collab: merge persisted state for %s: %v", addr, err)
		return crdt.NewDocument(), LoadFailed
	}
	return doc, LoadedFromStore
}

// StoreDocument writes the entire current document state as a replacement
// snapshot, tagged with the peer whose edit triggered the cycle. Failures
// are logged and absorbed; a missed save is superseded by the next cycle.
func (c *Controller) StoreDocument(ctx context.Context, addr docaddr.Address, doc *crdt.Document, actorID string) SaveOutcome {
	state, err := doc.EncodeState()
	if err != nil {
		log.Printf("collab: encode state for %s: %v", addr, err)
		return SaveFailed
	}
	if err := c.states.Save(ctx, addr.OrganizationID, addr.PageID, state, actorID); err != nil {
		log.Printf("collab: save state for %s: %v", addr, err)
		return SaveFailed
	}
	if c.archive != nil {
		go func() {
			if err := c.archive.ArchiveSnapshot(addr.OrganizationID, addr.PageID, state, actorID); err != nil {
				log.Printf("collab: archive snapshot for %s: %v", addr, err)
			}
		}()
	}
	return Saved
}

// ConnectionClosed is an extension point; presence removal and document
// teardown are owned by the engine.
func (c *Controller) ConnectionClosed(ctx context.Context, addr docaddr.Address, identity Identity) {}
