package collab

import (
	"context"
	"strings"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/docaddr"
	"inkwell/api/internal/session"
)

// SessionStore is the slice of the session backend the resolver needs.
type SessionStore interface {
	LookupByToken(ctx context.Context, token string) (*session.Session, error)
}

// Resolver turns a credential bundle into an authenticated identity. It
// holds no per-connection state and never mutates the session backend.
type Resolver struct {
	secret   []byte
	sessions SessionStore
}

func NewResolver(secret []byte, sessions SessionStore) *Resolver {
	return &Resolver{secret: secret, sessions: sessions}
}

// strategy is one credential surface. Returning (nil, nil) means the surface
// carried nothing usable and the next one should be tried; an error means an
// infrastructure failure that must fail the handshake closed.
type strategy func(ctx context.Context) (*Identity, error)

// Authenticate resolves an identity for a connection attempt targeting addr.
// The address is validated before any credential is examined, so a malformed
// document name is always reported as such even when credentials are also
// bad. Strategies run in trust order: the purpose-built collab token first,
// then the cookie session, then the client-supplied token treated as a
// session token.
func (r *Resolver) Authenticate(ctx context.Context, bundle CredentialBundle, addr *docaddr.Address) (Identity, error) {
	if addr == nil {
		return Identity{}, ErrInvalidDocumentName
	}

	for _, resolve := range []strategy{
		r.collabToken(bundle.CollabToken),
		r.sessionToken(bundle.CookieToken),
		r.sessionToken(bundle.ClientToken),
	} {
		identity, err := resolve(ctx)
		if err != nil {
			return Identity{}, err
		}
		if identity != nil {
			return *identity, nil
		}
	}

	return Identity{}, ErrAuthenticationRequired
}

// collabToken verifies the ephemeral handshake token. A token that fails
// verification yields nothing rather than an error, so the general-purpose
// session surfaces still get their turn.
func (r *Resolver) collabToken(token string) strategy {
	return func(ctx context.Context) (*Identity, error) {
		if token == "" {
			return nil, nil
		}
		userID, err := auth.VerifyToken(r.secret, token)
		if err != nil {
			return nil, nil
		}
		return &Identity{UserID: userID}, nil
	}
}

// sessionToken looks a token up in the session store. Missing and expired
// sessions yield nothing; store failures abort the handshake.
func (r *Resolver) sessionToken(token string) strategy {
	return func(ctx context.Context) (*Identity, error) {
		if token == "" {
			return nil, nil
		}
		sess, err := r.sessions.LookupByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if sess == nil || sess.UserID == "" {
			return nil, nil
		}
		return &Identity{UserID: sess.UserID, Name: displayName(sess.User)}, nil
	}
}

func displayName(user session.User) string {
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	return user.Email
}
