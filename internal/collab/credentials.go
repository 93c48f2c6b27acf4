package collab

// CredentialBundle carries whatever credential material the transport could
// extract from a connection attempt. It lives only for the duration of the
// authenticate step; any field may be empty.
type CredentialBundle struct {
	// CollabToken is the short-lived signed token minted specifically for
	// realtime handshakes.
	CollabToken string
	// CookieToken is a session token carried by the browser session cookie.
	CookieToken string
	// ClientToken is a session token supplied explicitly in the handshake
	// payload, for clients that cannot send cookies.
	ClientToken string
}

// Empty reports whether no credential surface carried anything at all.
func (b CredentialBundle) Empty() bool {
	return b.CollabToken == "" && b.CookieToken == "" && b.ClientToken == ""
}

// Identity is a resolved authenticated user. Name is empty when the
// credential that resolved carried no profile (collab tokens).
type Identity struct {
	UserID string
	Name   string
}
