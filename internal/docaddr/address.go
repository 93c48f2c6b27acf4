// Package docaddr parses the document names used by the realtime
// collaboration layer. A document name is "<organizationID>/<pageID>" and
// doubles as the storage key for persisted document state.
package docaddr

import "strings"

type Address struct {
	OrganizationID string
	PageID         string
}

// Parse splits a raw document name into its organization and page parts.
// Both parts must be non-empty and the name must contain exactly one slash;
// segments are returned exactly as sliced, with no trimming or case folding.
func Parse(raw string) (Address, bool) {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Address{}, false
	}
	return Address{OrganizationID: parts[0], PageID: parts[1]}, true
}

func (a Address) String() string {
	return a.OrganizationID + "/" + a.PageID
}
