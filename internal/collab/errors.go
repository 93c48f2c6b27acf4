package collab

import "errors"

// Handshake rejections. These surface to the transport layer before any
// document bytes are exchanged; messages are part of the client contract.
var (
	ErrInvalidDocumentName    = errors.New("Invalid document name format")
	ErrAuthenticationRequired = errors.New("Authentication required")
	ErrAccessDenied           = errors.New("Access denied to this document")
)
