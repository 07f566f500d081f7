// Package errs contains sentinel errors shared by repositories, handlers and
// the collaboration client so callers can map them with errors.Is.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested drawing does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or rejected credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller is known but may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidToken indicates a malformed, expired or mis-scoped token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotConnected is returned when sending on a transport without a live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned by components used after Close.
	ErrClosed = errors.New("closed")
)
