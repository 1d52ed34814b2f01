// Package apperr holds the sentinel errors shared by the store, the services
// and the transports.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid note id")
	ErrEmptyPassword = errors.New("password is required")
	ErrCorrupt       = errors.New("backing file is corrupt")
	ErrTooLong       = errors.New("text exceeds the cell size limit")
)
