package nvstore

import "errors"

var (
	// ErrOutOfRange is returned for reads or writes past the region size.
	ErrOutOfRange = errors.New("nvstore: access out of range")

	// ErrInvalidSize is returned when a region is opened with a size below 1.
	ErrInvalidSize = errors.New("nvstore: invalid region size")

	// ErrUnknownBackend is returned by Open for an unrecognised backend name.
	ErrUnknownBackend = errors.New("nvstore: unknown backend")

	// ErrClosed is returned by Commit after Close.
	ErrClosed = errors.New("nvstore: region closed")
)
