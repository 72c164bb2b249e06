package transport

import "errors"

var (
	// ErrInvalidGroup is returned when the configured group is not an IPv4
	// multicast address.
	ErrInvalidGroup = errors.New("transport: invalid multicast group")

	// ErrClosed is returned by Send and Receive after Close.
	ErrClosed = errors.New("transport: endpoint closed")
)
