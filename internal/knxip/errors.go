package knxip

import "errors"

// Domain errors for the KNX/IP device package.
var (
	// ErrMalformedFrame is returned when a datagram is too short or its
	// declared lengths are inconsistent. Such datagrams are dropped.
	ErrMalformedFrame = errors.New("knxip: malformed frame")

	// ErrUnsupportedService is returned for well-formed frames that are not
	// group value read/write/answer telegrams.
	ErrUnsupportedService = errors.New("knxip: unsupported service")

	// ErrMalformedPayload is returned when a datapoint decoder is given fewer
	// bytes than its fixed length, or the reserved invalid-data pattern.
	ErrMalformedPayload = errors.New("knxip: malformed payload")

	// ErrEncodingFailed is returned when a value cannot be represented by a
	// datapoint type.
	ErrEncodingFailed = errors.New("knxip: encoding failed")

	// ErrPayloadTooLong is returned when a telegram payload exceeds 14 bytes.
	ErrPayloadTooLong = errors.New("knxip: payload too long")

	// ErrCapacityExceeded is returned when a registration would exceed a
	// fixed table or byte limit. The returned id is InvalidID.
	ErrCapacityExceeded = errors.New("knxip: capacity exceeded")

	// ErrInvalidID is returned when an id does not refer to a registered item.
	ErrInvalidID = errors.New("knxip: invalid id")

	// ErrKindMismatch is returned when a typed accessor is used on an item of
	// another kind.
	ErrKindMismatch = errors.New("knxip: kind mismatch")

	// ErrInvalidOption is returned when an options item is set to a value
	// that is not in its option list.
	ErrInvalidOption = errors.New("knxip: invalid option")

	// ErrNilHandler is returned when a callback is registered without a
	// handler or a feedback item without its getter or action.
	ErrNilHandler = errors.New("knxip: nil handler")

	// ErrDisabled is returned when a disabled feedback action is triggered.
	ErrDisabled = errors.New("knxip: item disabled")

	// ErrInvalidAddress is returned when an address string cannot be parsed
	// or a telegram targets the null address.
	ErrInvalidAddress = errors.New("knxip: invalid address")

	// ErrInvalidOptions is returned by New when capacities or other options
	// are out of range.
	ErrInvalidOptions = errors.New("knxip: invalid options")

	// ErrStoreTooSmall is returned by Save when the non-volatile store cannot
	// hold the layout for the configured capacities.
	ErrStoreTooSmall = errors.New("knxip: store too small")

	// ErrNoStore is returned by Save and Load when no store is configured.
	ErrNoStore = errors.New("knxip: no store configured")

	// ErrNoSender is returned by send operations when no sender is configured.
	ErrNoSender = errors.New("knxip: no sender configured")
)
