package knxip

import (
	"encoding/binary"
	"fmt"
)

// KNXnet/IP and cEMI constants used by routing indications.
const (
	headerLength    byte   = 0x06
	protocolVersion byte   = 0x10
	ServiceRouting  uint16 = 0x0530 // ROUTING_INDICATION
	cemiLDataInd    byte   = 0x29   // L_Data.ind
	ctrl1Standard   byte   = 0xBC   // standard frame, not repeated, low priority
	ctrl2GroupHop6  byte   = 0xE0   // group destination, hop count 6
	ctrl2GroupFlag  byte   = 0x80

	// knxipHeaderSize is the KNXnet/IP header size.
	knxipHeaderSize = 6

	// cemiFixedSize is message code + additional info length + control
	// fields, addresses, NPDU length, TPCI and APCI bytes.
	cemiFixedSize = 11

	// MinFrameSize is the shortest valid group telegram frame.
	MinFrameSize = knxipHeaderSize + cemiFixedSize

	// MaxPayload is the largest payload a telegram carries.
	MaxPayload = 14

	// compactMask selects the 6-bit value carried in the APCI byte.
	compactMask = 0x3F
)

// APCI byte values for group communication. The command type occupies the
// top two bits of the byte following TPCI.
const (
	// APCIRead is a group read request.
	APCIRead byte = 0x00

	// APCIResponse is a group read response (answer).
	APCIResponse byte = 0x40

	// APCIWrite is a group write.
	APCIWrite byte = 0x80

	apciMask byte = 0xC0
)

// CommandType is the group service a telegram requests or reports.
type CommandType uint8

// Command types, numbered as the 4-bit APCI group value services.
const (
	CommandRead   CommandType = 0
	CommandAnswer CommandType = 1
	CommandWrite  CommandType = 2
)

// String returns the command name.
func (c CommandType) String() string {
	switch c {
	case CommandRead:
		return "read"
	case CommandAnswer:
		return "answer"
	case CommandWrite:
		return "write"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// Telegram is one group communication message.
type Telegram struct {
	// Source is the sender's physical address.
	Source Address

	// Destination is the target group address.
	Destination Address

	// Command is read, write or answer.
	Command CommandType

	// Payload is the datapoint-encoded value, 0-14 bytes. For compact
	// telegrams it holds exactly one byte whose low 6 bits are the value.
	Payload []byte

	// Compact is true when the value travels inside the APCI byte.
	Compact bool
}

// String returns a human-readable representation of the telegram.
func (t Telegram) String() string {
	return fmt.Sprintf("Telegram{Src:%s, GA:%s, Cmd:%s, Data:%X}",
		t.Source.PhysicalString(), t.Destination, t.Command, t.Payload)
}

// Framer encodes and parses routing indication frames.
type Framer struct {
	// Checksum appends (and on parse verifies) a trailing XOR byte over the
	// whole frame. Off by default for compatibility with other devices.
	Checksum bool
}

// Encode serialises a telegram into a KNXnet/IP routing indication.
//
// Layout:
//
//	0-5   KNXnet/IP header (0x06 0x10 0x0530 total-length)
//	6     cEMI message code 0x29
//	7     additional info length (0)
//	8-9   control fields 0xBC 0xE0
//	10-11 source address
//	12-13 destination address
//	14    NPDU length (1 + payload length)
//	15    TPCI
//	16    APCI | compact value
//	17+   payload
//	last  XOR checksum (only with Checksum)
//
// Write and answer telegrams with an empty payload are sent as compact zero.
func (f Framer) Encode(t Telegram) ([]byte, error) {
	if t.Command > CommandWrite {
		return nil, fmt.Errorf("%w: command type %d", ErrUnsupportedService, t.Command)
	}
	if len(t.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLong, len(t.Payload), MaxPayload)
	}

	compact := t.Compact || (len(t.Payload) == 0 && t.Command != CommandRead)
	var value byte
	extra := t.Payload
	if compact {
		switch {
		case len(t.Payload) == 1 && t.Payload[0] <= compactMask:
			value = t.Payload[0]
		case len(t.Payload) == 0:
		default:
			return nil, fmt.Errorf("%w: compact value must be one byte <= 0x3F, got %X", ErrEncodingFailed, t.Payload)
		}
		extra = nil
	}

	size := MinFrameSize + len(extra)
	if f.Checksum {
		size++
	}
	buf := make([]byte, size)

	buf[0] = headerLength
	buf[1] = protocolVersion
	binary.BigEndian.PutUint16(buf[2:4], ServiceRouting)
	binary.BigEndian.PutUint16(buf[4:6], uint16(size)) //nolint:gosec // bounded by MaxPayload

	buf[6] = cemiLDataInd
	buf[7] = 0x00
	buf[8] = ctrl1Standard
	buf[9] = ctrl2GroupHop6
	binary.BigEndian.PutUint16(buf[10:12], uint16(t.Source))
	binary.BigEndian.PutUint16(buf[12:14], uint16(t.Destination))
	buf[14] = byte(1 + len(extra))
	buf[15] = byte(t.Command>>2) & 0x03 // TPCI (unnumbered data) + APCI high bits
	buf[16] = byte(t.Command&0x03)<<6 | value
	copy(buf[17:], extra)

	if f.Checksum {
		buf[size-1] = xorChecksum(buf[:size-1])
	}
	return buf, nil
}

// Parse decodes a routing indication datagram into a Telegram.
//
// Frames that are too short, whose declared lengths exceed the datagram, or
// whose payload exceeds MaxPayload return ErrMalformedFrame. Well-formed
// frames that are not group value services return ErrUnsupportedService.
func (f Framer) Parse(data []byte) (Telegram, error) {
	if len(data) < MinFrameSize {
		return Telegram{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)", ErrMalformedFrame, len(data), MinFrameSize)
	}
	if data[0] != headerLength || data[1] != protocolVersion {
		return Telegram{}, fmt.Errorf("%w: bad header %02X %02X", ErrMalformedFrame, data[0], data[1])
	}

	total := int(binary.BigEndian.Uint16(data[4:6]))
	if total < MinFrameSize || total > len(data) {
		return Telegram{}, fmt.Errorf("%w: declared length %d, datagram %d", ErrMalformedFrame, total, len(data))
	}
	frame := data[:total]

	if f.Checksum {
		if frame[total-1] != xorChecksum(frame[:total-1]) {
			return Telegram{}, fmt.Errorf("%w: checksum mismatch", ErrMalformedFrame)
		}
		frame = frame[:total-1]
	}

	if svc := binary.BigEndian.Uint16(frame[2:4]); svc != ServiceRouting {
		return Telegram{}, fmt.Errorf("%w: service type 0x%04X", ErrUnsupportedService, svc)
	}
	if frame[6] != cemiLDataInd {
		return Telegram{}, fmt.Errorf("%w: cEMI message code 0x%02X", ErrUnsupportedService, frame[6])
	}

	// Skip additional info.
	svcStart := 8 + int(frame[7])
	if svcStart+cemiFixedSize-2 > len(frame) {
		return Telegram{}, fmt.Errorf("%w: additional info length %d exceeds frame", ErrMalformedFrame, frame[7])
	}
	svc := frame[svcStart:]
	if svc[1]&ctrl2GroupFlag == 0 {
		return Telegram{}, fmt.Errorf("%w: individual destination", ErrUnsupportedService)
	}

	npdu := int(svc[6])
	if npdu < 1 || 8+npdu > len(svc) {
		return Telegram{}, fmt.Errorf("%w: NPDU length %d exceeds remaining %d bytes", ErrMalformedFrame, npdu, len(svc)-8)
	}
	if npdu-1 > MaxPayload {
		return Telegram{}, fmt.Errorf("%w: payload %d bytes (max %d)", ErrMalformedFrame, npdu-1, MaxPayload)
	}
	if svc[7]&0x03 != 0 {
		return Telegram{}, fmt.Errorf("%w: TPCI/APCI 0x%02X%02X", ErrUnsupportedService, svc[7], svc[8])
	}

	t := Telegram{
		Source:      Address(binary.BigEndian.Uint16(svc[2:4])),
		Destination: Address(binary.BigEndian.Uint16(svc[4:6])),
		Command:     CommandType((svc[8] & apciMask) >> 6),
	}
	if t.Command > CommandWrite {
		return Telegram{}, fmt.Errorf("%w: APCI 0x%02X", ErrUnsupportedService, svc[8])
	}

	switch {
	case npdu > 1:
		t.Payload = make([]byte, npdu-1)
		copy(t.Payload, svc[9:9+npdu-1])
	case t.Command != CommandRead:
		t.Compact = true
		t.Payload = []byte{svc[8] & compactMask}
	}

	return t, nil
}

// xorChecksum returns the XOR of all bytes.
func xorChecksum(b []byte) byte {
	var cs byte
	for _, v := range b {
		cs ^= v
	}
	return cs
}
