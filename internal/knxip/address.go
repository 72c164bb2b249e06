package knxip

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Address is a 16-bit KNX address.
//
// Group and physical addresses use the same layout and differ only in how
// the caller names the fields:
//
//	TTTT MMMM BBBB BBBB
//	  T = top (group) / area (physical)     4 bits
//	  M = middle (group) / line (physical)  4 bits
//	  B = bottom (group) / member (physical) 8 bits
type Address uint16

// Address field limits.
const (
	maxTop    = 15
	maxMiddle = 15
	maxBottom = 255

	// addrLevelCount is the number of levels in a 3-level address.
	addrLevelCount = 3

	addrTopShift    = 12
	addrMiddleShift = 8
	addrNibbleMask  = 0x0F
	addrByteMask    = 0xFF
)

// GroupAddress packs a 3-level group address.
//
// top and middle are truncated to their low 4 bits; callers that need range
// checking should use ParseGroupAddress.
func GroupAddress(top, middle, bottom uint8) Address {
	return Address(uint16(top&addrNibbleMask)<<addrTopShift |
		uint16(middle&addrNibbleMask)<<addrMiddleShift |
		uint16(bottom))
}

// PhysicalAddress packs an area.line.member physical address.
//
// area and line are truncated to their low 4 bits like GroupAddress.
func PhysicalAddress(area, line, member uint8) Address {
	return GroupAddress(area, line, member)
}

// Group splits the address into its top/middle/bottom group fields.
func (a Address) Group() (top, middle, bottom uint8) {
	return uint8(a>>addrTopShift) & addrNibbleMask, //nolint:gosec // masked to 4 bits
		uint8(a>>addrMiddleShift) & addrNibbleMask, //nolint:gosec // masked to 4 bits
		uint8(a & addrByteMask) //nolint:gosec // masked to 8 bits
}

// Physical splits the address into its area/line/member fields.
func (a Address) Physical() (area, line, member uint8) {
	return a.Group()
}

// String returns the address in group form, e.g. "1/2/3".
func (a Address) String() string {
	t, m, b := a.Group()
	return fmt.Sprintf("%d/%d/%d", t, m, b)
}

// PhysicalString returns the address in physical form, e.g. "1.1.250".
func (a Address) PhysicalString() string {
	ar, l, m := a.Physical()
	return fmt.Sprintf("%d.%d.%d", ar, l, m)
}

// URLEncode returns the group form escaped for use as one MQTT topic level.
//
// Example: "1/2/3" → "1%2F2%2F3"
func (a Address) URLEncode() string {
	return url.PathEscape(a.String())
}

// IsZero reports whether the address is 0/0/0.
func (a Address) IsZero() bool {
	return a == 0
}

// ParseGroupAddress parses a 3-level group address string such as "1/2/3".
//
// Unlike GroupAddress, out-of-range fields are rejected with ErrInvalidAddress.
func ParseGroupAddress(s string) (Address, error) {
	return parseAddress(s, "/", "group")
}

// ParsePhysicalAddress parses a physical address string such as "1.1.250".
func ParsePhysicalAddress(s string) (Address, error) {
	return parseAddress(s, ".", "physical")
}

func parseAddress(s, sep, form string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(s), sep)
	if len(parts) != addrLevelCount {
		return 0, fmt.Errorf("%w: expected 3-level %s address, got %q", ErrInvalidAddress, form, s)
	}

	limits := [addrLevelCount]uint64{maxTop, maxMiddle, maxBottom}
	var fields [addrLevelCount]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil || v > limits[i] {
			return 0, fmt.Errorf("%w: %s address level %d must be 0-%d, got %q", ErrInvalidAddress, form, i+1, limits[i], p)
		}
		fields[i] = uint8(v)
	}

	return GroupAddress(fields[0], fields[1], fields[2]), nil
}
