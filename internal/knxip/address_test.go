package knxip

import (
	"errors"
	"testing"
)

func TestGroupAddressRoundTrip(t *testing.T) {
	for top := 0; top <= maxTop; top++ {
		for middle := 0; middle <= maxMiddle; middle++ {
			for _, bottom := range []int{0, 1, 127, 128, 254, 255} {
				a := GroupAddress(uint8(top), uint8(middle), uint8(bottom))
				gt, gm, gb := a.Group()
				if int(gt) != top || int(gm) != middle || int(gb) != bottom {
					t.Fatalf("GroupAddress(%d, %d, %d).Group() = %d, %d, %d", top, middle, bottom, gt, gm, gb)
				}
			}
		}
	}
}

func TestAddressPacking(t *testing.T) {
	tests := []struct {
		name   string
		addr   Address
		want   uint16
		group  string
		phys   string
		urlEnc string
	}{
		{"1/2/3", GroupAddress(1, 2, 3), 0x1203, "1/2/3", "1.2.3", "1%2F2%2F3"},
		{"15/15/255", GroupAddress(15, 15, 255), 0xFFFF, "15/15/255", "15.15.255", "15%2F15%2F255"},
		{"0/0/1", GroupAddress(0, 0, 1), 0x0001, "0/0/1", "0.0.1", "0%2F0%2F1"},
		{"physical 1.1.250", PhysicalAddress(1, 1, 250), 0x11FA, "1/1/250", "1.1.250", "1%2F1%2F250"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if uint16(tt.addr) != tt.want {
				t.Errorf("raw = 0x%04X, want 0x%04X", uint16(tt.addr), tt.want)
			}
			if got := tt.addr.String(); got != tt.group {
				t.Errorf("String() = %q, want %q", got, tt.group)
			}
			if got := tt.addr.PhysicalString(); got != tt.phys {
				t.Errorf("PhysicalString() = %q, want %q", got, tt.phys)
			}
			if got := tt.addr.URLEncode(); got != tt.urlEnc {
				t.Errorf("URLEncode() = %q, want %q", got, tt.urlEnc)
			}
		})
	}
}

func TestGroupAddressTruncatesOutOfRange(t *testing.T) {
	// top and middle keep only their low 4 bits.
	got := GroupAddress(0x1F, 0x12, 7)
	if got != GroupAddress(15, 2, 7) {
		t.Errorf("GroupAddress(0x1F, 0x12, 7) = %s, want 15/2/7", got)
	}
}

func TestParseGroupAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"1/2/3", GroupAddress(1, 2, 3), false},
		{" 0/0/1 ", GroupAddress(0, 0, 1), false},
		{"15/15/255", GroupAddress(15, 15, 255), false},
		{"16/0/0", 0, true},
		{"0/16/0", 0, true},
		{"0/0/256", 0, true},
		{"1/2", 0, true},
		{"1/2/3/4", 0, true},
		{"a/b/c", 0, true},
		{"-1/0/0", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGroupAddress(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("ParseGroupAddress(%q) error = %v, want ErrInvalidAddress", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGroupAddress(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseGroupAddress(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePhysicalAddress(t *testing.T) {
	got, err := ParsePhysicalAddress("1.1.250")
	if err != nil {
		t.Fatalf("ParsePhysicalAddress() error = %v", err)
	}
	if got != PhysicalAddress(1, 1, 250) {
		t.Errorf("ParsePhysicalAddress() = %s, want 1.1.250", got.PhysicalString())
	}

	if _, err := ParsePhysicalAddress("1/1/250"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("group form accepted as physical: %v", err)
	}
}

func TestAddressIsZero(t *testing.T) {
	if !GroupAddress(0, 0, 0).IsZero() {
		t.Error("0/0/0 should be zero")
	}
	if GroupAddress(0, 0, 1).IsZero() {
		t.Error("0/0/1 should not be zero")
	}
}
