package knxip

import (
	"errors"
	"testing"
)

func TestConfigRegisterOffsets(t *testing.T) {
	r := NewConfigRegistry(10, 64)

	s, _ := r.RegisterString("hostname", 8, "knx", nil)
	i, _ := r.RegisterInt("setpoint", 200, nil)
	b, _ := r.RegisterBool("enabled", true, nil)
	o, _ := r.RegisterOptions("mode", []Option{{"off", 0}, {"on", 1}, {"auto", 2}}, 2, nil)
	g, _ := r.RegisterGA("status", nil)

	tests := []struct {
		id     ConfigID
		kind   ConfigKind
		offset int
		length int
	}{
		{s, ConfigString, 0, 8},
		{i, ConfigInt, 8, 4},
		{b, ConfigBool, 12, 1},
		{o, ConfigOptions, 13, 1},
		{g, ConfigGA, 14, 2},
	}
	for _, tt := range tests {
		item, ok := r.Item(tt.id)
		if !ok {
			t.Fatalf("Item(%d) missing", tt.id)
		}
		if item.Kind != tt.kind || item.Offset != tt.offset || item.Length != tt.length {
			t.Errorf("Item(%d) = %s@%d+%d, want %s@%d+%d", tt.id, item.Kind, item.Offset, item.Length, tt.kind, tt.offset, tt.length)
		}
	}
	if r.Used() != 16 {
		t.Errorf("Used() = %d, want 16", r.Used())
	}
}

func TestConfigDefaultsAndAccessors(t *testing.T) {
	r := NewConfigRegistry(10, 64)
	s, _ := r.RegisterString("hostname", 8, "knx", nil)
	i, _ := r.RegisterInt("setpoint", -200, nil)
	b, _ := r.RegisterBool("enabled", true, nil)
	o, _ := r.RegisterOptions("mode", []Option{{"off", 0}, {"auto", 2}}, 2, nil)
	g, _ := r.RegisterGA("status", nil)

	if v, _ := r.GetString(s); v != "knx" {
		t.Errorf("GetString() = %q, want knx", v)
	}
	if v, _ := r.GetInt(i); v != -200 {
		t.Errorf("GetInt() = %d, want -200", v)
	}
	if v, _ := r.GetBool(b); !v {
		t.Error("GetBool() = false, want true")
	}
	if v, _ := r.GetOption(o); v != 2 {
		t.Errorf("GetOption() = %d, want 2", v)
	}
	if v, _ := r.GetGA(g); !v.IsZero() {
		t.Errorf("GetGA() = %s, want unset", v)
	}

	if err := r.SetString(s, "a-much-longer-name"); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.GetString(s); v != "a-much-l" {
		t.Errorf("GetString() after long set = %q, want truncated", v)
	}
	if err := r.SetString(s, "x"); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.GetString(s); v != "x" {
		t.Errorf("GetString() after short set = %q, want x", v)
	}

	_ = r.SetInt(i, 215)
	_ = r.SetBool(b, false)
	_ = r.SetOption(o, 0)
	_ = r.SetGA(g, GroupAddress(1, 2, 3))

	if v, _ := r.GetInt(i); v != 215 {
		t.Errorf("GetInt() = %d, want 215", v)
	}
	if v, _ := r.GetGA(g); v != GroupAddress(1, 2, 3) {
		t.Errorf("GetGA() = %s, want 1/2/3", v)
	}

	r.RestoreDefaults()
	if v, _ := r.GetInt(i); v != -200 {
		t.Errorf("GetInt() after RestoreDefaults = %d, want -200", v)
	}
	if v, _ := r.GetString(s); v != "knx" {
		t.Errorf("GetString() after RestoreDefaults = %q, want knx", v)
	}
	if v, _ := r.GetBool(b); !v {
		t.Error("GetBool() after RestoreDefaults = false")
	}
}

func TestConfigAccessorErrors(t *testing.T) {
	r := NewConfigRegistry(10, 64)
	i, _ := r.RegisterInt("setpoint", 0, nil)
	o, _ := r.RegisterOptions("mode", []Option{{"off", 0}, {"on", 1}}, 0, nil)

	if _, err := r.GetInt(9); !errors.Is(err, ErrInvalidID) {
		t.Errorf("GetInt(unknown) error = %v, want ErrInvalidID", err)
	}
	if _, err := r.GetBool(i); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("GetBool(int item) error = %v, want ErrKindMismatch", err)
	}
	if err := r.SetString(i, "x"); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("SetString(int item) error = %v, want ErrKindMismatch", err)
	}
	if err := r.SetOption(o, 5); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("SetOption(5) error = %v, want ErrInvalidOption", err)
	}
	if v, _ := r.GetOption(o); v != 0 {
		t.Errorf("rejected SetOption changed value to %d", v)
	}
	if _, err := r.RegisterOptions("bad", []Option{{"a", 1}}, 3, nil); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("RegisterOptions(bad default) error = %v, want ErrInvalidOption", err)
	}
}

func TestConfigCapacity(t *testing.T) {
	t.Run("item count", func(t *testing.T) {
		r := NewConfigRegistry(2, 64)
		_, _ = r.RegisterBool("a", false, nil)
		_, _ = r.RegisterBool("b", false, nil)
		id, err := r.RegisterBool("c", false, nil)
		if id != InvalidID || !errors.Is(err, ErrCapacityExceeded) {
			t.Errorf("third register = %d, %v", id, err)
		}
		if len(r.Items()) != 2 || r.Used() != 2 {
			t.Errorf("table changed: %d items, %d bytes", len(r.Items()), r.Used())
		}
	})

	t.Run("byte space", func(t *testing.T) {
		r := NewConfigRegistry(10, 6)
		if _, err := r.RegisterInt("a", 1, nil); err != nil {
			t.Fatal(err)
		}
		id, err := r.RegisterString("b", 3, "", nil)
		if id != InvalidID || !errors.Is(err, ErrCapacityExceeded) {
			t.Errorf("over-space register = %d, %v", id, err)
		}
		if len(r.Items()) != 1 || r.Used() != 4 {
			t.Errorf("table changed: %d items, %d bytes", len(r.Items()), r.Used())
		}
		// Exactly filling the space still works.
		if _, err := r.RegisterGA("c", nil); err != nil {
			t.Errorf("RegisterGA() filling space error = %v", err)
		}
	})
}

func TestConfigEnablePredicateEvaluatedAtUse(t *testing.T) {
	r := NewConfigRegistry(10, 64)
	advanced := false
	id, _ := r.RegisterInt("tuning", 0, func() bool { return advanced })

	item, _ := r.Item(id)
	if item.Enabled() {
		t.Error("Enabled() = true before toggle")
	}
	advanced = true
	if !item.Enabled() {
		t.Error("Enabled() = false after toggle")
	}
}
