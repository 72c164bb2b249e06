package knxip

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ConfigID identifies a configuration item.
type ConfigID uint8

// ConfigKind is the value type of a configuration item.
type ConfigKind uint8

// Configuration item kinds.
const (
	ConfigString ConfigKind = iota
	ConfigInt
	ConfigBool
	ConfigOptions
	ConfigGA
)

// Fixed byte lengths of the non-string kinds.
const (
	configIntLen     = 4
	configBoolLen    = 1
	configOptionsLen = 1
	configGALen      = 2
)

// String returns the kind name.
func (k ConfigKind) String() string {
	switch k {
	case ConfigString:
		return "string"
	case ConfigInt:
		return "int"
	case ConfigBool:
		return "bool"
	case ConfigOptions:
		return "options"
	case ConfigGA:
		return "ga"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Option is one choice of an options item.
type Option struct {
	Name  string `json:"name"`
	Value uint8  `json:"value"`
}

// ConfigItem describes a registered configuration item. Its value lives in
// the registry's buffers at [Offset, Offset+Length).
type ConfigItem struct {
	ID      ConfigID
	Kind    ConfigKind
	Name    string
	Length  int
	Offset  int
	Options []Option

	// Enable hides the item from configuration surfaces when it returns
	// false. Nil means always enabled.
	Enable func() bool
}

// Enabled evaluates the item's predicate.
func (c ConfigItem) Enabled() bool {
	return c.Enable == nil || c.Enable()
}

// ConfigRegistry holds configuration items and their current and default
// values in two byte buffers with the same layout.
//
// ConfigRegistry is not safe for concurrent use; Device serialises access.
type ConfigRegistry struct {
	items    []ConfigItem
	maxItems int
	current  []byte
	defaults []byte
	used     int
}

// NewConfigRegistry creates a registry for at most maxItems items occupying
// at most space bytes.
func NewConfigRegistry(maxItems, space int) *ConfigRegistry {
	return &ConfigRegistry{
		items:    make([]ConfigItem, 0, maxItems),
		maxItems: maxItems,
		current:  make([]byte, space),
		defaults: make([]byte, space),
	}
}

// RegisterString adds a string item of at most length bytes.
func (r *ConfigRegistry) RegisterString(name string, length int, def string, enable func() bool) (ConfigID, error) {
	if length < 1 {
		return InvalidID, fmt.Errorf("%w: string item %q needs a positive length", ErrInvalidOptions, name)
	}
	return r.register(ConfigItem{Kind: ConfigString, Name: name, Length: length, Enable: enable}, padString(def, length))
}

// RegisterInt adds a 32-bit signed integer item.
func (r *ConfigRegistry) RegisterInt(name string, def int32, enable func() bool) (ConfigID, error) {
	buf := make([]byte, configIntLen)
	binary.BigEndian.PutUint32(buf, uint32(def)) //nolint:gosec // two's complement round trip
	return r.register(ConfigItem{Kind: ConfigInt, Name: name, Length: configIntLen, Enable: enable}, buf)
}

// RegisterBool adds a boolean item.
func (r *ConfigRegistry) RegisterBool(name string, def bool, enable func() bool) (ConfigID, error) {
	return r.register(ConfigItem{Kind: ConfigBool, Name: name, Length: configBoolLen, Enable: enable}, []byte{boolByte(def)})
}

// RegisterOptions adds an item whose value is one of options. def must be
// the value of one of the options.
func (r *ConfigRegistry) RegisterOptions(name string, options []Option, def uint8, enable func() bool) (ConfigID, error) {
	if !hasOption(options, def) {
		return InvalidID, fmt.Errorf("%w: default %d of %q", ErrInvalidOption, def, name)
	}
	opts := make([]Option, len(options))
	copy(opts, options)
	return r.register(ConfigItem{Kind: ConfigOptions, Name: name, Length: configOptionsLen, Options: opts, Enable: enable}, []byte{def})
}

// RegisterGA adds a group address item. Its default is 0/0/0, meaning unset.
func (r *ConfigRegistry) RegisterGA(name string, enable func() bool) (ConfigID, error) {
	return r.register(ConfigItem{Kind: ConfigGA, Name: name, Length: configGALen, Enable: enable}, make([]byte, configGALen))
}

func (r *ConfigRegistry) register(item ConfigItem, def []byte) (ConfigID, error) {
	if len(r.items) >= r.maxItems {
		return InvalidID, fmt.Errorf("%w: config table holds %d items", ErrCapacityExceeded, r.maxItems)
	}
	if r.used+item.Length > len(r.current) {
		return InvalidID, fmt.Errorf("%w: %q needs %d bytes, %d of %d free",
			ErrCapacityExceeded, item.Name, item.Length, len(r.current)-r.used, len(r.current))
	}

	item.ID = ConfigID(len(r.items)) //nolint:gosec // bounded by maxItems < InvalidID
	item.Offset = r.used
	copy(r.defaults[item.Offset:], def)
	copy(r.current[item.Offset:], def)
	r.used += item.Length
	r.items = append(r.items, item)
	return item.ID, nil
}

// Item returns the item with the given id.
func (r *ConfigRegistry) Item(id ConfigID) (ConfigItem, bool) {
	if int(id) >= len(r.items) {
		return ConfigItem{}, false
	}
	return r.items[id], true
}

// Items returns a copy of the registered items in id order.
func (r *ConfigRegistry) Items() []ConfigItem {
	out := make([]ConfigItem, len(r.items))
	copy(out, r.items)
	return out
}

// Used returns the number of buffer bytes occupied by registered items.
func (r *ConfigRegistry) Used() int { return r.used }

// Space returns the size of the value buffers.
func (r *ConfigRegistry) Space() int { return len(r.current) }

// RestoreDefaults copies every default value into the current buffer.
func (r *ConfigRegistry) RestoreDefaults() {
	copy(r.current[:r.used], r.defaults[:r.used])
}

func (r *ConfigRegistry) lookup(id ConfigID, kind ConfigKind) (ConfigItem, error) {
	item, ok := r.Item(id)
	if !ok {
		return ConfigItem{}, fmt.Errorf("%w: config item %d", ErrInvalidID, id)
	}
	if item.Kind != kind {
		return ConfigItem{}, fmt.Errorf("%w: config item %d is %s, not %s", ErrKindMismatch, id, item.Kind, kind)
	}
	return item, nil
}

func (r *ConfigRegistry) value(item ConfigItem) []byte {
	return r.current[item.Offset : item.Offset+item.Length]
}

// GetString returns a string item's value up to its first NUL byte.
func (r *ConfigRegistry) GetString(id ConfigID) (string, error) {
	item, err := r.lookup(id, ConfigString)
	if err != nil {
		return "", err
	}
	v := r.value(item)
	if i := bytes.IndexByte(v, 0); i >= 0 {
		v = v[:i]
	}
	return string(v), nil
}

// SetString stores s, truncated or zero padded to the item's length.
func (r *ConfigRegistry) SetString(id ConfigID, s string) error {
	item, err := r.lookup(id, ConfigString)
	if err != nil {
		return err
	}
	copy(r.value(item), padString(s, item.Length))
	return nil
}

// GetInt returns an int item's value.
func (r *ConfigRegistry) GetInt(id ConfigID) (int32, error) {
	item, err := r.lookup(id, ConfigInt)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.value(item))), nil //nolint:gosec // two's complement round trip
}

// SetInt stores an int item's value.
func (r *ConfigRegistry) SetInt(id ConfigID, v int32) error {
	item, err := r.lookup(id, ConfigInt)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(r.value(item), uint32(v)) //nolint:gosec // two's complement round trip
	return nil
}

// GetBool returns a bool item's value.
func (r *ConfigRegistry) GetBool(id ConfigID) (bool, error) {
	item, err := r.lookup(id, ConfigBool)
	if err != nil {
		return false, err
	}
	return r.value(item)[0] != 0, nil
}

// SetBool stores a bool item's value.
func (r *ConfigRegistry) SetBool(id ConfigID, v bool) error {
	item, err := r.lookup(id, ConfigBool)
	if err != nil {
		return err
	}
	r.value(item)[0] = boolByte(v)
	return nil
}

// GetOption returns the selected option value.
func (r *ConfigRegistry) GetOption(id ConfigID) (uint8, error) {
	item, err := r.lookup(id, ConfigOptions)
	if err != nil {
		return 0, err
	}
	return r.value(item)[0], nil
}

// SetOption selects an option. v must be the value of one of the item's
// options.
func (r *ConfigRegistry) SetOption(id ConfigID, v uint8) error {
	item, err := r.lookup(id, ConfigOptions)
	if err != nil {
		return err
	}
	if !hasOption(item.Options, v) {
		return fmt.Errorf("%w: %d for %q", ErrInvalidOption, v, item.Name)
	}
	r.value(item)[0] = v
	return nil
}

// GetGA returns a group address item's value. Zero means unset.
func (r *ConfigRegistry) GetGA(id ConfigID) (Address, error) {
	item, err := r.lookup(id, ConfigGA)
	if err != nil {
		return 0, err
	}
	return Address(binary.BigEndian.Uint16(r.value(item))), nil
}

// SetGA stores a group address item's value.
func (r *ConfigRegistry) SetGA(id ConfigID, ga Address) error {
	item, err := r.lookup(id, ConfigGA)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(r.value(item), uint16(ga))
	return nil
}

func padString(s string, length int) []byte {
	buf := make([]byte, length)
	copy(buf, s)
	return buf
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func hasOption(options []Option, v uint8) bool {
	for _, o := range options {
		if o.Value == v {
			return true
		}
	}
	return false
}
