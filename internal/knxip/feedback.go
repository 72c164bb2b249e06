package knxip

import (
	"fmt"
	"strconv"
)

// FeedbackID identifies a feedback item.
type FeedbackID uint8

// FeedbackKind is the type of a feedback item.
type FeedbackKind uint8

// Feedback item kinds.
const (
	FeedbackInt FeedbackKind = iota
	FeedbackFloat
	FeedbackBool
	FeedbackAction
)

// String returns the kind name.
func (k FeedbackKind) String() string {
	switch k {
	case FeedbackInt:
		return "int"
	case FeedbackFloat:
		return "float"
	case FeedbackBool:
		return "bool"
	case FeedbackAction:
		return "action"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name.
func (k FeedbackKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name written by MarshalText.
func (k *FeedbackKind) UnmarshalText(text []byte) error {
	for c := FeedbackInt; c <= FeedbackAction; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("knxip: unknown feedback kind %q", text)
}

// FeedbackItem exposes a live value or a triggerable action to the outside.
// Feedback items are never persisted.
type FeedbackItem struct {
	ID        FeedbackID
	Kind      FeedbackKind
	Name      string
	Precision int

	intValue   func() int32
	floatValue func() float32
	boolValue  func() bool
	action     func(arg any)
	arg        any

	Enable func() bool
}

// Enabled evaluates the item's predicate.
func (f FeedbackItem) Enabled() bool {
	return f.Enable == nil || f.Enable()
}

// FeedbackValue is a point-in-time reading of a feedback item.
type FeedbackValue struct {
	ID      FeedbackID   `json:"id"`
	Kind    FeedbackKind `json:"kind"`
	Name    string       `json:"name"`
	Value   any          `json:"value,omitempty"`
	Text    string       `json:"text"`
	Enabled bool         `json:"enabled"`
}

// Read evaluates the item's getter. Actions read as nil.
func (f FeedbackItem) Read() FeedbackValue {
	v := FeedbackValue{ID: f.ID, Kind: f.Kind, Name: f.Name, Enabled: f.Enabled()}
	switch f.Kind {
	case FeedbackInt:
		v.Value = f.intValue()
	case FeedbackFloat:
		v.Value = f.floatValue()
	case FeedbackBool:
		v.Value = f.boolValue()
	case FeedbackAction:
	}
	v.Text = FormatValue(v.Value, f.Precision)
	return v
}

// FormatValue renders a feedback value for display. Floats use precision
// decimal places.
func FormatValue(v any, precision int) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', precision, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// FeedbackRegistry holds feedback items.
//
// FeedbackRegistry is not safe for concurrent use; Device serialises access.
type FeedbackRegistry struct {
	items    []FeedbackItem
	maxItems int
}

// NewFeedbackRegistry creates a registry holding at most maxItems items.
func NewFeedbackRegistry(maxItems int) *FeedbackRegistry {
	return &FeedbackRegistry{items: make([]FeedbackItem, 0, maxItems), maxItems: maxItems}
}

// RegisterInt adds an integer feedback item.
func (r *FeedbackRegistry) RegisterInt(name string, value func() int32, enable func() bool) (FeedbackID, error) {
	if value == nil {
		return InvalidID, fmt.Errorf("%w: feedback %q", ErrNilHandler, name)
	}
	return r.register(FeedbackItem{Kind: FeedbackInt, Name: name, intValue: value, Enable: enable})
}

// RegisterFloat adds a float feedback item shown with precision decimals.
func (r *FeedbackRegistry) RegisterFloat(name string, value func() float32, precision int, enable func() bool) (FeedbackID, error) {
	if value == nil {
		return InvalidID, fmt.Errorf("%w: feedback %q", ErrNilHandler, name)
	}
	if precision < 0 {
		precision = 0
	}
	return r.register(FeedbackItem{Kind: FeedbackFloat, Name: name, Precision: precision, floatValue: value, Enable: enable})
}

// RegisterBool adds a boolean feedback item.
func (r *FeedbackRegistry) RegisterBool(name string, value func() bool, enable func() bool) (FeedbackID, error) {
	if value == nil {
		return InvalidID, fmt.Errorf("%w: feedback %q", ErrNilHandler, name)
	}
	return r.register(FeedbackItem{Kind: FeedbackBool, Name: name, boolValue: value, Enable: enable})
}

// RegisterAction adds an action item. Triggering it calls action(arg).
func (r *FeedbackRegistry) RegisterAction(name string, action func(arg any), arg any, enable func() bool) (FeedbackID, error) {
	if action == nil {
		return InvalidID, fmt.Errorf("%w: feedback %q", ErrNilHandler, name)
	}
	return r.register(FeedbackItem{Kind: FeedbackAction, Name: name, action: action, arg: arg, Enable: enable})
}

func (r *FeedbackRegistry) register(item FeedbackItem) (FeedbackID, error) {
	if len(r.items) >= r.maxItems {
		return InvalidID, fmt.Errorf("%w: feedback table holds %d items", ErrCapacityExceeded, r.maxItems)
	}
	item.ID = FeedbackID(len(r.items)) //nolint:gosec // bounded by maxItems < InvalidID
	r.items = append(r.items, item)
	return item.ID, nil
}

// Item returns the item with the given id.
func (r *FeedbackRegistry) Item(id FeedbackID) (FeedbackItem, bool) {
	if int(id) >= len(r.items) {
		return FeedbackItem{}, false
	}
	return r.items[id], true
}

// Items returns a copy of the registered items in id order.
func (r *FeedbackRegistry) Items() []FeedbackItem {
	out := make([]FeedbackItem, len(r.items))
	copy(out, r.items)
	return out
}

// Trigger runs an action item.
func (r *FeedbackRegistry) Trigger(id FeedbackID) error {
	item, ok := r.Item(id)
	if !ok {
		return fmt.Errorf("%w: feedback %d", ErrInvalidID, id)
	}
	return item.Trigger()
}

// Trigger runs the item's action. Only enabled action items can be
// triggered.
func (f FeedbackItem) Trigger() error {
	if f.Kind != FeedbackAction {
		return fmt.Errorf("%w: feedback %d is %s, not action", ErrKindMismatch, f.ID, f.Kind)
	}
	if !f.Enabled() {
		return fmt.Errorf("%w: feedback %d", ErrDisabled, f.ID)
	}
	f.action(f.arg)
	return nil
}

// Snapshot reads every item in id order.
func Snapshot(items []FeedbackItem) []FeedbackValue {
	out := make([]FeedbackValue, 0, len(items))
	for _, it := range items {
		out = append(out, it.Read())
	}
	return out
}
