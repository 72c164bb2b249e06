package knxip

import (
	"fmt"
	"strings"
)

// InvalidID is the sentinel returned by every registry when a registration
// fails, and the marker for a free assignment slot in the stored image.
const InvalidID = 0xFF

// CallbackID identifies a registered callback.
type CallbackID uint8

// AssignmentID identifies an assignment slot.
type AssignmentID uint8

// Message is a received telegram as seen by a handler.
type Message struct {
	Telegram
}

// Bool decodes the payload as DPT1.
func (m Message) Bool() (bool, error) { return DecodeDPT1(m.Payload) }

// Uint8 decodes the payload as DPT5.
func (m Message) Uint8() (uint8, error) { return DecodeDPT5(m.Payload) }

// Int8 decodes the payload as DPT6.
func (m Message) Int8() (int8, error) { return DecodeDPT6(m.Payload) }

// Uint16 decodes the payload as DPT7.
func (m Message) Uint16() (uint16, error) { return DecodeDPT7(m.Payload) }

// Int16 decodes the payload as DPT8.
func (m Message) Int16() (int16, error) { return DecodeDPT8(m.Payload) }

// Float16 decodes the payload as DPT9.
func (m Message) Float16() (float64, error) { return DecodeDPT9(m.Payload) }

// Uint32 decodes the payload as DPT12.
func (m Message) Uint32() (uint32, error) { return DecodeDPT12(m.Payload) }

// Int32 decodes the payload as DPT13.
func (m Message) Int32() (int32, error) { return DecodeDPT13(m.Payload) }

// Float32 decodes the payload as DPT14.
func (m Message) Float32() (float32, error) { return DecodeDPT14(m.Payload) }

// String14 decodes the payload as DPT16.
func (m Message) String14() (string, error) { return DecodeDPT16(m.Payload) }

// Handler processes telegrams for the addresses its callback is assigned to.
// arg is the opaque value given at registration.
type Handler interface {
	HandleTelegram(msg Message, arg any)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(msg Message, arg any)

// HandleTelegram calls f(msg, arg).
func (f HandlerFunc) HandleTelegram(msg Message, arg any) {
	f(msg, arg)
}

// Callback is a named handler registration.
type Callback struct {
	ID      CallbackID
	Name    string
	Handler Handler
	Arg     any

	// Enable is evaluated every time the callback is considered for
	// dispatch or listed. Nil means always enabled.
	Enable func() bool
}

// Enabled evaluates the callback's predicate.
func (c Callback) Enabled() bool {
	return c.Enable == nil || c.Enable()
}

// Assignment binds a group address to a callback.
type Assignment struct {
	ID       AssignmentID
	Address  Address
	Callback CallbackID
}

// DispatchPolicy selects how many callbacks a matching telegram reaches.
type DispatchPolicy uint8

const (
	// DispatchFirst invokes only the first enabled callback assigned to the
	// destination, in assignment slot order.
	DispatchFirst DispatchPolicy = iota

	// DispatchAll invokes every enabled callback assigned to the destination.
	DispatchAll
)

// String returns the policy name as used in configuration.
func (p DispatchPolicy) String() string {
	switch p {
	case DispatchFirst:
		return "first"
	case DispatchAll:
		return "all"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseDispatchPolicy parses "first" or "all".
func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return DispatchFirst, nil
	case "all":
		return DispatchAll, nil
	default:
		return DispatchFirst, fmt.Errorf("%w: unknown dispatch policy %q", ErrInvalidOptions, s)
	}
}

// CallbackRegistry holds callbacks and the address assignments that route
// telegrams to them.
//
// Callbacks are append-only. Assignments live in fixed slots; a deleted slot
// is reused by the next Assign, and the slot index is the AssignmentID.
//
// CallbackRegistry is not safe for concurrent use; Device serialises access.
type CallbackRegistry struct {
	callbacks    []Callback
	maxCallbacks int
	slots        []Assignment
}

// NewCallbackRegistry creates a registry with the given table sizes.
func NewCallbackRegistry(maxCallbacks, maxAssignments int) *CallbackRegistry {
	r := &CallbackRegistry{
		callbacks:    make([]Callback, 0, maxCallbacks),
		maxCallbacks: maxCallbacks,
		slots:        make([]Assignment, maxAssignments),
	}
	r.ClearAssignments()
	return r
}

// Register appends a callback. When the table is full it returns InvalidID
// and ErrCapacityExceeded.
func (r *CallbackRegistry) Register(name string, h Handler, arg any, enable func() bool) (CallbackID, error) {
	if h == nil {
		return InvalidID, fmt.Errorf("%w: callback %q", ErrNilHandler, name)
	}
	if len(r.callbacks) >= r.maxCallbacks {
		return InvalidID, fmt.Errorf("%w: callback table holds %d entries", ErrCapacityExceeded, r.maxCallbacks)
	}

	id := CallbackID(len(r.callbacks)) //nolint:gosec // bounded by maxCallbacks < InvalidID
	r.callbacks = append(r.callbacks, Callback{
		ID:      id,
		Name:    name,
		Handler: h,
		Arg:     arg,
		Enable:  enable,
	})
	return id, nil
}

// Callback returns the callback with the given id.
func (r *CallbackRegistry) Callback(id CallbackID) (Callback, bool) {
	if int(id) >= len(r.callbacks) {
		return Callback{}, false
	}
	return r.callbacks[id], true
}

// Callbacks returns a copy of the registered callbacks in id order.
func (r *CallbackRegistry) Callbacks() []Callback {
	out := make([]Callback, len(r.callbacks))
	copy(out, r.callbacks)
	return out
}

// Assign binds address to callback id using the lowest free slot.
func (r *CallbackRegistry) Assign(id CallbackID, address Address) (AssignmentID, error) {
	if int(id) >= len(r.callbacks) {
		return InvalidID, fmt.Errorf("%w: callback %d", ErrInvalidID, id)
	}
	for i := range r.slots {
		if r.slots[i].Callback == InvalidID {
			r.slots[i].Address = address
			r.slots[i].Callback = id
			return r.slots[i].ID, nil
		}
	}
	return InvalidID, fmt.Errorf("%w: assignment table holds %d entries", ErrCapacityExceeded, len(r.slots))
}

// Delete frees an assignment slot.
func (r *CallbackRegistry) Delete(id AssignmentID) error {
	if int(id) >= len(r.slots) || r.slots[id].Callback == InvalidID {
		return fmt.Errorf("%w: assignment %d", ErrInvalidID, id)
	}
	r.slots[id].Address = 0
	r.slots[id].Callback = InvalidID
	return nil
}

// Assignments returns the occupied slots in slot order.
func (r *CallbackRegistry) Assignments() []Assignment {
	out := make([]Assignment, 0, len(r.slots))
	for _, s := range r.slots {
		if s.Callback != InvalidID {
			out = append(out, s)
		}
	}
	return out
}

// ClearAssignments frees every slot.
func (r *CallbackRegistry) ClearAssignments() {
	for i := range r.slots {
		r.slots[i] = Assignment{ID: AssignmentID(i), Callback: InvalidID} //nolint:gosec // slots <= 255
	}
}

// Match returns the enabled callbacks assigned to address in slot order.
// With DispatchFirst at most one callback is returned.
func (r *CallbackRegistry) Match(address Address, policy DispatchPolicy) []Callback {
	return selectEnabled(r.candidates(address), policy)
}

// candidates returns every callback assigned to address without evaluating
// enable predicates, so callers can evaluate them outside a lock.
func (r *CallbackRegistry) candidates(address Address) []Callback {
	var out []Callback
	for _, s := range r.slots {
		if s.Callback == InvalidID || s.Address != address {
			continue
		}
		if cb, ok := r.Callback(s.Callback); ok {
			out = append(out, cb)
		}
	}
	return out
}

func selectEnabled(cands []Callback, policy DispatchPolicy) []Callback {
	out := cands[:0]
	for _, cb := range cands {
		if !cb.Enabled() {
			continue
		}
		out = append(out, cb)
		if policy == DispatchFirst {
			break
		}
	}
	return out
}

// slot returns the raw slot, including free ones, for serialisation.
func (r *CallbackRegistry) slot(i int) Assignment {
	return r.slots[i]
}

// restoreSlot sets a slot from a stored image. Callback ids that are not
// registered leave the slot free.
func (r *CallbackRegistry) restoreSlot(i int, address Address, id CallbackID) {
	if id == InvalidID || int(id) >= len(r.callbacks) {
		r.slots[i].Address = 0
		r.slots[i].Callback = InvalidID
		return
	}
	r.slots[i].Address = address
	r.slots[i].Callback = id
}
