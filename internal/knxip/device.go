package knxip

import (
	"errors"
	"fmt"
	"sync"
)

// Capacity limits. Ids are single bytes with 0xFF reserved, and the stored
// magic gives the config space 16 bits.
const (
	maxCallbackCapacity   = 254
	maxAssignmentCapacity = 255
	maxConfigCapacity     = 254
	maxConfigSpace        = 0xFFFF
	maxFeedbackCapacity   = 254
)

// Capacities fixes the table sizes of a device. Changing any of the
// persisted sizes invalidates previously saved data.
type Capacities struct {
	Callbacks   int `yaml:"callbacks" json:"callbacks"`
	Assignments int `yaml:"assignments" json:"assignments"`
	Configs     int `yaml:"configs" json:"configs"`
	ConfigSpace int `yaml:"config_space" json:"config_space"`
	Feedbacks   int `yaml:"feedbacks" json:"feedbacks"`
}

// DefaultCapacities returns the default table sizes.
func DefaultCapacities() Capacities {
	return Capacities{
		Callbacks:   10,
		Assignments: 10,
		Configs:     20,
		ConfigSpace: 512,
		Feedbacks:   20,
	}
}

// withDefaults fills zero fields from DefaultCapacities.
func (c Capacities) withDefaults() Capacities {
	def := DefaultCapacities()
	if c.Callbacks == 0 {
		c.Callbacks = def.Callbacks
	}
	if c.Assignments == 0 {
		c.Assignments = def.Assignments
	}
	if c.Configs == 0 {
		c.Configs = def.Configs
	}
	if c.ConfigSpace == 0 {
		c.ConfigSpace = def.ConfigSpace
	}
	if c.Feedbacks == 0 {
		c.Feedbacks = def.Feedbacks
	}
	return c
}

// Validate checks every size is within its representable range.
func (c Capacities) Validate() error {
	var errs []error
	check := func(name string, v, maxV int) {
		if v < 1 || v > maxV {
			errs = append(errs, fmt.Errorf("%s must be 1-%d, got %d", name, maxV, v))
		}
	}
	check("callbacks", c.Callbacks, maxCallbackCapacity)
	check("assignments", c.Assignments, maxAssignmentCapacity)
	check("configs", c.Configs, maxConfigCapacity)
	check("config_space", c.ConfigSpace, maxConfigSpace)
	check("feedbacks", c.Feedbacks, maxFeedbackCapacity)
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
	}
	return nil
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Device.
type Options struct {
	// PhysicalAddress is the device's own address, used as the source of
	// sent telegrams. A value restored by Load replaces it.
	PhysicalAddress Address

	// Capacities fixes the table sizes. Zero fields take defaults.
	Capacities Capacities

	// Dispatch selects first-match or all-matches dispatch.
	Dispatch DispatchPolicy

	// IgnoreSelfEcho drops received telegrams whose source is the device's
	// own physical address.
	IgnoreSelfEcho bool

	// SendChecksum appends and verifies a trailing XOR byte. Other devices
	// on the network must agree.
	SendChecksum bool

	// Store is the non-volatile region used by Save and Load. Optional.
	Store Store

	// Sender transmits frames. Optional for receive-only use.
	Sender Sender

	// Logger receives debug output. Optional.
	Logger Logger
}

// Device is the context object holding a KNX/IP device's registries,
// address and collaborators.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Mutations and Save/Load are serialised by an internal lock.
//   - Handlers, enable predicates, feedback getters and actions run outside
//     the lock and may call back into the Device.
type Device struct {
	mu        sync.RWMutex
	physical  Address
	caps      Capacities
	callbacks *CallbackRegistry
	config    *ConfigRegistry
	feedback  *FeedbackRegistry

	dispatch       DispatchPolicy
	ignoreSelfEcho bool
	framer         Framer
	store          Store
	sender         Sender
	log            Logger

	monitorMu sync.RWMutex
	monitor   func(Message)

	stats counters
}

// New creates a Device.
func New(opts Options) (*Device, error) {
	caps := opts.Capacities.withDefaults()
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	if opts.Dispatch > DispatchAll {
		return nil, fmt.Errorf("%w: dispatch policy %d", ErrInvalidOptions, opts.Dispatch)
	}

	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}

	return &Device{
		physical:       opts.PhysicalAddress,
		caps:           caps,
		callbacks:      NewCallbackRegistry(caps.Callbacks, caps.Assignments),
		config:         NewConfigRegistry(caps.Configs, caps.ConfigSpace),
		feedback:       NewFeedbackRegistry(caps.Feedbacks),
		dispatch:       opts.Dispatch,
		ignoreSelfEcho: opts.IgnoreSelfEcho,
		framer:         Framer{Checksum: opts.SendChecksum},
		store:          opts.Store,
		sender:         opts.Sender,
		log:            log,
	}, nil
}

// Capacities returns the device's table sizes.
func (d *Device) Capacities() Capacities { return d.caps }

// Framer returns the framer used for sending and receiving.
func (d *Device) Framer() Framer { return d.framer }

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats { return d.stats.snapshot() }

// PhysicalAddress returns the device's own address.
func (d *Device) PhysicalAddress() Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.physical
}

// SetPhysicalAddress changes the device's own address. It is persisted by
// the next Save.
func (d *Device) SetPhysicalAddress(a Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.physical = a
}

// SetMonitor installs fn to observe every successfully parsed telegram
// before dispatch. Nil removes the monitor.
func (d *Device) SetMonitor(fn func(Message)) {
	d.monitorMu.Lock()
	defer d.monitorMu.Unlock()
	d.monitor = fn
}

// ProcessOnce parses one received datagram and dispatches it to the
// callbacks assigned to its destination. It returns the number of handlers
// invoked.
//
// Malformed and unsupported frames are counted as dropped and returned as
// errors wrapping ErrMalformedFrame or ErrUnsupportedService; callers
// receiving from a socket normally log and continue.
func (d *Device) ProcessOnce(datagram []byte) (int, error) {
	d.stats.framesRx.Add(1)
	d.stats.touch()

	t, err := d.framer.Parse(datagram)
	if err != nil {
		d.stats.framesDropped.Add(1)
		d.log.Debug("datagram dropped", "size", len(datagram), "error", err)
		return 0, err
	}
	msg := Message{Telegram: t}

	d.monitorMu.RLock()
	monitor := d.monitor
	d.monitorMu.RUnlock()
	if monitor != nil {
		monitor(msg)
	}

	d.mu.RLock()
	self := d.physical
	cands := d.callbacks.candidates(t.Destination)
	d.mu.RUnlock()

	if d.ignoreSelfEcho && t.Source == self {
		return 0, nil
	}

	matched := selectEnabled(cands, d.dispatch)
	for _, cb := range matched {
		cb.Handler.HandleTelegram(msg, cb.Arg)
	}
	d.stats.dispatched.Add(uint64(len(matched)))

	if len(matched) > 0 {
		d.log.Debug("telegram dispatched", "ga", t.Destination.String(), "cmd", t.Command.String(), "handlers", len(matched))
	}
	return len(matched), nil
}

// =============================================================================
// Callback registry
// =============================================================================

// RegisterCallback registers a handler. See CallbackRegistry.Register.
func (d *Device) RegisterCallback(name string, h Handler, arg any, enable func() bool) (CallbackID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callbacks.Register(name, h, arg, enable)
}

// AssignCallback binds address to a callback. See CallbackRegistry.Assign.
func (d *Device) AssignCallback(id CallbackID, address Address) (AssignmentID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callbacks.Assign(id, address)
}

// DeleteAssignment frees an assignment slot.
func (d *Device) DeleteAssignment(id AssignmentID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callbacks.Delete(id)
}

// Callbacks lists the registered callbacks.
func (d *Device) Callbacks() []Callback {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.callbacks.Callbacks()
}

// Assignments lists the occupied assignment slots.
func (d *Device) Assignments() []Assignment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.callbacks.Assignments()
}

// =============================================================================
// Configuration registry
// =============================================================================

// RegisterConfigString registers a string item.
func (d *Device) RegisterConfigString(name string, length int, def string, enable func() bool) (ConfigID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.RegisterString(name, length, def, enable)
}

// RegisterConfigInt registers an int item.
func (d *Device) RegisterConfigInt(name string, def int32, enable func() bool) (ConfigID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.RegisterInt(name, def, enable)
}

// RegisterConfigBool registers a bool item.
func (d *Device) RegisterConfigBool(name string, def bool, enable func() bool) (ConfigID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.RegisterBool(name, def, enable)
}

// RegisterConfigOptions registers an options item.
func (d *Device) RegisterConfigOptions(name string, options []Option, def uint8, enable func() bool) (ConfigID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.RegisterOptions(name, options, def, enable)
}

// RegisterConfigGA registers a group address item.
func (d *Device) RegisterConfigGA(name string, enable func() bool) (ConfigID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.RegisterGA(name, enable)
}

// ConfigItems lists the registered configuration items.
func (d *Device) ConfigItems() []ConfigItem {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Items()
}

// ConfigItem returns one configuration item.
func (d *Device) ConfigItem(id ConfigID) (ConfigItem, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Item(id)
}

// ConfigString returns a string item's value.
func (d *Device) ConfigString(id ConfigID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.GetString(id)
}

// SetConfigString sets a string item's value.
func (d *Device) SetConfigString(id ConfigID, v string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.SetString(id, v)
}

// ConfigInt returns an int item's value.
func (d *Device) ConfigInt(id ConfigID) (int32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.GetInt(id)
}

// SetConfigInt sets an int item's value.
func (d *Device) SetConfigInt(id ConfigID, v int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.SetInt(id, v)
}

// ConfigBool returns a bool item's value.
func (d *Device) ConfigBool(id ConfigID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.GetBool(id)
}

// SetConfigBool sets a bool item's value.
func (d *Device) SetConfigBool(id ConfigID, v bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.SetBool(id, v)
}

// ConfigOption returns an options item's selected value.
func (d *Device) ConfigOption(id ConfigID) (uint8, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.GetOption(id)
}

// SetConfigOption selects an option.
func (d *Device) SetConfigOption(id ConfigID, v uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.SetOption(id, v)
}

// ConfigGA returns a group address item's value.
func (d *Device) ConfigGA(id ConfigID) (Address, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.GetGA(id)
}

// SetConfigGA sets a group address item's value.
func (d *Device) SetConfigGA(id ConfigID, ga Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.SetGA(id, ga)
}

// RestoreDefaults resets every configuration item to its default.
func (d *Device) RestoreDefaults() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.RestoreDefaults()
}

// =============================================================================
// Feedback registry
// =============================================================================

// RegisterFeedbackInt registers an int feedback item.
func (d *Device) RegisterFeedbackInt(name string, value func() int32, enable func() bool) (FeedbackID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feedback.RegisterInt(name, value, enable)
}

// RegisterFeedbackFloat registers a float feedback item.
func (d *Device) RegisterFeedbackFloat(name string, value func() float32, precision int, enable func() bool) (FeedbackID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feedback.RegisterFloat(name, value, precision, enable)
}

// RegisterFeedbackBool registers a bool feedback item.
func (d *Device) RegisterFeedbackBool(name string, value func() bool, enable func() bool) (FeedbackID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feedback.RegisterBool(name, value, enable)
}

// RegisterFeedbackAction registers an action item.
func (d *Device) RegisterFeedbackAction(name string, action func(arg any), arg any, enable func() bool) (FeedbackID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.feedback.RegisterAction(name, action, arg, enable)
}

// Feedback reads every feedback item. Getters run outside the lock.
func (d *Device) Feedback() []FeedbackValue {
	d.mu.RLock()
	items := d.feedback.Items()
	d.mu.RUnlock()
	return Snapshot(items)
}

// TriggerFeedback runs an action item outside the lock.
func (d *Device) TriggerFeedback(id FeedbackID) error {
	d.mu.RLock()
	item, ok := d.feedback.Item(id)
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: feedback %d", ErrInvalidID, id)
	}
	return item.Trigger()
}
