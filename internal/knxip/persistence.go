package knxip

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Store is a fixed-size non-volatile byte region.
//
// Writes may be buffered until Commit. Implementations live in the nvstore
// package.
type Store interface {
	// Size returns the region size in bytes.
	Size() int

	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)

	// Commit makes previous writes durable.
	Commit() error
}

// Stored image layout, all fields big-endian:
//
//	0   8            magic
//	8   2            physical address
//	10  3*A          assignment slots: address (2) + callback id (1), 0xFF = free
//	..  config_space configuration bytes
const (
	magicBase       uint64 = 0xDEADBEEF << 32
	magicSize              = 8
	physicalSize           = 2
	assignmentSize         = 3
	imageHeaderSize        = magicSize + physicalSize
)

// Magic returns the layout signature for the given capacities. Each capacity
// occupies its own bits, so any change yields a different signature.
func Magic(c Capacities) uint64 {
	return magicBase |
		uint64(c.Assignments&0xFF)<<24 | //nolint:gosec // masked
		uint64(c.Callbacks&0xFF)<<16 | //nolint:gosec // masked
		uint64(c.ConfigSpace&0xFFFF) //nolint:gosec // masked
}

// ImageSize returns the number of bytes Save writes for the capacities.
func ImageSize(c Capacities) int {
	return imageHeaderSize + assignmentSize*c.Assignments + c.ConfigSpace
}

// Image is a decoded stored image.
type Image struct {
	Magic           uint64
	Valid           bool // magic matches the capacities used to decode
	Erased          bool // every byte is 0xFF
	PhysicalAddress Address
	Assignments     []Assignment // occupied slots only
	Config          []byte
}

func encodeImage(c Capacities, physical Address, cb *CallbackRegistry, config []byte) []byte {
	buf := make([]byte, ImageSize(c))
	binary.BigEndian.PutUint64(buf[0:magicSize], Magic(c))
	binary.BigEndian.PutUint16(buf[magicSize:imageHeaderSize], uint16(physical))

	off := imageHeaderSize
	for i := 0; i < c.Assignments; i++ {
		s := cb.slot(i)
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(s.Address))
		buf[off+2] = byte(s.Callback)
		off += assignmentSize
	}
	copy(buf[off:], config)
	return buf
}

func decodeImage(c Capacities, buf []byte) Image {
	img := Image{
		Magic:  binary.BigEndian.Uint64(buf[0:magicSize]),
		Erased: len(bytes.Trim(buf, "\xff")) == 0,
	}
	img.Valid = img.Magic == Magic(c)
	img.PhysicalAddress = Address(binary.BigEndian.Uint16(buf[magicSize:imageHeaderSize]))

	off := imageHeaderSize
	for i := 0; i < c.Assignments; i++ {
		id := buf[off+2]
		if id != InvalidID {
			img.Assignments = append(img.Assignments, Assignment{
				ID:       AssignmentID(i), //nolint:gosec // assignments <= 255
				Address:  Address(binary.BigEndian.Uint16(buf[off : off+2])),
				Callback: CallbackID(id),
			})
		}
		off += assignmentSize
	}
	img.Config = buf[off : off+c.ConfigSpace]
	return img
}

func readImage(store Store, c Capacities) ([]byte, error) {
	size := ImageSize(c)
	if store.Size() < size {
		return nil, fmt.Errorf("%w: need %d bytes, store has %d", ErrStoreTooSmall, size, store.Size())
	}
	buf := make([]byte, size)
	if _, err := store.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	return buf, nil
}

// Inspect decodes the image in store as it would be loaded by a device with
// capacities c, without modifying anything.
func Inspect(store Store, c Capacities) (Image, error) {
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Image{}, err
	}
	buf, err := readImage(store, c)
	if err != nil {
		return Image{}, err
	}
	return decodeImage(c, buf), nil
}

// Save writes the physical address, assignment table and configuration
// values to the store and commits them.
func (d *Device) Save() error {
	if d.store == nil {
		return ErrNoStore
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := ImageSize(d.caps)
	if d.store.Size() < size {
		return fmt.Errorf("%w: need %d bytes, store has %d", ErrStoreTooSmall, size, d.store.Size())
	}

	buf := encodeImage(d.caps, d.physical, d.callbacks, d.config.current)
	if _, err := d.store.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("writing store: %w", err)
	}
	if err := d.store.Commit(); err != nil {
		return fmt.Errorf("committing store: %w", err)
	}

	d.log.Info("configuration saved", "bytes", size, "assignments", len(d.callbacks.Assignments()))
	return nil
}

// Load restores state saved by Save.
//
// When the store is too small, erased, or holds an image written with other
// capacities, configuration defaults are applied, assignments are cleared and
// restored is false. Callbacks must be registered before Load; stored
// assignments referring to unregistered callbacks are dropped.
func (d *Device) Load() (restored bool, err error) {
	if d.store == nil {
		return false, ErrNoStore
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.store.Size() < ImageSize(d.caps) {
		d.applyDefaultsLocked()
		d.log.Warn("store smaller than layout, using defaults", "need", ImageSize(d.caps), "size", d.store.Size())
		return false, nil
	}

	buf, err := readImage(d.store, d.caps)
	if err != nil {
		return false, err
	}
	img := decodeImage(d.caps, buf)
	if !img.Valid {
		d.applyDefaultsLocked()
		if img.Erased {
			d.log.Info("store erased, using defaults")
		} else {
			d.log.Warn("stored layout does not match, using defaults",
				"magic", fmt.Sprintf("%016X", img.Magic), "expected", fmt.Sprintf("%016X", Magic(d.caps)))
		}
		return false, nil
	}

	d.physical = img.PhysicalAddress

	off := imageHeaderSize
	dropped := 0
	for i := 0; i < d.caps.Assignments; i++ {
		addr := Address(binary.BigEndian.Uint16(buf[off : off+2]))
		id := CallbackID(buf[off+2])
		d.callbacks.restoreSlot(i, addr, id)
		if id != InvalidID && d.callbacks.slot(i).Callback == InvalidID {
			dropped++
		}
		off += assignmentSize
	}
	if dropped > 0 {
		d.log.Warn("dropped assignments to unregistered callbacks", "count", dropped)
	}

	used := d.config.Used()
	copy(d.config.current[:used], img.Config[:used])

	d.log.Info("configuration loaded", "physical_address", d.physical.PhysicalString(), "assignments", len(d.callbacks.Assignments()))
	return true, nil
}

func (d *Device) applyDefaultsLocked() {
	d.config.RestoreDefaults()
	d.callbacks.ClearAssignments()
}
