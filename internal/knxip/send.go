package knxip

import (
	"context"
	"fmt"
)

// Sender delivers an encoded frame to the network.
type Sender interface {
	Send(ctx context.Context, frame []byte) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, frame []byte) error

// Send calls f(ctx, frame).
func (f SenderFunc) Send(ctx context.Context, frame []byte) error {
	return f(ctx, frame)
}

// Send builds a telegram from the device's physical address to dest and
// hands the frame to the configured Sender. For reads the datapoint is
// ignored.
func (d *Device) Send(ctx context.Context, dest Address, cmd CommandType, dp Datapoint) error {
	if d.sender == nil {
		return ErrNoSender
	}
	if dest.IsZero() {
		return fmt.Errorf("%w: refusing to send to 0/0/0", ErrInvalidAddress)
	}

	t := Telegram{
		Source:      d.PhysicalAddress(),
		Destination: dest,
		Command:     cmd,
	}
	if cmd != CommandRead {
		t.Payload = dp.Data
		t.Compact = dp.Compact
	}

	frame, err := d.framer.Encode(t)
	if err != nil {
		return err
	}
	if err := d.sender.Send(ctx, frame); err != nil {
		d.stats.sendErrors.Add(1)
		return fmt.Errorf("sending %s: %w", t, err)
	}

	d.stats.framesTx.Add(1)
	d.stats.touch()
	d.log.Debug("telegram sent", "ga", dest.String(), "cmd", cmd.String(), "data", fmt.Sprintf("%X", t.Payload))
	return nil
}

// Write sends a group value write.
func (d *Device) Write(ctx context.Context, dest Address, dp Datapoint) error {
	return d.Send(ctx, dest, CommandWrite, dp)
}

// Answer sends a group value response, typically from a handler that
// received a read.
func (d *Device) Answer(ctx context.Context, dest Address, dp Datapoint) error {
	return d.Send(ctx, dest, CommandAnswer, dp)
}

// Read sends a group value read request.
func (d *Device) Read(ctx context.Context, dest Address) error {
	return d.Send(ctx, dest, CommandRead, Datapoint{})
}
