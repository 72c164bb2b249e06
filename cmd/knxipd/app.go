package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// sendTimeout bounds status telegrams sent from callbacks.
const sendTimeout = 2 * time.Second

// Switch modes of the "mode" option item.
const (
	modeSwitch uint8 = 0
	modeTimer  uint8 = 1
)

// application is the device behaviour: a switched output with status
// feedback, an optional staircase timer and a temperature input.
//
// Items must be registered before Device.Load so the configuration space
// layout matches what was saved.
type application struct {
	dev     *knxip.Device
	log     knxip.Logger
	started time.Time

	mu          sync.Mutex
	on          bool
	offAt       time.Time
	temperature float32
	identified  int

	name     knxip.ConfigID
	mode     knxip.ConfigID
	timer    knxip.ConfigID
	invert   knxip.ConfigID
	statusGA knxip.ConfigID
}

func newApplication(dev *knxip.Device, log knxip.Logger) (*application, error) {
	a := &application{dev: dev, log: log, started: time.Now()}
	if err := a.register(); err != nil {
		return nil, fmt.Errorf("registering application: %w", err)
	}
	return a, nil
}

func (a *application) register() error {
	var err error
	d := a.dev

	if a.name, err = d.RegisterConfigString("device name", 20, "knxipd", nil); err != nil {
		return err
	}
	if a.mode, err = d.RegisterConfigOptions("mode", []knxip.Option{
		{Name: "switch", Value: modeSwitch},
		{Name: "staircase timer", Value: modeTimer},
	}, modeSwitch, nil); err != nil {
		return err
	}
	if a.timer, err = d.RegisterConfigInt("timer seconds", 60, a.timerMode); err != nil {
		return err
	}
	if a.invert, err = d.RegisterConfigBool("invert output", false, nil); err != nil {
		return err
	}
	if a.statusGA, err = d.RegisterConfigGA("status ga", nil); err != nil {
		return err
	}

	if _, err = d.RegisterCallback("switch", knxip.HandlerFunc(a.handleSwitch), nil, nil); err != nil {
		return err
	}
	if _, err = d.RegisterCallback("temperature", knxip.HandlerFunc(a.handleTemperature), nil, nil); err != nil {
		return err
	}

	if _, err = d.RegisterFeedbackBool("output", a.output, nil); err != nil {
		return err
	}
	if _, err = d.RegisterFeedbackFloat("temperature", a.lastTemperature, 1, nil); err != nil {
		return err
	}
	if _, err = d.RegisterFeedbackInt("uptime", a.uptime, nil); err != nil {
		return err
	}
	if _, err = d.RegisterFeedbackAction("identify", a.identify, nil, nil); err != nil {
		return err
	}
	_, err = d.RegisterFeedbackAction("send status", func(any) { a.sendStatus() }, nil, a.hasStatusGA)
	return err
}

func (a *application) timerMode() bool {
	mode, err := a.dev.ConfigOption(a.mode)
	return err == nil && mode == modeTimer
}

func (a *application) hasStatusGA() bool {
	ga, err := a.dev.ConfigGA(a.statusGA)
	return err == nil && !ga.IsZero()
}

// handleSwitch drives the output from DPT1 writes and answers reads with
// the current state.
func (a *application) handleSwitch(msg knxip.Message, _ any) {
	switch msg.Command {
	case knxip.CommandRead:
		a.reply(msg.Destination, knxip.CommandAnswer)
		return
	case knxip.CommandAnswer:
		return
	}

	v, err := msg.Bool()
	if err != nil {
		a.log.Warn("switch: bad payload", "ga", msg.Destination.String(), "error", err)
		return
	}
	if inverted, _ := a.dev.ConfigBool(a.invert); inverted {
		v = !v
	}
	a.set(v)
	a.sendStatus()
}

func (a *application) handleTemperature(msg knxip.Message, _ any) {
	if msg.Command == knxip.CommandRead {
		return
	}
	v, err := msg.Float16()
	if err != nil {
		a.log.Warn("temperature: bad payload", "ga", msg.Destination.String(), "error", err)
		return
	}
	a.mu.Lock()
	a.temperature = float32(v)
	a.mu.Unlock()
}

func (a *application) set(on bool) {
	var offAt time.Time
	if on && a.timerMode() {
		secs, _ := a.dev.ConfigInt(a.timer)
		offAt = time.Now().Add(time.Duration(secs) * time.Second)
	}

	a.mu.Lock()
	a.on = on
	a.offAt = offAt
	a.mu.Unlock()
	a.log.Info("output switched", "on", on)
}

// tick switches the output off once the staircase timer expires.
func (a *application) tick(now time.Time) {
	a.mu.Lock()
	expired := a.on && !a.offAt.IsZero() && !now.Before(a.offAt)
	if expired {
		a.on = false
		a.offAt = time.Time{}
	}
	a.mu.Unlock()

	if expired {
		a.log.Info("staircase timer expired")
		a.sendStatus()
	}
}

// runTimer calls tick every interval until ctx is done.
func (a *application) runTimer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.tick(now)
		}
	}
}

func (a *application) sendStatus() {
	ga, err := a.dev.ConfigGA(a.statusGA)
	if err != nil || ga.IsZero() {
		return
	}
	a.reply(ga, knxip.CommandWrite)
}

func (a *application) reply(ga knxip.Address, cmd knxip.CommandType) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := a.dev.Send(ctx, ga, cmd, knxip.Bool(a.output())); err != nil {
		a.log.Warn("status send failed", "ga", ga.String(), "error", err)
	}
}

func (a *application) output() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}

func (a *application) lastTemperature() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.temperature
}

func (a *application) uptime() int32 {
	return int32(time.Since(a.started).Seconds()) //nolint:gosec // wraps after 68 years
}

func (a *application) identify(any) {
	a.mu.Lock()
	a.identified++
	a.mu.Unlock()
	name, _ := a.dev.ConfigString(a.name)
	a.log.Info("identify requested", "name", name, "address", a.dev.PhysicalAddress().PhysicalString())
}
