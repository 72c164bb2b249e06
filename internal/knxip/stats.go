package knxip

import (
	"sync/atomic"
	"time"
)

// Stats holds operational counters of a Device.
type Stats struct {
	FramesRx      uint64
	FramesTx      uint64
	FramesDropped uint64 // malformed or unsupported datagrams
	Dispatched    uint64 // handler invocations
	SendErrors    uint64
	LastActivity  time.Time
}

type counters struct {
	framesRx      atomic.Uint64
	framesTx      atomic.Uint64
	framesDropped atomic.Uint64
	dispatched    atomic.Uint64
	sendErrors    atomic.Uint64
	lastActivity  atomic.Int64 // Unix nanoseconds
}

func (c *counters) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *counters) snapshot() Stats {
	s := Stats{
		FramesRx:      c.framesRx.Load(),
		FramesTx:      c.framesTx.Load(),
		FramesDropped: c.framesDropped.Load(),
		Dispatched:    c.dispatched.Load(),
		SendErrors:    c.sendErrors.Load(),
	}
	if ts := c.lastActivity.Load(); ts != 0 {
		s.LastActivity = time.Unix(0, ts)
	}
	return s
}
