package influxdb

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// Measurement names.
const (
	MeasurementFeedback = "knx_feedback"
	MeasurementTelegram = "knx_telegram"
	MeasurementStats    = "knx_device_stats"
)

// WriteFeedback records the current value of every readable feedback item.
//
// Action items carry no value and are skipped. Disabled items are written
// with enabled=false so gaps in the series stay explainable.
func (c *Client) WriteFeedback(values []knxip.FeedbackValue, at time.Time) {
	if !c.IsConnected() {
		return
	}

	for _, v := range values {
		if v.Kind == knxip.FeedbackAction {
			continue
		}
		fields := map[string]any{"enabled": v.Enabled}
		switch val := v.Value.(type) {
		case int32:
			fields["value"] = int64(val)
		case float32:
			fields["value"] = float64(val)
		case bool:
			fields["value"] = val
		}
		if v.Text != "" {
			fields["text"] = v.Text
		}

		c.writer.WritePoint(write.NewPoint(MeasurementFeedback,
			map[string]string{
				"device": c.device,
				"name":   v.Name,
				"kind":   v.Kind.String(),
			},
			fields, at))
	}
}

// WriteTelegram records one group telegram seen on the bus.
func (c *Client) WriteTelegram(msg knxip.Message, at time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]any{
		"source":      msg.Source.PhysicalString(),
		"payload_len": len(msg.Payload),
	}
	if len(msg.Payload) > 0 {
		fields["payload"] = strings.ToUpper(hex.EncodeToString(msg.Payload))
	}

	c.writer.WritePoint(write.NewPoint(MeasurementTelegram,
		map[string]string{
			"device":      c.device,
			"destination": msg.Destination.String(),
			"command":     msg.Command.String(),
		},
		fields, at))
}

// WriteStats records the device frame counters.
func (c *Client) WriteStats(s knxip.Stats, at time.Time) {
	if !c.IsConnected() {
		return
	}

	// #nosec G115 -- counters stay far below MaxInt64
	c.writer.WritePoint(write.NewPoint(MeasurementStats,
		map[string]string{"device": c.device},
		map[string]any{
			"frames_rx":      int64(s.FramesRx),
			"frames_tx":      int64(s.FramesTx),
			"frames_dropped": int64(s.FramesDropped),
			"dispatched":     int64(s.Dispatched),
			"send_errors":    int64(s.SendErrors),
		}, at))
}
