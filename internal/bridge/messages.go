package bridge

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// Message kinds, used as the metrics "kind" label.
const (
	KindFeedback = "feedback"
	KindTelegram = "telegram"
	KindStats    = "stats"
)

// FeedbackMessage is the retained payload of a feedback topic.
type FeedbackMessage struct {
	knxip.FeedbackValue
	Timestamp string `json:"timestamp"`
}

// TelegramMessage is the payload of a telegram event topic.
type TelegramMessage struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Command     string `json:"command"`
	Payload     string `json:"payload,omitempty"` // upper-case hex
	Compact     bool   `json:"compact"`
	Timestamp   string `json:"timestamp"`
}

// StatsMessage is the retained payload of the stats topic.
type StatsMessage struct {
	FramesRx      uint64 `json:"frames_rx"`
	FramesTx      uint64 `json:"frames_tx"`
	FramesDropped uint64 `json:"frames_dropped"`
	Dispatched    uint64 `json:"dispatched"`
	SendErrors    uint64 `json:"send_errors"`
	LastActivity  string `json:"last_activity,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func newTelegramMessage(m knxip.Message, at time.Time) TelegramMessage {
	return TelegramMessage{
		Source:      m.Source.PhysicalString(),
		Destination: m.Destination.String(),
		Command:     m.Command.String(),
		Payload:     strings.ToUpper(hex.EncodeToString(m.Payload)),
		Compact:     m.Compact,
		Timestamp:   at.UTC().Format(time.RFC3339Nano),
	}
}

func newStatsMessage(s knxip.Stats, started, at time.Time) StatsMessage {
	msg := StatsMessage{
		FramesRx:      s.FramesRx,
		FramesTx:      s.FramesTx,
		FramesDropped: s.FramesDropped,
		Dispatched:    s.Dispatched,
		SendErrors:    s.SendErrors,
		UptimeSeconds: int64(at.Sub(started).Seconds()),
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
	if !s.LastActivity.IsZero() {
		msg.LastActivity = s.LastActivity.UTC().Format(time.RFC3339Nano)
	}
	return msg
}
