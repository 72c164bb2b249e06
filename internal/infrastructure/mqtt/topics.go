package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "knxip"

// Topics builds the MQTT topics of one device.
//
// Every topic lives under {prefix}/{device}, where device is the physical
// address in "area.line.member" form:
//
//	topics := mqtt.Topics{Prefix: "knxip", Device: "1.1.250"}
//	topics.Feedback(3)
//	// Returns: "knxip/1.1.250/feedback/3"
type Topics struct {
	Prefix string
	Device string
}

func (t Topics) base() string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + t.Device
}

// =============================================================================
// Device Topics
// =============================================================================

// Status returns the retained online/offline topic, also used as the LWT.
//
// Example: knxip/1.1.250/status
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Feedback returns the retained value topic of a feedback item.
//
// Example: knxip/1.1.250/feedback/3
func (t Topics) Feedback(id uint8) string {
	return fmt.Sprintf("%s/feedback/%d", t.base(), id)
}

// FeedbackTrigger returns the topic that triggers an action feedback item.
//
// Example: knxip/1.1.250/feedback/4/trigger
func (t Topics) FeedbackTrigger(id uint8) string {
	return t.Feedback(id) + "/trigger"
}

// Telegram returns the event topic for telegrams seen on a group address.
// The address is escaped into a single topic level.
//
// Example: knxip/1.1.250/telegram/1%2F2%2F3
func (t Topics) Telegram(escapedGroup string) string {
	return fmt.Sprintf("%s/telegram/%s", t.base(), escapedGroup)
}

// Stats returns the retained device counters topic.
//
// Example: knxip/1.1.250/stats
func (t Topics) Stats() string {
	return t.base() + "/stats"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllFeedbackTriggers matches the trigger topic of every feedback item.
//
// Pattern: knxip/1.1.250/feedback/+/trigger
func (t Topics) AllFeedbackTriggers() string {
	return t.base() + "/feedback/+/trigger"
}

// AllTelegrams matches every telegram event of the device.
//
// Pattern: knxip/1.1.250/telegram/#
func (t Topics) AllTelegrams() string {
	return t.base() + "/telegram/#"
}

// ParseFeedbackTrigger extracts the item id from a FeedbackTrigger topic.
func (t Topics) ParseFeedbackTrigger(topic string) (uint8, bool) {
	rest, ok := strings.CutPrefix(topic, t.base()+"/feedback/")
	if !ok {
		return 0, false
	}
	idStr, ok := strings.CutSuffix(rest, "/trigger")
	if !ok || idStr == "" {
		return 0, false
	}
	var id uint8
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil || fmt.Sprint(id) != idStr {
		return 0, false
	}
	return id, true
}
