// Package mqtt publishes the device's state to an MQTT broker.
//
// The device appears under a single topic tree:
//
//	{prefix}/{pa}/status                  retained online/offline, also the LWT
//	{prefix}/{pa}/stats                   retained frame counters
//	{prefix}/{pa}/feedback/{id}           retained feedback value (JSON)
//	{prefix}/{pa}/feedback/{id}/trigger   publish here to run an action item
//	{prefix}/{pa}/telegram/{ga}           group telegrams seen on the bus
//
// where pa is the physical address ("1.1.250") and ga a URL-escaped group
// address. The client reconnects on its own and restores subscriptions.
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix, Device: "1.1.250"}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishJSON(topics.Feedback(3), value, true)
package mqtt
