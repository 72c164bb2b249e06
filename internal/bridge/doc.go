// Package bridge mirrors a running KNX/IP device onto MQTT and InfluxDB.
//
// On every publish interval the bridge reads the device's feedback items
// and publishes those whose value changed since the last publish, plus the
// frame counters. Group telegrams observed by the device are queued and
// published as events. Publishing to a feedback item's trigger topic runs
// the item's action.
//
// The bridge never blocks the receive path: the telegram monitor only
// enqueues, and a full queue drops events.
package bridge
