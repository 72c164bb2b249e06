// Package api implements the HTTP configuration surface of the device.
//
// It is the network replacement for a device's setup page: configuration
// items are listed and edited, group addresses are assigned to callbacks,
// the physical address is changed, and the result is saved to
// non-volatile storage. Feedback items are readable and action items can
// be triggered. Prometheus metrics are served on the same listener.
//
// All endpoints live under /api/v1 and speak JSON. Changes made through
// the API take effect immediately but are only persistent after
// POST /api/v1/storage/save.
package api
