// Package knxip implements the device side of KNX/IP group communication.
//
// A Device joins nothing and binds nothing itself. The host hands it every
// datagram received on the KNX/IP routing multicast group, and it decodes the
// frame, resolves the destination group address and invokes the handlers
// bound to that address. The same Device builds outbound frames and passes
// them to a Sender.
//
// # Addresses
//
// Group and physical addresses share one 16-bit layout (4/4/8 bits):
//
//	ga := knxip.GroupAddress(1, 2, 3)      // "1/2/3"
//	pa := knxip.PhysicalAddress(1, 1, 250) // "1.1.250"
//
// # Datapoint Types
//
// Payloads are encoded with the EncodeDPTx / DecodeDPTx functions, one pair
// per supported type (1, 2, 3, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 16, 17, 18,
// 232). Handlers receive raw payload bytes and decode them themselves:
//
//	dev.RegisterCallback("setpoint", knxip.HandlerFunc(func(msg knxip.Message, _ any) {
//	    v, err := knxip.DecodeDPT9(msg.Payload)
//	    ...
//	}), nil, nil)
//
// # Registries
//
// Callbacks, callback assignments, configuration items and feedback items
// live in fixed-capacity tables sized by Capacities. Registration is append
// only and hands out small integer ids; a full table returns InvalidID.
//
// # Persistence
//
// Save writes the physical address, the assignment table and the raw
// configuration buffer to a Store behind a magic number derived from the
// capacities. Load treats a magic mismatch as "no stored data" and applies
// the configuration defaults.
//
// # Thread Safety
//
// Device methods are safe for concurrent use. Registry mutations, Save and
// Load are serialised; handlers run outside the lock.
package knxip
