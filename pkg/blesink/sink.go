// Package blesink provides concrete implementations of the BLE
// transport sink a BTP session writes through: an in-memory pipe for
// tests and local demos, and a thin adapter onto a real GATT
// characteristic-write API. Neither performs GATT characteristic
// discovery, advertising, or pairing — callers are assumed to already
// hold a connected characteristic handle and a negotiated ATT_MTU.
package blesink

import "context"

// Sink is the BLE transport write path a btp.Engine drives: an async
// write and a disconnect trigger, matching the "writeBle"/"disconnectBle"
// collaborator pair.
type Sink interface {
	Write(ctx context.Context, b []byte) error
	Disconnect()
}
