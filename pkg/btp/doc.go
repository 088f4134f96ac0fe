// Package btp implements the Bluetooth Transport Protocol (BTP) session
// core used to carry Matter application messages over a GATT-based BLE
// link: the handshake, the segmentation/reassembly and flow-control state
// machine, and the bit-exact frame codec.
//
// The package does not perform GATT characteristic discovery, advertising,
// or pairing — callers hand it a BLE sink (see package blesink) that
// already has a negotiated ATT_MTU and an open write path.
package btp
