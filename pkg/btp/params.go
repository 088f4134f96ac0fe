package btp

import "time"

// Protocol constants (normative, spec section 6).
const (
	// SupportedVersion is the only BTP version this implementation speaks.
	SupportedVersion uint8 = 4

	// MinAttMtu is the minimum ATT_MTU, used before any negotiation.
	MinAttMtu uint16 = 23
	// MaxBtpMtu is the largest ATT_MTU BTP will ever negotiate.
	MaxBtpMtu uint16 = 247
	// MaxWindow is the largest window size a session may negotiate.
	MaxWindow uint8 = 255

	// gattHeaderSize is the fixed ATT PDU header BTP subtracts from
	// attMtu to get fragmentSize.
	gattHeaderSize = 3

	// AckTimeout bounds how long an outstanding data frame may go
	// unacknowledged before the session is torn down.
	AckTimeout = 15 * time.Second
	// SendAckTimeout bounds how long we may owe the peer an ack before
	// synthesizing a standalone one.
	SendAckTimeout = 5 * time.Second
)

// supportedVersions is SUPPORTED_VERSIONS = {4}, exposed as a set for
// negotiation.
var supportedVersions = map[uint8]bool{SupportedVersion: true}
