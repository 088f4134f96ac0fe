package btp

// serialGreater reports whether a is later than b in mod-256 serial
// order (RFC 1982 serial number arithmetic). Resolves the ack/sequence
// comparison ambiguity left open by the design notes: rather than a raw
// integer compare that only works while counters have not wrapped, every
// ordering comparison in this package goes through serial arithmetic.
func serialGreater(a, b uint8) bool {
	d := a - b
	return d != 0 && d < 128
}

func serialGreaterOrEqual(a, b uint8) bool {
	return a == b || serialGreater(a, b)
}

func serialLessOrEqual(a, b uint8) bool {
	return !serialGreater(a, b)
}

// outboundMessage is a queued Matter message awaiting segmentation. Per
// the design notes, it retains (bytes, offset) rather than re-slicing or
// copying per segment.
type outboundMessage struct {
	bytes  []byte
	offset int
}

func (m *outboundMessage) remaining() int { return len(m.bytes) - m.offset }

// reassembly is the in-progress inbound message, valid only while active
// is true. Its buffer is pre-reserved to messageLength at begin time.
type reassembly struct {
	active        bool
	messageLength uint16
	buf           []byte
}

// state is the session's in-memory record (negotiated parameters,
// counters, reassembly buffer, outbound queue, liveness flag); the timers
// are held by the Engine. It carries no synchronization of its own: the Engine serializes
// all access to it through its own mutex, per the single-threaded
// cooperative scheduling model.
type state struct {
	version      uint8
	attMtu       uint16
	fragmentSize int
	windowSize   uint8

	// sequenceNumber is the last value getNext handed out (0 meaning
	// nothing sent yet). getNext advances it first, then returns it.
	sequenceNumber uint8

	// prevIncomingSequenceNumber is the last inbound sequence number
	// accepted. Initialized to 255 so the first expected inbound frame
	// (seq=0) satisfies seq == prev+1 mod 256.
	prevIncomingSequenceNumber uint8
	// prevAckedSequenceNumber is the last inbound sequence number we
	// have acknowledged (piggyback or standalone), same initial-value
	// rationale as above.
	prevAckedSequenceNumber uint8
	// prevIncomingAckNumber is the highest ack number the peer has sent
	// us, i.e. the last outbound frame confirmed delivered.
	prevIncomingAckNumber uint8

	reassembly reassembly

	outbound       []*outboundMessage
	sendInProgress bool

	isActive bool
}

func newState(version uint8, attMtu uint16, windowSize uint8) *state {
	return &state{
		version:                    version,
		attMtu:                     attMtu,
		fragmentSize:               int(attMtu) - gattHeaderSize,
		windowSize:                 windowSize,
		prevIncomingSequenceNumber: 255,
		prevAckedSequenceNumber:    255,
		isActive:                   true,
	}
}

// getNext advances the outbound sequence counter and returns the value
// to stamp on the frame being built, wrapping from 255 to 0. sequenceNumber
// itself thus always holds the last value handed out (0 meaning none yet).
func (s *state) getNext() uint8 {
	s.sequenceNumber++
	return s.sequenceNumber
}

// inFlight returns the number of outbound frames sent but not yet
// acknowledged.
func (s *state) inFlight() int {
	return int(s.sequenceNumber - s.prevIncomingAckNumber)
}

// windowOpen reports whether another outbound data frame may be sent.
// No new data frame is emitted once inFlight() reaches windowSize-1.
func (s *state) windowOpen() bool {
	return s.inFlight() < int(s.windowSize)-1
}

// ackOwed reports whether the peer is due an acknowledgement we have not
// yet sent.
func (s *state) ackOwed() bool {
	return serialGreater(s.prevIncomingSequenceNumber, s.prevAckedSequenceNumber)
}

// allOutstandingAcked reports whether every frame we have sent has been
// acknowledged by the peer.
func (s *state) allOutstandingAcked() bool {
	return s.prevIncomingAckNumber == s.sequenceNumber
}
