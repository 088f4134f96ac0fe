package btp

import (
	"context"
	"sync"

	"github.com/pion/logging"
)

// UpperLayer is the collaborator a Session Engine drives: the BLE
// transport write/disconnect pair and delivery of fully reassembled
// Matter messages. Per the design notes, this is a single interface
// rather than three independently-bound function values, which closes
// the door on partial-binding bugs.
type UpperLayer interface {
	// WriteBle writes one encoded BTP frame to the transport.
	WriteBle(ctx context.Context, b []byte) error
	// DisconnectBle tears down the transport. Invoked at most once per
	// session, by Close.
	DisconnectBle()
	// DeliverMatterMessage hands a fully reassembled Matter message to
	// the upper exchange layer, in inbound-completion order.
	DeliverMatterMessage(b []byte)
}

// Engine is the BTP session state machine: it ingests inbound frames,
// emits outbound frames, runs the two BTP timers, and enforces every
// session invariant. All entry points are serialized through mu, since
// the engine assumes (per the cooperative scheduling model) that they
// never execute concurrently with each other on a single session.
type Engine struct {
	mu sync.Mutex

	s     *state
	upper UpperLayer

	ackReceiveTimer timer
	sendAckTimer    timer

	log logging.LeveledLogger
}

func newEngine(s *state, upper UpperLayer, loggerFactory logging.LoggerFactory) *Engine {
	e := &Engine{
		s:               s,
		upper:           upper,
		ackReceiveTimer: newRealTimer(),
		sendAckTimer:    newRealTimer(),
	}
	if loggerFactory != nil {
		e.log = loggerFactory.NewLogger("btp-engine")
	}
	return e
}

// HandleIncomingBleData ingests one buffer received from the BLE
// transport. Any ProtocolError or CodecError it returns has already
// closed the session.
func (e *Engine) HandleIncomingBleData(ctx context.Context, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.s.isActive {
		return &FlowError{Op: "handle incoming data", Err: ErrSessionClosed}
	}

	if len(data) > e.s.fragmentSize+gattHeaderSize {
		e.closeLocked()
		return &ProtocolError{Op: "handle incoming data", Err: ErrOversizedFrame}
	}
	if len(data) > e.s.fragmentSize && e.log != nil {
		e.log.Warnf("btp: %d-byte frame exceeds fragmentSize %d, accepting (ATT_MTU single-packet tolerance)", len(data), e.s.fragmentSize)
	}

	f, err := DecodeDataFrame(data)
	if err != nil {
		e.closeLocked()
		return err
	}

	if f.IsHandshake || f.IsManagement {
		e.closeLocked()
		return &ProtocolError{Op: "handle incoming data", Err: ErrUnexpectedControlFrame}
	}
	if len(f.Payload) == 0 && !f.HasAck {
		e.closeLocked()
		return &ProtocolError{Op: "handle incoming data", Err: ErrEmptyFrame}
	}

	wantSeq := e.s.prevIncomingSequenceNumber + 1
	if f.SequenceNumber != wantSeq {
		e.closeLocked()
		return &ProtocolError{Op: "handle incoming data", Err: ErrSequenceGap}
	}
	e.s.prevIncomingSequenceNumber = f.SequenceNumber

	if !e.sendAckTimer.isRunning() {
		e.sendAckTimer.start(SendAckTimeout, e.onSendAckTimeout)
	}

	if f.HasAck {
		ack := *f.AckNumber
		if !(serialGreaterOrEqual(ack, e.s.prevIncomingAckNumber) && serialLessOrEqual(ack, e.s.sequenceNumber)) {
			e.closeLocked()
			return &ProtocolError{Op: "handle incoming data", Err: ErrInvalidAck}
		}
		e.s.prevIncomingAckNumber = ack
		if ack == e.s.sequenceNumber {
			e.ackReceiveTimer.stop()
		} else {
			e.ackReceiveTimer.start(AckTimeout, e.onAckTimeout)
		}
	}

	if f.IsBegin {
		if e.s.reassembly.active {
			e.closeLocked()
			return &ProtocolError{Op: "handle incoming data", Err: ErrReassemblyInProgress}
		}
		msgLen := *f.MessageLength
		if len(f.Payload) > int(msgLen) {
			e.closeLocked()
			return &ProtocolError{Op: "handle incoming data", Err: ErrMessageLengthMismatch}
		}
		e.s.reassembly = reassembly{
			active:        true,
			messageLength: msgLen,
			buf:           append(make([]byte, 0, msgLen), f.Payload...),
		}
		if f.IsEnd {
			if err := e.finishReassemblyLocked(); err != nil {
				e.closeLocked()
				return err
			}
		}
	} else if len(f.Payload) > 0 || f.IsEnd {
		if !e.s.reassembly.active {
			e.closeLocked()
			return &ProtocolError{Op: "handle incoming data", Err: ErrNoReassemblyInProgress}
		}
		if len(e.s.reassembly.buf)+len(f.Payload) > int(e.s.reassembly.messageLength) {
			e.closeLocked()
			return &ProtocolError{Op: "handle incoming data", Err: ErrMessageLengthMismatch}
		}
		e.s.reassembly.buf = append(e.s.reassembly.buf, f.Payload...)
		if f.IsEnd {
			if err := e.finishReassemblyLocked(); err != nil {
				e.closeLocked()
				return err
			}
		}
	}

	return nil
}

// finishReassemblyLocked validates and delivers a completed message.
// Caller holds mu.
func (e *Engine) finishReassemblyLocked() error {
	if len(e.s.reassembly.buf) != int(e.s.reassembly.messageLength) {
		return &ProtocolError{Op: "finish reassembly", Err: ErrMessageLengthMismatch}
	}
	msg := e.s.reassembly.buf
	e.s.reassembly = reassembly{}
	e.upper.DeliverMatterMessage(msg)
	return nil
}

// SendMatterMessage queues a Matter message for segmentation and kicks
// the send queue.
func (e *Engine) SendMatterMessage(ctx context.Context, b []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.s.isActive {
		return &FlowError{Op: "send message", Err: ErrSessionClosed}
	}
	if len(b) == 0 {
		return &FlowError{Op: "send message", Err: ErrEmptyMessage}
	}

	e.s.outbound = append(e.s.outbound, &outboundMessage{bytes: b})
	return e.processSendQueueLocked(ctx)
}

// processSendQueueLocked is re-entrant-safe via sendInProgress: a nested
// call returns immediately rather than interleaving with the outer loop.
// Caller holds mu, which is not reentrant, so a WriteBle implementation
// that calls back into the same Engine synchronously blocks on mu
// instead of reaching this guard.
func (e *Engine) processSendQueueLocked(ctx context.Context) error {
	if e.s.sendInProgress {
		return nil
	}
	e.s.sendInProgress = true
	defer func() { e.s.sendInProgress = false }()

	for len(e.s.outbound) > 0 && e.s.windowOpen() {
		msg := e.s.outbound[0]

		var ackNumber *uint8
		if e.s.ackOwed() {
			ack := e.s.prevIncomingSequenceNumber
			ackNumber = &ack
			e.s.prevAckedSequenceNumber = e.s.prevIncomingSequenceNumber
			e.sendAckTimer.stop()
		}

		isBegin := msg.offset == 0
		headerLen := 2
		if isBegin {
			headerLen += 2
		}
		if ackNumber != nil {
			headerLen++
		}

		remaining := msg.remaining()
		segLen := e.s.fragmentSize - headerLen
		if segLen > remaining {
			segLen = remaining
		}
		isEnd := remaining <= e.s.fragmentSize-headerLen

		payload := msg.bytes[msg.offset : msg.offset+segLen]
		msg.offset += segLen

		frame := DataFrame{
			HasAck:         ackNumber != nil,
			AckNumber:      ackNumber,
			IsBegin:        isBegin,
			IsEnd:          isEnd,
			SequenceNumber: e.s.getNext(),
			Payload:        payload,
		}
		if isBegin {
			msgLen := uint16(remaining)
			frame.MessageLength = &msgLen
		}

		encoded, err := EncodeDataFrame(frame)
		if err != nil {
			return err
		}
		if err := e.upper.WriteBle(ctx, encoded); err != nil {
			return err
		}
		if !e.ackReceiveTimer.isRunning() {
			e.ackReceiveTimer.start(AckTimeout, e.onAckTimeout)
		}

		if isEnd {
			e.s.outbound = e.s.outbound[1:]
		}
	}

	return nil
}

// onAckTimeout fires when the peer has not acknowledged outstanding
// frames within AckTimeout. There is no synchronous caller to return the
// resulting ProtocolError to, so it is logged and the session is closed.
func (e *Engine) onAckTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.s.isActive || e.s.allOutstandingAcked() {
		return
	}
	if e.log != nil {
		e.log.Warnf("btp: %s", (&ProtocolError{Op: "ack timeout", Err: ErrAckTimeout}).Error())
	}
	e.closeLocked()
}

// onSendAckTimeout fires when we owe the peer an ack that had no
// piggyback opportunity within SendAckTimeout; it synthesizes a
// standalone ack frame.
func (e *Engine) onSendAckTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.s.isActive || !e.s.ackOwed() {
		return
	}

	ack := e.s.prevIncomingSequenceNumber
	frame := DataFrame{
		HasAck:         true,
		AckNumber:      &ack,
		SequenceNumber: e.s.getNext(),
	}
	encoded, err := EncodeDataFrame(frame)
	if err != nil {
		return
	}
	if err := e.upper.WriteBle(context.Background(), encoded); err != nil {
		if e.log != nil {
			e.log.Warnf("btp: standalone ack write failed: %v", err)
		}
		return
	}
	e.s.prevAckedSequenceNumber = e.s.prevIncomingSequenceNumber
	if !e.ackReceiveTimer.isRunning() {
		e.ackReceiveTimer.start(AckTimeout, e.onAckTimeout)
	}
}

// Close tears down both timers and disconnects the transport exactly
// once. Idempotent. All subsequent ingest/send calls are rejected with
// FlowError wrapping ErrSessionClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

func (e *Engine) closeLocked() {
	if !e.s.isActive {
		return
	}
	e.s.isActive = false
	e.ackReceiveTimer.stop()
	e.sendAckTimer.stop()
	e.upper.DisconnectBle()
}
