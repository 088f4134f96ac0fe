package btp

import (
	"context"
	"sync"
)

// mockUpper records everything an Engine (or the handshake factory)
// does through UpperLayer, for assertions in tests.
type mockUpper struct {
	mu sync.Mutex

	writes       [][]byte
	writeErr     error
	disconnected int
	delivered    [][]byte
}

func (m *mockUpper) WriteBle(ctx context.Context, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	cp := append([]byte(nil), b...)
	m.writes = append(m.writes, cp)
	return nil
}

func (m *mockUpper) DisconnectBle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected++
}

func (m *mockUpper) DeliverMatterMessage(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, append([]byte(nil), b...))
}

func (m *mockUpper) lastWrite() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return nil
	}
	return m.writes[len(m.writes)-1]
}

func (m *mockUpper) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// installFakeTimers swaps an Engine's real timers for fakes and returns
// them, so tests can fire timeouts deterministically instead of sleeping.
func installFakeTimers(e *Engine) (ackReceive, sendAck *fakeTimer) {
	ackReceive = &fakeTimer{}
	sendAck = &fakeTimer{}
	e.ackReceiveTimer = ackReceive
	e.sendAckTimer = sendAck
	return
}
