package blesink

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition injects BLE-link faults into a Pipe for testing the
// engine's timeout paths, mirroring pkg/transport.NetworkCondition.
type NetworkCondition struct {
	// DropRate is the probability (0.0-1.0) a write is silently dropped.
	DropRate float64
	// DelayMin/DelayMax bound an added write delay, uniformly distributed.
	DelayMin time.Duration
	DelayMax time.Duration
}

// ErrPipeClosed is returned by Write after Disconnect.
var ErrPipeClosed = errors.New("blesink: pipe closed")

// Pipe is an in-memory, two-endpoint BLE link backed by
// pion/transport/v3's test.Bridge — the same dependency and pattern
// pkg/transport.Pipe uses to stand in for a real UDP/TCP socket. Unlike
// a real GATT link, test.Bridge only moves a queued packet per Tick, so
// Pipe runs a background ticker to deliver automatically from NewPipe
// until Close; Tick may also be called directly to move queued packets
// without waiting for the next tick.
type Pipe struct {
	bridge *test.Bridge

	mu        sync.Mutex
	condition NetworkCondition
	rng       *rand.Rand
	closed    bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPipe creates a new bidirectional in-memory BLE link and starts its
// background auto-delivery ticker.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(1)),
		stopCh: make(chan struct{}),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
	return p
}

// Close stops the background ticker. Safe to call even if endpoints
// were never used; idempotent.
func (p *Pipe) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// SetCondition configures fault injection applied to both endpoints.
func (p *Pipe) SetCondition(c NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = c
}

// Endpoint0 returns a Sink/receiver pair for the bridge's first endpoint.
func (p *Pipe) Endpoint0() (*PipeSink, net.Conn) {
	return &PipeSink{pipe: p, conn: p.bridge.GetConn0()}, p.bridge.GetConn0()
}

// Endpoint1 returns a Sink/receiver pair for the bridge's second endpoint.
func (p *Pipe) Endpoint1() (*PipeSink, net.Conn) {
	return &PipeSink{pipe: p, conn: p.bridge.GetConn1()}, p.bridge.GetConn1()
}

// Tick delivers one queued packet in each direction without waiting for
// the background ticker.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// PipeSink is the Sink implementation for one end of a Pipe.
type PipeSink struct {
	pipe *Pipe
	conn net.Conn

	mu           sync.Mutex
	disconnected bool
}

// Write applies the pipe's NetworkCondition, then writes b as a single
// BTP frame to the peer endpoint.
func (s *PipeSink) Write(ctx context.Context, b []byte) error {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return ErrPipeClosed
	}
	s.mu.Unlock()

	s.pipe.mu.Lock()
	cond := s.pipe.condition
	rng := s.pipe.rng
	s.pipe.mu.Unlock()

	if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
		return nil
	}
	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	_, err := s.conn.Write(b)
	return err
}

// Disconnect tears down the link: it closes this endpoint's connection
// and the peer endpoint's, so reads on either end fail afterwards.
// Idempotent.
func (s *PipeSink) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return
	}
	s.disconnected = true
	_ = s.conn.Close()
	peer := s.pipe.bridge.GetConn1()
	if s.conn == peer {
		peer = s.pipe.bridge.GetConn0()
	}
	_ = peer.Close()
}
