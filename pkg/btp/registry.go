package btp

import (
	"context"
	"sync"

	"github.com/pion/logging"
)

// DefaultMaxSessions caps a Registry that isn't given an explicit limit.
const DefaultMaxSessions = 16

// ConnID identifies a BLE connection from the caller's perspective (e.g.
// a GATT connection handle). It is opaque to this package.
type ConnID string

// Registry maps connections to their BTP sessions. A single BLE
// peripheral serves several centrals concurrently, each with its own
// session from its own handshake; Registry is the bookkeeping layer
// above the single-session Engine, mirroring session.Table's
// mutex-guarded map-with-capacity pattern.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[ConnID]*Engine
	maxSessions int
	log         logging.LeveledLogger
}

// NewRegistry creates a Registry. maxSessions <= 0 uses DefaultMaxSessions.
func NewRegistry(maxSessions int, loggerFactory logging.LoggerFactory) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	r := &Registry{
		sessions:    make(map[ConnID]*Engine),
		maxSessions: maxSessions,
	}
	if loggerFactory != nil {
		r.log = loggerFactory.NewLogger("btp-registry")
	}
	return r
}

// Open runs the Handshake Factory for a new connection and registers
// the resulting session under id. Returns ErrSessionExists if id is
// already registered, or ErrRegistryFull if at capacity.
func (r *Registry) Open(ctx context.Context, id ConnID, maxDataSize *int, requestBytes []byte, upper UpperLayer, loggerFactory logging.LoggerFactory) (*Engine, error) {
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, &FlowError{Op: "open session", Err: ErrSessionExists}
	}
	if len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return nil, &FlowError{Op: "open session", Err: ErrRegistryFull}
	}
	r.mu.Unlock()

	e, err := CreateFromHandshakeRequest(ctx, maxDataSize, requestBytes, upper, loggerFactory)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	if r.log != nil {
		r.log.Infof("btp: registry opened session for %s", id)
	}
	return e, nil
}

// Get looks up the session for id, for routing inbound bytes.
func (r *Registry) Get(id ConnID) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// Close closes and removes the session for id. No-op if id is unknown.
func (r *Registry) Close(id ConnID) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	e.Close()
	if r.log != nil {
		r.log.Infof("btp: registry closed session for %s", id)
	}
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
