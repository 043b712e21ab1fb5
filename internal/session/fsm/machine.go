package fsm

import "sync"

// State describes where a conversation turn is in its lifecycle.
type State string

const (
	StateOpen      State = "open"
	StateStreaming State = "streaming"
	StateClosing   State = "closing"
	StateEnded     State = "ended"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Machine tracks a single turn. Terminal states are sticky: once ENDED or
// FAILED is reached every later transition is rejected.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// New creates a machine in the open state.
func New() *Machine {
	return &Machine{state: StateOpen}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnConfigSent moves OPEN to STREAMING.
func (m *Machine) OnConfigSent() bool {
	return m.transition(StateStreaming, StateOpen)
}

// OnSendClosed moves STREAMING to CLOSING after the outbound half-close.
func (m *Machine) OnSendClosed() bool {
	return m.transition(StateClosing, StateStreaming)
}

// OnEnded records a clean inbound close.
func (m *Machine) OnEnded() bool {
	return m.transition(StateEnded, StateStreaming, StateClosing)
}

// OnFailed records a failure from any non-terminal state.
func (m *Machine) OnFailed() bool {
	return m.transition(StateFailed, StateOpen, StateStreaming, StateClosing)
}

func (m *Machine) transition(to State, from ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range from {
		if m.state == allowed {
			m.state = to
			return true
		}
	}
	return false
}
