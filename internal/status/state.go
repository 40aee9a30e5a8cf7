package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tduarte/mailmind/internal/bus"
)

// State represents the mail connection state owned by the sync engine.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connected    State = "CONNECTED"
	Syncing      State = "SYNCING"
)

// validTransitions defines allowed state transitions. Disconnect is legal
// from any state; a sync may only start on an established connection.
var validTransitions = map[State][]State{
	Disconnected: {Connected},
	Connected:    {Syncing, Disconnected},
	Syncing:      {Connected, Disconnected},
}

// Machine tracks and enforces mail connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit("sync.status_changed", Change{From: from, To: to})
	}
	return nil
}

// Change is the payload for status change events.
type Change struct {
	From State
	To   State
}
