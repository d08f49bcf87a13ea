// Package recovery drives device-lost recovery.
//
// The Machine has three states. In Normal it watches the device and the
// reset-request flag. When either fires it releases every registered
// resource in reverse registration order and enters ResetWait. In ResetWait
// it calls Device.Reset once per tick; on success it recreates the
// resources in registration order and returns to Normal, on fatal failure
// it enters Fatal, which is terminal.
//
// Tick runs on the render goroutine only. RequestReset and State may be
// called from any goroutine.
package recovery

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

// State is the recovery state.
type State uint32

const (
	StateNormal State = iota
	StateResetWait
	StateFatal
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateNormal:
		return "Normal"
	case StateResetWait:
		return "ResetWait"
	case StateFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Status is the outcome of one Tick.
type Status uint8

const (
	// StatusNormal means the device is usable and rendering may proceed.
	StatusNormal Status = iota
	// StatusLost means resources were just released; the device is resetting.
	StatusLost
	// StatusWaiting means the device is not resettable yet.
	StatusWaiting
	// StatusRecovered means the device was reset and resources recreated
	// during this tick. Rendering may proceed.
	StatusRecovered
	// StatusFatal means the device cannot be recovered.
	StatusFatal
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "Normal"
	case StatusLost:
		return "Lost"
	case StatusWaiting:
		return "Waiting"
	case StatusRecovered:
		return "Recovered"
	case StatusFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Usable reports whether the device may be drawn to after the tick.
func (s Status) Usable() bool {
	return s == StatusNormal || s == StatusRecovered
}

// Resource is a GPU-bound resource that does not survive a device reset.
type Resource struct {
	Name string
	// Release drops the device objects. It must tolerate being called when
	// nothing was created.
	Release func()
	// Recreate creates the device objects again.
	Recreate func() error
}

// Machine is the device-lost state machine.
type Machine struct {
	dev device.Device
	log *slog.Logger

	state     atomic.Uint32
	requested atomic.Bool

	mu       sync.Mutex
	params   device.ResetParams
	handlers []func(ok bool)
	// gen counts reset requests; a reset completes them only when no
	// newer request arrived while it ran.
	gen uint64

	resources []Resource
}

// New creates a machine in the Normal state.
func New(dev device.Device, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Machine{dev: dev, log: log}
}

// Register appends a resource. Resources that depend on others must be
// registered after them: release runs in reverse order.
func (m *Machine) Register(r Resource) {
	m.resources = append(m.resources, r)
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// RequestReset asks for a device reset with new presentation parameters,
// e.g. for a fullscreen toggle. done, if not nil, is called on the render
// goroutine with the outcome. It reports false in the Fatal state, in which
// case done is not called.
func (m *Machine) RequestReset(p device.ResetParams, done func(ok bool)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateFatal {
		return false
	}
	m.params = p
	m.gen++
	if done != nil {
		m.handlers = append(m.handlers, done)
	}
	m.requested.Store(true)
	return true
}

// Params returns the parameters of the latest reset request.
func (m *Machine) Params() device.ResetParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// ResetRequested reports whether a reset request is pending.
func (m *Machine) ResetRequested() bool {
	return m.requested.Load()
}

// Tick advances the machine by one render tick.
func (m *Machine) Tick() Status {
	switch m.State() {
	case StateNormal:
		lost := m.dev.IsLost()
		if !lost && !m.requested.Load() {
			return StatusNormal
		}
		m.log.Info("recovery: releasing device resources",
			slog.Bool("lost", lost), slog.Int("resources", len(m.resources)))
		m.releaseAll()
		m.state.Store(uint32(StateResetWait))
		return StatusLost

	case StateResetWait:
		m.mu.Lock()
		params, gen := m.params, m.gen
		m.mu.Unlock()

		switch r := m.dev.Reset(params); r {
		case device.ResetNotReady:
			return StatusWaiting
		case device.ResetSuccess:
			if err := m.recreateAll(); err != nil {
				m.log.Error("recovery: recreating resources failed", slog.Any("error", err))
				m.fail()
				return StatusFatal
			}
			m.state.Store(uint32(StateNormal))
			if !m.complete(gen) {
				// The next tick resets again with the newer parameters.
				m.log.Info("recovery: device reset superseded by a newer request")
				return StatusRecovered
			}
			m.log.Info("recovery: device reset complete")
			return StatusRecovered
		default:
			m.log.Error("recovery: device reset failed", slog.String("result", r.String()))
			m.fail()
			return StatusFatal
		}

	default:
		return StatusFatal
	}
}

func (m *Machine) releaseAll() {
	for i := len(m.resources) - 1; i >= 0; i-- {
		if r := m.resources[i]; r.Release != nil {
			r.Release()
		}
	}
}

func (m *Machine) recreateAll() error {
	for _, r := range m.resources {
		if r.Recreate == nil {
			continue
		}
		if err := r.Recreate(); err != nil {
			return fmt.Errorf("recovery: recreate %s: %w", r.Name, err)
		}
	}
	return nil
}

// complete clears the pending request and reports success to its
// handlers if no request newer than gen arrived. It reports whether it did.
func (m *Machine) complete(gen uint64) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.requested.Store(false)
	handlers := m.handlers
	m.handlers = nil
	m.mu.Unlock()
	for _, h := range handlers {
		h(true)
	}
	return true
}

func (m *Machine) fail() {
	m.mu.Lock()
	m.state.Store(uint32(StateFatal))
	handlers := m.handlers
	m.handlers = nil
	m.mu.Unlock()
	for _, h := range handlers {
		h(false)
	}
}
