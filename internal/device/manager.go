package device

import (
	"fmt"
	"log"
	"sync"

	"github.com/oakview/oakbridge/internal/pipeline"
)

// Manager owns the currently selected device. The store's callbacks call
// into it from the actor goroutine; the relay reads intrinsics from frame
// callback goroutines, so the intrinsics cache takes the lock.
type Manager struct {
	registry Registry

	mu         sync.Mutex
	dev        Device
	applied    *pipeline.Config
	intrinsics map[[2]int][9]float64
}

// NewManager creates a manager over the given registry.
func NewManager(reg Registry) *Manager {
	return &Manager{registry: reg}
}

// List enumerates available device ids.
func (m *Manager) List() []string {
	return m.registry.List()
}

// Selected returns the open device, or nil.
func (m *Manager) Selected() Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev
}

// Select closes any open device and opens the one with the given id. An
// empty id just unselects. On success it returns the device properties for
// the frontend.
func (m *Manager) Select(id string) (bool, string, *Properties) {
	if dev := m.Selected(); dev != nil {
		m.Reset()
	}
	if id == "" {
		return true, "Successfully unselected device", &Properties{}
	}

	dev, err := m.registry.Open(id)
	if err != nil {
		log.Printf("[Device] failed to open %q: %v", id, err)
		return false, "Failed to select device", &Properties{}
	}

	features, err := dev.Features()
	if err != nil {
		// A device that cannot report its features is in a bad state;
		// release it rather than keeping a half-open handle.
		dev.Close()
		log.Printf("[Device] failed to read features of %q: %v", id, err)
		return false, "Failed to get device properties", &Properties{}
	}

	m.mu.Lock()
	m.dev = dev
	m.intrinsics = make(map[[2]int][9]float64)
	m.mu.Unlock()

	return true, "Device selected successfully", PropertiesFor(id, features)
}

// Reset closes the selected device and clears the intrinsics cache.
func (m *Manager) Reset() (bool, string) {
	m.mu.Lock()
	dev := m.dev
	m.dev = nil
	m.applied = nil
	m.intrinsics = nil
	m.mu.Unlock()

	if dev == nil {
		return true, "Reset successful"
	}
	log.Printf("[Device] closing %s", dev.ID())
	if err := dev.Close(); err != nil {
		return false, fmt.Sprintf("failed to close device: %v", err)
	}
	return true, "Reset successful"
}

// Apply brings the selected device to the given pipeline. Changes limited
// to the runtime-tunable depth settings are applied to the running pipeline
// in place; anything else restarts the device, because the vendor stack
// cannot swap pipeline graphs without a rebuild.
func (m *Manager) Apply(cfg *pipeline.Config, sinks Sinks) (bool, string) {
	m.mu.Lock()
	dev := m.dev
	prev := m.applied
	m.mu.Unlock()
	if dev == nil {
		return false, "No device selected, can't update pipeline!"
	}

	if dev.Running() && cfg.TunableFrom(prev) {
		err := dev.Tune(cfg)
		if err == nil {
			m.setApplied(cfg)
			return true, "Pipeline updated"
		}
		log.Printf("[Device] in-place tune failed on %s, restarting: %v", dev.ID(), err)
	}

	if err := dev.Start(cfg, sinks); err != nil {
		log.Printf("[Device] pipeline start failed on %s: %v", dev.ID(), err)
		// The device may be wedged after a failed start; drop it so the
		// frontend's FullReset starts from a clean slate.
		m.Reset()
		return false, "Couldn't start pipeline"
	}
	m.setApplied(cfg)
	return true, "Pipeline started"
}

func (m *Manager) setApplied(cfg *pipeline.Config) {
	m.mu.Lock()
	m.applied = cfg.Clone()
	m.mu.Unlock()
}

// Poll services the selected device and reports whether it has gone away.
func (m *Manager) Poll() (closed bool) {
	dev := m.Selected()
	if dev == nil {
		return false
	}
	dev.Poll()
	return dev.Closed()
}

// Intrinsics returns the selected device's intrinsic matrix for the given
// output size, computed once per (width, height) and cached until the
// device changes.
func (m *Manager) Intrinsics(width, height int) ([9]float64, error) {
	m.mu.Lock()
	dev := m.dev
	if dev == nil {
		m.mu.Unlock()
		return [9]float64{}, fmt.Errorf("no device selected")
	}
	key := [2]int{width, height}
	if mat, ok := m.intrinsics[key]; ok {
		m.mu.Unlock()
		return mat, nil
	}
	m.mu.Unlock()

	mat, err := dev.Intrinsics(width, height)
	if err != nil {
		return [9]float64{}, err
	}

	m.mu.Lock()
	if m.intrinsics != nil {
		m.intrinsics[key] = mat
	}
	m.mu.Unlock()
	return mat, nil
}
