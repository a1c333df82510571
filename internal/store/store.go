// Package store holds the backend's control state (active pipeline
// configuration, subscriptions, selected device) and processes the actions
// dispatched from the websocket API. All actions are handled on a single
// actor goroutine (see Runner); frame callbacks read subscriptions through
// snapshot accessors.
package store

import (
	"fmt"
	"sync"

	"github.com/oakview/oakbridge/internal/device"
	"github.com/oakview/oakbridge/internal/pipeline"
	"github.com/oakview/oakbridge/internal/topics"
)

// Action enumerates the operations the API can dispatch.
type Action int

const (
	ActionUpdatePipeline Action = iota
	ActionSelectDevice
	ActionGetSubscriptions
	ActionSetSubscriptions
	ActionGetPipeline
	ActionReset
	ActionGetAvailableDevices
)

var actionNames = map[Action]string{
	ActionUpdatePipeline:      "UpdatePipeline",
	ActionSelectDevice:        "SelectDevice",
	ActionGetSubscriptions:    "GetSubscriptions",
	ActionSetSubscriptions:    "SetSubscriptions",
	ActionGetPipeline:         "GetPipeline",
	ActionReset:               "Reset",
	ActionGetAvailableDevices: "GetAvailableDevices",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Request carries one action and its payload to the actor.
type Request struct {
	Action        Action
	Pipeline      *pipeline.Config // ActionUpdatePipeline
	DeviceID      string           // ActionSelectDevice
	Subscriptions []topics.Topic   // ActionSetSubscriptions

	reply chan Result
}

// Result is the synchronous outcome of one action.
type Result struct {
	OK      bool
	Message string

	// Populated per action kind.
	Pipeline      *pipeline.Config
	Subscriptions []topics.Topic
	Devices       []string
	Properties    *device.Properties
}

// Store is the control state plus the backend callbacks that act on it.
// The callbacks are invoked from the actor goroutine.
type Store struct {
	mu       sync.Mutex
	pipeline *pipeline.Config
	subs     topics.Set
	deviceID string

	// OnUpdatePipeline applies the active pipeline config to the selected
	// device. Returning ok=false rolls the config back.
	OnUpdatePipeline func() (ok bool, message string)
	// OnSelectDevice opens the device with the given id (empty id means
	// unselect) and returns its properties on success.
	OnSelectDevice func(id string) (ok bool, message string, props *device.Properties)
	// OnReset tears down any open device.
	OnReset func() (ok bool, message string)
	// OnListDevices enumerates the ids of available devices.
	OnListDevices func() []string
}

// New returns a store with the default pipeline configuration and no
// subscriptions.
func New() *Store {
	return &Store{
		pipeline: pipeline.Default(),
		subs:     topics.NewSet(),
	}
}

// Pipeline returns a snapshot of the active configuration.
func (s *Store) Pipeline() *pipeline.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline.Clone()
}

// Subscriptions returns a snapshot of the subscription set. Safe to call
// from frame callback goroutines.
func (s *Store) Subscriptions() topics.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.Clone()
}

// DeviceID returns the currently selected device id, or "" if none.
func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// Handle executes one action against the store. It runs on the actor
// goroutine; test code may call it directly.
func (s *Store) Handle(req Request) Result {
	switch req.Action {
	case ActionUpdatePipeline:
		return s.updatePipeline(req.Pipeline)

	case ActionSelectDevice:
		return s.selectDevice(req.DeviceID)

	case ActionGetSubscriptions:
		return Result{OK: true, Subscriptions: s.Subscriptions().Topics()}

	case ActionSetSubscriptions:
		s.mu.Lock()
		s.subs = topics.NewSet(req.Subscriptions...)
		s.mu.Unlock()
		return Result{OK: true, Subscriptions: s.Subscriptions().Topics()}

	case ActionGetPipeline:
		return Result{OK: true, Pipeline: s.Pipeline()}

	case ActionReset:
		return s.reset()

	case ActionGetAvailableDevices:
		var ids []string
		if s.OnListDevices != nil {
			ids = s.OnListDevices()
		}
		if ids == nil {
			ids = []string{}
		}
		return Result{OK: true, Devices: ids}
	}
	return Result{OK: false, Message: fmt.Sprintf("action %s not handled", req.Action)}
}

// updatePipeline swaps in the new config and applies it. A failed apply
// restores the previous config so the store never advertises a pipeline the
// device is not running.
func (s *Store) updatePipeline(cfg *pipeline.Config) Result {
	if cfg == nil {
		return Result{OK: false, Message: "no pipeline configuration provided"}
	}
	if s.OnUpdatePipeline == nil {
		return Result{OK: false, Message: "pipeline updates not wired"}
	}

	s.mu.Lock()
	previous := s.pipeline
	s.pipeline = cfg
	s.mu.Unlock()

	ok, message := s.OnUpdatePipeline()
	if !ok {
		s.mu.Lock()
		s.pipeline = previous
		s.mu.Unlock()
		return Result{OK: false, Message: message}
	}
	return Result{OK: true, Message: message, Pipeline: s.Pipeline()}
}

func (s *Store) selectDevice(id string) Result {
	if s.OnSelectDevice == nil {
		return Result{OK: false, Message: "device selection not wired"}
	}
	ok, message, props := s.OnSelectDevice(id)
	if !ok {
		return Result{OK: false, Message: message, Properties: &device.Properties{}}
	}
	s.mu.Lock()
	s.deviceID = id
	s.mu.Unlock()
	if props == nil {
		props = &device.Properties{}
	}
	return Result{OK: true, Message: message, Properties: props}
}

// reset clears all control state and tears down the device. Triggered by
// the frontend disconnecting or by the device disappearing.
func (s *Store) reset() Result {
	s.mu.Lock()
	s.pipeline = pipeline.Default()
	s.subs = topics.NewSet()
	s.deviceID = ""
	s.mu.Unlock()

	if s.OnReset == nil {
		return Result{OK: true, Message: "reset"}
	}
	ok, message := s.OnReset()
	return Result{OK: ok, Message: message}
}
