// Package device abstracts the camera hardware behind an interface: a
// registry enumerates devices, an opened Device builds pipelines from a
// configuration and delivers frames through registered sinks. The real
// vendor SDK is a native library; the sim subpackage provides the
// implementation used in dev mode and tests.
package device

import (
	"errors"

	"github.com/oakview/oakbridge/internal/frames"
	"github.com/oakview/oakbridge/internal/pipeline"
)

// ErrNotFound is returned when opening a device id the registry does not
// know.
var ErrNotFound = errors.New("device not found")

// CameraFeature describes one camera sensor on a device: its socket and the
// sensor modes it supports.
type CameraFeature struct {
	Socket pipeline.BoardSocket
	Modes  []pipeline.Dims
}

// Properties is the device description sent to the frontend after a
// successful selection. Resolution lists hold enum wire names ordered by
// pixel area.
type Properties struct {
	ID                            string   `json:"id"`
	SupportedColorResolutions     []string `json:"supported_color_resolutions"`
	SupportedLeftMonoResolutions  []string `json:"supported_left_mono_resolutions"`
	SupportedRightMonoResolutions []string `json:"supported_right_mono_resolutions"`
}

// Sinks holds the frame handlers a pipeline delivers into. Nil handlers are
// skipped; the device only invokes handlers for nodes the active config
// enables.
type Sinks struct {
	OnColorFrame func(*frames.ImageFrame)
	OnLeftFrame  func(*frames.ImageFrame)
	OnRightFrame func(*frames.ImageFrame)
	OnDepthFrame func(*frames.DepthFrame)
	OnPointCloud func(*frames.PointCloud)
	OnIMU        func(frames.IMUPacket)
	OnDetections func(*frames.DetectionPacket)
	OnTwoStage   func(*frames.TwoStagePacket)
}

// Device is one opened camera.
type Device interface {
	// ID returns the device's unique id (serial / mxid).
	ID() string

	// Features lists the camera sensors and their supported modes.
	Features() ([]CameraFeature, error)

	// Intrinsics returns the row-major 3x3 intrinsic matrix for the given
	// output dimensions.
	Intrinsics(width, height int) ([9]float64, error)

	// Start builds the pipeline described by cfg and begins delivering
	// frames to sinks. Calling Start on a running device restarts it.
	Start(cfg *pipeline.Config, sinks Sinks) error

	// Tune applies runtime-tunable settings to a running pipeline without
	// rebuilding it. Callers check pipeline.Config.TunableFrom first.
	Tune(cfg *pipeline.Config) error

	// Running reports whether a pipeline is active.
	Running() bool

	// Poll gives the device a chance to deliver pending frames. Called
	// from the actor loop.
	Poll()

	// Closed reports whether the device has gone away (unplugged, crashed).
	Closed() bool

	// Close stops the pipeline and releases the device.
	Close() error
}

// Registry enumerates and opens devices.
type Registry interface {
	// List returns the ids of all devices currently available.
	List() []string

	// Open claims the device with the given id.
	Open(id string) (Device, error)
}

// PropertiesFor maps a device's camera features onto the wire Properties:
// modes are deduplicated, sorted by pixel area and translated to resolution
// enum names; modes without a table entry are skipped.
func PropertiesFor(id string, features []CameraFeature) *Properties {
	props := &Properties{
		ID:                            id,
		SupportedColorResolutions:     []string{},
		SupportedLeftMonoResolutions:  []string{},
		SupportedRightMonoResolutions: []string{},
	}
	for _, feat := range features {
		dims := dedupeDims(feat.Modes)
		pipeline.SortDimsByArea(dims)
		switch feat.Socket {
		case pipeline.SocketRGB:
			for _, d := range dims {
				if r, ok := pipeline.ColorResolutionFor(d); ok {
					props.SupportedColorResolutions = append(props.SupportedColorResolutions, string(r))
				}
			}
		case pipeline.SocketRight:
			for _, d := range dims {
				if r, ok := pipeline.MonoResolutionFor(d); ok {
					props.SupportedRightMonoResolutions = append(props.SupportedRightMonoResolutions, string(r))
				}
			}
		default:
			for _, d := range dims {
				if r, ok := pipeline.MonoResolutionFor(d); ok {
					props.SupportedLeftMonoResolutions = append(props.SupportedLeftMonoResolutions, string(r))
				}
			}
		}
	}
	return props
}

func dedupeDims(in []pipeline.Dims) []pipeline.Dims {
	seen := make(map[pipeline.Dims]bool, len(in))
	out := make([]pipeline.Dims, 0, len(in))
	for _, d := range in {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
