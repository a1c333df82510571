// Package sim implements the device interface with a synthetic camera: it
// generates deterministic color/mono/depth frames, a colorized point cloud,
// IMU batches and circling detections at the configured rates. It backs dev
// mode and the test suite, standing in for hardware the CI machines do not
// have.
package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oakview/oakbridge/internal/device"
	"github.com/oakview/oakbridge/internal/pipeline"
)

// Registry lists a fixed set of simulated device ids.
type Registry struct {
	ids []string

	mu   sync.Mutex
	open map[string]*Device
}

// NewRegistry creates a registry for the given ids. With no ids it exposes
// a single default device.
func NewRegistry(ids ...string) *Registry {
	if len(ids) == 0 {
		ids = []string{"sim-oak-0"}
	}
	return &Registry{ids: ids, open: make(map[string]*Device)}
}

// List returns the simulated device ids.
func (r *Registry) List() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Open claims a simulated device by id.
func (r *Registry) Open(id string) (device.Device, error) {
	for _, known := range r.ids {
		if known == id {
			dev := newDevice(id)
			r.mu.Lock()
			r.open[id] = dev
			r.mu.Unlock()
			return dev, nil
		}
	}
	return nil, fmt.Errorf("open %q: %w", id, device.ErrNotFound)
}

// Unplug simulates the device with the given id disappearing mid-stream.
func (r *Registry) Unplug(id string) {
	r.mu.Lock()
	dev := r.open[id]
	r.mu.Unlock()
	if dev != nil {
		dev.unplug()
	}
}

// Device is one simulated camera.
type Device struct {
	id string

	mu      sync.Mutex
	cfg     *pipeline.Config
	sinks   device.Sinks
	running bool
	closed  bool

	seq       uint64
	rng       *rand.Rand
	start     time.Time
	lastVideo time.Time
	lastMono  time.Time
	lastIMU   time.Time
	lastNN    time.Time
}

func newDevice(id string) *Device {
	return &Device{
		id:  id,
		rng: rand.New(rand.NewSource(int64(len(id)) * 7919)),
	}
}

func (d *Device) ID() string { return d.id }

// Features reports a fixed sensor layout: one color camera and a stereo
// mono pair.
func (d *Device) Features() ([]device.CameraFeature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("device %s is closed", d.id)
	}
	monoModes := []pipeline.Dims{{W: 640, H: 400}, {W: 640, H: 480}, {W: 1280, H: 720}, {W: 1280, H: 800}}
	return []device.CameraFeature{
		{Socket: pipeline.SocketRGB, Modes: []pipeline.Dims{
			{W: 1920, H: 1080}, {W: 3840, H: 2160}, {W: 1280, H: 720}, {W: 1920, H: 1080},
		}},
		{Socket: pipeline.SocketLeft, Modes: monoModes},
		{Socket: pipeline.SocketRight, Modes: monoModes},
	}, nil
}

// Intrinsics models a pinhole with a focal length of 0.8*width centred on
// the image.
func (d *Device) Intrinsics(width, height int) ([9]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return [9]float64{}, fmt.Errorf("device %s is closed", d.id)
	}
	f := 0.8 * float64(width)
	return [9]float64{
		f, 0, float64(width) / 2,
		0, f, float64(height) / 2,
		0, 0, 1,
	}, nil
}

// Start applies a pipeline configuration. Restarting resets frame pacing
// but keeps the device identity.
func (d *Device) Start(cfg *pipeline.Config, sinks device.Sinks) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("device %s is closed", d.id)
	}
	if cfg == nil {
		return fmt.Errorf("nil pipeline config")
	}
	d.cfg = cfg.Clone()
	d.sinks = sinks
	d.running = true
	d.start = time.Now()
	d.lastVideo, d.lastMono, d.lastIMU, d.lastNN = time.Time{}, time.Time{}, time.Time{}, time.Time{}
	return nil
}

// Tune swaps in runtime-tunable settings without resetting frame pacing.
// Poll reads the config on every call, so the next frame batch picks the
// change up.
func (d *Device) Tune(cfg *pipeline.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("device %s is closed", d.id)
	}
	if !d.running {
		return fmt.Errorf("device %s has no running pipeline", d.id)
	}
	if cfg == nil {
		return fmt.Errorf("nil pipeline config")
	}
	d.cfg = cfg.Clone()
	return nil
}

func (d *Device) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running && !d.closed
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close stops the pipeline and marks the device available again.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.closed = true
	return nil
}

func (d *Device) unplug() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.running = false
}

// Poll emits any frames that have come due since the last call. It is
// deadline-based rather than ticker-based so a slow caller produces late
// frames instead of a backlog.
func (d *Device) Poll() {
	d.mu.Lock()
	if !d.running || d.closed {
		d.mu.Unlock()
		return
	}
	cfg := d.cfg
	sinks := d.sinks
	now := time.Now()

	var emitVideo, emitMono, emitIMU, emitNN bool
	if cfg.ColorCamera != nil && due(&d.lastVideo, now, cfg.ColorCamera.FPS) {
		emitVideo = true
	}
	monoFPS := 0
	if cfg.LeftCamera != nil {
		monoFPS = cfg.LeftCamera.FPS
	} else if cfg.RightCamera != nil {
		monoFPS = cfg.RightCamera.FPS
	}
	if monoFPS > 0 && due(&d.lastMono, now, monoFPS) {
		emitMono = true
	}
	if cfg.Imu != nil && due(&d.lastIMU, now, cfg.Imu.ReportRate/maxInt(cfg.Imu.BatchReportThreshold, 1)) {
		emitIMU = true
	}
	if cfg.AiModel != nil && cfg.AiModel.Path != "" && due(&d.lastNN, now, 10) {
		emitNN = true
	}
	d.seq++
	seq := d.seq
	elapsed := now.Sub(d.start).Seconds()
	d.mu.Unlock()

	// Callbacks run without the lock so a sink may call back into the
	// device.
	if emitVideo {
		if cfg.ColorCamera.XOutVideo && sinks.OnColorFrame != nil {
			sinks.OnColorFrame(d.colorFrame(cfg, seq, now, elapsed))
		}
		if cfg.Depth != nil && sinks.OnDepthFrame != nil {
			sinks.OnDepthFrame(d.depthFrame(cfg, seq, now))
		}
		if cfg.Depth != nil && cfg.Depth.PointCloud && sinks.OnPointCloud != nil {
			sinks.OnPointCloud(d.pointCloud(seq, now, elapsed))
		}
	}
	if emitMono {
		if cfg.LeftCamera != nil && cfg.LeftCamera.XOut && sinks.OnLeftFrame != nil {
			sinks.OnLeftFrame(d.monoFrame(cfg.LeftCamera, seq, now))
		}
		if cfg.RightCamera != nil && cfg.RightCamera.XOut && sinks.OnRightFrame != nil {
			sinks.OnRightFrame(d.monoFrame(cfg.RightCamera, seq, now))
		}
	}
	if emitIMU && sinks.OnIMU != nil {
		sinks.OnIMU(d.imuPacket(cfg, now, elapsed))
	}
	if emitNN {
		d.emitDetections(cfg, sinks, seq, now, elapsed)
	}
}

// due advances last to now and reports true when at least one frame period
// has elapsed.
func due(last *time.Time, now time.Time, rate int) bool {
	if rate <= 0 {
		return false
	}
	period := time.Duration(float64(time.Second) / float64(rate))
	if last.IsZero() || now.Sub(*last) >= period {
		*last = now
		return true
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
