// Package relay turns device frame callbacks into log entries. It sits
// between the device sinks and the log sink publisher: every handler first
// checks the current subscription set, then shapes the payload the way the
// viewer expects (pixel-space rects, RGB rasters, metre point clouds) and
// addresses it by entity path.
//
// Handlers are called from the actor goroutine's device poll; the
// subscription set is read through store snapshots, so the relay itself
// holds no control state.
package relay

import (
	"fmt"
	"sync"

	"github.com/oakview/oakbridge/internal/ahrs"
	"github.com/oakview/oakbridge/internal/device"
	"github.com/oakview/oakbridge/internal/frames"
	"github.com/oakview/oakbridge/internal/logsink"
	"github.com/oakview/oakbridge/internal/pipeline"
	"github.com/oakview/oakbridge/internal/topics"
)

// Entity paths. The viewer builds its blueprint from these, so they are
// wire format, not naming taste.
const (
	PathColorImage        = "color/camera/rgb/Color camera"
	PathColorDetections   = "color/camera/rgb/Detections"
	PathLeftMonoImage     = "mono/camera/left_mono/Left mono"
	PathRightMonoImage    = "mono/camera/right_mono/Right mono"
	PathDepthOnColor      = "color/camera/rgb/Depth"
	PathDepthOnLeft       = "mono/camera/left_mono/Depth"
	PathDepthOnRight      = "mono/camera/right_mono/Depth"
	PathPointCloudOnColor = "color/camera/Point cloud"
	PathPointCloudOnMono  = "mono/camera/Point cloud"
	PathImu               = "imu"
	PathColorTransform    = "color/camera"
	PathMonoTransform     = "mono/camera"
	PathColorPinhole      = "color/camera/rgb"
	PathLeftPinhole       = "mono/camera/left_mono"
	PathRightPinhole      = "mono/camera/right_mono"
)

// State exposes the control-state snapshots the relay needs. *store.Store
// satisfies it.
type State interface {
	Subscriptions() topics.Set
	Pipeline() *pipeline.Config
}

// IntrinsicsFunc returns the intrinsic matrix for an output size, normally
// device.Manager.Intrinsics.
type IntrinsicsFunc func(width, height int) ([9]float64, error)

// Relay fans device frames into the log sink.
type Relay struct {
	state      State
	log        *logsink.Logger
	intrinsics IntrinsicsFunc

	mu      sync.Mutex
	filter  *ahrs.Mahony
	pinhole map[string][2]int // last logged intrinsics size per path

	recordIMU func(s frames.IMUSample, orientation [4]float64)
}

// New creates a relay. intrinsics may be nil when no device exposes
// calibration; pinhole entries are then skipped.
func New(state State, log *logsink.Logger, intrinsics IntrinsicsFunc) *Relay {
	return &Relay{
		state:      state,
		log:        log,
		intrinsics: intrinsics,
		filter:     ahrs.New(ahrs.DefaultFrequency),
		pinhole:    make(map[string][2]int),
	}
}

// Sinks returns the device sinks wired to this relay.
func (r *Relay) Sinks() device.Sinks {
	return device.Sinks{
		OnColorFrame: r.OnColorFrame,
		OnLeftFrame:  r.OnLeftFrame,
		OnRightFrame: r.OnRightFrame,
		OnDepthFrame: r.OnDepthFrame,
		OnPointCloud: r.OnPointCloud,
		OnIMU:        r.OnIMU,
		OnDetections: r.OnDetections,
		OnTwoStage:   r.OnTwoStage,
	}
}

// SetIMURecorder installs a hook invoked once per IMU batch with the last
// sample and the fused orientation, independent of subscriptions. Used to
// persist session IMU history.
func (r *Relay) SetIMURecorder(fn func(s frames.IMUSample, orientation [4]float64)) {
	r.mu.Lock()
	r.recordIMU = fn
	r.mu.Unlock()
}

// ResetOrientation re-seeds the AHRS filter, called when the pipeline
// restarts so a new mount orientation converges from identity.
func (r *Relay) ResetOrientation() {
	r.mu.Lock()
	r.filter.Reset()
	r.mu.Unlock()
}

func (r *Relay) OnColorFrame(f *frames.ImageFrame) {
	if !r.state.Subscriptions().Has(topics.ColorImage) {
		return
	}
	r.logPose(PathColorTransform, PathColorPinhole, f)
	r.log.Image(PathColorImage, f)
}

func (r *Relay) OnLeftFrame(f *frames.ImageFrame) {
	if !r.state.Subscriptions().Has(topics.LeftMono) {
		return
	}
	r.logPose(PathMonoTransform, PathLeftPinhole, f)
	r.log.Image(PathLeftMonoImage, f)
}

func (r *Relay) OnRightFrame(f *frames.ImageFrame) {
	if !r.state.Subscriptions().Has(topics.RightMono) {
		return
	}
	r.logPose(PathMonoTransform, PathRightPinhole, f)
	r.log.Image(PathRightMonoImage, f)
}

// logPose places the camera ahead of its image: a rigid3 with the fused
// orientation at the transform path, then intrinsics at the pinhole path.
// Without both the viewer cannot position or project the stream.
func (r *Relay) logPose(transformPath, pinholePath string, f *frames.ImageFrame) {
	r.mu.Lock()
	q := r.filter.Quaternion()
	r.mu.Unlock()
	r.log.Rigid3(transformPath, q, [3]float64{}, f.Timestamp)
	r.logPinhole(pinholePath, f.Width, f.Height)
}

// OnDepthFrame logs depth at the camera the disparity is aligned to, so the
// viewer overlays it on the matching image.
func (r *Relay) OnDepthFrame(f *frames.DepthFrame) {
	if !r.state.Subscriptions().Has(topics.DepthImage) {
		return
	}
	r.log.DepthImage(DepthPath(r.state.Pipeline()), f)
}

// DepthPath resolves the entity path for depth frames from the active
// alignment. An unset depth config falls back to the color camera.
func DepthPath(cfg *pipeline.Config) string {
	if cfg == nil || cfg.Depth == nil {
		return PathDepthOnColor
	}
	switch cfg.Depth.Align {
	case pipeline.SocketLeft:
		return PathDepthOnLeft
	case pipeline.SocketRight:
		return PathDepthOnRight
	default:
		return PathDepthOnColor
	}
}

func (r *Relay) OnPointCloud(pc *frames.PointCloud) {
	defer pc.Release()
	if !r.state.Subscriptions().Has(topics.PointCloud) {
		return
	}
	// The cloud goes back to the pool after this callback; the entry may
	// sit in the publisher queue longer than that, so copy.
	clone := frames.NewPointCloud(pc.Count)
	copy(clone.X, pc.X[:pc.Count])
	copy(clone.Y, pc.Y[:pc.Count])
	copy(clone.Z, pc.Z[:pc.Count])
	copy(clone.Colors, pc.Colors[:pc.Count*3])
	clone.Seq = pc.Seq
	clone.Timestamp = pc.Timestamp
	r.log.Points(PointCloudPath(r.state.Pipeline()), clone)
}

// PointCloudPath resolves the entity path for point clouds: the cloud hangs
// under whichever camera transform depth is aligned to.
func PointCloudPath(cfg *pipeline.Config) string {
	if cfg == nil || cfg.Depth == nil {
		return PathPointCloudOnColor
	}
	switch cfg.Depth.Align {
	case pipeline.SocketLeft, pipeline.SocketRight:
		return PathPointCloudOnMono
	default:
		return PathPointCloudOnColor
	}
}

// OnIMU feeds every sample through the AHRS filter and logs the raw values
// with the fused orientation. The device reports axes in its own frame; the
// filter expects (z, x, y) to put gravity on the viewer's up axis.
func (r *Relay) OnIMU(p frames.IMUPacket) {
	subscribed := r.state.Subscriptions().Has(topics.ImuData)

	r.mu.Lock()
	for _, s := range p.Samples {
		r.filter.UpdateIMU(
			[3]float64{s.Gyro.Z, s.Gyro.X, s.Gyro.Y},
			[3]float64{s.Accel.Z, s.Accel.X, s.Accel.Y},
		)
	}
	q := r.filter.Quaternion()
	record := r.recordIMU
	r.mu.Unlock()

	if len(p.Samples) == 0 {
		return
	}
	last := p.Samples[len(p.Samples)-1]
	if record != nil {
		record(last, q)
	}
	if !subscribed {
		return
	}
	r.log.Imu(PathImu, last, q)
}

// Rect colors: first-stage detections are green, two-stage age/gender boxes
// are red for women and blue for men.
var (
	colorDetection = [3]uint8{0, 255, 0}
	colorWoman     = [3]uint8{255, 0, 0}
	colorMan       = [3]uint8{0, 0, 255}
)

// OnDetections logs first-stage NN output as labeled pixel rects over the
// color image.
func (r *Relay) OnDetections(p *frames.DetectionPacket) {
	if !r.state.Subscriptions().Has(topics.Rectangles) {
		return
	}
	labels := labelsFor(r.state.Pipeline())
	rects, colors, names := rectsFrom(p, labels)
	r.log.Rects(PathColorDetections, rects, colors, names, p.Timestamp)
}

// OnTwoStage logs detections whose labels come from the second-stage
// network instead of a class table.
func (r *Relay) OnTwoStage(p *frames.TwoStagePacket) {
	if !r.state.Subscriptions().Has(topics.Rectangles) {
		return
	}
	rects := make([][4]float32, 0, len(p.Detections))
	colors := make([][3]uint8, 0, len(p.Detections))
	names := make([]string, 0, len(p.Detections))
	for i, det := range p.Detections {
		label, color := describeRecognition(p.Recognitions[i])
		rects = append(rects, scaleRect(det, p.Width, p.Height))
		colors = append(colors, color)
		names = append(names, label)
	}
	r.log.Rects(PathColorDetections, rects, colors, names, p.Timestamp)
}

func rectsFrom(p *frames.DetectionPacket, labels []string) ([][4]float32, [][3]uint8, []string) {
	rects := make([][4]float32, 0, len(p.Detections))
	colors := make([][3]uint8, 0, len(p.Detections))
	names := make([]string, 0, len(p.Detections))
	for _, det := range p.Detections {
		rects = append(rects, scaleRect(det, p.Width, p.Height))
		colors = append(colors, colorDetection)
		name := "unknown"
		if det.Label >= 0 && det.Label < len(labels) {
			name = labels[det.Label]
		}
		names = append(names, fmt.Sprintf("%s, %.0f%%", name, det.Confidence*100))
	}
	return rects, colors, names
}

// scaleRect converts a normalized detection box to pixel XYXY. NN output can
// stray outside [0,1], so coordinates are clamped before scaling.
func scaleRect(det frames.Detection, width, height int) [4]float32 {
	return [4]float32{
		float32(clamp01(det.XMin) * float64(width)),
		float32(clamp01(det.YMin) * float64(height)),
		float32(clamp01(det.XMax) * float64(width)),
		float32(clamp01(det.YMax) * float64(height)),
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// describeRecognition formats an age/gender recognition and picks the rect
// color: the age layer holds age/100, the prob layer holds (female, male)
// probabilities.
func describeRecognition(rec frames.Recognition) (string, [3]uint8) {
	age := 0
	if vals := rec["age_conv3"]; len(vals) > 0 {
		age = int(vals[0]*100 + 0.5)
	}
	gender, color := "unknown", colorDetection
	if probs := rec["prob"]; len(probs) == 2 {
		if probs[0] > probs[1] {
			gender, color = "Woman", colorWoman
		} else {
			gender, color = "Man", colorMan
		}
	}
	return fmt.Sprintf("%s, %d", gender, age), color
}

// logPinhole logs intrinsics for the path once per output size.
func (r *Relay) logPinhole(path string, width, height int) {
	if r.intrinsics == nil {
		return
	}
	size := [2]int{width, height}
	r.mu.Lock()
	if r.pinhole[path] == size {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	mat, err := r.intrinsics(width, height)
	if err != nil {
		return
	}

	r.mu.Lock()
	r.pinhole[path] = size
	r.mu.Unlock()
	r.log.Pinhole(path, mat, width, height)
}

// labelsFor picks the class label table for the active NN model.
func labelsFor(cfg *pipeline.Config) []string {
	if cfg == nil || cfg.AiModel == nil {
		return nil
	}
	switch cfg.AiModel.Path {
	case "yolo-v3-tiny-tf":
		return cocoLabels
	default:
		return vocLabels
	}
}
