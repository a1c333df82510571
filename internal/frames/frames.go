// Package frames defines the sensor packets produced by a device and
// consumed by the relay: images, depth frames, point clouds, IMU batches and
// neural network detections.
package frames

import "time"

// PixelFormat describes the channel layout of an ImageFrame.
type PixelFormat int

const (
	PixelBGR PixelFormat = iota
	PixelRGB
	PixelGray
)

// ImageFrame is a single decoded camera frame. Data is tightly packed
// row-major; 3 bytes per pixel for BGR/RGB, 1 for Gray.
type ImageFrame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Data      []byte
	Seq       uint64
	Timestamp time.Time
}

// ToRGB converts a BGR frame to RGB in place. RGB and Gray frames are
// returned unchanged.
func (f *ImageFrame) ToRGB() {
	if f.Format != PixelBGR {
		return
	}
	for i := 0; i+2 < len(f.Data); i += 3 {
		f.Data[i], f.Data[i+2] = f.Data[i+2], f.Data[i]
	}
	f.Format = PixelRGB
}

// DepthFrame carries per-pixel depth in millimetres.
type DepthFrame struct {
	Width       int
	Height      int
	Millimetres []uint16
	Seq         uint64
	Timestamp   time.Time
}

// Vec3 is a 3-component sensor reading.
type Vec3 struct {
	X, Y, Z float64
}

// IMUSample is one fused IMU report.
type IMUSample struct {
	Accel     Vec3 // m/s^2
	Gyro      Vec3 // rad/s
	Mag       Vec3 // uT
	Timestamp time.Time
}

// IMUPacket is a batch of IMU samples, sized by the configured batch report
// threshold.
type IMUPacket struct {
	Samples []IMUSample
}

// Detection is one NN detection with normalized [0,1] corner coordinates.
type Detection struct {
	XMin, YMin float64
	XMax, YMax float64
	Label      int
	Confidence float64
}

// DetectionPacket carries detections plus the dimensions of the frame they
// were computed on, needed to scale the boxes to pixels.
type DetectionPacket struct {
	Width      int
	Height     int
	Detections []Detection
	Seq        uint64
	Timestamp  time.Time
}

// Recognition holds the named output layers of a second-stage network.
type Recognition map[string][]float64

// TwoStagePacket pairs each detection with the recognition result computed
// on its crop. Recognitions is index-aligned with Detections.
type TwoStagePacket struct {
	DetectionPacket
	Recognitions []Recognition
}
