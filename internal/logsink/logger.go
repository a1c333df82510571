package logsink

import (
	"sync/atomic"
	"time"

	"github.com/oakview/oakbridge/internal/frames"
)

// Sink accepts log entries. The publisher implements it; tests substitute a
// capture.
type Sink interface {
	Publish(*Entry)
}

// Logger builds entries from frame payloads and hands them to a sink. All
// methods are safe to call from concurrent frame callbacks.
type Logger struct {
	sink Sink
	seq  atomic.Uint64
}

// NewLogger returns a logger writing to sink.
func NewLogger(sink Sink) *Logger {
	return &Logger{sink: sink}
}

func (l *Logger) entry(path string, kind EntryKind, ts time.Time) *Entry {
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Entry{
		Path:          path,
		Kind:          kind,
		Seq:           l.seq.Add(1),
		TimestampNano: ts.UnixNano(),
	}
}

// Image logs a color or mono raster. BGR input is converted to RGB; the
// viewer only understands rgb8 and mono8.
func (l *Logger) Image(path string, f *frames.ImageFrame) {
	format := "rgb8"
	data := f.Data
	switch f.Format {
	case frames.PixelBGR:
		f.ToRGB()
		data = f.Data
	case frames.PixelGray:
		format = "mono8"
	}

	e := l.entry(path, KindImage, f.Timestamp)
	e.Image = &ImagePayload{Width: f.Width, Height: f.Height, Format: format, Data: data}
	l.sink.Publish(e)
}

// DepthImage logs a depth raster with a metre scale of 1000 (millimetre
// units).
func (l *Logger) DepthImage(path string, f *frames.DepthFrame) {
	e := l.entry(path, KindDepthImage, f.Timestamp)
	e.Depth = &DepthPayload{Width: f.Width, Height: f.Height, MeterScale: 1000, Data: f.Millimetres}
	l.sink.Publish(e)
}

// Points logs a point cloud. The payload aliases the cloud's slices, so the
// caller must not Release the cloud until the entry has been encoded; the
// relay copies when the cloud is pooled.
func (l *Logger) Points(path string, pc *frames.PointCloud) {
	e := l.entry(path, KindPoints, pc.Timestamp)
	e.Points = &PointsPayload{
		X: pc.X[:pc.Count], Y: pc.Y[:pc.Count], Z: pc.Z[:pc.Count],
		Colors: pc.Colors[:pc.Count*3],
	}
	l.sink.Publish(e)
}

// Rects logs labeled 2D boxes in pixel coordinates, with an RGB color per
// box.
func (l *Logger) Rects(path string, rects [][4]float32, colors [][3]uint8, labels []string, ts time.Time) {
	e := l.entry(path, KindRects, ts)
	e.Rects = &RectsPayload{Rects: rects, Labels: labels, Colors: colors}
	l.sink.Publish(e)
}

// Rigid3 logs a rigid transform at the given path.
func (l *Logger) Rigid3(path string, q [4]float64, t [3]float64, ts time.Time) {
	e := l.entry(path, KindRigid3, ts)
	e.Rigid3 = &Rigid3Payload{Quaternion: q, Translation: t}
	l.sink.Publish(e)
}

// Pinhole logs camera intrinsics for the given output size.
func (l *Logger) Pinhole(path string, matrix [9]float64, width, height int) {
	e := l.entry(path, KindPinhole, time.Time{})
	e.Pinhole = &PinholePayload{Matrix: matrix, Width: width, Height: height}
	l.sink.Publish(e)
}

// Imu logs one raw IMU sample with the fused orientation.
func (l *Logger) Imu(path string, s frames.IMUSample, orientation [4]float64) {
	e := l.entry(path, KindImu, s.Timestamp)
	e.Imu = &ImuPayload{
		Accel:       [3]float64{s.Accel.X, s.Accel.Y, s.Accel.Z},
		Gyro:        [3]float64{s.Gyro.X, s.Gyro.Y, s.Gyro.Z},
		Mag:         [3]float64{s.Mag.X, s.Mag.Y, s.Mag.Z},
		Orientation: orientation,
	}
	l.sink.Publish(e)
}

// Clear logs a tombstone for the path, telling the viewer to drop whatever
// it last showed there.
func (l *Logger) Clear(path string) {
	l.sink.Publish(l.entry(path, KindClear, time.Time{}))
}
