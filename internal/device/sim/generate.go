package sim

// Synthetic frame generation. Frames are deterministic given the device id
// and elapsed time: a color gradient with a moving bright square, a depth
// ramp, a rotating ring point cloud and detections circling the frame
// centre.

import (
	"math"
	"time"

	"github.com/oakview/oakbridge/internal/device"
	"github.com/oakview/oakbridge/internal/frames"
	"github.com/oakview/oakbridge/internal/pipeline"
)

// previewDims caps simulated image sizes; full sensor resolution buffers
// would only slow the tests down.
func previewDims(d pipeline.Dims) (int, int) {
	const maxW = 320
	if d.W <= maxW {
		return d.W, d.H
	}
	scale := float64(maxW) / float64(d.W)
	return maxW, int(float64(d.H) * scale)
}

func (d *Device) colorFrame(cfg *pipeline.Config, seq uint64, now time.Time, elapsed float64) *frames.ImageFrame {
	dims, _ := cfg.ColorCamera.Resolution.Dims()
	w, h := previewDims(dims)
	data := make([]byte, w*h*3)

	// Horizontal gradient with a bright square orbiting the centre.
	sqX := int(float64(w)/2 + float64(w)/4*math.Cos(elapsed))
	sqY := int(float64(h)/2 + float64(h)/4*math.Sin(elapsed))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			data[i] = byte(255 * x / w)   // B
			data[i+1] = byte(255 * y / h) // G
			data[i+2] = 32                // R
			if abs(x-sqX) < 8 && abs(y-sqY) < 8 {
				data[i], data[i+1], data[i+2] = 255, 255, 255
			}
		}
	}
	return &frames.ImageFrame{
		Width: w, Height: h,
		Format:    frames.PixelBGR,
		Data:      data,
		Seq:       seq,
		Timestamp: now,
	}
}

func (d *Device) monoFrame(cfg *pipeline.MonoCameraConfig, seq uint64, now time.Time) *frames.ImageFrame {
	dims, _ := cfg.Resolution.Dims()
	w, h := previewDims(dims)
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = byte((x + y) % 256)
		}
	}
	return &frames.ImageFrame{
		Width: w, Height: h,
		Format:    frames.PixelGray,
		Data:      data,
		Seq:       seq,
		Timestamp: now,
	}
}

func (d *Device) depthFrame(cfg *pipeline.Config, seq uint64, now time.Time) *frames.DepthFrame {
	dims, _ := cfg.ColorCamera.Resolution.Dims()
	w, h := previewDims(dims)
	mm := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Depth ramp from 0.5m at the bottom to 4m at the top.
			mm[y*w+x] = uint16(500 + (4000-500)*(h-1-y)/maxInt(h-1, 1))
		}
	}
	return &frames.DepthFrame{
		Width: w, Height: h,
		Millimetres: mm,
		Seq:         seq,
		Timestamp:   now,
	}
}

func (d *Device) pointCloud(seq uint64, now time.Time, elapsed float64) *frames.PointCloud {
	const n = 2048
	pc := frames.NewPointCloud(n)
	for i := 0; i < n; i++ {
		theta := 2*math.Pi*float64(i)/n + elapsed/4
		r := 1.5 + 0.5*math.Sin(4*theta)
		pc.X[i] = float32(r * math.Cos(theta))
		pc.Y[i] = float32(r * math.Sin(theta))
		pc.Z[i] = float32(2 + 0.25*math.Sin(theta*8+elapsed))
		pc.Colors[i*3] = byte(128 + 127*math.Cos(theta))
		pc.Colors[i*3+1] = byte(128 + 127*math.Sin(theta))
		pc.Colors[i*3+2] = 200
	}
	pc.Seq = seq
	pc.Timestamp = now
	return pc
}

func (d *Device) imuPacket(cfg *pipeline.Config, now time.Time, elapsed float64) frames.IMUPacket {
	batch := cfg.Imu.BatchReportThreshold
	if batch <= 0 {
		batch = 1
	}
	period := time.Duration(float64(time.Second) / float64(maxInt(cfg.Imu.ReportRate, 1)))
	samples := make([]frames.IMUSample, batch)
	for i := range samples {
		ts := now.Add(-time.Duration(batch-1-i) * period)
		t := elapsed + float64(i)*period.Seconds()
		samples[i] = frames.IMUSample{
			// Gravity on Z plus gentle wobble.
			Accel:     frames.Vec3{X: 0.2 * math.Sin(t), Y: 0.2 * math.Cos(t), Z: 9.81},
			Gyro:      frames.Vec3{X: 0.01 * math.Cos(t / 2), Y: 0.01 * math.Sin(t / 2), Z: 0.02},
			Mag:       frames.Vec3{X: 22, Y: 5, Z: -43},
			Timestamp: ts,
		}
	}
	return frames.IMUPacket{Samples: samples}
}

func (d *Device) emitDetections(cfg *pipeline.Config, sinks device.Sinks, seq uint64, now time.Time, elapsed float64) {
	dims, _ := cfg.ColorCamera.Resolution.Dims()
	w, h := previewDims(dims)

	// Two boxes circling the centre, out of phase.
	dets := make([]frames.Detection, 0, 2)
	for i := 0; i < 2; i++ {
		phase := elapsed/2 + float64(i)*math.Pi
		cx := 0.5 + 0.25*math.Cos(phase)
		cy := 0.5 + 0.25*math.Sin(phase)
		dets = append(dets, frames.Detection{
			XMin: clamp01(cx - 0.08), YMin: clamp01(cy - 0.1),
			XMax: clamp01(cx + 0.08), YMax: clamp01(cy + 0.1),
			Label:      15, // "person" in the VOC table
			Confidence: 0.6 + 0.3*d.rng.Float64(),
		})
	}
	packet := frames.DetectionPacket{
		Width: w, Height: h,
		Detections: dets,
		Seq:        seq,
		Timestamp:  now,
	}

	if cfg.AiModel.Path == "age-gender-recognition-retail-0013" {
		if sinks.OnTwoStage == nil {
			return
		}
		recs := make([]frames.Recognition, len(dets))
		for i := range recs {
			age := 0.2 + 0.5*d.rng.Float64()
			woman := d.rng.Float64()
			recs[i] = frames.Recognition{
				"age_conv3": []float64{age},
				"prob":      []float64{woman, 1 - woman},
			}
		}
		sinks.OnTwoStage(&frames.TwoStagePacket{DetectionPacket: packet, Recognitions: recs})
		return
	}
	if sinks.OnDetections != nil {
		sinks.OnDetections(&packet)
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
